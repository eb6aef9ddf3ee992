// internal/diff/types.go
package diff

// MergeStrategy says which side resolves a classified file.
type MergeStrategy string

const (
	StrategyUseLocal  MergeStrategy = "use_local"
	StrategyUseRemote MergeStrategy = "use_remote"
	StrategyUseBase   MergeStrategy = "use_base"
	StrategyManual    MergeStrategy = "manual"
)

// ConflictType categorizes why a file could not be auto-merged.
type ConflictType string

const (
	ConflictModifyModify ConflictType = "modify-modify"
	ConflictModifyDelete ConflictType = "modify-delete"
	ConflictDeleteModify ConflictType = "delete-modify"
	ConflictAddAdd       ConflictType = "add-add"
)

// Conflict is the per-file record for a path that needs manual resolution.
// A nil content slice means the file is absent on that side. Conflicts are
// always Strategy == StrategyManual; that invariant is enforced by
// NewConflict being the only constructor.
type Conflict struct {
	Path          string
	Type          ConflictType
	IsBinary      bool
	BaseContent   []byte
	LocalContent  []byte
	RemoteContent []byte
	Strategy      MergeStrategy
}

func NewConflict(path string, t ConflictType, binary bool, base, local, remote []byte) Conflict {
	return Conflict{
		Path:          path,
		Type:          t,
		IsBinary:      binary,
		BaseContent:   base,
		LocalContent:  local,
		RemoteContent: remote,
		Strategy:      StrategyManual,
	}
}

// AutoMergeable is always false for a Conflict; the unambiguous cases live
// in Resolution instead, so the two states cannot be confused.
func (c Conflict) AutoMergeable() bool { return false }

// Resolution is an auto-mergeable path: copy (or delete) from the chosen side.
type Resolution struct {
	Path     string
	Strategy MergeStrategy // StrategyUseLocal or StrategyUseRemote
	Delete   bool          // the chosen side removed the file
}

// Stats summarizes a three-way classification.
type Stats struct {
	FilesChanged    int
	FilesConflicted int
	BinaryConflicts int
}

// ThreeWayResult classifies every path present in any of base/local/remote.
type ThreeWayResult struct {
	AutoMergeable []Resolution
	Conflicts     []Conflict
	Stats         Stats
}

// CanAutoMerge reports whether the whole tree merges without user input.
func (r *ThreeWayResult) CanAutoMerge() bool { return len(r.Conflicts) == 0 }

// DirDiff is the two-way comparison used for previews. It never drives writes.
type DirDiff struct {
	FilesAdded    []string
	FilesRemoved  []string
	FilesModified []string
}

func (d *DirDiff) Empty() bool {
	return len(d.FilesAdded) == 0 && len(d.FilesRemoved) == 0 && len(d.FilesModified) == 0
}
