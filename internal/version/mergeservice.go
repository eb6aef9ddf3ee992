// internal/version/mergeservice.go
//
// MergeService coordinates merges between two named snapshots, as opposed
// to the snapshot-vs-live-tree merges VersionManager runs. It reuses the
// diff and merge engines and VersionManager's safety-snapshot discipline.
package version

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/miethe/skillmeat/internal/collection"
	"github.com/miethe/skillmeat/internal/diff"
	"github.com/miethe/skillmeat/internal/errors"
	"github.com/miethe/skillmeat/internal/merge"
	"github.com/miethe/skillmeat/internal/report"
	"github.com/miethe/skillmeat/internal/snapshot"
)

// MergeSafetyAnalysis is the pre-flight result for a snapshot-to-snapshot
// merge. Advisory only.
type MergeSafetyAnalysis struct {
	AutoMergeable int
	ConflictCount int
	Conflicts     []diff.Conflict
	Warnings      []string
}

// MergePreview is a two-way diff between the two snapshots layered with the
// safety analysis's conflicts, for display before committing to a merge.
type MergePreview struct {
	FilesAdded    []string
	FilesRemoved  []string
	FilesModified []string
	Conflicts     []diff.Conflict

	// Hunks holds rendered line-level diffs per modified text file.
	Hunks map[string]string
}

// SyncMergeRequest drives RouteSyncMerge.
type SyncMergeRequest struct {
	SourcePath     string
	TargetPath     string
	Direction      SyncDirection
	BaseSnapshotID string    // enables a true three-way merge when set
	Strategy       *Strategy // nil means use the recommended strategy
}

type MergeService struct {
	snapshots   *snapshot.Manager
	differ      *diff.Engine
	merger      *merge.Engine
	versions    *Manager
	collections collection.Manager
	reporter    report.Reporter
	logger      *zap.Logger
}

func NewMergeService(
	snapshots *snapshot.Manager,
	differ *diff.Engine,
	merger *merge.Engine,
	versions *Manager,
	collections collection.Manager,
	reporter report.Reporter,
	logger *zap.Logger,
) *MergeService {
	if reporter == nil {
		reporter = report.Silent{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeService{
		snapshots:   snapshots,
		differ:      differ,
		merger:      merger,
		versions:    versions,
		collections: collections,
		reporter:    reporter,
		logger:      logger,
	}
}

// AnalyzeMergeSafety extracts both snapshots and classifies them against
// the live local collection without touching it.
func (s *MergeService) AnalyzeMergeSafety(baseSnapshotID, localCollection, remoteSnapshotID string) (*MergeSafetyAnalysis, error) {
	localTree, err := s.collections.CollectionPath(localCollection)
	if err != nil {
		return nil, err
	}

	baseTree, remoteTree, cleanup, err := s.extractPair(localCollection, baseSnapshotID, remoteSnapshotID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	classified, err := s.differ.ThreeWayDiff(baseTree, localTree, remoteTree, nil)
	if err != nil {
		return nil, err
	}

	analysis := &MergeSafetyAnalysis{
		AutoMergeable: len(classified.AutoMergeable),
		ConflictCount: len(classified.Conflicts),
		Conflicts:     classified.Conflicts,
	}
	for _, c := range classified.Conflicts {
		if c.IsBinary {
			analysis.Warnings = append(analysis.Warnings,
				fmt.Sprintf("%s: binary conflict must be resolved by picking a side", c.Path))
		}
	}
	return analysis, nil
}

// MergeWithConflictDetection merges the two snapshots into the local
// collection (or outputPath when non-empty), preceded by a safety snapshot.
// A safety-snapshot failure aborts before any file is touched.
func (s *MergeService) MergeWithConflictDetection(baseSnapshotID, localCollection, remoteSnapshotID, outputPath string) (*merge.Result, error) {
	localTree, err := s.collections.CollectionPath(localCollection)
	if err != nil {
		return nil, err
	}
	if outputPath == "" {
		outputPath = localTree
	}

	if _, err := s.snapshots.Create(localTree, localCollection, "pre-merge safety snapshot"); err != nil {
		return nil, errors.IOFailure("creating pre-merge safety snapshot", err)
	}

	baseTree, remoteTree, cleanup, err := s.extractPair(localCollection, baseSnapshotID, remoteSnapshotID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return s.merger.Merge(baseTree, localTree, remoteTree, outputPath, nil)
}

// GetMergePreview renders what a merge would change: a two-way diff between
// the snapshots plus the safety analysis's conflict list and line-level
// hunks for modified text files.
func (s *MergeService) GetMergePreview(baseSnapshotID, localCollection, remoteSnapshotID string) (*MergePreview, error) {
	analysis, err := s.AnalyzeMergeSafety(baseSnapshotID, localCollection, remoteSnapshotID)
	if err != nil {
		return nil, err
	}

	baseTree, remoteTree, cleanup, err := s.extractPair(localCollection, baseSnapshotID, remoteSnapshotID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	twoWay, err := s.differ.DiffDirectories(baseTree, remoteTree)
	if err != nil {
		return nil, err
	}

	preview := &MergePreview{
		FilesAdded:    twoWay.FilesAdded,
		FilesRemoved:  twoWay.FilesRemoved,
		FilesModified: twoWay.FilesModified,
		Conflicts:     analysis.Conflicts,
		Hunks:         make(map[string]string),
	}

	for _, rel := range twoWay.FilesModified {
		oldContent, err := os.ReadFile(filepath.Join(baseTree, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		newContent, err := os.ReadFile(filepath.Join(remoteTree, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		if diff.IsBinary(oldContent) || diff.IsBinary(newContent) {
			continue
		}
		preview.Hunks[rel] = diff.FormatHunks(diff.LineDiff(oldContent, newContent, 3))
	}

	return preview, nil
}

// RouteSyncMerge validates both trees, resolves a strategy, optionally
// snapshots the target collection, and dispatches to a three-way merge
// (bidirectional with a base snapshot) or a two-way overwrite merge.
func (s *MergeService) RouteSyncMerge(req SyncMergeRequest) (*merge.Result, error) {
	if _, err := os.Stat(req.SourcePath); err != nil {
		return nil, errors.NotFound("sync source %s does not exist", req.SourcePath)
	}
	if _, err := os.Stat(req.TargetPath); err != nil {
		return nil, errors.NotFound("sync target %s does not exist", req.TargetPath)
	}

	pending, err := s.differ.DiffDirectories(req.SourcePath, req.TargetPath)
	if err != nil {
		return nil, err
	}
	hasLocalChanges := !pending.Empty()

	strategy := RecommendedStrategy(req.Direction, hasLocalChanges, true)
	if req.Strategy != nil {
		strategy = *req.Strategy
	}

	if !strategy.AutoMerge && !s.reporter.Confirm(fmt.Sprintf(
		"Sync into %s will not merge unattended under the %s policy; proceed?", req.TargetPath, req.Direction)) {
		return nil, errors.Cancelled("sync merge into %s cancelled", req.TargetPath)
	}

	if strategy.CreateBackup {
		name := filepath.Base(req.TargetPath)
		if _, err := s.snapshots.Create(req.TargetPath, name, "pre-sync safety snapshot"); err != nil {
			return nil, errors.IOFailure("creating pre-sync snapshot", err)
		}
	}

	if req.BaseSnapshotID != "" && req.Direction == DirectionBidirectional {
		name := filepath.Base(req.TargetPath)
		base, err := s.snapshots.Get(name, req.BaseSnapshotID)
		if err != nil {
			return nil, err
		}

		scratch, err := os.MkdirTemp("", "skillmeat-sync-"+uuid.NewString()[:8])
		if err != nil {
			return nil, errors.IOFailure("creating sync scratch directory", err)
		}
		defer os.RemoveAll(scratch)

		baseTree := filepath.Join(scratch, "base")
		if err := s.snapshots.Restore(base, baseTree); err != nil {
			return nil, err
		}
		return s.merger.Merge(baseTree, req.TargetPath, req.SourcePath, req.TargetPath, nil)
	}

	return s.twoWayMerge(req.SourcePath, req.TargetPath, strategy, pending)
}

// twoWayMerge copies source over target subject to the prefer flags.
// PreferTarget only fills gaps; PreferSource overwrites divergent files too.
// Divergent files not taken from the source are recorded as conflicts, with
// marker documents written when the policy's conflict action asks for them.
func (s *MergeService) twoWayMerge(source, target string, strategy Strategy, pending *diff.DirDiff) (*merge.Result, error) {
	result := &merge.Result{OutputPath: target, Stats: diff.Stats{}}

	copyOver := func(rel string) error {
		src := filepath.Join(source, filepath.FromSlash(rel))
		dst := filepath.Join(target, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0644)
	}

	// Missing files always flow over; divergent ones depend on the policy.
	// pending was computed source-vs-target, so "removed" means present in
	// source only.
	for _, rel := range pending.FilesRemoved {
		if err := copyOver(rel); err != nil {
			return nil, errors.IOFailure("syncing "+rel, err)
		}
		result.AutoMerged = append(result.AutoMerged, rel)
	}

	for _, rel := range pending.FilesModified {
		if strategy.PreferSource {
			if err := copyOver(rel); err != nil {
				return nil, errors.IOFailure("syncing "+rel, err)
			}
			result.AutoMerged = append(result.AutoMerged, rel)
			continue
		}

		conflict, err := s.divergenceConflict(source, target, rel)
		if err != nil {
			return nil, err
		}
		result.Conflicts = append(result.Conflicts, conflict)
		if conflict.IsBinary {
			result.Stats.BinaryConflicts++
			continue
		}
		if strategy.ConflictAction == ConflictMarkers {
			dst := filepath.Join(target, filepath.FromSlash(rel))
			if err := os.WriteFile(dst, merge.ConflictDocument(conflict), 0644); err != nil {
				return nil, errors.IOFailure("writing conflict markers for "+rel, err)
			}
		}
	}

	result.Stats.FilesChanged = len(result.AutoMerged) + len(result.Conflicts)
	result.Stats.FilesConflicted = len(result.Conflicts)
	result.Success = len(result.Conflicts) == 0
	s.logger.Info("two-way sync merge complete",
		zap.String("target", target),
		zap.Int("files", len(result.AutoMerged)),
		zap.Int("conflicts", len(result.Conflicts)))
	return result, nil
}

// divergenceConflict records a file that differs between the sync sides. The
// target is the current side, the source the incoming one; there is no base.
func (s *MergeService) divergenceConflict(source, target, rel string) (diff.Conflict, error) {
	srcPath := filepath.Join(source, filepath.FromSlash(rel))
	dstPath := filepath.Join(target, filepath.FromSlash(rel))

	srcBinary, err := diff.IsBinaryFile(srcPath)
	if err != nil {
		return diff.Conflict{}, errors.IOFailure("inspecting "+rel, err)
	}
	dstBinary, err := diff.IsBinaryFile(dstPath)
	if err != nil {
		return diff.Conflict{}, errors.IOFailure("inspecting "+rel, err)
	}

	srcContent, err := os.ReadFile(srcPath)
	if err != nil {
		return diff.Conflict{}, errors.IOFailure("reading "+rel, err)
	}
	dstContent, err := os.ReadFile(dstPath)
	if err != nil {
		return diff.Conflict{}, errors.IOFailure("reading "+rel, err)
	}

	return diff.NewConflict(rel, diff.ConflictModifyModify, srcBinary || dstBinary,
		nil, dstContent, srcContent), nil
}

// extractPair restores both snapshots of the collection into a scratch
// directory and returns their trees plus a cleanup func.
func (s *MergeService) extractPair(collectionName, baseID, remoteID string) (baseTree, remoteTree string, cleanup func(), err error) {
	baseSnap, err := s.snapshots.Get(collectionName, baseID)
	if err != nil {
		return "", "", nil, err
	}
	remoteSnap, err := s.snapshots.Get(collectionName, remoteID)
	if err != nil {
		return "", "", nil, err
	}

	scratch, err := os.MkdirTemp("", "skillmeat-extract-"+uuid.NewString()[:8])
	if err != nil {
		return "", "", nil, errors.IOFailure("creating extraction scratch directory", err)
	}
	cleanup = func() { os.RemoveAll(scratch) }

	baseTree = filepath.Join(scratch, "snap-base")
	if err := s.snapshots.Restore(baseSnap, baseTree); err != nil {
		cleanup()
		return "", "", nil, err
	}
	remoteTree = filepath.Join(scratch, "snap-remote")
	if err := s.snapshots.Restore(remoteSnap, remoteTree); err != nil {
		cleanup()
		return "", "", nil, err
	}
	return baseTree, remoteTree, cleanup, nil
}
