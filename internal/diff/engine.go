// internal/diff/engine.go
package diff

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/miethe/skillmeat/internal/hashcache"
)

// Engine computes two-way and three-way directory diffs. Equality is exact
// byte equality via content hashes; this engine classifies whole files, it
// does not line-merge.
type Engine struct {
	hashes *hashcache.Cache // nil means hash directly
	logger *zap.Logger
}

func NewEngine(hashes *hashcache.Cache, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{hashes: hashes, logger: logger}
}

// DiffDirectories compares base against remote. Paths only in remote are
// added, only in base removed, in both with differing content modified.
func (e *Engine) DiffDirectories(base, remote string) (*DirDiff, error) {
	baseFiles, err := e.walkTree(base, nil)
	if err != nil {
		return nil, err
	}
	remoteFiles, err := e.walkTree(remote, nil)
	if err != nil {
		return nil, err
	}

	result := &DirDiff{}
	for path := range remoteFiles {
		if _, ok := baseFiles[path]; !ok {
			result.FilesAdded = append(result.FilesAdded, path)
		}
	}
	for path := range baseFiles {
		if _, ok := remoteFiles[path]; !ok {
			result.FilesRemoved = append(result.FilesRemoved, path)
			continue
		}
		same, err := e.sameContent(filepath.Join(base, path), filepath.Join(remote, path))
		if err != nil {
			return nil, err
		}
		if !same {
			result.FilesModified = append(result.FilesModified, path)
		}
	}

	sort.Strings(result.FilesAdded)
	sort.Strings(result.FilesRemoved)
	sort.Strings(result.FilesModified)
	return result, nil
}

// ThreeWayDiff classifies every path in the union of base/local/remote,
// comparing each side against the common ancestor. A path missing from a
// side counts as deleted relative to base for that side.
func (e *Engine) ThreeWayDiff(base, local, remote string, ignorePatterns []string) (*ThreeWayResult, error) {
	baseFiles, err := e.walkTree(base, ignorePatterns)
	if err != nil {
		return nil, err
	}
	localFiles, err := e.walkTree(local, ignorePatterns)
	if err != nil {
		return nil, err
	}
	remoteFiles, err := e.walkTree(remote, ignorePatterns)
	if err != nil {
		return nil, err
	}

	union := make(map[string]struct{}, len(baseFiles)+len(localFiles)+len(remoteFiles))
	for path := range baseFiles {
		union[path] = struct{}{}
	}
	for path := range localFiles {
		union[path] = struct{}{}
	}
	for path := range remoteFiles {
		union[path] = struct{}{}
	}

	paths := make([]string, 0, len(union))
	for path := range union {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	result := &ThreeWayResult{}
	for _, path := range paths {
		if err := e.classify(result, path, base, local, remote, baseFiles, localFiles, remoteFiles); err != nil {
			return nil, err
		}
	}

	result.Stats.FilesChanged = len(result.AutoMergeable) + len(result.Conflicts)
	result.Stats.FilesConflicted = len(result.Conflicts)
	for _, c := range result.Conflicts {
		if c.IsBinary {
			result.Stats.BinaryConflicts++
		}
	}

	e.logger.Debug("three-way diff complete",
		zap.Int("auto_mergeable", len(result.AutoMergeable)),
		zap.Int("conflicts", len(result.Conflicts)))

	return result, nil
}

func (e *Engine) classify(result *ThreeWayResult, path, base, local, remote string,
	baseFiles, localFiles, remoteFiles map[string]string) error {

	baseHash, inBase := baseFiles[path]
	localHash, inLocal := localFiles[path]
	remoteHash, inRemote := remoteFiles[path]

	localSame := (inBase && inLocal && baseHash == localHash) || (!inBase && !inLocal)
	remoteSame := (inBase && inRemote && baseHash == remoteHash) || (!inBase && !inRemote)

	switch {
	case localSame && remoteSame:
		// Unchanged everywhere.
		return nil

	case !localSame && remoteSame:
		result.AutoMergeable = append(result.AutoMergeable, Resolution{
			Path:     path,
			Strategy: StrategyUseLocal,
			Delete:   !inLocal,
		})
		return nil

	case localSame && !remoteSame:
		result.AutoMergeable = append(result.AutoMergeable, Resolution{
			Path:     path,
			Strategy: StrategyUseRemote,
			Delete:   !inRemote,
		})
		return nil
	}

	// Both sides diverged from base.
	if inLocal && inRemote && localHash == remoteHash {
		// Changed identically; either side works, prefer local.
		result.AutoMergeable = append(result.AutoMergeable, Resolution{
			Path:     path,
			Strategy: StrategyUseLocal,
		})
		return nil
	}
	if !inLocal && !inRemote {
		// Deleted on both sides.
		result.AutoMergeable = append(result.AutoMergeable, Resolution{
			Path:     path,
			Strategy: StrategyUseLocal,
			Delete:   true,
		})
		return nil
	}

	conflictType := ConflictModifyModify
	switch {
	case !inLocal:
		conflictType = ConflictDeleteModify
	case !inRemote:
		conflictType = ConflictModifyDelete
	case !inBase:
		conflictType = ConflictAddAdd
	}

	baseContent, err := readIfPresent(filepath.Join(base, path), inBase)
	if err != nil {
		return err
	}
	localContent, err := readIfPresent(filepath.Join(local, path), inLocal)
	if err != nil {
		return err
	}
	remoteContent, err := readIfPresent(filepath.Join(remote, path), inRemote)
	if err != nil {
		return err
	}

	binary := IsBinary(baseContent) || IsBinary(localContent) || IsBinary(remoteContent)

	result.Conflicts = append(result.Conflicts,
		NewConflict(path, conflictType, binary, baseContent, localContent, remoteContent))
	return nil
}

// walkTree maps relative file paths to content hashes. A missing root is an
// empty tree, which lets deletions and fresh collections diff naturally.
func (e *Engine) walkTree(root string, ignorePatterns []string) (map[string]string, error) {
	files := make(map[string]string)

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return files, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("getting relative path: %w", err)
		}
		if d.IsDir() {
			if rel != "." && ignored(rel, ignorePatterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignored(rel, ignorePatterns) {
			return nil
		}
		hash, err := e.hashes.FileHash(path)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", rel, err)
		}
		files[filepath.ToSlash(rel)] = hash
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	return files, nil
}

func ignored(rel string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	name := filepath.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (e *Engine) sameContent(a, b string) (bool, error) {
	ha, err := e.hashes.FileHash(a)
	if err != nil {
		return false, err
	}
	hb, err := e.hashes.FileHash(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

func readIfPresent(path string, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return content, nil
}
