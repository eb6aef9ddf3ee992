// Package collection resolves collection names to on-disk trees. The
// versioning subsystem never assumes a storage layout beyond this interface.
package collection

import (
	"os"
	"path/filepath"

	"github.com/miethe/skillmeat/internal/errors"
)

// ArtifactDirs are the known top-level type directories inside a collection
// tree. Snapshot artifact counts sum the entries under each.
var ArtifactDirs = []string{"skills", "commands", "agents", "hooks", "mcp"}

type Manager interface {
	// CollectionPath resolves a collection name to its root directory.
	CollectionPath(name string) (string, error)

	// ActiveCollection returns the name of the currently active collection.
	ActiveCollection() (string, error)
}

// LocalManager keeps every collection as a direct subdirectory of a base dir.
type LocalManager struct {
	root   string
	active string
}

func NewLocalManager(root, active string) *LocalManager {
	return &LocalManager{root: root, active: active}
}

func (m *LocalManager) CollectionPath(name string) (string, error) {
	if name == "" {
		return "", errors.InvalidArgument("collection name is empty")
	}
	path := filepath.Join(m.root, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound("collection %q not found", name)
		}
		return "", errors.IOFailure("checking collection", err)
	}
	if !info.IsDir() {
		return "", errors.InvalidArgument("collection path %q is not a directory", path)
	}
	return path, nil
}

func (m *LocalManager) ActiveCollection() (string, error) {
	if m.active == "" {
		return "", errors.NotFound("no active collection configured")
	}
	return m.active, nil
}

// CountArtifacts sums the entries under each known type directory of tree.
func CountArtifacts(tree string) int {
	count := 0
	for _, dir := range ArtifactDirs {
		entries, err := os.ReadDir(filepath.Join(tree, dir))
		if err != nil {
			continue
		}
		count += len(entries)
	}
	return count
}
