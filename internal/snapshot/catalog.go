// internal/snapshot/catalog.go
//
// The per-collection snapshots.toml catalog is the single source of truth
// for which tarballs are live. It is rewritten wholesale on every mutation,
// under an advisory file lock so concurrent CLI invocations against the same
// collection stay safe.
package snapshot

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"

	"github.com/miethe/skillmeat/internal/errors"
)

const catalogFile = "snapshots.toml"

type catalog struct {
	Snapshots []Snapshot `toml:"snapshots"`
}

func (m *Manager) collectionDir(collection string) string {
	return filepath.Join(m.root, collection)
}

// withCatalogLock holds the collection's advisory lock for the duration of fn.
func (m *Manager) withCatalogLock(collection string, fn func() error) error {
	dir := m.collectionDir(collection)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.IOFailure("creating snapshot directory", err)
	}
	lock := flock.New(filepath.Join(dir, ".catalog.lock"))
	if err := lock.Lock(); err != nil {
		return errors.IOFailure("locking snapshot catalog", err)
	}
	defer lock.Unlock()
	return fn()
}

// loadCatalog reads the catalog; a missing file is an empty catalog.
func (m *Manager) loadCatalog(collection string) (*catalog, error) {
	path := filepath.Join(m.collectionDir(collection), catalogFile)
	var cat catalog
	if _, err := toml.DecodeFile(path, &cat); err != nil {
		if os.IsNotExist(err) {
			return &catalog{}, nil
		}
		return nil, errors.IOFailure("reading snapshot catalog", err)
	}
	return &cat, nil
}

// storeCatalog rewrites the catalog through a temp file and rename.
func (m *Manager) storeCatalog(collection string, cat *catalog) error {
	dir := m.collectionDir(collection)
	tmp, err := os.CreateTemp(dir, ".catalog-*")
	if err != nil {
		return errors.IOFailure("creating catalog temp file", err)
	}
	tmpName := tmp.Name()

	if err := toml.NewEncoder(tmp).Encode(cat); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.IOFailure("encoding snapshot catalog", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.IOFailure("closing catalog temp file", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, catalogFile)); err != nil {
		os.Remove(tmpName)
		return errors.IOFailure("replacing snapshot catalog", err)
	}
	return nil
}
