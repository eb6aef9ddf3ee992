// internal/snapshot/manager.go
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/miethe/skillmeat/internal/collection"
	"github.com/miethe/skillmeat/internal/errors"
)

// maxPageSize caps List pagination.
const maxPageSize = 100

// Snapshot is one immutable catalog record. The tarball on disk is owned
// exclusively by its record; Delete removes both together.
type Snapshot struct {
	ID             string    `toml:"id"`
	Timestamp      time.Time `toml:"timestamp"`
	Message        string    `toml:"message"`
	CollectionName string    `toml:"collection_name"`
	ArtifactCount  int       `toml:"artifact_count"`
	TarballPath    string    `toml:"tarball_path"`
}

// Manager creates, lists, restores and deletes tarball snapshots under a
// per-collection directory of root.
type Manager struct {
	root   string
	logger *zap.Logger
}

func NewManager(root string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{root: root, logger: logger}
}

// newSnapshotID derives an id from the current time including microseconds,
// so rapid successive snapshots still get distinct, sortable ids.
func newSnapshotID(now time.Time) string {
	return fmt.Sprintf("%s-%06d", now.Format("20060102-150405"), now.Nanosecond()/1000)
}

// Create tars tree into a new snapshot of the named collection. The catalog
// entry is appended only after the tarball exists, so a crash in between
// leaves at worst an orphaned file, never a dangling reference.
func (m *Manager) Create(tree, collectionName, message string) (*Snapshot, error) {
	if _, err := os.Stat(tree); os.IsNotExist(err) {
		return nil, errors.NotFound("source tree %s does not exist", tree)
	}

	now := time.Now()
	snap := &Snapshot{
		ID:             newSnapshotID(now),
		Timestamp:      now,
		Message:        message,
		CollectionName: collectionName,
		ArtifactCount:  collection.CountArtifacts(tree),
	}

	err := m.withCatalogLock(collectionName, func() error {
		snap.TarballPath = filepath.Join(m.collectionDir(collectionName), snap.ID+".tar.gz")

		if err := createTarball(tree, collectionName, snap.TarballPath); err != nil {
			os.Remove(snap.TarballPath)
			return errors.IOFailure("creating snapshot tarball", err)
		}

		cat, err := m.loadCatalog(collectionName)
		if err != nil {
			os.Remove(snap.TarballPath)
			return err
		}
		cat.Snapshots = append(cat.Snapshots, *snap)
		if err := m.storeCatalog(collectionName, cat); err != nil {
			os.Remove(snap.TarballPath)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("snapshot created",
		zap.String("collection", collectionName),
		zap.String("id", snap.ID),
		zap.Int("artifacts", snap.ArtifactCount))

	return snap, nil
}

// Get returns the catalog record for id.
func (m *Manager) Get(collectionName, id string) (*Snapshot, error) {
	cat, err := m.loadCatalog(collectionName)
	if err != nil {
		return nil, err
	}
	for i := range cat.Snapshots {
		if cat.Snapshots[i].ID == id {
			snap := cat.Snapshots[i]
			return &snap, nil
		}
	}
	return nil, errors.NotFound("snapshot %s not found in collection %s", id, collectionName)
}

// List pages through the catalog newest-first. cursor is the id of the last
// item of the previous page; the returned cursor is empty on the final page.
func (m *Manager) List(collectionName string, limit int, cursor string) ([]Snapshot, string, error) {
	if limit < 1 {
		return nil, "", errors.InvalidArgument("limit must be at least 1, got %d", limit)
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	cat, err := m.loadCatalog(collectionName)
	if err != nil {
		return nil, "", err
	}

	snapshots := make([]Snapshot, len(cat.Snapshots))
	copy(snapshots, cat.Snapshots)
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Timestamp.Equal(snapshots[j].Timestamp) {
			return snapshots[i].ID > snapshots[j].ID
		}
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})

	start := 0
	if cursor != "" {
		found := false
		for i := range snapshots {
			if snapshots[i].ID == cursor {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, "", errors.InvalidArgument("unknown pagination cursor %q", cursor)
		}
	}

	end := start + limit
	if end > len(snapshots) {
		end = len(snapshots)
	}
	page := snapshots[start:end]

	next := ""
	if end < len(snapshots) && len(page) > 0 {
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

// Restore destructively replaces targetTree with the snapshot's content.
func (m *Manager) Restore(snap *Snapshot, targetTree string) error {
	if _, err := os.Stat(snap.TarballPath); os.IsNotExist(err) {
		return errors.NotFound("snapshot tarball %s is missing", snap.TarballPath)
	}

	if err := os.RemoveAll(targetTree); err != nil {
		return errors.IOFailure("removing target tree", err)
	}

	parent := filepath.Dir(targetTree)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return errors.IOFailure("creating target parent", err)
	}

	rootName, err := extractTarball(snap.TarballPath, parent)
	if err != nil {
		return errors.IOFailure("extracting snapshot", err)
	}

	if rootName != filepath.Base(targetTree) {
		if err := os.Rename(filepath.Join(parent, rootName), targetTree); err != nil {
			return errors.IOFailure("renaming extracted tree", err)
		}
	}

	m.logger.Info("snapshot restored",
		zap.String("id", snap.ID),
		zap.String("target", targetTree))
	return nil
}

// Delete removes the tarball first (tolerating an already-missing file),
// then the catalog entry, so the catalog never references a deleted tarball.
func (m *Manager) Delete(snap *Snapshot) error {
	return m.withCatalogLock(snap.CollectionName, func() error {
		if err := os.Remove(snap.TarballPath); err != nil && !os.IsNotExist(err) {
			return errors.IOFailure("removing snapshot tarball", err)
		}

		cat, err := m.loadCatalog(snap.CollectionName)
		if err != nil {
			return err
		}
		kept := cat.Snapshots[:0]
		for _, s := range cat.Snapshots {
			if s.ID != snap.ID {
				kept = append(kept, s)
			}
		}
		cat.Snapshots = kept
		return m.storeCatalog(snap.CollectionName, cat)
	})
}

// CleanupOld keeps the keepCount newest snapshots and deletes the rest,
// returning what was deleted.
func (m *Manager) CleanupOld(collectionName string, keepCount int) ([]Snapshot, error) {
	if keepCount < 0 {
		return nil, errors.InvalidArgument("keep count must not be negative, got %d", keepCount)
	}

	var all []Snapshot
	cursor := ""
	for {
		page, next, err := m.List(collectionName, maxPageSize, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		cursor = next
	}

	if len(all) <= keepCount {
		return nil, nil
	}

	var deleted []Snapshot
	for _, snap := range all[keepCount:] {
		if err := m.Delete(&snap); err != nil {
			return deleted, err
		}
		deleted = append(deleted, snap)
	}

	m.logger.Info("snapshot cleanup complete",
		zap.String("collection", collectionName),
		zap.Int("deleted", len(deleted)),
		zap.Int("kept", keepCount))

	return deleted, nil
}
