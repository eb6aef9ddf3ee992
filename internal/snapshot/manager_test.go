package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miethe/skillmeat/internal/errors"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0755))
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func setupManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	manager := NewManager(filepath.Join(dir, "snapshots"), nil)
	tree := filepath.Join(dir, "collections", "demo")
	writeTree(t, tree, map[string]string{
		"skills/go.md":    "go tips",
		"skills/sql.md":   "sql tips",
		"commands/run.md": "run it",
		"README.md":       "readme",
	})
	return manager, tree
}

func TestCreateSnapshot(t *testing.T) {
	manager, tree := setupManager(t)

	snap, err := manager.Create(tree, "demo", "first")
	require.NoError(t, err)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "demo", snap.CollectionName)
	assert.Equal(t, "first", snap.Message)
	// Two skills plus one command; README is not under a type directory.
	assert.Equal(t, 3, snap.ArtifactCount)

	_, err = os.Stat(snap.TarballPath)
	require.NoError(t, err, "tarball must exist after create")

	got, err := manager.Get("demo", snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
}

func TestCreateSnapshotMissingTree(t *testing.T) {
	manager, _ := setupManager(t)
	_, err := manager.Create(filepath.Join(t.TempDir(), "nope"), "demo", "x")
	assert.True(t, errors.IsNotFound(err))
}

func TestSnapshotIDsAreUniqueAndOrdered(t *testing.T) {
	manager, tree := setupManager(t)

	var ids []string
	for i := 0; i < 5; i++ {
		snap, err := manager.Create(tree, "demo", "snap")
		require.NoError(t, err)
		ids = append(ids, snap.ID)
		time.Sleep(2 * time.Millisecond)
	}

	seen := make(map[string]bool)
	for i, id := range ids {
		assert.False(t, seen[id], "duplicate snapshot id %s", id)
		seen[id] = true
		if i > 0 {
			assert.Greater(t, id, ids[i-1], "ids must sort in creation order")
		}
	}
}

func TestListPagination(t *testing.T) {
	manager, tree := setupManager(t)

	var ids []string
	for i := 0; i < 5; i++ {
		snap, err := manager.Create(tree, "demo", "snap")
		require.NoError(t, err)
		ids = append(ids, snap.ID)
		time.Sleep(2 * time.Millisecond)
	}

	t.Run("pages cover all ids newest-first", func(t *testing.T) {
		var collected []string
		cursor := ""
		sizes := []int{}
		for {
			page, next, err := manager.List("demo", 2, cursor)
			require.NoError(t, err)
			sizes = append(sizes, len(page))
			for _, s := range page {
				collected = append(collected, s.ID)
			}
			if next == "" {
				break
			}
			cursor = next
		}

		assert.Equal(t, []int{2, 2, 1}, sizes)
		require.Len(t, collected, 5)
		for i, id := range collected {
			assert.Equal(t, ids[len(ids)-1-i], id, "page order must be newest-first")
		}
	})

	t.Run("limit below one is invalid", func(t *testing.T) {
		_, _, err := manager.List("demo", 0, "")
		assert.True(t, errors.IsInvalidArgument(err))
	})

	t.Run("unknown cursor is invalid", func(t *testing.T) {
		_, _, err := manager.List("demo", 2, "20000101-000000-000000")
		assert.True(t, errors.IsInvalidArgument(err))
	})

	t.Run("limit is clamped", func(t *testing.T) {
		page, next, err := manager.List("demo", 10_000, "")
		require.NoError(t, err)
		assert.Len(t, page, 5)
		assert.Empty(t, next)
	})
}

func TestRestoreSnapshot(t *testing.T) {
	manager, tree := setupManager(t)

	snap, err := manager.Create(tree, "demo", "before")
	require.NoError(t, err)

	// Mutate the live tree, then restore over it.
	require.NoError(t, os.WriteFile(filepath.Join(tree, "README.md"), []byte("mutated"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "stray.txt"), []byte("stray"), 0644))

	require.NoError(t, manager.Restore(snap, tree))

	data, err := os.ReadFile(filepath.Join(tree, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "readme", string(data))

	_, err = os.Stat(filepath.Join(tree, "stray.txt"))
	assert.True(t, os.IsNotExist(err), "restore must be destructive")
}

func TestRestoreRenamesRoot(t *testing.T) {
	manager, tree := setupManager(t)

	snap, err := manager.Create(tree, "demo", "x")
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "renamed-tree")
	require.NoError(t, manager.Restore(snap, target))

	data, err := os.ReadFile(filepath.Join(target, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "readme", string(data))
}

func TestRestoreMissingTarball(t *testing.T) {
	manager, tree := setupManager(t)

	snap, err := manager.Create(tree, "demo", "x")
	require.NoError(t, err)
	require.NoError(t, os.Remove(snap.TarballPath))

	err = manager.Restore(snap, tree)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteSnapshot(t *testing.T) {
	manager, tree := setupManager(t)

	snap, err := manager.Create(tree, "demo", "x")
	require.NoError(t, err)

	require.NoError(t, manager.Delete(snap))

	_, err = os.Stat(snap.TarballPath)
	assert.True(t, os.IsNotExist(err))
	_, err = manager.Get("demo", snap.ID)
	assert.True(t, errors.IsNotFound(err))

	// Deleting again tolerates the missing tarball.
	require.NoError(t, manager.Delete(snap))
}

func TestCleanupOldSnapshots(t *testing.T) {
	manager, tree := setupManager(t)

	var ids []string
	for i := 0; i < 5; i++ {
		snap, err := manager.Create(tree, "demo", "snap")
		require.NoError(t, err)
		ids = append(ids, snap.ID)
		time.Sleep(2 * time.Millisecond)
	}

	deleted, err := manager.CleanupOld("demo", 2)
	require.NoError(t, err)
	assert.Len(t, deleted, 3)

	remaining, _, err := manager.List("demo", 100, "")
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, ids[4], remaining[0].ID)
	assert.Equal(t, ids[3], remaining[1].ID)

	for _, snap := range deleted {
		_, err := os.Stat(snap.TarballPath)
		assert.True(t, os.IsNotExist(err))
	}
}
