package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miethe/skillmeat/internal/diff"
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

func setupMerge(t *testing.T, base, local, remote map[string]string) (*Engine, string, string, string, string) {
	t.Helper()
	dir := t.TempDir()
	b, l, r := filepath.Join(dir, "base"), filepath.Join(dir, "local"), filepath.Join(dir, "remote")
	writeTree(t, b, base)
	writeTree(t, l, local)
	writeTree(t, r, remote)
	engine := NewEngine(diff.NewEngine(nil, nil), nil)
	return engine, b, l, r, filepath.Join(dir, "output")
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestMergeRoundTrip(t *testing.T) {
	engine, b, l, r, out := setupMerge(t,
		map[string]string{"f": "A"},
		map[string]string{"f": "B"},
		map[string]string{"f": "A"})

	result, err := engine.Merge(b, l, r, out, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"f"}, result.AutoMerged)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "B", readFile(t, filepath.Join(out, "f")))
}

func TestMergeConflictMarkerExactness(t *testing.T) {
	engine, b, l, r, out := setupMerge(t,
		map[string]string{"f": "A"},
		map[string]string{"f": "B"},
		map[string]string{"f": "C"})

	result, err := engine.Merge(b, l, r, out, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Conflicts, 1)

	want := "<<<<<<< LOCAL (current)\nB\n=======\nC\n>>>>>>> REMOTE (incoming)\n"
	assert.Equal(t, want, readFile(t, filepath.Join(out, "f")))
}

func TestMergeDeletionConflictMarkers(t *testing.T) {
	engine, b, l, r, out := setupMerge(t,
		map[string]string{"f": "A"},
		map[string]string{},
		map[string]string{"f": "new"})

	result, err := engine.Merge(b, l, r, out, nil)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	c := result.Conflicts[0]
	assert.Equal(t, diff.ConflictDeleteModify, c.Type)
	assert.Nil(t, c.LocalContent)
	assert.Equal(t, []byte("new"), c.RemoteContent)

	want := "<<<<<<< LOCAL (current)\n(file deleted)\n=======\nnew\n>>>>>>> REMOTE (incoming)\n"
	assert.Equal(t, want, readFile(t, filepath.Join(out, "f")))
}

func TestMergeBinaryConflictWritesNothing(t *testing.T) {
	engine, b, l, r, out := setupMerge(t,
		map[string]string{"img": "x\x00base"},
		map[string]string{"img": "x\x00local"},
		map[string]string{"img": "x\x00remote"})

	result, err := engine.Merge(b, l, r, out, nil)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.True(t, result.Conflicts[0].IsBinary)

	_, statErr := os.Stat(filepath.Join(out, "img"))
	assert.True(t, os.IsNotExist(statErr), "binary conflicts must not be written")
}

func TestMergeAppliesDeletions(t *testing.T) {
	engine, b, l, r, out := setupMerge(t,
		map[string]string{"keep": "A", "gone": "B"},
		map[string]string{"keep": "A"},
		map[string]string{"keep": "A", "gone": "B"})

	// Simulate merging into a live tree that still has the deleted file.
	writeTree(t, out, map[string]string{"gone": "B"})

	result, err := engine.Merge(b, l, r, out, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	_, statErr := os.Stat(filepath.Join(out, "gone"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestMergeRollbackOnInjectedFailure(t *testing.T) {
	engine, b, l, r, out := setupMerge(t,
		map[string]string{"a": "1", "b": "2", "c": "3"},
		map[string]string{"a": "1x", "b": "2x", "c": "3x"},
		map[string]string{"a": "1", "b": "2", "c": "3"})

	// Fail on the third write; the first two must be rolled back.
	writes := 0
	engine.writeHook = func(path string) error {
		writes++
		if writes == 3 {
			return fmt.Errorf("disk full")
		}
		return nil
	}

	result, err := engine.Merge(b, l, r, out, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "rolled back")
	assert.Contains(t, result.Error, "disk full")

	// Stats still reflect the full diff so callers can report scope.
	assert.Equal(t, 3, result.Stats.FilesChanged)

	entries, readErr := os.ReadDir(out)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "all written files must be removed on rollback")
}

func TestMergeOutputPathIsFile(t *testing.T) {
	engine, b, l, r, _ := setupMerge(t,
		map[string]string{"f": "A"},
		map[string]string{"f": "B"},
		map[string]string{"f": "A"})

	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("not a dir"), 0644))

	_, err := engine.Merge(b, l, r, blocked, nil)
	require.Error(t, err)
	assert.Equal(t, "not a dir", readFile(t, blocked))
}

func TestMergeFiles(t *testing.T) {
	t.Run("clean single-file merge returns content", func(t *testing.T) {
		dir := t.TempDir()
		base := filepath.Join(dir, "base.md")
		local := filepath.Join(dir, "local.md")
		remote := filepath.Join(dir, "remote.md")
		output := filepath.Join(dir, "out", "merged.md")
		require.NoError(t, os.WriteFile(base, []byte("A\n"), 0644))
		require.NoError(t, os.WriteFile(local, []byte("B\n"), 0644))
		require.NoError(t, os.WriteFile(remote, []byte("A\n"), 0644))

		engine := NewEngine(diff.NewEngine(nil, nil), nil)
		result, err := engine.MergeFiles(base, local, remote, output)
		require.NoError(t, err)
		assert.True(t, result.Success)
		require.NotNil(t, result.MergedContent)
		assert.Equal(t, "B\n", *result.MergedContent)
		assert.Equal(t, "B\n", readFile(t, output))
	})

	t.Run("conflicting single-file merge returns markers", func(t *testing.T) {
		dir := t.TempDir()
		base := filepath.Join(dir, "base.md")
		local := filepath.Join(dir, "local.md")
		remote := filepath.Join(dir, "remote.md")
		output := filepath.Join(dir, "merged.md")
		require.NoError(t, os.WriteFile(base, []byte("A"), 0644))
		require.NoError(t, os.WriteFile(local, []byte("B"), 0644))
		require.NoError(t, os.WriteFile(remote, []byte("C"), 0644))

		engine := NewEngine(diff.NewEngine(nil, nil), nil)
		result, err := engine.MergeFiles(base, local, remote, output)
		require.NoError(t, err)
		assert.False(t, result.Success)
		require.NotNil(t, result.MergedContent)
		assert.Contains(t, *result.MergedContent, "<<<<<<< LOCAL (current)")
	})
}

func TestConflictDocumentTrailingNewlines(t *testing.T) {
	c := diff.Conflict{
		Path:          "f",
		LocalContent:  []byte("ends with newline\n"),
		RemoteContent: []byte("no trailing newline"),
	}
	got := string(ConflictDocument(c))
	want := "<<<<<<< LOCAL (current)\nends with newline\n=======\nno trailing newline\n>>>>>>> REMOTE (incoming)\n"
	assert.Equal(t, want, got)
}
