package hashcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := OpenInMemory(128)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestFileHash(t *testing.T) {
	cache := setupCache(t)
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	t.Run("matches direct hashing", func(t *testing.T) {
		got, err := cache.FileHash(path)
		require.NoError(t, err)
		assert.Equal(t, HashBytes([]byte("hello")), got)
	})

	t.Run("cached result is stable", func(t *testing.T) {
		first, err := cache.FileHash(path)
		require.NoError(t, err)
		second, err := cache.FileHash(path)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("modification invalidates the cache", func(t *testing.T) {
		before, err := cache.FileHash(path)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte("changed"), 0644))
		// Force a distinct mtime even on coarse-grained filesystems.
		newTime := time.Now().Add(2 * time.Second)
		require.NoError(t, os.Chtimes(path, newTime, newTime))

		after, err := cache.FileHash(path)
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
		assert.Equal(t, HashBytes([]byte("changed")), after)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := cache.FileHash(filepath.Join(t.TempDir(), "absent"))
		assert.Error(t, err)
	})
}

func TestNilCacheHashesDirectly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	var cache *Cache
	got, err := cache.FileHash(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("content")), got)
	assert.NoError(t, cache.Close())
}
