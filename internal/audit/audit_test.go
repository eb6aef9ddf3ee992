package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	trail := NewTrail(t.TempDir(), nil)

	t.Run("assigns id and timestamp", func(t *testing.T) {
		entry, err := trail.Append(Entry{
			CollectionName:   "demo",
			TargetSnapshotID: "20250101-000000-000001",
			OperationType:    OpSimple,
			Success:          true,
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(entry.ID, "rb_"))
		assert.False(t, entry.Timestamp.IsZero())
	})

	t.Run("entries accumulate in order", func(t *testing.T) {
		first, err := trail.Append(Entry{CollectionName: "ordered", OperationType: OpSimple, Success: true})
		require.NoError(t, err)
		second, err := trail.Append(Entry{
			CollectionName: "ordered",
			OperationType:  OpIntelligent,
			Success:        false,
			Error:          "restore failed",
		})
		require.NoError(t, err)

		entries, err := trail.Entries("ordered")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, first.ID, entries[0].ID)
		assert.Equal(t, second.ID, entries[1].ID)
		assert.False(t, entries[1].Success)
		assert.Equal(t, "restore failed", entries[1].Error)
	})

	t.Run("collections are isolated", func(t *testing.T) {
		_, err := trail.Append(Entry{CollectionName: "a", OperationType: OpSimple})
		require.NoError(t, err)

		entries, err := trail.Entries("b")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestAppendPreservesExistingEntries(t *testing.T) {
	dir := t.TempDir()
	trail := NewTrail(dir, nil)

	for i := 0; i < 10; i++ {
		success := i%3 != 0
		entry := Entry{CollectionName: "demo", OperationType: OpSimple, Success: success}
		if !success {
			entry.Error = "injected"
		}
		_, err := trail.Append(entry)
		require.NoError(t, err)
	}

	entries, err := trail.Entries("demo")
	require.NoError(t, err)
	require.Len(t, entries, 10)

	failures := 0
	for _, e := range entries {
		if !e.Success {
			failures++
			assert.NotEmpty(t, e.Error)
		}
	}
	assert.Equal(t, 4, failures)

	// The log is a plain TOML file named after the collection.
	_, err = os.Stat(filepath.Join(dir, "demo_rollback_audit.toml"))
	assert.NoError(t, err)
}

func TestSelectivePathsRoundTrip(t *testing.T) {
	trail := NewTrail(t.TempDir(), nil)

	_, err := trail.Append(Entry{
		CollectionName: "demo",
		OperationType:  OpSelective,
		SelectivePaths: []string{"skills/go.md", "commands/run.md"},
		Success:        true,
	})
	require.NoError(t, err)

	entries, err := trail.Entries("demo")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"skills/go.md", "commands/run.md"}, entries[0].SelectivePaths)
}
