package diff

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary(nil))
	assert.False(t, IsBinary([]byte("plain text\nwith lines\n")))
	assert.False(t, IsBinary([]byte("utf-8: héllo wörld ✓")))
	assert.True(t, IsBinary([]byte("PNG\x00\x01\x02")))
	assert.True(t, IsBinary([]byte{0xff, 0xfe, 0x00}))
	assert.True(t, IsBinary([]byte{0xc3, 0x28})) // invalid utf-8 sequence

	// NUL past the sniff window is not seen; detection is a sniff, not a scan.
	big := append(bytes.Repeat([]byte("a"), binarySniffLen), 0)
	assert.False(t, IsBinary(big))
}

func TestIsBinaryFile(t *testing.T) {
	dir := t.TempDir()

	text := filepath.Join(dir, "text")
	require.NoError(t, os.WriteFile(text, []byte("hello\n"), 0644))
	got, err := IsBinaryFile(text)
	require.NoError(t, err)
	assert.False(t, got)

	bin := filepath.Join(dir, "bin")
	require.NoError(t, os.WriteFile(bin, []byte{1, 2, 0, 4}, 0644))
	got, err = IsBinaryFile(bin)
	require.NoError(t, err)
	assert.True(t, got)
}
