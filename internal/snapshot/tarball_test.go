package snapshot

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTarballDotPrefixedNames(t *testing.T) {
	root := t.TempDir()
	tree := filepath.Join(root, "tree")
	require.NoError(t, os.MkdirAll(tree, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "..hidden.md"), []byte("dotted"), 0644))

	// A root or entry that merely starts with two dots is a legitimate name,
	// not a traversal.
	tarball := filepath.Join(root, "snap.tar.gz")
	require.NoError(t, createTarball(tree, "..notes", tarball))

	dest := filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(dest, 0755))
	rootName, err := extractTarball(tarball, dest)
	require.NoError(t, err)
	assert.Equal(t, "..notes", rootName)

	data, err := os.ReadFile(filepath.Join(dest, "..notes", "..hidden.md"))
	require.NoError(t, err)
	assert.Equal(t, "dotted", string(data))
}

func TestExtractTarballRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../evil", "demo/../../evil", "/abs/evil"} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			tarball := filepath.Join(root, "evil.tar.gz")

			out, err := os.Create(tarball)
			require.NoError(t, err)
			gz := gzip.NewWriter(out)
			tw := tar.NewWriter(gz)
			payload := []byte("boom")
			require.NoError(t, tw.WriteHeader(&tar.Header{
				Name:     name,
				Typeflag: tar.TypeReg,
				Mode:     0644,
				Size:     int64(len(payload)),
			}))
			_, err = tw.Write(payload)
			require.NoError(t, err)
			require.NoError(t, tw.Close())
			require.NoError(t, gz.Close())
			require.NoError(t, out.Close())

			dest := filepath.Join(root, "out")
			require.NoError(t, os.MkdirAll(dest, 0755))
			_, err = extractTarball(tarball, dest)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "escapes destination")

			_, statErr := os.Stat(filepath.Join(root, "evil"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}
