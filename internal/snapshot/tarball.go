// internal/snapshot/tarball.go
package snapshot

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// createTarball tars tree into dest with gzip compression, rooting every
// entry under rootName so extraction yields a single top-level directory.
func createTarball(tree, rootName, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating tarball: %w", err)
	}

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(tree, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(tree, path)
		if err != nil {
			return err
		}
		name := rootName
		if rel != "." {
			name = rootName + "/" + filepath.ToSlash(rel)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = name
		if d.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("writing tar header for %s: %w", name, err)
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("archiving %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		tw.Close()
		gz.Close()
		out.Close()
		return err
	}

	if err := tw.Close(); err != nil {
		gz.Close()
		out.Close()
		return fmt.Errorf("finalizing tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalizing gzip stream: %w", err)
	}
	return out.Close()
}

// extractTarball unpacks src into destParent and returns the archive's
// top-level directory name. Entries escaping destParent are rejected.
func extractTarball(src, destParent string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening tarball: %w", err)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("reading gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	rootName := ""

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading tar stream: %w", err)
		}

		name := filepath.Clean(filepath.FromSlash(header.Name))
		if name == "." || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
			return "", fmt.Errorf("tarball entry %q escapes destination", header.Name)
		}
		if rootName == "" {
			rootName = strings.SplitN(filepath.ToSlash(name), "/", 2)[0]
		}

		target := filepath.Join(destParent, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(header.Mode).Perm()|0700); err != nil {
				return "", fmt.Errorf("creating directory %s: %w", name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return "", fmt.Errorf("creating directory for %s: %w", name, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(header.Mode).Perm())
			if err != nil {
				return "", fmt.Errorf("creating %s: %w", name, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return "", fmt.Errorf("extracting %s: %w", name, err)
			}
			if err := f.Close(); err != nil {
				return "", fmt.Errorf("closing %s: %w", name, err)
			}
		default:
			// Symlinks and specials are not part of collection trees.
			continue
		}
	}

	if rootName == "" {
		return "", fmt.Errorf("tarball %s is empty", src)
	}
	return rootName, nil
}
