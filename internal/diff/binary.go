// internal/diff/binary.go
package diff

import (
	"bytes"
	"io"
	"os"
	"unicode/utf8"
)

// binarySniffLen bounds how much content the sniffer inspects.
const binarySniffLen = 8192

// IsBinary sniffs content for a NUL byte or invalid UTF-8 in the first 8 KiB.
// Detection is by content, never by extension.
func IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	sample := content
	if len(sample) > binarySniffLen {
		sample = sample[:binarySniffLen]
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	// A truncated sample may split a multi-byte rune at the boundary; only
	// judge the part that is definitely complete.
	if len(content) > binarySniffLen {
		for len(sample) > 0 && !utf8.RuneStart(sample[len(sample)-1]) {
			sample = sample[:len(sample)-1]
		}
		if len(sample) > 0 {
			sample = sample[:len(sample)-1]
		}
	}
	return !utf8.Valid(sample)
}

// IsBinaryFile sniffs a file on disk without reading it whole.
func IsBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, binarySniffLen)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}
	return IsBinary(buf[:n]), nil
}
