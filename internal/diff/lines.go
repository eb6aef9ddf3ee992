// internal/diff/lines.go
//
// Line-level hunks for human-facing previews only. Merge execution is
// whole-file; nothing here influences classification or conflict markers.
package diff

import (
	"bytes"
	"fmt"
)

type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

type Line struct {
	Type    LineType
	Content string
}

// Hunk is a contiguous run of line changes with surrounding context.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// LineDiff computes unified-style hunks between two text contents using a
// longest-common-subsequence walk, with contextLines of context per hunk.
func LineDiff(oldContent, newContent []byte, contextLines int) []Hunk {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	matrix := lcsMatrix(oldLines, newLines)

	// Walk the matrix forward, emitting one op per line.
	type op struct {
		typ     LineType
		content string
		oldNum  int // 1-based, 0 for additions
		newNum  int // 1-based, 0 for deletions
	}
	var ops []op

	i, j := len(oldLines), len(newLines)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && bytes.Equal(oldLines[i-1], newLines[j-1]):
			ops = append(ops, op{Context, string(oldLines[i-1]), i, j})
			i--
			j--
		case j > 0 && (i == 0 || matrix[i][j-1] >= matrix[i-1][j]):
			ops = append(ops, op{Addition, string(newLines[j-1]), 0, j})
			j--
		default:
			ops = append(ops, op{Deletion, string(oldLines[i-1]), i, 0})
			i--
		}
	}
	// Reverse into document order.
	for a, b := 0, len(ops)-1; a < b; a, b = a+1, b-1 {
		ops[a], ops[b] = ops[b], ops[a]
	}

	// Group changed ops into hunks, merging runs separated by no more than
	// 2*contextLines of unchanged lines.
	var hunks []Hunk
	var current *Hunk
	contextRun := 0

	flush := func() {
		if current == nil {
			return
		}
		// Drop trailing context beyond the window.
		for contextRun > contextLines {
			current.Lines = current.Lines[:len(current.Lines)-1]
			current.OldLines--
			current.NewLines--
			contextRun--
		}
		hunks = append(hunks, *current)
		current = nil
		contextRun = 0
	}

	for idx, o := range ops {
		if o.typ == Context {
			if current != nil {
				current.Lines = append(current.Lines, Line{o.typ, o.content})
				current.OldLines++
				current.NewLines++
				contextRun++
				if contextRun > 2*contextLines {
					flush()
				}
			}
			continue
		}

		if current == nil {
			current = &Hunk{}
			// Leading context.
			start := idx - contextLines
			if start < 0 {
				start = 0
			}
			for k := start; k < idx; k++ {
				current.Lines = append(current.Lines, Line{Context, ops[k].content})
				current.OldLines++
				current.NewLines++
			}
			current.OldStart, current.NewStart = 1, 1
			for k := start; k <= idx; k++ {
				if ops[k].oldNum > 0 {
					current.OldStart = ops[k].oldNum
					break
				}
			}
			for k := start; k <= idx; k++ {
				if ops[k].newNum > 0 {
					current.NewStart = ops[k].newNum
					break
				}
			}
		}
		contextRun = 0
		current.Lines = append(current.Lines, Line{o.typ, o.content})
		if o.typ == Deletion {
			current.OldLines++
		} else {
			current.NewLines++
		}
	}
	flush()

	return hunks
}

// FormatHunks renders hunks in the conventional @@ header style.
func FormatHunks(hunks []Hunk) string {
	var buf bytes.Buffer
	for _, hunk := range hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)
		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteString("+ ")
			case Deletion:
				buf.WriteString("- ")
			default:
				buf.WriteString("  ")
			}
			buf.WriteString(line.Content)
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

func splitLines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	return bytes.Split(bytes.TrimSuffix(content, []byte{'\n'}), []byte{'\n'})
}

func lcsMatrix(oldLines, newLines [][]byte) [][]int {
	matrix := make([][]int, len(oldLines)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(newLines)+1)
	}
	for i := 1; i <= len(oldLines); i++ {
		for j := 1; j <= len(newLines); j++ {
			if bytes.Equal(oldLines[i-1], newLines[j-1]) {
				matrix[i][j] = matrix[i-1][j-1] + 1
			} else {
				matrix[i][j] = max(matrix[i-1][j], matrix[i][j-1])
			}
		}
	}
	return matrix
}
