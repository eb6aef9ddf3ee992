// internal/merge/engine.go
package merge

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/miethe/skillmeat/internal/diff"
	"github.com/miethe/skillmeat/internal/errors"
)

const (
	markerLocal     = "<<<<<<< LOCAL (current)\n"
	markerSeparator = "=======\n"
	markerRemote    = ">>>>>>> REMOTE (incoming)\n"
	deletedNotice   = "(file deleted)\n"
)

// Result is the outcome of a merge. Conflicts are data, not errors: Success
// is false whenever unresolved conflicts remain, while Error is reserved for
// I/O failures that triggered the batch rollback.
type Result struct {
	Success    bool
	AutoMerged []string
	Conflicts  []diff.Conflict
	Stats      diff.Stats
	OutputPath string
	Error      string

	// MergedContent carries the merged text in single-file mode; nil for
	// binary results and directory merges.
	MergedContent *string
}

// Engine merges three trees file-by-file using the diff engine's
// classification, writing every output file atomically and rolling back the
// whole batch if any write fails.
type Engine struct {
	diffs  *diff.Engine
	logger *zap.Logger

	// writeHook, when set, runs before each output write. Tests use it to
	// inject mid-batch failures.
	writeHook func(path string) error
}

func NewEngine(diffs *diff.Engine, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{diffs: diffs, logger: logger}
}

// Merge classifies base/local/remote and writes the merged tree into output.
// Auto-mergeable files are copied from their chosen side; text conflicts get
// marker documents; binary conflicts are recorded without touching output.
//
// A non-nil error means the merge never got as far as writing (bad output
// directory, unreadable inputs). Mid-batch write failures come back as a
// Result with Error set and everything already written rolled back.
func (e *Engine) Merge(base, local, remote, output string, ignorePatterns []string) (*Result, error) {
	classified, err := e.diffs.ThreeWayDiff(base, local, remote, ignorePatterns)
	if err != nil {
		return nil, err
	}

	if err := ensureOutputDir(output); err != nil {
		return nil, err
	}

	result := &Result{
		Stats:      classified.Stats,
		OutputPath: output,
	}

	var written []string
	fail := func(cause error) *Result {
		rollbackWrites(written, e.logger)
		result.Success = false
		result.AutoMerged = nil
		result.Error = fmt.Sprintf("%v; changes rolled back", cause)
		return result
	}

	for _, res := range classified.AutoMergeable {
		dst := filepath.Join(output, filepath.FromSlash(res.Path))

		if res.Delete {
			if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
				return fail(fmt.Errorf("removing %s: %w", res.Path, err)), nil
			}
			result.AutoMerged = append(result.AutoMerged, res.Path)
			continue
		}

		src := filepath.Join(local, filepath.FromSlash(res.Path))
		if res.Strategy == diff.StrategyUseRemote {
			src = filepath.Join(remote, filepath.FromSlash(res.Path))
		}
		if err := e.copyFileAtomic(src, dst); err != nil {
			return fail(fmt.Errorf("copying %s: %w", res.Path, err)), nil
		}
		written = append(written, dst)
		result.AutoMerged = append(result.AutoMerged, res.Path)
	}

	for _, conflict := range classified.Conflicts {
		result.Conflicts = append(result.Conflicts, conflict)
		if conflict.IsBinary {
			// No write: the caller picks a side out-of-band and the live
			// file stays intact meanwhile.
			continue
		}
		dst := filepath.Join(output, filepath.FromSlash(conflict.Path))
		if err := e.writeFileAtomic(dst, ConflictDocument(conflict)); err != nil {
			return fail(fmt.Errorf("writing conflict markers for %s: %w", conflict.Path, err)), nil
		}
		written = append(written, dst)
	}

	result.Success = len(result.Conflicts) == 0

	e.logger.Info("merge complete",
		zap.String("output", output),
		zap.Int("auto_merged", len(result.AutoMerged)),
		zap.Int("conflicts", len(result.Conflicts)))

	return result, nil
}

// MergeFiles is the single-file convenience wrapper: it stages the three
// inputs into a scratch tree, delegates to Merge, and promotes the merged
// file to outputFile. Missing inputs stand for deleted sides.
func (e *Engine) MergeFiles(baseFile, localFile, remoteFile, outputFile string) (*Result, error) {
	scratch, err := os.MkdirTemp("", "skillmeat-merge-"+uuid.NewString()[:8])
	if err != nil {
		return nil, errors.IOFailure("creating merge staging directory", err)
	}
	defer os.RemoveAll(scratch)

	name := filepath.Base(outputFile)
	stage := func(side, src string) (string, error) {
		dir := filepath.Join(scratch, side)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", errors.IOFailure("creating staging directory", err)
		}
		if src == "" {
			return dir, nil
		}
		if _, err := os.Stat(src); os.IsNotExist(err) {
			return dir, nil
		}
		if err := e.copyFileAtomic(src, filepath.Join(dir, name)); err != nil {
			return "", errors.IOFailure("staging "+src, err)
		}
		return dir, nil
	}

	baseDir, err := stage("base", baseFile)
	if err != nil {
		return nil, err
	}
	localDir, err := stage("local", localFile)
	if err != nil {
		return nil, err
	}
	remoteDir, err := stage("remote", remoteFile)
	if err != nil {
		return nil, err
	}

	mergedDir := filepath.Join(scratch, "merged")
	result, err := e.Merge(baseDir, localDir, remoteDir, mergedDir, nil)
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return result, nil
	}

	mergedFile := filepath.Join(mergedDir, name)
	content, err := os.ReadFile(mergedFile)
	if os.IsNotExist(err) {
		// Binary conflict (nothing written) or a merge that deleted the file.
		result.OutputPath = ""
		return result, nil
	}
	if err != nil {
		return nil, errors.IOFailure("reading merged file", err)
	}

	if err := e.writeFileAtomic(outputFile, content); err != nil {
		return nil, errors.IOFailure("promoting merged file", err)
	}
	result.OutputPath = outputFile

	if !diff.IsBinary(content) {
		text := string(content)
		result.MergedContent = &text
	}

	return result, nil
}

// ConflictDocument renders the whole-file conflict marker document. Deleted
// sides show a "(file deleted)" placeholder.
func ConflictDocument(c diff.Conflict) []byte {
	var buf []byte
	buf = append(buf, markerLocal...)
	buf = appendSide(buf, c.LocalContent)
	buf = append(buf, markerSeparator...)
	buf = appendSide(buf, c.RemoteContent)
	buf = append(buf, markerRemote...)
	return buf
}

func appendSide(buf, content []byte) []byte {
	if content == nil {
		return append(buf, deletedNotice...)
	}
	buf = append(buf, content...)
	if len(content) == 0 || content[len(content)-1] != '\n' {
		buf = append(buf, '\n')
	}
	return buf
}

// ensureOutputDir fails before any write when the output location is
// unusable, so a bad destination never leaves partial state.
func ensureOutputDir(output string) error {
	info, err := os.Stat(output)
	if err == nil {
		if !info.IsDir() {
			return errors.InvalidArgument("output path %s is not a directory", output)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.IOFailure("checking output directory", err)
	}
	if err := os.MkdirAll(output, 0755); err != nil {
		return errors.IOFailure("creating output directory "+output, err)
	}
	return nil
}
