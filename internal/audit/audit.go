// Package audit keeps the per-collection rollback audit trail: an
// append-only TOML log recording every rollback attempt, failed ones
// included. Entries are never mutated after they are written.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/miethe/skillmeat/internal/errors"
)

type OperationType string

const (
	OpSimple      OperationType = "simple"
	OpIntelligent OperationType = "intelligent"
	OpSelective   OperationType = "selective"
)

// Entry is one rollback attempt. SourceSnapshotID is the safety snapshot
// taken before the destructive step; TargetSnapshotID is what was restored.
type Entry struct {
	ID               string        `toml:"id"`
	Timestamp        time.Time     `toml:"timestamp"`
	CollectionName   string        `toml:"collection_name"`
	SourceSnapshotID string        `toml:"source_snapshot_id"`
	TargetSnapshotID string        `toml:"target_snapshot_id"`
	OperationType    OperationType `toml:"operation_type"`
	FilesRestored    int           `toml:"files_restored"`
	FilesMerged      int           `toml:"files_merged"`
	ConflictsPending int           `toml:"conflicts_pending"`
	PreserveChanges  bool          `toml:"preserve_changes_enabled"`
	SelectivePaths   []string      `toml:"selective_paths,omitempty"`
	Success          bool          `toml:"success"`
	Error            string        `toml:"error,omitempty"`
}

type logFile struct {
	Entries []Entry `toml:"entries"`
}

// Trail appends audit entries under dir, one log file per collection.
type Trail struct {
	dir    string
	logger *zap.Logger
}

func NewTrail(dir string, logger *zap.Logger) *Trail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trail{dir: dir, logger: logger}
}

func (t *Trail) logPath(collection string) string {
	return filepath.Join(t.dir, collection+"_rollback_audit.toml")
}

func newEntryID(now time.Time) string {
	return fmt.Sprintf("rb_%s-%06d", now.Format("20060102-150405"), now.Nanosecond()/1000)
}

// Append writes one entry, assigning its id and timestamp. The whole file is
// read, appended in memory and rewritten, under the collection's lock.
func (t *Trail) Append(entry Entry) (Entry, error) {
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return entry, errors.IOFailure("creating audit directory", err)
	}

	now := time.Now()
	entry.ID = newEntryID(now)
	entry.Timestamp = now

	lock := flock.New(t.logPath(entry.CollectionName) + ".lock")
	if err := lock.Lock(); err != nil {
		return entry, errors.IOFailure("locking audit log", err)
	}
	defer lock.Unlock()

	log, err := t.load(entry.CollectionName)
	if err != nil {
		return entry, err
	}
	log.Entries = append(log.Entries, entry)

	if err := t.store(entry.CollectionName, log); err != nil {
		return entry, err
	}

	t.logger.Info("audit entry recorded",
		zap.String("collection", entry.CollectionName),
		zap.String("id", entry.ID),
		zap.String("operation", string(entry.OperationType)),
		zap.Bool("success", entry.Success))

	return entry, nil
}

// Entries returns the full trail for a collection, oldest first.
func (t *Trail) Entries(collection string) ([]Entry, error) {
	log, err := t.load(collection)
	if err != nil {
		return nil, err
	}
	return log.Entries, nil
}

func (t *Trail) load(collection string) (*logFile, error) {
	var log logFile
	if _, err := toml.DecodeFile(t.logPath(collection), &log); err != nil {
		if os.IsNotExist(err) {
			return &logFile{}, nil
		}
		return nil, errors.IOFailure("reading audit log", err)
	}
	return &log, nil
}

func (t *Trail) store(collection string, log *logFile) error {
	tmp, err := os.CreateTemp(t.dir, ".audit-*")
	if err != nil {
		return errors.IOFailure("creating audit temp file", err)
	}
	tmpName := tmp.Name()

	if err := toml.NewEncoder(tmp).Encode(log); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.IOFailure("encoding audit log", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.IOFailure("closing audit temp file", err)
	}
	if err := os.Rename(tmpName, t.logPath(collection)); err != nil {
		os.Remove(tmpName)
		return errors.IOFailure("replacing audit log", err)
	}
	return nil
}
