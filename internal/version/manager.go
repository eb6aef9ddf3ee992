// internal/version/manager.go
//
// VersionManager orchestrates the snapshot lifecycle and both rollback
// modes. Two rules hold on every path through this file: the safety snapshot
// is created before any destructive step runs, and exactly one audit entry
// is written per rollback attempt, failures included.
package version

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/miethe/skillmeat/internal/audit"
	"github.com/miethe/skillmeat/internal/collection"
	"github.com/miethe/skillmeat/internal/diff"
	"github.com/miethe/skillmeat/internal/errors"
	"github.com/miethe/skillmeat/internal/merge"
	"github.com/miethe/skillmeat/internal/report"
	"github.com/miethe/skillmeat/internal/snapshot"
)

// RollbackResult is the outcome of an executed rollback.
type RollbackResult struct {
	Success          bool
	FilesRestored    int
	FilesMerged      int
	Conflicts        []diff.Conflict
	SafetySnapshotID string
	Error            string
}

// SafetyAnalysis is the dry-run result of AnalyzeRollbackSafety. Purely
// advisory; producing it never mutates state.
type SafetyAnalysis struct {
	IsSafe               bool
	SnapshotExists       bool
	LocalChangesDetected int
	FilesWithConflicts   []string
	FilesSafeToRestore   []string
	FilesToMerge         []string
	Warnings             []string
}

type Manager struct {
	snapshots   *snapshot.Manager
	differ      *diff.Engine
	merger      *merge.Engine
	trail       *audit.Trail
	collections collection.Manager
	reporter    report.Reporter
	logger      *zap.Logger
}

func NewManager(
	snapshots *snapshot.Manager,
	differ *diff.Engine,
	merger *merge.Engine,
	trail *audit.Trail,
	collections collection.Manager,
	reporter report.Reporter,
	logger *zap.Logger,
) *Manager {
	if reporter == nil {
		reporter = report.Silent{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		snapshots:   snapshots,
		differ:      differ,
		merger:      merger,
		trail:       trail,
		collections: collections,
		reporter:    reporter,
		logger:      logger,
	}
}

// CreateSnapshot snapshots the active collection's live tree.
func (m *Manager) CreateSnapshot(message string) (*snapshot.Snapshot, error) {
	name, tree, err := m.liveTree()
	if err != nil {
		return nil, err
	}
	snap, err := m.snapshots.Create(tree, name, message)
	if err != nil {
		return nil, err
	}
	m.reporter.Successf("Created snapshot %s (%d artifacts)", snap.ID, snap.ArtifactCount)
	return snap, nil
}

// AutoSnapshot is CreateSnapshot without user-facing output. It is the
// pre-rollback and pre-merge safety net.
func (m *Manager) AutoSnapshot(message string) (*snapshot.Snapshot, error) {
	name, tree, err := m.liveTree()
	if err != nil {
		return nil, err
	}
	return m.snapshots.Create(tree, name, message)
}

// Rollback destructively restores the target snapshot over the live tree,
// preceded by a safety snapshot and followed by exactly one audit entry.
func (m *Manager) Rollback(snapshotID string, confirm bool) (*RollbackResult, error) {
	name, tree, err := m.liveTree()
	if err != nil {
		return nil, err
	}

	target, err := m.snapshots.Get(name, snapshotID)
	if err != nil {
		return nil, err
	}

	if confirm && !m.reporter.Confirm(fmt.Sprintf(
		"Roll back collection %q to snapshot %s? Uncommitted changes will be lost", name, snapshotID)) {
		return nil, errors.Cancelled("rollback of %s cancelled", snapshotID)
	}

	// Protective step: a failure here aborts before anything is destroyed.
	safety, err := m.AutoSnapshot("pre-rollback safety snapshot")
	if err != nil {
		return nil, errors.IOFailure("creating safety snapshot", err)
	}

	result := &RollbackResult{SafetySnapshotID: safety.ID}

	// One audit entry on every exit path, including panics below.
	defer m.record(&audit.Entry{
		CollectionName:   name,
		SourceSnapshotID: safety.ID,
		TargetSnapshotID: snapshotID,
		OperationType:    audit.OpSimple,
	}, result)

	if err := m.snapshots.Restore(target, tree); err != nil {
		result.Error = err.Error()
		return result, err
	}

	result.Success = true
	result.FilesRestored = countFiles(tree)
	m.reporter.Successf("Rolled back %q to snapshot %s (%d files)", name, snapshotID, result.FilesRestored)
	return result, nil
}

// AnalyzeRollbackSafety reports what a rollback to snapshotID would do to
// uncommitted local edits. The three-way diff runs with base and remote both
// set to the target, which degenerates into "what differs locally".
func (m *Manager) AnalyzeRollbackSafety(snapshotID string) (*SafetyAnalysis, error) {
	name, tree, err := m.liveTree()
	if err != nil {
		return nil, err
	}

	analysis := &SafetyAnalysis{}

	target, err := m.snapshots.Get(name, snapshotID)
	if err != nil {
		if errors.IsNotFound(err) {
			analysis.Warnings = append(analysis.Warnings,
				fmt.Sprintf("snapshot %s does not exist", snapshotID))
			return analysis, nil
		}
		return nil, err
	}
	analysis.SnapshotExists = true

	scratch, err := os.MkdirTemp("", "skillmeat-analyze-"+uuid.NewString()[:8])
	if err != nil {
		return nil, errors.IOFailure("creating analysis scratch directory", err)
	}
	defer os.RemoveAll(scratch)

	extracted := filepath.Join(scratch, "target")
	if err := m.snapshots.Restore(target, extracted); err != nil {
		return nil, err
	}

	res, err := m.differ.ThreeWayDiff(extracted, tree, extracted, nil)
	if err != nil {
		return nil, err
	}

	analysis.IsSafe = res.CanAutoMerge()
	analysis.LocalChangesDetected = res.Stats.FilesChanged
	for _, c := range res.Conflicts {
		analysis.FilesWithConflicts = append(analysis.FilesWithConflicts, c.Path)
		if c.IsBinary {
			analysis.Warnings = append(analysis.Warnings,
				fmt.Sprintf("%s: binary file differs locally and cannot carry conflict markers", c.Path))
		}
	}
	for _, r := range res.AutoMergeable {
		analysis.FilesSafeToRestore = append(analysis.FilesSafeToRestore, r.Path)
		if r.Strategy == diff.StrategyUseLocal {
			analysis.FilesToMerge = append(analysis.FilesToMerge, r.Path)
		}
	}

	return analysis, nil
}

// IntelligentRollback restores the target while preserving uncommitted local
// edits via a second three-way merge. With preserveChanges false it is a
// plain Rollback. selectivePaths limits preservation to those paths.
func (m *Manager) IntelligentRollback(snapshotID string, preserveChanges bool, selectivePaths []string, confirm bool) (*RollbackResult, error) {
	if !preserveChanges {
		return m.Rollback(snapshotID, confirm)
	}

	name, tree, err := m.liveTree()
	if err != nil {
		return nil, err
	}

	target, err := m.snapshots.Get(name, snapshotID)
	if err != nil {
		return nil, err
	}

	// Informational only; warnings do not gate execution.
	if analysis, err := m.AnalyzeRollbackSafety(snapshotID); err == nil {
		for _, w := range analysis.Warnings {
			m.reporter.Warnf("%s", w)
		}
		if analysis.LocalChangesDetected > 0 {
			m.reporter.Infof("%d local change(s) will be preserved where possible",
				analysis.LocalChangesDetected)
		}
	}

	if confirm && !m.reporter.Confirm(fmt.Sprintf(
		"Roll back collection %q to snapshot %s, preserving local changes?", name, snapshotID)) {
		return nil, errors.Cancelled("rollback of %s cancelled", snapshotID)
	}

	safety, err := m.AutoSnapshot("pre-rollback safety snapshot")
	if err != nil {
		return nil, errors.IOFailure("creating safety snapshot", err)
	}

	opType := audit.OpIntelligent
	if len(selectivePaths) > 0 {
		opType = audit.OpSelective
	}

	result := &RollbackResult{SafetySnapshotID: safety.ID}

	defer m.record(&audit.Entry{
		CollectionName:   name,
		SourceSnapshotID: safety.ID,
		TargetSnapshotID: snapshotID,
		OperationType:    opType,
		PreserveChanges:  true,
		SelectivePaths:   selectivePaths,
	}, result)

	runErr := m.preservingRestore(target, tree, selectivePaths, result)
	if runErr != nil {
		result.Error = runErr.Error()
		return result, runErr
	}

	result.Success = true
	m.reporter.Successf("Rolled back %q to snapshot %s (%d restored, %d merged, %d conflicts)",
		name, snapshotID, result.FilesRestored, result.FilesMerged, len(result.Conflicts))
	return result, nil
}

// preservingRestore is the merge-and-overlay path: extract the target as the
// merge base, stage local edits, merge with remote equal to base, restore
// the target destructively, then overlay the merged files on top.
func (m *Manager) preservingRestore(target *snapshot.Snapshot, tree string, selectivePaths []string, result *RollbackResult) error {
	scratch, err := os.MkdirTemp("", "skillmeat-rollback-"+uuid.NewString()[:8])
	if err != nil {
		return errors.IOFailure("creating rollback scratch directory", err)
	}
	defer os.RemoveAll(scratch)

	base := filepath.Join(scratch, "base")
	if err := m.snapshots.Restore(target, base); err != nil {
		return err
	}

	local := filepath.Join(scratch, "local")
	if err := stageLocal(tree, base, local, selectivePaths); err != nil {
		return err
	}

	classified, err := m.differ.ThreeWayDiff(base, local, base, nil)
	if err != nil {
		return err
	}

	if classified.Stats.FilesChanged == 0 {
		// Nothing to preserve; plain restore is the fast path.
		if err := m.snapshots.Restore(target, tree); err != nil {
			return err
		}
		result.FilesRestored = countFiles(tree)
		return nil
	}

	merged := filepath.Join(scratch, "merged")
	mres, err := m.merger.Merge(base, local, base, merged, nil)
	if err != nil {
		return err
	}
	if mres.Error != "" {
		return errors.IOFailure("merging local changes", fmt.Errorf("%s", mres.Error))
	}

	if err := m.snapshots.Restore(target, tree); err != nil {
		return err
	}
	result.FilesRestored = countFiles(tree)

	// Overlay preserved edits and conflict-marker files onto the restored
	// tree, file by file.
	if _, err := overlayTree(merged, tree); err != nil {
		return errors.IOFailure("overlaying preserved changes", err)
	}

	// Preserved deletions: a file the user removed locally must not come
	// back with the restore.
	for _, res := range classified.AutoMergeable {
		if res.Delete {
			if err := os.Remove(filepath.Join(tree, filepath.FromSlash(res.Path))); err != nil && !os.IsNotExist(err) {
				return errors.IOFailure("applying preserved deletion of "+res.Path, err)
			}
		}
	}

	result.FilesMerged = len(mres.AutoMerged)
	result.Conflicts = mres.Conflicts
	return nil
}

// CleanupSnapshots trims the active collection's snapshots to keepCount.
func (m *Manager) CleanupSnapshots(keepCount int, confirm bool) ([]snapshot.Snapshot, error) {
	name, _, err := m.liveTree()
	if err != nil {
		return nil, err
	}
	if confirm && !m.reporter.Confirm(fmt.Sprintf(
		"Delete all but the %d most recent snapshots of %q?", keepCount, name)) {
		return nil, errors.Cancelled("cleanup cancelled")
	}
	deleted, err := m.snapshots.CleanupOld(name, keepCount)
	if err != nil {
		return nil, err
	}
	m.reporter.Infof("Deleted %d snapshot(s)", len(deleted))
	return deleted, nil
}

// DeleteSnapshot removes a single snapshot of the active collection.
func (m *Manager) DeleteSnapshot(snapshotID string, confirm bool) error {
	name, _, err := m.liveTree()
	if err != nil {
		return err
	}
	snap, err := m.snapshots.Get(name, snapshotID)
	if err != nil {
		return err
	}
	if confirm && !m.reporter.Confirm(fmt.Sprintf("Delete snapshot %s?", snapshotID)) {
		return errors.Cancelled("deletion of %s cancelled", snapshotID)
	}
	if err := m.snapshots.Delete(snap); err != nil {
		return err
	}
	m.reporter.Infof("Deleted snapshot %s", snapshotID)
	return nil
}

// ListSnapshots pages through the active collection's catalog.
func (m *Manager) ListSnapshots(limit int, cursor string) ([]snapshot.Snapshot, string, error) {
	name, _, err := m.liveTree()
	if err != nil {
		return nil, "", err
	}
	return m.snapshots.List(name, limit, cursor)
}

// record finalizes and appends the audit entry for a rollback attempt. An
// audit write failure is logged, never raised, so it cannot mask the
// operation's real outcome.
func (m *Manager) record(entry *audit.Entry, result *RollbackResult) {
	entry.FilesRestored = result.FilesRestored
	entry.FilesMerged = result.FilesMerged
	entry.ConflictsPending = len(result.Conflicts)
	entry.Success = result.Success
	entry.Error = result.Error
	if r := recover(); r != nil {
		entry.Success = false
		if entry.Error == "" {
			entry.Error = fmt.Sprintf("panic: %v", r)
		}
		defer panic(r)
	}
	if _, err := m.trail.Append(*entry); err != nil {
		m.logger.Error("failed to write audit entry",
			zap.String("collection", entry.CollectionName),
			zap.Error(err))
	}
}

func (m *Manager) liveTree() (name, tree string, err error) {
	name, err = m.collections.ActiveCollection()
	if err != nil {
		return "", "", err
	}
	tree, err = m.collections.CollectionPath(name)
	if err != nil {
		return "", "", err
	}
	return name, tree, nil
}

// stageLocal builds the "local" merge input in dst so the merge sees a
// stable copy even if the live tree changes mid-operation. In selective mode
// dst starts as a copy of base with only the selected paths taken from the
// live tree, so unselected files classify as unchanged rather than deleted.
func stageLocal(tree, base, dst string, selectivePaths []string) error {
	if len(selectivePaths) == 0 {
		if err := copyTree(tree, dst); err != nil {
			return errors.IOFailure("staging live tree", err)
		}
		return nil
	}

	if err := copyTree(base, dst); err != nil {
		return errors.IOFailure("seeding selective staging tree", err)
	}

	for _, rel := range selectivePaths {
		src := filepath.Join(tree, filepath.FromSlash(rel))
		staged := filepath.Join(dst, filepath.FromSlash(rel))

		info, err := os.Stat(src)
		if os.IsNotExist(err) {
			// Locally deleted: reflect the deletion in the staging tree.
			if err := os.RemoveAll(staged); err != nil {
				return errors.IOFailure("staging deletion of "+rel, err)
			}
			continue
		}
		if err != nil {
			return errors.IOFailure("staging "+rel, err)
		}

		if err := os.RemoveAll(staged); err != nil {
			return errors.IOFailure("staging "+rel, err)
		}
		if info.IsDir() {
			err = copyTree(src, staged)
		} else {
			err = copyFile(src, staged)
		}
		if err != nil {
			return errors.IOFailure("staging "+rel, err)
		}
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

// overlayTree copies every file under src on top of dst, returning how many.
func overlayTree(src, dst string) (int, error) {
	count := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if err := copyFile(path, filepath.Join(dst, rel)); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func countFiles(tree string) int {
	count := 0
	filepath.WalkDir(tree, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}
