// cmd/skillmeat/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miethe/skillmeat/internal/audit"
	"github.com/miethe/skillmeat/internal/collection"
	"github.com/miethe/skillmeat/internal/config"
	"github.com/miethe/skillmeat/internal/diff"
	"github.com/miethe/skillmeat/internal/hashcache"
	"github.com/miethe/skillmeat/internal/logging"
	"github.com/miethe/skillmeat/internal/merge"
	"github.com/miethe/skillmeat/internal/report"
	"github.com/miethe/skillmeat/internal/snapshot"
	"github.com/miethe/skillmeat/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "skillmeat",
	Short: "Skillmeat manages versioned artifact collections",
	Long: `Skillmeat is a local artifact collection manager with git-like versioning:
content-addressed snapshots, three-way merge with conflict detection, and
audited rollback that can preserve uncommitted local edits.`,
}

var configPath string

// app bundles the wired subsystem for command handlers.
type app struct {
	cfg      *config.Config
	cache    *hashcache.Cache
	versions *version.Manager
	merges   *version.MergeService
	logger   *zap.Logger
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

func initApp() (*app, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	cache, err := hashcache.Open(cfg.HashCacheDir, 4096)
	if err != nil {
		logger.Warn("hash cache unavailable, hashing directly", zap.Error(err))
		cache = nil
	}

	collections := collection.NewLocalManager(cfg.CollectionsDir, cfg.ActiveCollection)
	differ := diff.NewEngine(cache, logger.Logger)
	merger := merge.NewEngine(differ, logger.Logger)
	snapshots := snapshot.NewManager(cfg.SnapshotsDir, logger.Logger)
	trail := audit.NewTrail(cfg.AuditDir, logger.Logger)
	reporter := report.NewConsole()

	scoped := logger.WithCollection(cfg.ActiveCollection)
	versions := version.NewManager(snapshots, differ, merger, trail, collections, reporter, scoped)
	merges := version.NewMergeService(snapshots, differ, merger, versions, collections, reporter, scoped)

	return &app{
		cfg:      cfg,
		cache:    cache,
		versions: versions,
		merges:   merges,
		logger:   logger.Logger,
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config file")

	var snapshotMessage string
	var snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Create a snapshot of the active collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.versions.CreateSnapshot(snapshotMessage); err != nil {
				return fmt.Errorf("creating snapshot: %w", err)
			}
			return nil
		},
	}
	snapshotCmd.Flags().StringVarP(&snapshotMessage, "message", "m", "", "snapshot message")

	var listLimit int
	var listCursor string
	var listCmd = &cobra.Command{
		Use:   "snapshots",
		Short: "List snapshots of the active collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.Close()

			snaps, next, err := a.versions.ListSnapshots(listLimit, listCursor)
			if err != nil {
				return fmt.Errorf("listing snapshots: %w", err)
			}
			for _, s := range snaps {
				fmt.Printf("%s  %s  %d artifacts  %s\n",
					s.ID, s.Timestamp.Format("2006-01-02 15:04:05"), s.ArtifactCount, s.Message)
			}
			if next != "" {
				fmt.Printf("more available: --cursor %s\n", next)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "page size")
	listCmd.Flags().StringVar(&listCursor, "cursor", "", "pagination cursor")

	var rollbackPreserve bool
	var rollbackPaths []string
	var rollbackYes bool
	var rollbackCmd = &cobra.Command{
		Use:   "rollback <snapshot-id>",
		Short: "Roll the active collection back to a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.versions.IntelligentRollback(args[0], rollbackPreserve, rollbackPaths, !rollbackYes)
			if err != nil {
				return fmt.Errorf("rolling back: %w", err)
			}
			if len(result.Conflicts) > 0 {
				color.Yellow("%d file(s) still conflict; markers written:", len(result.Conflicts))
				for _, c := range result.Conflicts {
					kind := string(c.Type)
					if c.IsBinary {
						kind += ", binary"
					}
					fmt.Printf("  %s (%s)\n", c.Path, kind)
				}
			}
			return nil
		},
	}
	rollbackCmd.Flags().BoolVar(&rollbackPreserve, "preserve", false, "preserve uncommitted local edits")
	rollbackCmd.Flags().StringSliceVar(&rollbackPaths, "paths", nil, "limit preservation to these paths")
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "skip confirmation")

	var analyzeCmd = &cobra.Command{
		Use:   "analyze <snapshot-id>",
		Short: "Dry-run a rollback and report what it would touch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.Close()

			analysis, err := a.versions.AnalyzeRollbackSafety(args[0])
			if err != nil {
				return fmt.Errorf("analyzing rollback: %w", err)
			}
			if analysis.IsSafe {
				color.Green("Safe to roll back: %d local change(s) detected", analysis.LocalChangesDetected)
			} else {
				color.Red("Rollback would conflict with %d file(s)", len(analysis.FilesWithConflicts))
			}
			for _, p := range analysis.FilesToMerge {
				fmt.Printf("  would preserve: %s\n", p)
			}
			for _, w := range analysis.Warnings {
				color.Yellow("  warning: %s", w)
			}
			return nil
		},
	}

	var cleanupKeep int
	var cleanupYes bool
	var cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old snapshots, keeping the most recent",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.Close()

			keep := cleanupKeep
			if keep == 0 {
				keep = a.cfg.RetainSnapshots
			}
			if _, err := a.versions.CleanupSnapshots(keep, !cleanupYes); err != nil {
				return fmt.Errorf("cleaning up snapshots: %w", err)
			}
			return nil
		},
	}
	cleanupCmd.Flags().IntVar(&cleanupKeep, "keep", 0, "snapshots to keep (default from config)")
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "skip confirmation")

	var deleteYes bool
	var deleteCmd = &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a single snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.versions.DeleteSnapshot(args[0], !deleteYes); err != nil {
				return fmt.Errorf("deleting snapshot: %w", err)
			}
			return nil
		},
	}
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip confirmation")

	var mergeOutput string
	var mergeCmd = &cobra.Command{
		Use:   "merge <base-snapshot-id> <remote-snapshot-id>",
		Short: "Three-way merge two snapshots into the active collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.merges.MergeWithConflictDetection(args[0], a.cfg.ActiveCollection, args[1], mergeOutput)
			if err != nil {
				return fmt.Errorf("merging: %w", err)
			}
			if result.Error != "" {
				return fmt.Errorf("merge failed: %s", result.Error)
			}
			if result.Success {
				color.Green("Merged %d file(s) cleanly", len(result.AutoMerged))
				return nil
			}
			color.Yellow("Merged %d file(s); %d conflict(s):", len(result.AutoMerged), len(result.Conflicts))
			for _, c := range result.Conflicts {
				kind := string(c.Type)
				if c.IsBinary {
					kind += ", binary"
				}
				fmt.Printf("  %s (%s)\n", c.Path, kind)
			}
			return nil
		},
	}
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "write merge result here instead of the collection")

	var previewCmd = &cobra.Command{
		Use:   "preview <base-snapshot-id> <remote-snapshot-id>",
		Short: "Preview what merging two snapshots would change",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.Close()

			preview, err := a.merges.GetMergePreview(args[0], a.cfg.ActiveCollection, args[1])
			if err != nil {
				return fmt.Errorf("building preview: %w", err)
			}
			for _, p := range preview.FilesAdded {
				color.Green("+ %s", p)
			}
			for _, p := range preview.FilesRemoved {
				color.Red("- %s", p)
			}
			for _, p := range preview.FilesModified {
				color.Yellow("~ %s", p)
				if hunks, ok := preview.Hunks[p]; ok {
					fmt.Print(indent(hunks, "    "))
				}
			}
			if len(preview.Conflicts) > 0 {
				color.Red("%d conflict(s) expected", len(preview.Conflicts))
			}
			return nil
		},
	}

	rootCmd.AddCommand(snapshotCmd, listCmd, rollbackCmd, analyzeCmd, cleanupCmd, deleteCmd, mergeCmd, previewCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "skillmeat.json"
	}
	return home + "/.skillmeat/config.json"
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n") + "\n"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
