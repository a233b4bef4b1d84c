package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/templar/internal/cache"
	"github.com/foxzi/templar/internal/editor"
	"github.com/foxzi/templar/internal/remote"
	"github.com/foxzi/templar/internal/store"
	"github.com/foxzi/templar/internal/sync"
)

var syncVerbose bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync commands",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync cycle now",
	Long: `Scan the local edit cache and push every eligible template to its
editor backend. Runs against the storage file directly; stop the daemon
first or use the control API instead.`,
	RunE: runSyncRun,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync settings and last run",
	RunE:  runSyncStatus,
}

var syncAutoCmd = &cobra.Command{
	Use:   "auto <on|off>",
	Short: "Enable or disable periodic auto-sync",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncAuto,
}

func init() {
	syncRunCmd.Flags().BoolVarP(&syncVerbose, "verbose", "v", false, "Log every dispatch")

	syncCmd.AddCommand(syncRunCmd, syncStatusCmd, syncAutoCmd)
	rootCmd.AddCommand(syncCmd)
}

func runSyncRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer db.Close()

	var logger *slog.Logger
	if syncVerbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cacheStore, err := cache.NewStore(db, logger)
	if err != nil {
		return err
	}
	editorStore, err := editor.NewStore(db)
	if err != nil {
		return err
	}
	settings, err := sync.NewSettings(db)
	if err != nil {
		return err
	}

	client := remote.NewClient(logger).SetTimeout(cfg.Remote.RequestTimeout)
	orch := sync.NewOrchestrator(cacheStore, editorStore, client, settings, sync.Config{
		Interval: cfg.Sync.Interval,
		Pacing:   cfg.Sync.Pacing,
	}, logger)

	if err := orch.TriggerSync(context.Background(), sync.SourceManual); err != nil {
		return err
	}

	st := orch.Status().Get()
	fmt.Printf("Sync finished: %s\n", st.Message)
	if st.Error != "" {
		fmt.Printf("Errors: %s\n", st.Error)
	}
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	db, err := openStorage()
	if err != nil {
		return err
	}
	defer db.Close()

	settings, err := sync.NewSettings(db)
	if err != nil {
		return err
	}

	auto := "disabled"
	if settings.AutoSyncEnabled() {
		auto = "enabled"
	}
	fmt.Printf("Auto-sync: %s\n", auto)

	if last, ok := settings.LastSync(); ok {
		fmt.Printf("Last sync: %s\n", last.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("Last sync: never")
	}
	return nil
}

func runSyncAuto(cmd *cobra.Command, args []string) error {
	var enabled bool
	switch args[0] {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return fmt.Errorf("expected on or off, got %q", args[0])
	}

	db, err := openStorage()
	if err != nil {
		return err
	}
	defer db.Close()

	settings, err := sync.NewSettings(db)
	if err != nil {
		return err
	}
	if err := settings.SetAutoSyncEnabled(enabled); err != nil {
		return err
	}

	fmt.Printf("Auto-sync %s\n", map[bool]string{true: "enabled", false: "disabled"}[enabled])
	return nil
}
