package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"otapatch/internal/bootpatch"
	"otapatch/internal/config"
	"otapatch/internal/dump"
	"otapatch/internal/payload"
	"otapatch/internal/platform"
	"otapatch/internal/release"
	"otapatch/internal/store"
	"otapatch/internal/tools"
)

var (
	// Global flags
	cfgPath   string
	dataDir   string
	logLevel  string
	logFormat string
	quiet     bool
	globalCfg *config.Config
	logger    *slog.Logger

	// Global components
	globalStore   *store.Store
	globalTools   *tools.Manager
	globalPayload payload.Client
	globalDumper  *dump.Orchestrator
	globalPatcher *bootpatch.Patcher
)

// initializeComponents initializes the global store, tool manager, payload
// client, dump orchestrator, and patcher
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	// Initialize store
	dbPath := globalCfg.Storage.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(globalCfg.Storage.DataDir, "otapatch.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.New(dbPath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	globalStore = st

	// Resolve the host platform and build the tool manager
	profile, err := platform.Current()
	if err != nil {
		return fmt.Errorf("failed to resolve host platform: %w", err)
	}
	releaseClient := release.NewClient(
		globalCfg.Tools.APIBaseURL,
		globalCfg.HTTP.UserAgent,
		globalCfg.HTTPTimeout(),
		logger,
	)
	globalTools = tools.NewManager(profile, globalCfg.BinDir(), releaseClient, globalCfg.Tools, logger)

	// The payload client shells out to the acquired payload-dumper binary
	globalPayload = payload.NewExecClient(
		globalTools.Tool(tools.PayloadDumper).Path(),
		globalCfg.HTTP.UserAgent,
		logger,
	)

	globalDumper = dump.New(globalPayload, globalCfg.TmpDir(), logger)
	globalPatcher = bootpatch.New(globalTools, globalDumper, logger)

	logger.Debug("components initialized", "profile", profile.OS+"/"+profile.Arch)
	return nil
}

// shouldSkipComponentInit checks if a command should skip component initialization
func shouldSkipComponentInit(cmdName string) bool {
	skipInitCmds := map[string]bool{
		"help":    true,
		"version": true,
		"config":  true,
		"show":    true,
	}
	return skipInitCmds[cmdName]
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}
}

// startJob records a new running job. A recording failure is logged, never
// fatal: job history must not block the operation itself.
func startJob(kind, url, partitions string) *store.Job {
	job := &store.Job{
		Kind:       kind,
		URL:        url,
		Partitions: partitions,
		StartTime:  time.Now(),
	}
	if err := globalStore.CreateJob(job); err != nil {
		logger.Warn("failed to record job", "kind", kind, "error", err)
		return nil
	}
	return job
}

// finishJob records the outcome of a job started with startJob.
func finishJob(job *store.Job, runErr error, bytesWritten int64, artifact string) {
	if job == nil {
		return
	}
	job.Status = store.StatusSuccess
	if runErr != nil {
		job.Status = store.StatusFailed
		job.ErrorMessage = runErr.Error()
	}
	job.BytesWritten = bytesWritten
	job.Artifact = artifact
	job.EndTime = time.Now()
	if err := globalStore.FinishJob(job); err != nil {
		logger.Warn("failed to record job outcome", "id", job.ID, "error", err)
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otapatch",
		Short: "Dump partitions from Android OTA archives and patch boot images",
		Long: `otapatch extracts partition images from Android OTA update archives and
patches boot images for rooting. It acquires its helper binaries (ksud,
magiskboot, payload-dumper) from their upstream GitHub releases on first
use and caches them per platform.`,
		Example: `  otapatch list https://example.com/ota.zip
  otapatch dump https://example.com/ota.zip boot,vbmeta
  otapatch dump https://example.com/ota.zip boot --compress zstd
  otapatch patch https://example.com/ota.zip init_boot
  otapatch tools --refresh
  otapatch status`,
		Version: "0.1.0",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize logging
			setupLogging()

			// Skip config loading for commands that don't need it
			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			// Load config
			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			// Override with command-line flags if provided
			if dataDir != "" {
				globalCfg.Storage.DataDir = dataDir
			}

			if !quiet {
				logger.Debug("config loaded", "path", cfgPath, "data_dir", globalCfg.Storage.DataDir)
			}

			// Initialize components after config is loaded
			if !shouldSkipComponentInit(cmd.Name()) {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	// Add persistent flags
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override data directory")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	// Add subcommands
	cmd.AddCommand(
		newListCmd(),
		newDumpCmd(),
		newPatchCmd(),
		newToolsCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipConfigCmds[cmdName]
}
