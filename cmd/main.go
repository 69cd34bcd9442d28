package main

//	@title		jobgate API
//	@version	1.0
//	@description	jobgate admits exclusive batch jobs under a per-project concurrency limit and exposes the lock state for operators.

//	@BasePath	/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and an API key.

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/auth"
	"github.com/ebogdum/jobgate/config"
	"github.com/ebogdum/jobgate/core"
	"github.com/ebogdum/jobgate/internal/idutil"
	"github.com/ebogdum/jobgate/jobs"
	"github.com/ebogdum/jobgate/locks"
	"github.com/ebogdum/jobgate/server"
)

var rootCmd = &cobra.Command{
	Use:   "jobgate",
	Short: "jobgate - per-project admission control for exclusive batch jobs",
	Long: `jobgate decides whether an exclusive batch job may start, keeping at most
a configured number of such jobs running per project.`,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the jobgate server",
	Long:  "Start the jobgate server with the configured lock store, job store and admin API",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the jobgate configuration and display the loaded settings",
	RunE:  validateConfig,
}

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and repair project lock records",
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every initialized project lock record",
	Args:  cobra.NoArgs,
	RunE:  listLocks,
}

var locksClearCmd = &cobra.Command{
	Use:   "clear <project-id>",
	Short: "Release every slot of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  clearLock,
}

var locksRemoveCmd = &cobra.Command{
	Use:   "remove <project-id>",
	Short: "Remove a project lock record so the next admission rebuilds it",
	Args:  cobra.ExactArgs(1),
	RunE:  removeLock,
}

var configFilePath string

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")

	configCmd.AddCommand(validateCmd)
	locksCmd.AddCommand(locksListCmd, locksClearCmd, locksRemoveCmd)
	rootCmd.AddCommand(serverCmd, configCmd, locksCmd)

	// If no command specified, default to server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "server")
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// app holds everything built from configuration
type app struct {
	cfg     config.AppConfig
	logger  *zap.Logger
	store   locks.Store
	oracle  jobs.Oracle
	manager *locks.Manager
	engine  *core.Engine
}

func (rt *app) Close() {
	if rt.engine != nil {
		rt.engine.Close()
	}
	if rt.oracle != nil {
		if err := rt.oracle.Close(); err != nil {
			rt.logger.Warn("Failed to close job store", zap.Error(err))
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("Failed to close lock store", zap.Error(err))
		}
	}
	if err := rt.logger.Sync(); err != nil && !isStdSyncError(err) {
		fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
	}
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = logger.With(zap.String("instance_id", cfg.Server.InstanceID))

	rt := &app{cfg: cfg, logger: logger}

	logger.Info("Initializing job store", zap.String("type", cfg.JobStore.Type))
	rt.oracle, err = core.NewOracle(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	logger.Info("Initializing lock store", zap.String("backend", cfg.Locking.Backend))
	rt.store, err = core.NewLockStore(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.manager, err = locks.NewManager(rt.store, rt.oracle, locks.Options{
		MaxConcurrentJobsPerProject: cfg.Locking.MaxConcurrentJobsPerProject,
		FailOpen:                    cfg.Locking.FailOpen,
	}, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize lock manager: %w", err)
	}

	rt.engine = core.NewEngine(rt.manager, rt.oracle,
		core.NewDescriptorCache(cfg.Locking.DescriptorCacheTTL, 1000),
		cfg.Server.InstanceID, logger)
	return rt, nil
}

// runServer starts the jobgate server
func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newApp()
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger
	logger.Info("Starting jobgate server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.Int("max_concurrent_jobs_per_project", cfg.Locking.MaxConcurrentJobsPerProject),
		zap.Bool("fail_open", cfg.Locking.FailOpen))

	locks.StartStatsWorker(ctx, rt.manager, cfg.Locking.StatsInterval, logger)

	authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.APIKeys)

	logger.Info("Initializing HTTP router")
	router := server.NewRouter(rt.engine, authenticator, &cfg.Server, logger)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.ListenAddr != "" && cfg.Metrics.ListenAddr != cfg.Server.ListenAddr {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux, ReadTimeout: 10 * time.Second}
		go func() {
			logger.Info("Starting metrics server", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server forced to shutdown", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited gracefully")
	return nil
}

// validateConfig validates the jobgate configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		fmt.Fprintf(out, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Fprintln(out, "✅ Configuration is valid")
	fmt.Fprintf(out, "Instance ID: %s\n", cfg.Server.InstanceID)
	fmt.Fprintf(out, "Listen Address: %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(out, "Max Concurrent Jobs Per Project: %d\n", cfg.Locking.MaxConcurrentJobsPerProject)
	fmt.Fprintf(out, "Lock Store: %s\n", cfg.Locking.Backend)
	if cfg.Locking.Backend == config.LockBackendRedis {
		fmt.Fprintf(out, "Redis Address: %s (prefix %s)\n", cfg.Redis.Addr, cfg.Redis.KeyPrefix)
	}
	fmt.Fprintf(out, "Fail Open: %t\n", cfg.Locking.FailOpen)
	fmt.Fprintf(out, "Job Store: %s\n", cfg.JobStore.Type)
	switch cfg.JobStore.Type {
	case config.JobStorePostgres:
		fmt.Fprintf(out, "Job Store DSN: %s\n", maskDSN(cfg.JobStore.DSN))
	case config.JobStoreSQLite:
		fmt.Fprintf(out, "Job Store Path: %s\n", cfg.JobStore.SQLitePath)
	}

	return nil
}

func listLocks(cmd *cobra.Command, args []string) error {
	rt, err := newApp()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := rt.engine.LockRecords(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No lock records")
		return nil
	}
	for _, record := range records {
		fmt.Fprintf(out, "project %d: %s (%d/%d)\n", record.ProjectID, record.Status, len(record.Jobs), record.Limit)
		for _, job := range record.Jobs {
			stale := ""
			if job.Stale {
				stale = " stale"
			}
			fmt.Fprintf(out, "  job %d %s %s%s\n", job.ID, job.Type, job.Status, stale)
		}
	}
	return nil
}

func clearLock(cmd *cobra.Command, args []string) error {
	return withProject(cmd, args[0], func(ctx context.Context, engine *core.Engine, projectID int64) error {
		if err := engine.ClearProject(ctx, projectID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared lock record of project %d\n", projectID)
		return nil
	})
}

func removeLock(cmd *cobra.Command, args []string) error {
	return withProject(cmd, args[0], func(ctx context.Context, engine *core.Engine, projectID int64) error {
		if err := engine.RemoveProject(ctx, projectID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed lock record of project %d\n", projectID)
		return nil
	})
}

func withProject(cmd *cobra.Command, raw string, fn func(ctx context.Context, engine *core.Engine, projectID int64) error) error {
	projectID, err := idutil.ParseID(raw)
	if err != nil {
		return err
	}

	rt, err := newApp()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, rt.engine, projectID)
}

// maskDSN hides the password of a database DSN for display
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	schemeEnd := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if schemeEnd < 0 || at < schemeEnd {
		return "***"
	}
	credentials := dsn[schemeEnd+3 : at]
	if colon := strings.Index(credentials, ":"); colon >= 0 {
		credentials = credentials[:colon] + ":***"
	}
	return dsn[:schemeEnd+3] + credentials + dsn[at:]
}

// isStdSyncError reports the harmless error zap returns when syncing a terminal
func isStdSyncError(err error) bool {
	return strings.Contains(err.Error(), "inappropriate ioctl") || strings.Contains(err.Error(), "invalid argument")
}

// initializeLogger creates a zap logger based on configuration
func initializeLogger(logCfg config.LogConfig) (*zap.Logger, error) {
	var cfg zap.Config

	if logCfg.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	switch logCfg.Level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}
