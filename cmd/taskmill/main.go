package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"taskmill/internal/config"
	"taskmill/internal/database"
	"taskmill/internal/logging"
	"taskmill/internal/schedule"
	"taskmill/internal/taskqueue"
	"taskmill/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port       int
	bind       string
	configPath string
	dbPath     string
	verbosity  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskmill",
		Short: "Taskmill - scheduler demo service",
		Long:  `Taskmill is a small web service that manages cron-driven task schedules and runs them on an in-process task queue.`,
		RunE:  run,
	}

	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1)")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "./taskmill.yaml", "Config file path (or set CONFIG_PATH env var)")
	rootCmd.Flags().StringVarP(&dbPath, "db", "d", "", "SQLite database path, overrides the config file (or set DB_PATH env var)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("taskmill %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			p, err := strconv.Atoi(envPort)
			if err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", envPort, err)
			}
			port = p
		}
	}
	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}
	if configPath == "./taskmill.yaml" {
		if envCfg := os.Getenv("CONFIG_PATH"); envCfg != "" {
			configPath = envCfg
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath == "" {
		dbPath = os.Getenv("DB_PATH")
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	// -v/-vv beats the config file level.
	switch verbosity {
	case 0:
	case 1:
		cfg.Log.Level = "debug"
	default:
		cfg.Log.Level = "trace"
	}
	logging.Apply(cfg.Log)

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("database", cfg.Database.Path).
		Msg("Starting Taskmill")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database: one registry per process, engines and session factories
	// built lazily per logical name.
	registry := database.NewRegistry(cfg.Database.Path, database.Options{
		PoolSize:    cfg.Database.PoolSize,
		PoolRecycle: cfg.Database.PoolRecycle.Std(),
	})
	defer func() {
		if err := registry.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database registry")
		}
	}()

	if err := registry.Engine(database.DefaultDatabase).Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Task queue and cron scheduler.
	queue := taskqueue.New(taskqueue.Config{
		Workers:       cfg.Queue.Workers,
		Size:          cfg.Queue.Size,
		RatePerSecond: cfg.Queue.RatePerSecond,
	})
	scheduler := taskqueue.NewScheduler(queue)
	svc := schedule.NewService(registry, queue, scheduler)
	taskqueue.RegisterBuiltins(queue, taskqueue.WithLogging(), svc.RunRecorder())

	queue.Start(ctx)
	defer queue.Stop()
	scheduler.Start()
	defer scheduler.Stop()
	svc.SyncScheduler(ctx)

	// Hot-reload the log level when the config file changes.
	go func() {
		if err := config.Watch(ctx, configPath, func(c *config.Config) {
			logging.SetLevel(c.Log.Level)
		}); err != nil {
			log.Warn().Err(err).Msg("Config watcher unavailable")
		}
	}()

	server := web.NewServer(svc, queue, net.JoinHostPort(bind, strconv.Itoa(port)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down HTTP server")
	}

	log.Info().Msg("Taskmill stopped")
	return nil
}
