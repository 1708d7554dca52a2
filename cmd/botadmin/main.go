package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"whatsbot/internal/backend"
	"whatsbot/internal/config"
	"whatsbot/internal/dashboard"
	"whatsbot/internal/metrics"
	"whatsbot/internal/models"
	"whatsbot/internal/preferences"
	"whatsbot/internal/tracing"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes request bodies and unmasked phone numbers)")
	configPath = flag.String("config", "", "Path to configuration file; defaults and environment are used when empty")
	envFile    = flag.String("env-file", ".env", "Optional .env file loaded before configuration")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("botadmin %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting bot admin dashboard")

	if err := config.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg, *verbose)

	tracingManager := tracing.NewTracingManager(config.TracingConfig(cfg), logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	registry := metrics.GetRegistry()

	prefs, err := preferences.Open(cfg.Preferences.Path, preferences.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open preferences: %w", err)
	}
	defer func() {
		if err := prefs.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close preferences")
		}
	}()

	bot, err := backend.New(cfg, logger, registry, *verbose)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	cache := backend.NewCache(cfg, logger, registry)
	defer cache.Close()

	svc := dashboard.NewService(bot, cache, dashboard.WithLogger(logger))
	hub := NewHub(svc, logger, registry, cfg.Server.WebsocketMaxPeers)

	subs, err := svc.Subscribe(intervals(cfg))
	if err != nil {
		return fmt.Errorf("failed to start dashboard polling: %w", err)
	}
	go hub.Follow(subs)

	if *configPath != "" {
		watcher := config.NewConfigWatcher(*configPath, logger)
		watcher.SetInterval(config.Seconds(cfg.Server.ConfigReloadSec))
		watcher.OnConfigChange(func(next *models.Config) {
			applyLogLevel(logger, next, *verbose)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	server := NewServer(cfg, svc, prefs, hub, logger, registry, *verbose)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Seconds(cfg.Server.ShutdownTimeoutSec))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Dashboard clients did not disconnect in time")
	}
	for _, sub := range subs {
		sub.Stop()
	}

	logger.Info("Server shutdown completed")
	return nil
}

// applyLogLevel sets the configured level; verbose always wins.
func applyLogLevel(logger *logrus.Logger, cfg *models.Config, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func intervals(cfg *models.Config) dashboard.Intervals {
	return dashboard.Intervals{
		Analytics:      config.Seconds(cfg.Dashboard.AnalyticsIntervalSec),
		LiveRefresh:    config.Seconds(cfg.Dashboard.LiveRefreshIntervalSec),
		RecentContacts: config.Seconds(cfg.Dashboard.RecentContactsIntervalSec),
	}
}
