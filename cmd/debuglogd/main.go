package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MuhdNihalCY/wpdebuglog/internal/config"
	"github.com/MuhdNihalCY/wpdebuglog/internal/debuglog"
	"github.com/MuhdNihalCY/wpdebuglog/internal/logger"
	"github.com/MuhdNihalCY/wpdebuglog/internal/scheduler"
	"github.com/MuhdNihalCY/wpdebuglog/internal/server"
	"github.com/MuhdNihalCY/wpdebuglog/internal/version"
)

func main() {
	// --- Configuration --- //
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	testConfigShort := flag.Bool("t", false, "Test configuration and exit (nginx style)")
	testConfigLong := flag.Bool("test", false, "Test configuration and exit (nginx style)")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.VersionInfo())
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("[CRITICAL] Failed to load configuration from '%s': %v\n", *configPath, err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Printf("[CRITICAL] Configuration validation failed for '%s':\n%v\n", *configPath, err)
		os.Exit(1)
	}

	if *testConfigShort || *testConfigLong {
		fmt.Printf("Configuration '%s' is valid.\n", *configPath)
		os.Exit(0)
	}

	appLogger := logger.GetAppLogger()
	if err := appLogger.SetLogLevelFromString(cfg.AppLog.Level); err != nil {
		fmt.Printf("[WARN] Invalid log level '%s', using default: %v\n", cfg.AppLog.Level, err)
	}
	appLogger.Warn("%s", version.VersionInfo())

	// --- Debug log --- //

	// An unusable directory must not stop the host: keep running degraded
	// and send records to stderr instead.
	debugLog, err := debuglog.Open(cfg.DebugLog)
	if err != nil {
		appLogger.Error("Debug log unavailable, falling back to stderr: %v", err)
		debugLog = debuglog.Degraded(cfg.DebugLog, err)
	}

	if debugLog.Enabled() {
		appLogger.Info("Debug log enabled (minimum level %s, directory %s)", cfg.DebugLog.MinimumLevel, cfg.DebugLog.Directory)
	}

	var retention *scheduler.Service
	if schedule := cfg.DebugLog.Retention.Schedule; schedule != "" && debugLog.Sink() != nil {
		retention = scheduler.NewService(debugLog, appLogger)
		if err := retention.Start(schedule); err != nil {
			appLogger.Fatal("Failed to start retention scheduler: %v", err)
		}
	}

	// --- Admin server --- //

	var srv *server.Server
	if cfg.Admin.Enabled {
		srv = server.NewServer(server.Dependencies{
			Config:    cfg,
			Store:     debugLog,
			AppLogger: appLogger,
		})
		go func() {
			if err := srv.Start(); err != nil {
				appLogger.Fatal("Server error: %v", err)
			}
		}()
	}

	// --- Graceful Shutdown --- //

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Received shutdown signal.")

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			appLogger.Error("Server forced to shutdown: %v", err)
		}
		cancel()
	}
	if retention != nil {
		retention.Stop()
	}
	if err := debugLog.Close(); err != nil {
		appLogger.Error("Failed to close debug log: %v", err)
	}

	appLogger.Info("wpdebuglog shut down gracefully.")
}
