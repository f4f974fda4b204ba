// Package main implements the entry point for the mavrelay application.
// mavrelay receives MAVLink telemetry over UDP and fans it out to ground
// control stations, a binary tlog archive, a structured JSON log, and an
// optional NATS live feed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/mavrelay/config"
	"github.com/c360/mavrelay/metric"
	"github.com/c360/mavrelay/relay"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "mavrelay"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting mavrelay",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	var registry *metric.Registry
	if cfg.Metrics.Enabled {
		registry = metric.NewRegistry()
	}

	r, err := relay.New(relay.Deps{
		Config:   cfg,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	if err := r.Initialize(); err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	return runWithSignalHandling(r, cliCfg.ShutdownTimeout)
}

// runWithSignalHandling starts the relay and blocks until a shutdown
// signal arrives or the upstream dies.
func runWithSignalHandling(r *relay.Relay, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := r.Start(signalCtx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	slog.Info("mavrelay started")

	waitErr := r.Wait(signalCtx)
	if waitErr != nil {
		slog.Error("Upstream failure, shutting down", "error", waitErr)
	} else {
		slog.Info("Received shutdown signal")
	}

	if err := r.Stop(shutdownTimeout); err != nil {
		slog.Error("Shutdown finished with errors", "error", err)
		if waitErr == nil {
			waitErr = err
		}
	}

	slog.Info("mavrelay shutdown complete")
	return waitErr
}

// loadConfig loads configuration from the specified file path, falling
// back to defaults plus environment overrides when the path is empty.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
