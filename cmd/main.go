package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vgen/internal/shared"
)

const defaultConfigPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat(defaultConfigPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(defaultConfigPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "path", defaultConfigPath, "error", err)
		}
	}
	if err := shared.LoadEnv(config); err != nil {
		logger.Warn("failed to load environment overrides", "error", err)
	}
	if err := config.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: defaultConfigPath,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "vgen",
		Usage:    "Generate short videos, track them, and publish them to the feed",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
