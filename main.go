package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"hotkeyd/config"
	"hotkeyd/engine"
)

func main() {
	var configPath string
	var dryRun, verbose, quiet bool

	flagSet := pflag.NewFlagSet("hotkeyd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to config file (default: $XDG_CONFIG_HOME/global-hotkeys/config.toml)")
	flagSet.BoolVarP(&dryRun, "dry-run", "n", false, "log matched bindings without running their actions")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	// Setup logging
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			slog.Error("Failed to resolve config path", "error", err)
			os.Exit(1)
		}
		configPath = path
	}

	agent, err := NewAgent(configPath, engine.Options{DryRun: dryRun})
	if err != nil {
		slog.Error("Failed to start", "error", err)
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := agent.Run(ctx); err != nil {
		slog.Error("Event loop failed", "error", err)
		os.Exit(1)
	}

	slog.Info("hotkeyd stopped")
}
