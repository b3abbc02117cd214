// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Command parlord is the Parlor chat server daemon. It binds the
// server's endpoint address on the TCP substrate, serves the room
// protocol until interrupted, and persists its state snapshot on the
// way out.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/parlor-chat/parlor/lib/clock"
	"github.com/parlor-chat/parlor/lib/config"
	"github.com/parlor-chat/parlor/server"
	"github.com/parlor-chat/parlor/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "",
		"path to parlor.yaml (default: $PARLOR_CONFIG)")
	listen := pflag.String("listen", "",
		"TCP listen address, overriding the config file")
	stateDir := pflag.String("state-dir", "",
		"state directory, overriding the config file")
	clean := pflag.Bool("clean", false,
		"discard the persisted state snapshot and exit")
	logLevel := pflag.String("log-level", "info",
		"log level: debug, info, warn, error")
	pflag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", *logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *stateDir != "" {
		cfg.Server.StateDir = *stateDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if *clean {
		if err := server.Clean(cfg.Server.StateDir); err != nil {
			return err
		}
		logger.Info("state snapshot discarded", "state_dir", cfg.Server.StateDir)
		return nil
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	network, err := transport.NewTCP(cfg.Server.Listen, cfg.Transport.Peers,
		transport.WithClock(clock.Real()),
		transport.WithLogger(logger),
		transport.WithDialTimeout(cfg.Transport.DialTimeout),
		transport.WithRetryBackoff(cfg.Transport.RetryBackoff),
	)
	if err != nil {
		return fmt.Errorf("binding %s: %w", cfg.Server.Listen, err)
	}
	defer network.Close()

	srv, err := server.New(network, cfg.Server.Address, cfg.Server.StateDir,
		server.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("parlord serving",
		"address", cfg.Server.Address,
		"listen", network.Addr(),
		"state_dir", cfg.Server.StateDir,
		"environment", cfg.Environment)

	<-ctx.Done()
	logger.Info("shutting down")
	return srv.Stop()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("PARLOR_CONFIG") != "" {
		return config.Load()
	}
	// No file at all: run on defaults. Handy for local smoke runs.
	return config.Default(), nil
}
