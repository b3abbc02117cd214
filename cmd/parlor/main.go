// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Command parlor is the interactive Parlor chat client: a terminal
// UI over one chat session. Room chatter scrolls in a viewport,
// slash commands drive the session (/join, /leave, /rooms, /who,
// /logout, /quit), and anything else goes to the current room.
package main

import (
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/parlor-chat/parlor/chat"
	"github.com/parlor-chat/parlor/client"
	"github.com/parlor-chat/parlor/lib/clock"
	"github.com/parlor-chat/parlor/lib/config"
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
	name := pflag.String("name", "",
		"session name, the address other clients see (required)")
	listen := pflag.String("listen", ":0",
		"TCP listen address for incoming deliveries")
	serverAddress := pflag.String("server", "",
		"server endpoint address, overriding the config file")
	pflag.Parse()

	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("parlor needs an interactive terminal")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *serverAddress != "" {
		cfg.Client.ServerAddress = *serverAddress
	}

	// The TUI owns the terminal; logs would tear the screen.
	logger := slog.New(slog.DiscardHandler)

	network, err := transport.NewTCP(*listen, cfg.Transport.Peers,
		transport.WithClock(clock.Real()),
		transport.WithLogger(logger),
		transport.WithDialTimeout(cfg.Transport.DialTimeout),
		transport.WithRetryBackoff(cfg.Transport.RetryBackoff),
	)
	if err != nil {
		return fmt.Errorf("binding %s: %w", *listen, err)
	}
	defer network.Close()

	// The program pointer is set before Run starts delivering
	// input, and the callbacks only fire on traffic that follows
	// the Login issued from Init.
	var program *tea.Program
	session, err := client.Dial(network, *name, cfg.Client.ServerAddress,
		client.WithLogger(logger),
		client.WithCallTimeout(cfg.Client.CallTimeout),
		client.OnMessage(func(m chat.ChatMessage) {
			program.Send(chatLineMsg{message: m})
		}),
		client.OnAnnouncement(func(a chat.RoomAnnouncement) {
			program.Send(announcementMsg{announcement: a})
		}),
	)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", cfg.Client.ServerAddress, err)
	}
	defer session.Close()

	program = tea.NewProgram(newModel(session), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("PARLOR_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}
