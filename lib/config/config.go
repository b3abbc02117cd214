// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Parlor processes.
//
// Configuration is loaded from a single YAML file specified by:
//   - PARLOR_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, staging, production) that override base values when
// the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Parlor.
type Config struct {
	// Environment identifies the deployment type (development,
	// staging, production).
	Environment Environment `yaml:"environment"`

	// Server configures the chat server daemon.
	Server ServerConfig `yaml:"server"`

	// Transport configures the TCP delivery substrate.
	Transport TransportConfig `yaml:"transport"`

	// Client configures the interactive client.
	Client ClientConfig `yaml:"client"`

	// EnvironmentOverrides contains per-environment overrides,
	// applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Transport *TransportConfig `yaml:"transport,omitempty"`
	Client    *ClientConfig    `yaml:"client,omitempty"`
}

// ServerConfig configures the chat server daemon.
type ServerConfig struct {
	// Address is the server's endpoint address, the name clients
	// dial. Opaque, process-unique.
	Address string `yaml:"address"`

	// Listen is the TCP listen address ("host:port", or ":0" for a
	// random port).
	Listen string `yaml:"listen"`

	// StateDir is where the server keeps its snapshot between runs.
	StateDir string `yaml:"state_dir"`
}

// TransportConfig configures the TCP delivery substrate.
type TransportConfig struct {
	// Peers maps endpoint addresses to TCP "host:port" locations.
	// Every address a process sends to must appear here.
	Peers map[string]string `yaml:"peers"`

	// DialTimeout bounds connection establishment to a peer.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// RetryBackoff is the pause before a failed send is retried on a
	// fresh connection.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// ClientConfig configures the interactive client.
type ClientConfig struct {
	// ServerAddress is the endpoint address of the chat server.
	ServerAddress string `yaml:"server_address"`

	// CallTimeout bounds each blocking request to the server. Zero
	// means wait indefinitely.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// Default returns the default configuration. These defaults are a base
// for loading the config file; they exist to give every field a
// sensible zero-value, not as a substitute for the file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Address:  "parlor/server",
			Listen:   ":7420",
			StateDir: filepath.Join(homeDir, ".local", "state", "parlor"),
		},
		Transport: TransportConfig{
			Peers:        map[string]string{},
			DialTimeout:  5 * time.Second,
			RetryBackoff: 200 * time.Millisecond,
		},
		Client: ClientConfig{
			ServerAddress: "parlor/server",
			CallTimeout:   10 * time.Second,
		},
	}
}

// Load loads configuration from the PARLOR_CONFIG environment
// variable. There are no fallbacks — if PARLOR_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	path := os.Getenv("PARLOR_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("PARLOR_CONFIG environment variable not set; " +
			"set it to the path of your parlor.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values. The only expansion performed is ${HOME} and
// similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.Address != "" {
			c.Server.Address = overrides.Server.Address
		}
		if overrides.Server.Listen != "" {
			c.Server.Listen = overrides.Server.Listen
		}
		if overrides.Server.StateDir != "" {
			c.Server.StateDir = overrides.Server.StateDir
		}
	}

	if overrides.Transport != nil {
		if len(overrides.Transport.Peers) > 0 {
			for address, location := range overrides.Transport.Peers {
				c.Transport.Peers[address] = location
			}
		}
		if overrides.Transport.DialTimeout != 0 {
			c.Transport.DialTimeout = overrides.Transport.DialTimeout
		}
		if overrides.Transport.RetryBackoff != 0 {
			c.Transport.RetryBackoff = overrides.Transport.RetryBackoff
		}
	}

	if overrides.Client != nil {
		if overrides.Client.ServerAddress != "" {
			c.Client.ServerAddress = overrides.Client.ServerAddress
		}
		if overrides.Client.CallTimeout != 0 {
			c.Client.CallTimeout = overrides.Client.CallTimeout
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Server.StateDir = expandVars(c.Server.StateDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Server.Address == "" {
		errs = append(errs, fmt.Errorf("server.address is required"))
	}
	if c.Server.StateDir == "" {
		errs = append(errs, fmt.Errorf("server.state_dir is required"))
	}
	if c.Client.ServerAddress == "" {
		errs = append(errs, fmt.Errorf("client.server_address is required"))
	}
	if c.Transport.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("transport.dial_timeout must not be negative"))
	}
	if c.Transport.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("transport.retry_backoff must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the state directory if it does not exist.
func (c *Config) EnsurePaths() error {
	if c.Server.StateDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Server.StateDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Server.StateDir, err)
	}
	return nil
}
