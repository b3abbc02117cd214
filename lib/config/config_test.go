// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parlor.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: development
server:
  address: chat/main
  listen: ":9000"
  state_dir: /tmp/parlor-test
transport:
  peers:
    chat/main: "127.0.0.1:9000"
  dial_timeout: 2s
client:
  server_address: chat/main
  call_timeout: 3s
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Address != "chat/main" {
		t.Errorf("server.address = %q", cfg.Server.Address)
	}
	if cfg.Transport.Peers["chat/main"] != "127.0.0.1:9000" {
		t.Errorf("peers = %v", cfg.Transport.Peers)
	}
	if cfg.Transport.DialTimeout != 2*time.Second {
		t.Errorf("dial_timeout = %v", cfg.Transport.DialTimeout)
	}
	if cfg.Client.CallTimeout != 3*time.Second {
		t.Errorf("call_timeout = %v", cfg.Client.CallTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileAppliesEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  address: chat/main
production:
  server:
    state_dir: /var/lib/parlor
  client:
    call_timeout: 30s
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.StateDir != "/var/lib/parlor" {
		t.Errorf("state_dir = %q, want /var/lib/parlor", cfg.Server.StateDir)
	}
	if cfg.Client.CallTimeout != 30*time.Second {
		t.Errorf("call_timeout = %v, want 30s", cfg.Client.CallTimeout)
	}
	// Base fields untouched by the override section survive.
	if cfg.Server.Address != "chat/main" {
		t.Errorf("server.address = %q", cfg.Server.Address)
	}
}

func TestLoadFileIgnoresOtherEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: development
production:
  server:
    state_dir: /var/lib/parlor
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.StateDir == "/var/lib/parlor" {
		t.Error("production override applied in development environment")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	path := writeConfig(t, `
server:
  state_dir: ${HOME}/.parlor
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.StateDir != "/home/tester/.parlor" {
		t.Errorf("state_dir = %q", cfg.Server.StateDir)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := Default()
	cfg.Environment = "laptop"
	cfg.Server.Address = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	if !strings.Contains(err.Error(), "invalid environment") {
		t.Errorf("error missing environment complaint: %v", err)
	}
	if !strings.Contains(err.Error(), "server.address") {
		t.Errorf("error missing address complaint: %v", err)
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("PARLOR_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without PARLOR_CONFIG")
	}
}
