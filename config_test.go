// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package wsbridge

import (
	"testing"

	"github.com/caarlos0/env/v11"
)

func TestNewConfig_Prefix(t *testing.T) {
	t.Setenv("WSBRIDGE_TEST_HOST", "0.0.0.0")
	t.Setenv("WSBRIDGE_TEST_PORT", "8080")
	t.Setenv("WSBRIDGE_TEST_TARGET_HOST", "localhost")
	t.Setenv("WSBRIDGE_TEST_TARGET_PORT", "1883")

	cfg, err := NewConfig(env.Options{Prefix: "WSBRIDGE_TEST_"})
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if cfg.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %q", cfg.Host)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Port)
	}
	if got := cfg.Address(); got != "0.0.0.0:8080" {
		t.Errorf("expected address 0.0.0.0:8080, got %q", got)
	}
	if got := cfg.TargetAddress(); got != "localhost:1883" {
		t.Errorf("expected target address localhost:1883, got %q", got)
	}
	if cfg.TLSConfig != nil {
		t.Error("expected nil TLS config without cert files")
	}
}

func TestNewConfig_UnconfiguredPort(t *testing.T) {
	cfg, err := NewConfig(env.Options{Prefix: "WSBRIDGE_UNSET_"})
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if cfg.Port != "" {
		t.Errorf("expected empty port, got %q", cfg.Port)
	}
}

func TestConfig_TargetURL(t *testing.T) {
	cfg := Config{TargetHost: "localhost", TargetPort: "9001"}
	if got := cfg.TargetURL(); got != "ws://localhost:9001" {
		t.Errorf("expected ws scheme by default, got %q", got)
	}

	cfg.TargetProtocol = "wss"
	cfg.TargetPath = "/mqtt"
	if got := cfg.TargetURL(); got != "wss://localhost:9001/mqtt" {
		t.Errorf("expected wss URL with path, got %q", got)
	}
}

func TestNewConfig_MissingCertFiles(t *testing.T) {
	t.Setenv("WSBRIDGE_TLS_PORT", "8443")
	t.Setenv("WSBRIDGE_TLS_CERT_FILE", "/nonexistent/cert.pem")
	t.Setenv("WSBRIDGE_TLS_KEY_FILE", "/nonexistent/key.pem")

	if _, err := NewConfig(env.Options{Prefix: "WSBRIDGE_TLS_"}); err == nil {
		t.Fatal("expected error for unreadable certificate files")
	}
}
