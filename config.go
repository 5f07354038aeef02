// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

// Package wsbridge provides environment-driven listener configuration.
// Each listener (echo endpoint or bridge) reads HOST, PORT and TARGET_*
// variables under its own prefix, so one process can run several
// listeners side by side.
package wsbridge

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"github.com/caarlos0/env/v11"
)

// Config holds one listener's environment configuration. An empty Port
// means the listener is not configured and should be skipped.
type Config struct {
	Host           string `env:"HOST"`
	Port           string `env:"PORT"`
	TargetHost     string `env:"TARGET_HOST"`
	TargetPort     string `env:"TARGET_PORT"`
	TargetProtocol string `env:"TARGET_PROTOCOL"`
	TargetPath     string `env:"TARGET_PATH"`

	CertFile     string `env:"CERT_FILE"`
	KeyFile      string `env:"KEY_FILE"`
	ClientCAFile string `env:"CLIENT_CA_FILE"`

	// TLSConfig is built from the *_FILE variables when a certificate
	// pair is configured, nil otherwise.
	TLSConfig *tls.Config
}

// NewConfig loads a listener configuration from the environment, using
// opts to scope the lookup (typically a per-listener prefix).
func NewConfig(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}

	if c.CertFile != "" && c.KeyFile != "" {
		tlsCfg, err := c.loadTLS()
		if err != nil {
			return Config{}, err
		}
		c.TLSConfig = tlsCfg
	}

	return c, nil
}

// Address returns the host:port the listener binds to.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// TargetAddress returns the host:port of the backend.
func (c Config) TargetAddress() string {
	return net.JoinHostPort(c.TargetHost, c.TargetPort)
}

// TargetURL returns the backend URL for WebSocket targets. The scheme
// defaults to ws when TARGET_PROTOCOL is unset.
func (c Config) TargetURL() string {
	protocol := c.TargetProtocol
	if protocol == "" {
		protocol = "ws"
	}
	return fmt.Sprintf("%s://%s:%s%s", protocol, c.TargetHost, c.TargetPort, c.TargetPath)
}

func (c Config) loadTLS() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	// A client CA turns the listener into an mTLS endpoint.
	if c.ClientCAFile != "" {
		ca, err := os.ReadFile(c.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(ca) {
			return nil, fmt.Errorf("failed to parse client CA certificate")
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsCfg, nil
}
