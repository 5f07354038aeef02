// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/edgebird/wsbridge"
	"github.com/edgebird/wsbridge/examples/simple"
	"github.com/edgebird/wsbridge/pkg/bridge"
	"github.com/edgebird/wsbridge/pkg/inspect/coap"
	"github.com/edgebird/wsbridge/pkg/inspect/mqtt"
	"github.com/edgebird/wsbridge/pkg/server/ws"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	echoPrefix = "WSBRIDGE_ECHO_"
	mqttPrefix = "WSBRIDGE_MQTT_"
	coapPrefix = "WSBRIDGE_COAP_"
	wswsPrefix = "WSBRIDGE_WSWS_"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	logger := slog.New(logHandler)

	// Create handler
	handler := simple.New(logger)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file found, using environment variables")
	}

	// Start echo endpoint
	if err := startEchoServer(g, ctx, echoPrefix, handler, logger); err != nil {
		logger.Warn("echo server not started", slog.String("error", err.Error()))
	}

	// Start MQTT-over-WebSocket bridge
	if err := startMQTTBridge(g, ctx, mqttPrefix, handler, logger); err != nil {
		logger.Warn("MQTT bridge not started", slog.String("error", err.Error()))
	}

	// Start CoAP-over-WebSocket bridge
	if err := startCoAPBridge(g, ctx, coapPrefix, handler, logger); err != nil {
		logger.Warn("CoAP bridge not started", slog.String("error", err.Error()))
	}

	// Start WebSocket-to-WebSocket bridge
	if err := startWSBridge(g, ctx, wswsPrefix, handler, logger); err != nil {
		logger.Warn("WebSocket bridge not started", slog.String("error", err.Error()))
	}

	// Signal handler
	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("wsbridge service terminated with error: %s", err))
	} else {
		logger.Info("wsbridge service stopped")
	}
}

func startEchoServer(g *errgroup.Group, ctx context.Context, envPrefix string, handler *simple.Handler, logger *slog.Logger) error {
	cfg, err := wsbridge.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		return err
	}

	// Skip if port is not configured
	if cfg.Port == "" {
		return fmt.Errorf("port not configured")
	}

	wsCfg := ws.Config{
		Address:         cfg.Address(),
		TLSConfig:       cfg.TLSConfig,
		ShutdownTimeout: 30 * time.Second,
		Logger:          logger,
	}

	server := ws.New(wsCfg, nil, handler)

	g.Go(func() error {
		return server.Listen(ctx)
	})

	logger.Info("echo server started", slog.String("prefix", envPrefix))
	return nil
}

func startMQTTBridge(g *errgroup.Group, ctx context.Context, envPrefix string, handler *simple.Handler, logger *slog.Logger) error {
	cfg, err := wsbridge.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		return err
	}

	// Skip if port is not configured
	if cfg.Port == "" {
		return fmt.Errorf("port not configured")
	}

	tcpCfg := bridge.TCPConfig{
		Server: ws.Config{
			Address:         cfg.Address(),
			TargetAddress:   cfg.TargetAddress(),
			TLSConfig:       cfg.TLSConfig,
			ShutdownTimeout: 30 * time.Second,
			Logger:          logger,
		},
	}

	mqttBridge := bridge.NewTCP(tcpCfg, &mqtt.Inspector{}, handler)

	g.Go(func() error {
		return mqttBridge.Listen(ctx)
	})

	logger.Info("MQTT bridge started", slog.String("prefix", envPrefix))
	return nil
}

func startCoAPBridge(g *errgroup.Group, ctx context.Context, envPrefix string, handler *simple.Handler, logger *slog.Logger) error {
	cfg, err := wsbridge.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		return err
	}

	// Skip if port is not configured
	if cfg.Port == "" {
		return fmt.Errorf("port not configured")
	}

	tcpCfg := bridge.TCPConfig{
		Server: ws.Config{
			Address:         cfg.Address(),
			TargetAddress:   cfg.TargetAddress(),
			TLSConfig:       cfg.TLSConfig,
			ShutdownTimeout: 30 * time.Second,
			Logger:          logger,
		},
	}

	coapBridge := bridge.NewTCP(tcpCfg, &coap.Inspector{}, handler)

	g.Go(func() error {
		return coapBridge.Listen(ctx)
	})

	logger.Info("CoAP bridge started", slog.String("prefix", envPrefix))
	return nil
}

func startWSBridge(g *errgroup.Group, ctx context.Context, envPrefix string, handler *simple.Handler, logger *slog.Logger) error {
	cfg, err := wsbridge.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		return err
	}

	// Skip if port is not configured
	if cfg.Port == "" {
		return fmt.Errorf("port not configured")
	}

	wsCfg := bridge.WSConfig{
		Server: ws.Config{
			Address:         cfg.Address(),
			TLSConfig:       cfg.TLSConfig,
			ShutdownTimeout: 30 * time.Second,
			Logger:          logger,
		},
		TargetURL: cfg.TargetURL(),
	}

	wsBridge := bridge.NewWS(wsCfg, nil, handler)

	g.Go(func() error {
		return wsBridge.Listen(ctx)
	})

	logger.Info("WebSocket bridge started", slog.String("prefix", envPrefix))
	return nil
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGABRT)
	select {
	case <-c:
		logger.Info("received shutdown signal")
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
