// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianMOE/services/moe/server"
	"github.com/AleutianAI/AleutianMOE/services/moe/store"
	"github.com/AleutianAI/AleutianMOE/services/moe/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// shutdownGrace bounds in-flight request draining on exit.
const shutdownGrace = 10 * time.Second

// loadTelemetryConfig reads exporter settings from a YAML file. Missing
// fields keep their defaults.
func loadTelemetryConfig(path string) (telemetry.Config, error) {
	cfg := telemetry.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg, err := loadTelemetryConfig(telemetryConfigPath)
	if err != nil {
		return err
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	cfg := store.DefaultConfig(viper.GetString("store"))
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	limiter := rate.NewLimiter(rate.Limit(viper.GetFloat64("train-rps")), 1)
	handlers := server.NewHandlers(server.NewService(st, nil))
	router := server.NewRouter(handlers, limiter)

	addr := viper.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving", slog.String("addr", addr), slog.String("store", cfg.Path))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
