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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/polyrect/services/geometry"
	"github.com/AleutianAI/polyrect/services/search"
	"github.com/AleutianAI/polyrect/services/telemetry"
	"github.com/AleutianAI/polyrect/services/visualizer"
)

// errNoInput is returned when neither --input nor search.input_path is set.
var errNoInput = errors.New("no input file: set --input, search.input_path or POLYRECT_INPUT")

type serveFlags struct {
	host      string
	port      int
	staticDir string
	input     string
	ginMode   string
}

func newServeCmd(state *cliState) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search engine and the browser visualizer",
		Long: `Loads the polygon from the input file, starts one search engine and serves
it over a websocket at /ws together with the static client, /health and
/metrics. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, state, flags)
		},
	}
	cmd.Flags().StringVar(&flags.host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVar(&flags.port, "port", 0, "Listen port (overrides server.port)")
	cmd.Flags().StringVar(&flags.staticDir, "static-dir", "", "Browser client directory (overrides server.static_dir)")
	cmd.Flags().StringVar(&flags.input, "input", "", "Input file of x,y points (overrides search.input_path)")
	cmd.Flags().StringVar(&flags.ginMode, "gin-mode", "", "Gin mode: debug, release or test (overrides server.gin_mode)")
	return cmd
}

func runServe(cmd *cobra.Command, state *cliState, flags *serveFlags) error {
	cfg := state.cfg
	if flags.host != "" {
		cfg.Server.Host = flags.host
	}
	if flags.port != 0 {
		cfg.Server.Port = flags.port
	}
	if flags.staticDir != "" {
		cfg.Server.StaticDir = flags.staticDir
	}
	if flags.ginMode != "" {
		cfg.Server.GinMode = flags.ginMode
	}

	polygon, points, err := loadInput(inputPath(cfg.Search.InputPath, flags.input))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ToTelemetry())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	engineCfg := cfg.Search.EngineConfig()
	engineCfg.Metrics = search.NewMetrics(prometheus.DefaultRegisterer)
	engine := search.New(polygon, points, engineCfg)
	defer engine.Close()

	svc, err := visualizer.New(visualizer.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		StaticDir:     cfg.Server.StaticDir,
		GinMode:       cfg.Server.GinMode,
		EnableMetrics: cfg.Server.Metrics,
		Registerer:    prometheus.DefaultRegisterer,
	}, engine)
	if err != nil {
		return err
	}

	slog.Info("polygon loaded",
		"vertices", len(points),
		"max_workers", engine.MaxWorkers(),
		"addr", svc.Addr(),
	)
	return svc.Run(ctx)
}

// inputPath prefers the flag value over the configured path.
func inputPath(configured, flag string) string {
	if flag != "" {
		return flag
	}
	return configured
}

// loadInput reads the point list and builds the polygon from it.
func loadInput(path string) (*geometry.Polygon, []geometry.Point, error) {
	if path == "" {
		return nil, nil, errNoInput
	}
	points, err := geometry.ReadInputFile(path)
	if err != nil {
		return nil, nil, err
	}
	return geometry.NewPolygon(points), points, nil
}
