// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package visualizer serves the live search visualizer.
//
// The service exposes one shared search.Engine over a websocket control
// protocol, plus health, metrics, and the static browser client.
//
// # Usage
//
//	engine := search.New(polygon, points, search.DefaultConfig())
//	defer engine.Close()
//
//	svc, err := visualizer.New(visualizer.Config{Port: 3000}, engine)
//	if err != nil {
//	    return err
//	}
//	return svc.Run(ctx)
package visualizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/polyrect/services/telemetry"
	"github.com/AleutianAI/polyrect/services/visualizer/handlers"
	"github.com/AleutianAI/polyrect/services/visualizer/observability"
	"github.com/AleutianAI/polyrect/services/visualizer/routes"
)

// Service is the visualizer HTTP server.
type Service interface {
	// Run serves until ctx is cancelled or the listener fails.
	//
	// # Description
	//
	// On cancellation the server stops accepting connections and waits up
	// to Config.ShutdownTimeout for handlers to return. The engine is not
	// closed; its owner does that.
	//
	// # Outputs
	//
	//   - error: Non-nil if the listener fails or shutdown times out.
	Run(ctx context.Context) error

	// Router returns the configured Gin engine for testing.
	Router() *gin.Engine

	// Addr returns the listen address.
	Addr() string
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds visualizer configuration.
//
// All fields are optional; New applies defaults.
type Config struct {
	// Host is the listen host. Default: "127.0.0.1"
	Host string

	// Port is the listen port. Default: 3000
	Port int

	// StaticDir holds the browser client. Default: "static"
	StaticDir string

	// GinMode is "debug", "release" or "test". Default: "release"
	GinMode string

	// EnableMetrics exposes /metrics.
	EnableMetrics bool

	// Registerer receives the session metrics. Nil disables them.
	Registerer prometheus.Registerer

	// WriteTimeout bounds each websocket write. Default: 10s
	WriteTimeout time.Duration

	// SpeedRate and SpeedBurst limit set_speed per session. Other commands
	// are never limited. Defaults: 50/s, burst 20
	SpeedRate  float64
	SpeedBurst int

	// ShutdownTimeout bounds graceful shutdown. Default: 5s
	ShutdownTimeout time.Duration
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = "static"
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config Config
	engine handlers.SearchEngine
	router *gin.Engine
}

// New creates the visualizer service for engine.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil for a nil engine or an invalid port.
func New(cfg Config, engine handlers.SearchEngine) (Service, error) {
	if engine == nil {
		return nil, errors.New("visualizer: nil engine")
	}
	cfg = applyConfigDefaults(cfg)
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("visualizer: invalid port %d", cfg.Port)
	}

	s := &service{config: cfg, engine: engine}
	s.initRouter()
	return s, nil
}

func (s *service) initRouter() {
	gin.SetMode(s.config.GinMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("polyrect-visualizer"))

	opts := routes.Options{
		StaticDir: s.config.StaticDir,
		Session: handlers.SessionOptions{
			WriteTimeout: s.config.WriteTimeout,
			SpeedRate:    rate.Limit(s.config.SpeedRate),
			SpeedBurst:   s.config.SpeedBurst,
		},
	}
	if s.config.Registerer != nil {
		opts.Session.Metrics = observability.NewSessionMetrics(s.config.Registerer)
	}
	if s.config.EnableMetrics {
		opts.Metrics = telemetry.MetricsHandler()
		if opts.Metrics == nil {
			opts.Metrics = promhttp.Handler()
		}
	}

	routes.SetupRoutes(s.router, s.engine, opts)
}

func (s *service) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting visualizer server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("visualizer server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down visualizer server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("visualizer shutdown: %w", err)
	}
	return nil
}

var _ Service = (*service)(nil)
