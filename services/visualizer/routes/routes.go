// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/polyrect/services/visualizer/handlers"
)

// Options selects the optional routes.
//
//   - StaticDir: Directory served for unmatched GET requests. Skipped when
//     empty or missing.
//   - Metrics: Handler for /metrics. Skipped when nil.
//   - Session: Websocket session options.
type Options struct {
	StaticDir string
	Metrics   http.Handler
	Session   handlers.SessionOptions
}

// SetupRoutes registers the visualizer routes on router.
func SetupRoutes(router *gin.Engine, engine handlers.SearchEngine, opts Options) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ws", handlers.HandleSearchWebSocket(engine, opts.Session))

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	if opts.StaticDir == "" {
		return
	}
	if info, err := os.Stat(opts.StaticDir); err != nil || !info.IsDir() {
		slog.Warn("static directory not found, serving API only", "static_dir", opts.StaticDir)
		return
	}
	files := http.FileServer(http.Dir(opts.StaticDir))
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	})
}
