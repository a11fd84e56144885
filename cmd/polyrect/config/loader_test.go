// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/polyrect/services/telemetry"
)

var envKeys = []string{
	"POLYRECT_PORT",
	"POLYRECT_INPUT",
	"OTEL_TRACES_EXPORTER",
	"OTEL_METRICS_EXPORTER",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
}

// clearEnv unsets every override for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "polyrect.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_MissingDefaultPathUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 3000 || cfg.Search.BroadcastHz != 60 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_MissingExplicitPathFails(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load() error = %v, want fs.ErrNotExist", err)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  port: 8080
search:
  input_path: input.txt
  pause_poll: 5ms
logging:
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Search.InputPath != "input.txt" {
		t.Errorf("Search.InputPath = %q", cfg.Search.InputPath)
	}
	if cfg.Search.PausePoll != 5*time.Millisecond {
		t.Errorf("Search.PausePoll = %v, want 5ms", cfg.Search.PausePoll)
	}
	if cfg.Logging.Format != "text" || cfg.Logging.Level != "info" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "server:\n  port: 8080\n")
	t.Setenv("POLYRECT_PORT", "9090")
	t.Setenv("POLYRECT_INPUT", "/data/points.txt")
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Search.InputPath != "/data/points.txt" {
		t.Errorf("Search.InputPath = %q", cfg.Search.InputPath)
	}
	if cfg.Telemetry.TraceExporter != telemetry.ExporterStdout {
		t.Errorf("Telemetry.TraceExporter = %q", cfg.Telemetry.TraceExporter)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "port out of range", body: "server:\n  port: 70000\n"},
		{name: "unknown trace exporter", body: "telemetry:\n  trace_exporter: jaeger\n"},
		{name: "unknown log level", body: "logging:\n  level: loud\n"},
		{name: "zero broadcast rate", body: "search:\n  broadcast_hz: 0\n"},
		{name: "bad env port", body: "", env: map[string]string{"POLYRECT_PORT": "http"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tt.body))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "server: [unclosed"))
	if err == nil || errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want a parse error", err)
	}
}

func TestCreateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "polyrect.yaml")

	if err := CreateDefault(path, false); err != nil {
		t.Fatalf("CreateDefault() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	var cfg PolyrectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("round trip = %+v, want defaults", cfg)
	}

	if err := CreateDefault(path, false); !errors.Is(err, ErrConfigExists) {
		t.Errorf("second CreateDefault() error = %v, want ErrConfigExists", err)
	}
	if err := CreateDefault(path, true); err != nil {
		t.Errorf("CreateDefault(overwrite) failed: %v", err)
	}
}

func TestSearchConfig_EngineConfig(t *testing.T) {
	sc := DefaultConfig().Search
	sc.MaxWorkers = 4

	ec := sc.EngineConfig()
	if ec.MaxWorkers != 4 || ec.DefaultSpeedUS != 10000 || ec.DefaultWorkers != 1 {
		t.Errorf("EngineConfig = %+v", ec)
	}
	if ec.BroadcastInterval != time.Second/60 {
		t.Errorf("BroadcastInterval = %v", ec.BroadcastInterval)
	}
	if ec.Metrics != nil {
		t.Error("Metrics should be left nil")
	}
}

func TestTelemetryConfig_ToTelemetry(t *testing.T) {
	clearEnv(t)
	tc := TelemetryConfig{TraceExporter: "otlp", MetricExporter: "none"}

	got := tc.ToTelemetry()
	if got.TraceExporter != telemetry.ExporterOTLP || got.MetricExporter != telemetry.ExporterNone {
		t.Errorf("exporters = %q/%q", got.TraceExporter, got.MetricExporter)
	}
	if got.OTLPEndpoint != "localhost:4317" || got.ServiceName != "polyrect" {
		t.Errorf("ToTelemetry() = %+v", got)
	}
}
