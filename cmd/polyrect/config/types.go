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
	"time"

	"github.com/AleutianAI/polyrect/services/search"
	"github.com/AleutianAI/polyrect/services/telemetry"
)

// DefaultPath is the configuration file read when --config is not given.
const DefaultPath = "polyrect.yaml"

// PolyrectConfig is the root of the YAML configuration.
type PolyrectConfig struct {
	// Server: listen address and static client
	Server ServerConfig `yaml:"server"`

	// Search: input file and engine tuning
	Search SearchConfig `yaml:"search"`

	// Telemetry: OpenTelemetry exporters
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging: process logger
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host      string `yaml:"host" validate:"required"`
	Port      int    `yaml:"port" validate:"min=1,max=65535"`
	StaticDir string `yaml:"static_dir"`
	GinMode   string `yaml:"gin_mode" validate:"oneof=debug release test"`
	Metrics   bool   `yaml:"metrics"`
}

type SearchConfig struct {
	InputPath      string        `yaml:"input_path"`
	DefaultSpeedUS uint64        `yaml:"default_speed_us"`
	DefaultWorkers int           `yaml:"default_workers" validate:"min=0"`
	MaxWorkers     int           `yaml:"max_workers" validate:"min=0"` // 0 = runtime.NumCPU()
	BroadcastHz    int           `yaml:"broadcast_hz" validate:"min=1,max=1000"`
	PausePoll      time.Duration `yaml:"pause_poll" validate:"min=1ms"`
	SlotCapacity   int           `yaml:"slot_capacity" validate:"min=1"`
	EventBuffer    int           `yaml:"event_buffer" validate:"min=1"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
	Dir    string `yaml:"dir,omitempty"`
}

// DefaultConfig returns the configuration written by "config init".
func DefaultConfig() PolyrectConfig {
	return PolyrectConfig{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      3000,
			StaticDir: "static",
			GinMode:   "release",
			Metrics:   true,
		},
		Search: SearchConfig{
			DefaultSpeedUS: 10000,
			DefaultWorkers: 1,
			BroadcastHz:    60,
			PausePoll:      50 * time.Millisecond,
			SlotCapacity:   16,
			EventBuffer:    256,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  telemetry.ExporterNone,
			MetricExporter: telemetry.ExporterPrometheus,
			OTLPEndpoint:   "localhost:4317",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// EngineConfig converts the search section into engine settings. Metrics
// are left for the caller to attach.
func (c SearchConfig) EngineConfig() search.Config {
	cfg := search.Config{
		MaxWorkers:     c.MaxWorkers,
		DefaultSpeedUS: c.DefaultSpeedUS,
		DefaultWorkers: c.DefaultWorkers,
		PausePoll:      c.PausePoll,
		SlotCapacity:   c.SlotCapacity,
		EventBuffer:    c.EventBuffer,
	}
	if c.BroadcastHz > 0 {
		cfg.BroadcastInterval = time.Second / time.Duration(c.BroadcastHz)
	}
	return cfg
}

// ToTelemetry converts the telemetry section, starting from the
// package defaults for service identity.
func (c TelemetryConfig) ToTelemetry() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.TraceExporter = c.TraceExporter
	cfg.MetricExporter = c.MetricExporter
	if c.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = c.OTLPEndpoint
	}
	return cfg
}
