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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig wraps validation and environment override failures.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigExists is returned by CreateDefault when the file exists and
	// overwrite was not requested.
	ErrConfigExists = errors.New("configuration file already exists")

	validate = validator.New()
)

// Load reads, overrides and validates the configuration.
//
// # Description
//
// An empty path reads DefaultPath and falls back to DefaultConfig when that
// file does not exist. An explicit path must exist. Values present in the
// file replace defaults field by field; environment variables then replace
// file values:
//
//   - POLYRECT_PORT: server.port
//   - POLYRECT_INPUT: search.input_path
//   - OTEL_TRACES_EXPORTER: telemetry.trace_exporter
//   - OTEL_METRICS_EXPORTER: telemetry.metric_exporter
//   - OTEL_EXPORTER_OTLP_ENDPOINT: telemetry.otlp_endpoint
//
// # Outputs
//
//   - PolyrectConfig: The effective configuration.
//   - error: Read, parse or ErrInvalidConfig failures.
func Load(path string) (PolyrectConfig, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if cfg, err = Parse(data); err != nil {
			return PolyrectConfig{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return PolyrectConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return PolyrectConfig{}, err
	}
	if err := Validate(cfg); err != nil {
		return PolyrectConfig{}, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of DefaultConfig without validating.
func Parse(data []byte) (PolyrectConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PolyrectConfig{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg PolyrectConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func applyEnv(cfg *PolyrectConfig) error {
	if v, ok := os.LookupEnv("POLYRECT_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: POLYRECT_PORT=%q", ErrInvalidConfig, v)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv("POLYRECT_INPUT"); ok {
		cfg.Search.InputPath = v
	}
	if v, ok := os.LookupEnv("OTEL_TRACES_EXPORTER"); ok {
		cfg.Telemetry.TraceExporter = v
	}
	if v, ok := os.LookupEnv("OTEL_METRICS_EXPORTER"); ok {
		cfg.Telemetry.MetricExporter = v
	}
	if v, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
		cfg.Telemetry.OTLPEndpoint = v
	}
	return nil
}

// CreateDefault writes DefaultConfig as YAML to path, creating parent
// directories. An existing file is kept unless overwrite is set.
func CreateDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
