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

// Config is the rangetree configuration file.
type Config struct {
	// Log: console and file logging
	Log LogConfig `yaml:"log"`

	// Telemetry: OpenTelemetry exporters
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Tree: checks applied to the segment trees of a run
	Tree TreeConfig `yaml:"tree"`
}

type LogConfig struct {
	Level  string `yaml:"level"  validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=auto text json"`

	// File enables a rotating JSON log, e.g. ~/.rangetree/rangetree.log
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"` // 0 keeps all
	Quiet      bool   `yaml:"quiet"`
}

type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"    validate:"required"`
	TraceExporter  string `yaml:"trace_exporter"  validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"   validate:"required_if=TraceExporter otlp"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`

	// MetricsTextfile is a node_exporter textfile written at exit.
	// Only used with the prometheus exporter.
	MetricsTextfile string `yaml:"metrics_textfile"`
}

type TreeConfig struct {
	// Validate runs a full invariant check on every tree after the run.
	Validate bool `yaml:"validate"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:     "info",
			Format:    "auto",
			MaxSizeMB: 100,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "rangetree",
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
		},
	}
}
