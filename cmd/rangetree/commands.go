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
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/rangetree/cmd/rangetree/config"
	"github.com/AleutianAI/rangetree/pkg/logging"
	"github.com/AleutianAI/rangetree/pkg/telemetry"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds the state of one CLI invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// Flags
	configPath      string
	logLevel        string
	logFormat       string
	logFile         string
	inputPath       string
	outputPath      string
	traceExporter   string
	metricExporter  string
	metricsTextfile string
	validate        bool

	cfg      config.Config
	logger   *logging.Logger
	shutdown func(context.Context) error
}

// solveSummary describes a finished run for the completion log line.
type solveSummary struct {
	Size       int
	Operations int
	Queries    int
}

// solver reads a workload from in and writes its result to out.
type solver func(ctx context.Context, in io.Reader, out io.Writer, validate bool) (solveSummary, error)

// run executes the CLI with args and releases logging and telemetry
// resources before returning.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	prev := slog.Default()
	defer slog.SetDefault(prev)

	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil && a.logger != nil {
		a.logger.Error("command failed", "error", err.Error())
	}
	return err
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "rangetree",
		Short:   "Run range-update / range-query workloads on lazy segment trees",
		Version: version,
		Long: `rangetree reads a batch workload, runs it on a lazily-propagated
segment tree and prints the results. Input comes from stdin or --input and
results go to stdout or --output. Nothing is written unless the whole run
succeeds.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "Console log format: auto, text or json")
	flags.StringVar(&a.logFile, "log-file", "", "Also write JSON logs to this rotating file")
	flags.StringVarP(&a.inputPath, "input", "i", "", "Read input from this file instead of stdin")
	flags.StringVarP(&a.outputPath, "output", "o", "", "Write results to this file instead of stdout")
	flags.StringVar(&a.traceExporter, "trace-exporter", "", "Trace exporter: none, stdout or otlp")
	flags.StringVar(&a.metricExporter, "metric-exporter", "", "Metric exporter: none, stdout or prometheus")
	flags.StringVar(&a.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file at exit")
	flags.BoolVar(&a.validate, "validate", false, "Check tree invariants after the run")

	root.AddCommand(&cobra.Command{
		Use:   "chmin-max",
		Short: "Assign-if-smaller updates with range-maximum queries",
		Long: `Input:
  n m
  a1 ... an
  m lines of "0 l r v" (a[p] = min(a[p], v) for l <= p <= r)
          or "1 l r"   (print max(a[l..r]))
Bounds are 1-based and inclusive. One line is printed per "1" query.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSolver(cmd, "chmin-max", solveChminMax)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "range-add",
		Short: "Range additions selected by operation ranges, then print the array",
		Long: `Input:
  n m k
  a1 ... an
  m operation lines "l r d" (add d to a[l..r])
  k query lines "x y"      (apply operations x..y once)
Bounds are 1-based and inclusive. The final array is printed on one line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSolver(cmd, "range-add", solveRangeAdd)
		},
	})

	return root
}

// setup loads configuration, applies flag overrides, and starts logging and
// telemetry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = a.logFile
	}
	if flags.Changed("trace-exporter") {
		cfg.Telemetry.TraceExporter = a.traceExporter
	}
	if flags.Changed("metric-exporter") {
		cfg.Telemetry.MetricExporter = a.metricExporter
	}
	if flags.Changed("metrics-textfile") {
		cfg.Telemetry.MetricsTextfile = a.metricsTextfile
	}
	if flags.Changed("validate") {
		cfg.Tree.Validate = a.validate
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:      level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Service:    cfg.Telemetry.ServiceName,
		Quiet:      cfg.Log.Quiet,
		Writer:     a.stderr,
	})
	slog.SetDefault(a.logger.Slog())

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = cfg.Telemetry.ServiceName
	tcfg.ServiceVersion = version
	tcfg.RunID = a.logger.RunID()
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	tcfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	tcfg.MetricsTextfile = cfg.Telemetry.MetricsTextfile
	tcfg.Output = a.stderr

	shutdown, err := telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdown = shutdown

	a.logger.Debug("configuration loaded",
		"config", a.configPath,
		"trace_exporter", cfg.Telemetry.TraceExporter,
		"metric_exporter", cfg.Telemetry.MetricExporter,
		"validate", cfg.Tree.Validate,
	)
	return nil
}

// close flushes telemetry and closes the log file.
func (a *app) close() error {
	var err error
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := a.shutdown(ctx); serr != nil {
			err = fmt.Errorf("shutdown telemetry: %w", serr)
		}
		a.shutdown = nil
	}
	if a.logger != nil {
		if cerr := a.logger.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// runSolver runs solve inside a span, buffering its output so that nothing
// is written when it fails.
func (a *app) runSolver(cmd *cobra.Command, name string, solve solver) error {
	ctx, span := telemetry.StartSpan(cmd.Context(), "rangetree.cli", "rangetree."+name)
	defer span.End()

	start := time.Now()

	in, closeIn, err := a.openInput()
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	defer closeIn()

	var buf bytes.Buffer
	summary, err := solve(ctx, in, &buf, a.cfg.Tree.Validate)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("%s: %w", name, err)
	}

	if err := a.writeOutput(buf.Bytes()); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	span.SetAttributes(
		attribute.Int("size", summary.Size),
		attribute.Int("operations", summary.Operations),
		attribute.Int("queries", summary.Queries),
	)
	telemetry.LoggerWithTrace(ctx, a.logger.Slog()).Info("run complete",
		"command", name,
		"size", summary.Size,
		"operations", summary.Operations,
		"queries", summary.Queries,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// openInput returns the input reader and a function releasing it.
func (a *app) openInput() (io.Reader, func(), error) {
	if a.inputPath == "" || a.inputPath == "-" {
		return a.stdin, func() {}, nil
	}
	f, err := os.Open(a.inputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// writeOutput writes data to the output file or stdout.
func (a *app) writeOutput(data []byte) error {
	if a.outputPath == "" || a.outputPath == "-" {
		if _, err := a.stdout.Write(data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(a.outputPath, data, 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
