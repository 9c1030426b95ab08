// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command rangetree runs batch range-update / range-query workloads on lazy
// segment trees.
//
// Usage:
//
//	rangetree chmin-max < input.txt
//	rangetree range-add --input ops.txt --output result.txt
//
// With tracing to stderr and a Prometheus textfile:
//
//	rangetree chmin-max --trace-exporter stdout \
//	  --metric-exporter prometheus --metrics-textfile /var/lib/node_exporter/rangetree.prom
//
// With a config file:
//
//	rangetree --config ~/.rangetree/rangetree.yaml range-add < input.txt
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "rangetree: %v\n", err)
		stop()
		os.Exit(1)
	}
}
