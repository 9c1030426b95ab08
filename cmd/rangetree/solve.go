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
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/AleutianAI/rangetree/pkg/intscan"
	"github.com/AleutianAI/rangetree/pkg/segtree"
)

// Query types of the chmin-max workload.
const (
	queryChmin = 0
	queryMax   = 1
)

// solveChminMax runs the chmin-max workload: "n m", the array, then m query
// lines. Each "1 l r" query prints the range maximum on its own line.
func solveChminMax(ctx context.Context, in io.Reader, out io.Writer, validate bool) (solveSummary, error) {
	sc := intscan.New(in)

	header, err := sc.IntsAtLeast(2)
	if err != nil {
		return solveSummary{}, err
	}
	n, err := arrayLen(sc, header[0])
	if err != nil {
		return solveSummary{}, err
	}
	m, err := count(sc, "query", header[1])
	if err != nil {
		return solveSummary{}, err
	}

	values, err := sc.IntsN(n)
	if err != nil {
		return solveSummary{}, err
	}
	tree, err := segtree.NewChminMaxTree(ctx, values)
	if err != nil {
		return solveSummary{}, fmt.Errorf("build tree: %w", err)
	}

	summary := solveSummary{Size: n}
	w := bufio.NewWriter(out)
	for q := 0; q < m; q++ {
		fields, err := sc.IntsAtLeast(3)
		if err != nil {
			return summary, err
		}
		left, right, err := bounds(sc, fields[1], fields[2], n)
		if err != nil {
			return summary, err
		}

		switch fields[0] {
		case queryChmin:
			if len(fields) < 4 {
				return summary, sc.Errorf("update query needs 4 values, got %d", len(fields))
			}
			if _, err := tree.Update(ctx, left, right, fields[3]); err != nil {
				return summary, fmt.Errorf("line %d: %w", sc.Line(), err)
			}
			summary.Operations++

		case queryMax:
			top, err := tree.QueryMax(ctx, left, right)
			if err != nil {
				return summary, fmt.Errorf("line %d: %w", sc.Line(), err)
			}
			w.WriteString(strconv.FormatInt(top, 10))
			w.WriteByte('\n')
			summary.Queries++

		default:
			return summary, sc.Errorf("unknown query type %d", fields[0])
		}
	}

	if validate {
		if err := tree.Validate(ctx); err != nil {
			return summary, err
		}
	}
	return summary, w.Flush()
}

// operation is one "l r d" line of the range-add workload, zero-based.
type operation struct {
	left, right int
	delta       int64
}

// solveRangeAdd runs the range-add workload: "n m k", the array, m
// operations and k queries. Query "x y" applies operations x..y once; a
// difference array over operations gives each operation's repeat count, so
// every operation reaches the tree exactly once. The final array is printed
// space-separated on one line.
func solveRangeAdd(ctx context.Context, in io.Reader, out io.Writer, validate bool) (solveSummary, error) {
	sc := intscan.New(in)

	header, err := sc.IntsAtLeast(3)
	if err != nil {
		return solveSummary{}, err
	}
	n, err := arrayLen(sc, header[0])
	if err != nil {
		return solveSummary{}, err
	}
	m, err := count(sc, "operation", header[1])
	if err != nil {
		return solveSummary{}, err
	}
	k, err := count(sc, "query", header[2])
	if err != nil {
		return solveSummary{}, err
	}

	values, err := sc.IntsN(n)
	if err != nil {
		return solveSummary{}, err
	}
	tree, err := segtree.NewRangeAddTree(ctx, values)
	if err != nil {
		return solveSummary{}, fmt.Errorf("build tree: %w", err)
	}

	ops := make([]operation, m)
	for i := range ops {
		fields, err := sc.IntsAtLeast(3)
		if err != nil {
			return solveSummary{}, err
		}
		left, right, err := bounds(sc, fields[0], fields[1], n)
		if err != nil {
			return solveSummary{}, err
		}
		ops[i] = operation{left: left, right: right, delta: fields[2]}
	}

	diff := make([]int64, m+1)
	for q := 0; q < k; q++ {
		fields, err := sc.IntsAtLeast(2)
		if err != nil {
			return solveSummary{}, err
		}
		first, last, err := bounds(sc, fields[0], fields[1], m)
		if err != nil {
			return solveSummary{}, err
		}
		diff[first]++
		diff[last+1]--
	}

	var times int64
	for i, op := range ops {
		times += diff[i]
		if times == 0 {
			continue
		}
		delta, ok := mulExact(op.delta, times)
		if !ok {
			return solveSummary{}, fmt.Errorf("%w: operation %d: %d applied %d times overflows",
				intscan.ErrMalformedInput, i+1, op.delta, times)
		}
		if err := tree.Add(ctx, op.left, op.right, delta); err != nil {
			return solveSummary{}, fmt.Errorf("operation %d: %w", i+1, err)
		}
	}

	leaves, err := tree.ReadAll(ctx)
	if err != nil {
		return solveSummary{}, err
	}
	if validate {
		if err := tree.Validate(ctx); err != nil {
			return solveSummary{}, err
		}
	}

	w := bufio.NewWriter(out)
	for i, v := range leaves {
		if i > 0 {
			w.WriteByte(' ')
		}
		w.WriteString(strconv.FormatInt(v, 10))
	}
	w.WriteByte('\n')

	return solveSummary{Size: n, Operations: m, Queries: k}, w.Flush()
}

// arrayLen checks the declared array length.
func arrayLen(sc *intscan.Scanner, n int64) (int, error) {
	if n < 1 || n > segtree.MaxSize {
		return 0, sc.Errorf("array length %d out of range [1,%d]", n, segtree.MaxSize)
	}
	return int(n), nil
}

// count checks a declared line count.
func count(sc *intscan.Scanner, what string, c int64) (int, error) {
	if c < 0 || c > math.MaxInt32 {
		return 0, sc.Errorf("%s count %d out of range", what, c)
	}
	return int(c), nil
}

// bounds converts 1-based inclusive bounds over size items to zero-based
// indexes.
func bounds(sc *intscan.Scanner, l, r int64, size int) (int, int, error) {
	if l < 1 || r > int64(size) || l > r {
		return 0, 0, sc.Errorf("range [%d,%d] outside [1,%d]", l, r, size)
	}
	return int(l - 1), int(r - 1), nil
}

// mulExact returns a*b and whether it fits in an int64.
func mulExact(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return p, true
}
