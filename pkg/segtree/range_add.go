// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package segtree

import (
	"context"
	"log/slog"
	"math"
)

// VariantRangeAdd names the range-add / sum variant.
const VariantRangeAdd = "RangeAddTree"

// addPolicy implements additive updates over sum aggregates.
type addPolicy struct{}

func (addPolicy) leaf(v int64) int64 { return v }

func (addPolicy) neutral() int64 { return 0 }

func (addPolicy) combine(a, b int64) int64 {
	return saturatingAdd(a, b)
}

func (addPolicy) apply(agg, delta int64, r Range) int64 {
	return saturatingAdd(agg, saturatingMul(delta, int64(r.Len())))
}

func (addPolicy) merge(pending, delta int64) int64 {
	return saturatingAdd(pending, delta)
}

func (addPolicy) scalar(agg int64) int64 { return agg }

// saturatingAdd adds a and b, clamping at MaxInt64/MinInt64 on overflow.
func saturatingAdd(a, b int64) int64 {
	if a > 0 && b > 0 && a > math.MaxInt64-b {
		slog.Warn("integer overflow in segment tree sum",
			slog.Int64("a", a),
			slog.Int64("b", b),
		)
		return math.MaxInt64
	}
	if a < 0 && b < 0 && a < math.MinInt64-b {
		slog.Warn("integer underflow in segment tree sum",
			slog.Int64("a", a),
			slog.Int64("b", b),
		)
		return math.MinInt64
	}
	return a + b
}

// saturatingMul multiplies delta by a positive length, clamping on overflow.
func saturatingMul(delta, length int64) int64 {
	if delta == 0 || length <= 1 {
		return delta * length
	}
	p := delta * length
	if p/length == delta {
		return p
	}
	slog.Warn("integer overflow in segment tree range add",
		slog.Int64("delta", delta),
		slog.Int64("length", length),
	)
	if delta > 0 {
		return math.MaxInt64
	}
	return math.MinInt64
}

// RangeAddTree supports range additive updates, range sums and a full
// readout of the array.
//
// Description:
//
//	Add(l, r, d) adds d to every a[p], l <= p <= r. Each node caches the sum
//	of its range; leaves hold element values. ReadAll materializes the
//	array in index order.
//
// Limitations:
//   - Sums saturate at MaxInt64/MinInt64 instead of wrapping. Once a sum has
//     saturated, Validate may report a mismatch for the affected nodes.
//
// Thread Safety: NOT safe for concurrent use.
type RangeAddTree struct {
	t *lazyTree[int64]
}

// NewRangeAddTree builds a tree over values.
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - values: Initial array. Must not be empty.
//
// Outputs:
//   - *RangeAddTree: Constructed tree. Never nil on success.
//   - error: Non-nil if ctx is nil, values is empty or too large.
//
// Example:
//
//	tree, _ := segtree.NewRangeAddTree(ctx, []int64{0, 0, 0, 0})
//	_ = tree.Add(ctx, 0, 1, 5)
//	_ = tree.Add(ctx, 2, 3, 3)
//	arr, _ := tree.ReadAll(ctx) // [5 5 3 3]
func NewRangeAddTree(ctx context.Context, values []int64) (*RangeAddTree, error) {
	t, err := newLazyTree[int64](ctx, values, addPolicy{}, VariantRangeAdd)
	if err != nil {
		return nil, err
	}
	return &RangeAddTree{t: t}, nil
}

// Len returns the number of elements.
func (a *RangeAddTree) Len() int {
	return a.t.size
}

// Add adds delta to every element in [left, right].
//
// Algorithm:
//
//	Time:  O(log N)
//
// Outputs:
//   - error: Non-nil (wrapping ErrInvalidRange) if the range is invalid.
func (a *RangeAddTree) Add(ctx context.Context, left, right int, delta int64) error {
	_, err := a.t.runUpdate(ctx, left, right, delta)
	return err
}

// QuerySum returns the sum over [left, right].
func (a *RangeAddTree) QuerySum(ctx context.Context, left, right int) (int64, error) {
	return a.t.runQuery(ctx, "QuerySum", left, right)
}

// Get returns the current value at index.
func (a *RangeAddTree) Get(ctx context.Context, index int) (int64, error) {
	return a.t.runQuery(ctx, "Get", index, index)
}

// ReadAll returns the current array in index order, resolving every
// pending update on the way down.
//
// Algorithm:
//
//	Time:  O(N)
func (a *RangeAddTree) ReadAll(ctx context.Context) ([]int64, error) {
	return a.t.readAll(ctx)
}

// Validate checks the tree's layout and aggregate invariants.
func (a *RangeAddTree) Validate(ctx context.Context) error {
	return validateTree(ctx, a.t)
}

// Stats returns statistics about the tree.
func (a *RangeAddTree) Stats() Stats {
	return a.t.stats()
}
