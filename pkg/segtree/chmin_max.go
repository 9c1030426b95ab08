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

	"github.com/AleutianAI/rangetree/pkg/telemetry"
)

// VariantChminMax names the assign-if-smaller / range-max variant.
const VariantChminMax = "ChminMaxTree"

// MinMax is the aggregate of a ChminMaxTree node.
type MinMax struct {
	Min int64
	Max int64
}

// chminPolicy implements assign-if-smaller updates over MinMax aggregates.
//
// Applying v to a node lowers both fields to at most v. For Max this is
// the exact post-update maximum: max over p of min(a[p], v) is
// min(max over p of a[p], v). Combining children still uses max for Max.
type chminPolicy struct{}

func (chminPolicy) leaf(v int64) MinMax {
	return MinMax{Min: v, Max: v}
}

func (chminPolicy) neutral() MinMax {
	return MinMax{Min: math.MaxInt64, Max: math.MinInt64}
}

func (chminPolicy) combine(a, b MinMax) MinMax {
	return MinMax{Min: min(a.Min, b.Min), Max: max(a.Max, b.Max)}
}

func (chminPolicy) apply(agg MinMax, v int64, _ Range) MinMax {
	return MinMax{Min: min(agg.Min, v), Max: min(agg.Max, v)}
}

func (chminPolicy) merge(pending, v int64) int64 {
	return min(pending, v)
}

// scalar reads a leaf; Min and Max are equal on resolved leaves.
func (chminPolicy) scalar(agg MinMax) int64 {
	return agg.Max
}

// ChminMaxTree supports range "assign if smaller" updates and range
// maximum/minimum queries.
//
// Description:
//
//	Update(l, r, v) replaces every a[p], l <= p <= r, with min(a[p], v).
//	QueryMax and QueryMin return the extreme values of a range. Updates
//	that cover a whole subtree are deferred below that subtree's root.
//
// Invariants:
//   - Each internal node's aggregate equals the combine of its children's
//     aggregates with their pending updates applied
//   - A pending update is the minimum of every operand parked on the node
//
// Thread Safety: NOT safe for concurrent use.
type ChminMaxTree struct {
	t *lazyTree[MinMax]
}

// NewChminMaxTree builds a tree over values.
//
// Algorithm:
//
//	Time:  O(N)
//	Space: O(N) - 2*2^ceil(log2(N))-1 nodes
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - values: Initial array. Must not be empty.
//
// Outputs:
//   - *ChminMaxTree: Constructed tree. Never nil on success.
//   - error: Non-nil if ctx is nil, values is empty or too large.
//
// Example:
//
//	tree, err := segtree.NewChminMaxTree(ctx, []int64{5, 1, 4, 2, 8})
//	if err != nil {
//	    return fmt.Errorf("build tree: %w", err)
//	}
//	_, _ = tree.Update(ctx, 1, 3, 2)  // [5, 1, 2, 2, 8]
//	top, _ := tree.QueryMax(ctx, 1, 3) // 2
func NewChminMaxTree(ctx context.Context, values []int64) (*ChminMaxTree, error) {
	t, err := newLazyTree[MinMax](ctx, values, chminPolicy{}, VariantChminMax)
	if err != nil {
		return nil, err
	}
	return &ChminMaxTree{t: t}, nil
}

// Len returns the number of elements.
func (c *ChminMaxTree) Len() int {
	return c.t.size
}

// Update sets a[p] = min(a[p], v) for every p in [left, right] and returns
// the aggregate of the whole array afterwards.
//
// Applying the same update twice leaves the tree unchanged after the first.
//
// Algorithm:
//
//	Time:  O(log N)
//
// Outputs:
//   - MinMax: Minimum and maximum of the whole array after the update.
//   - error: Non-nil (wrapping ErrInvalidRange) if the range is invalid.
func (c *ChminMaxTree) Update(ctx context.Context, left, right int, v int64) (MinMax, error) {
	return c.t.runUpdate(ctx, left, right, v)
}

// Query returns the minimum and maximum over [left, right].
func (c *ChminMaxTree) Query(ctx context.Context, left, right int) (MinMax, error) {
	return c.t.runQuery(ctx, "Query", left, right)
}

// QueryMax returns the maximum over [left, right].
//
// Algorithm:
//
//	Time:  O(log N)
//
// Example:
//
//	top, err := tree.QueryMax(ctx, 0, tree.Len()-1)
func (c *ChminMaxTree) QueryMax(ctx context.Context, left, right int) (int64, error) {
	agg, err := c.t.runQuery(ctx, "QueryMax", left, right)
	if err != nil {
		return 0, err
	}
	return agg.Max, nil
}

// QueryMin returns the minimum over [left, right].
func (c *ChminMaxTree) QueryMin(ctx context.Context, left, right int) (int64, error) {
	agg, err := c.t.runQuery(ctx, "QueryMin", left, right)
	if err != nil {
		return 0, err
	}
	return agg.Min, nil
}

// Get returns the current value at index.
func (c *ChminMaxTree) Get(ctx context.Context, index int) (int64, error) {
	return c.QueryMax(ctx, index, index)
}

// ReadAll returns the current array, resolving every pending update.
//
// Algorithm:
//
//	Time:  O(N)
func (c *ChminMaxTree) ReadAll(ctx context.Context) ([]int64, error) {
	return c.t.readAll(ctx)
}

// Validate checks the tree's layout and aggregate invariants.
//
// Returns an error wrapping ErrTreeCorrupted on the first violation.
// Complexity: O(N) time.
func (c *ChminMaxTree) Validate(ctx context.Context) error {
	return validateTree(ctx, c.t)
}

// Stats returns statistics about the tree.
func (c *ChminMaxTree) Stats() Stats {
	return c.t.stats()
}

// validateTree runs validate and reports failures through logs and metrics.
func validateTree[A comparable](ctx context.Context, t *lazyTree[A]) error {
	if ctx == nil {
		return ErrNilContext
	}
	if err := t.validate(); err != nil {
		recordValidationError(ctx, t.name)
		telemetry.LoggerWithTrace(ctx, slog.Default()).Error("segment tree validation failed",
			slog.String("variant", t.name),
			slog.Int("size", t.size),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}
