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
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/rangetree/pkg/telemetry"
)

// MaxSize is the largest number of elements a tree accepts.
const MaxSize = math.MaxInt32 / 4

// Range is an inclusive interval [Start, End] of zero-based positions.
type Range struct {
	Start int
	End   int
}

// sentinelRange marks padding nodes.
var sentinelRange = Range{Start: -1, End: -1}

// IsSentinel reports whether r marks a padding node.
func (r Range) IsSentinel() bool {
	return r.Start < 0 || r.End < 0
}

// IsLeaf reports whether r covers a single position.
func (r Range) IsLeaf() bool {
	return r.Start == r.End
}

// Len returns the number of positions covered by r.
func (r Range) Len() int {
	return r.End - r.Start + 1
}

// disjoint reports whether r shares no position with [left, right].
// A sentinel range is disjoint from every valid range.
func (r Range) disjoint(left, right int) bool {
	return left > r.End || right < r.Start
}

// within reports whether r is fully contained in [left, right].
func (r Range) within(left, right int) bool {
	return left <= r.Start && r.End <= right
}

// split returns the left and right halves of r.
func (r Range) split() (Range, Range) {
	mid := (r.Start + r.End) / 2
	return Range{Start: r.Start, End: mid}, Range{Start: mid + 1, End: r.End}
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}

// policy describes one tree variant: how aggregates are formed and combined,
// and how pending operands are applied and merged.
//
// apply(apply(a, x, r), y, r) must equal apply(a, merge(x, y), r), and apply
// must distribute over combine. Validate relies on both.
type policy[A comparable] interface {
	leaf(v int64) A
	neutral() A
	combine(a, b A) A
	apply(agg A, op int64, r Range) A
	merge(pending, op int64) int64
	scalar(agg A) int64
}

// node is one slot of the implicit tree.
type node[A comparable] struct {
	agg        A
	rng        Range
	pending    int64
	hasPending bool
}

// lazyTree is the engine shared by the public variants.
type lazyTree[A comparable] struct {
	nodes []node[A]
	size  int
	pol   policy[A]
	name  string

	buildTime   time.Duration
	updateCount int64
	queryCount  int64
}

// Stats contains statistics about a segment tree.
type Stats struct {
	Variant      string        // Tree variant name
	Size         int           // Number of real elements
	NodeCount    int           // Length of the node slice, padding included
	Height       int           // Depth of the deepest leaf
	PendingNodes int           // Nodes currently holding a pending update
	BuildTime    time.Duration // Construction time
	UpdateCount  int64         // Updates performed
	QueryCount   int64         // Queries and readouts performed
}

// nextPowerOf2 returns the smallest power of 2 that is >= n.
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// treeSize returns the node count for n elements: 2*2^ceil(log2(n)) - 1.
// A single element needs exactly one node.
func treeSize(n int) int {
	return 2*nextPowerOf2(n) - 1
}

// newLazyTree validates the input and builds a tree over values.
func newLazyTree[A comparable](ctx context.Context, values []int64, pol policy[A], name string) (*lazyTree[A], error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if len(values) == 0 {
		return nil, ErrEmptyArray
	}
	if len(values) > MaxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrArrayTooLarge, len(values), MaxSize)
	}

	ctx, span := tracer.Start(ctx, "segtree."+name+".Build",
		trace.WithAttributes(
			attribute.Int("size", len(values)),
		),
	)
	defer span.End()

	start := time.Now()

	n := len(values)
	t := &lazyTree[A]{
		nodes: make([]node[A], treeSize(n)),
		size:  n,
		pol:   pol,
		name:  name,
	}
	neutral := pol.neutral()
	for i := range t.nodes {
		t.nodes[i] = node[A]{agg: neutral, rng: sentinelRange}
	}

	t.build(0, values, Range{Start: 0, End: n - 1})
	t.buildTime = time.Since(start)

	span.SetAttributes(
		attribute.Int("node_count", len(t.nodes)),
		attribute.Int64("build_time_us", t.buildTime.Microseconds()),
	)
	span.SetStatus(codes.Ok, "segment tree constructed")

	recordBuild(ctx, name, t.buildTime)

	telemetry.LoggerWithTrace(ctx, slog.Default()).Debug("segment tree constructed",
		slog.String("variant", name),
		slog.Int("size", n),
		slog.Int("node_count", len(t.nodes)),
		slog.Duration("build_time", t.buildTime),
	)

	return t, nil
}

// build fills node i, which covers r, and returns its aggregate.
func (t *lazyTree[A]) build(i int, values []int64, r Range) A {
	if i >= len(t.nodes) || r.IsSentinel() || r.Start > r.End {
		panic(corruptf("build reached node %d with range %s (%d nodes)", i, r, len(t.nodes)))
	}

	nd := &t.nodes[i]
	nd.rng = r

	if r.IsLeaf() {
		nd.agg = t.pol.leaf(values[r.Start])
		return nd.agg
	}

	lr, rr := r.split()
	left := t.build(2*i+1, values, lr)
	right := t.build(2*i+2, values, rr)
	nd.agg = t.pol.combine(left, right)
	return nd.agg
}

// checkIndex panics when i does not address a node.
func (t *lazyTree[A]) checkIndex(i int) {
	if i < 0 || i >= len(t.nodes) {
		panic(corruptf("node index %d out of bounds [0,%d)", i, len(t.nodes)))
	}
}

// setPending merges op into node i's pending slot.
func (t *lazyTree[A]) setPending(i int, op int64) {
	t.checkIndex(i)
	nd := &t.nodes[i]
	if nd.hasPending {
		nd.pending = t.pol.merge(nd.pending, op)
		return
	}
	nd.pending = op
	nd.hasPending = true
}

// propagate resolves node i's pending update on its own aggregate and pushes
// the operand one level down. No-op when nothing is pending.
func (t *lazyTree[A]) propagate(i int) {
	t.checkIndex(i)
	nd := &t.nodes[i]
	if !nd.hasPending {
		return
	}

	op := nd.pending
	nd.agg = t.pol.apply(nd.agg, op, nd.rng)
	nd.pending = 0
	nd.hasPending = false

	if nd.rng.IsLeaf() {
		return
	}
	t.setPending(2*i+1, op)
	t.setPending(2*i+2, op)
}

// update applies op to [left, right] below node i and returns node i's
// aggregate afterwards.
func (t *lazyTree[A]) update(i int, op int64, left, right int) A {
	t.propagate(i)
	nd := &t.nodes[i]

	// No overlap
	if nd.rng.disjoint(left, right) {
		return nd.agg
	}

	// Total overlap: resolve here, children get the operand as pending
	if nd.rng.within(left, right) {
		t.setPending(i, op)
		t.propagate(i)
		return nd.agg
	}

	// Partial overlap
	l := t.update(2*i+1, op, left, right)
	r := t.update(2*i+2, op, left, right)
	nd.agg = t.pol.combine(l, r)
	return nd.agg
}

// query returns the aggregate of [left, right] below node i.
func (t *lazyTree[A]) query(i int, left, right int) A {
	t.propagate(i)
	nd := &t.nodes[i]

	if nd.rng.disjoint(left, right) {
		return t.pol.neutral()
	}
	if nd.rng.within(left, right) {
		return nd.agg
	}

	return t.pol.combine(
		t.query(2*i+1, left, right),
		t.query(2*i+2, left, right),
	)
}

// leaves appends the resolved leaf values below node i in index order.
func (t *lazyTree[A]) leaves(i int, out []int64) []int64 {
	t.propagate(i)
	nd := &t.nodes[i]

	if nd.rng.IsSentinel() {
		panic(corruptf("readout reached padding node %d", i))
	}
	if nd.rng.IsLeaf() {
		return append(out, t.pol.scalar(nd.agg))
	}

	out = t.leaves(2*i+1, out)
	return t.leaves(2*i+2, out)
}

// validateRange validates query/update range bounds.
func (t *lazyTree[A]) validateRange(left, right int) error {
	if left < 0 || left >= t.size {
		return fmt.Errorf("%w: left index %d out of bounds [0,%d)", ErrInvalidRange, left, t.size)
	}
	if right < 0 || right >= t.size {
		return fmt.Errorf("%w: right index %d out of bounds [0,%d)", ErrInvalidRange, right, t.size)
	}
	if left > right {
		return fmt.Errorf("%w: left %d > right %d", ErrInvalidRange, left, right)
	}
	return nil
}

// runUpdate is the traced entry point shared by the variants' updates.
func (t *lazyTree[A]) runUpdate(ctx context.Context, left, right int, op int64) (A, error) {
	var zero A
	if ctx == nil {
		return zero, ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "segtree."+t.name+".Update",
		trace.WithAttributes(
			attribute.Int("left", left),
			attribute.Int("right", right),
			attribute.Int64("operand", op),
		),
	)
	defer span.End()

	if err := t.validateRange(left, right); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOp(ctx, t.name, "update", false)
		return zero, err
	}

	agg := t.update(0, op, left, right)
	t.updateCount++
	recordOp(ctx, t.name, "update", true)

	span.SetStatus(codes.Ok, "update complete")
	return agg, nil
}

// runQuery is the traced entry point shared by the variants' range queries.
func (t *lazyTree[A]) runQuery(ctx context.Context, op string, left, right int) (A, error) {
	var zero A
	if ctx == nil {
		return zero, ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "segtree."+t.name+"."+op,
		trace.WithAttributes(
			attribute.Int("left", left),
			attribute.Int("right", right),
		),
	)
	defer span.End()

	if err := t.validateRange(left, right); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOp(ctx, t.name, op, false)
		return zero, err
	}

	agg := t.query(0, left, right)
	t.queryCount++
	recordOp(ctx, t.name, op, true)

	span.SetStatus(codes.Ok, "query complete")
	return agg, nil
}

// readAll resolves every pending update and returns the n element values.
func (t *lazyTree[A]) readAll(ctx context.Context) ([]int64, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "segtree."+t.name+".ReadAll",
		trace.WithAttributes(attribute.Int("size", t.size)),
	)
	defer span.End()

	out := t.leaves(0, make([]int64, 0, t.size))
	if len(out) != t.size {
		panic(corruptf("readout produced %d values, want %d", len(out), t.size))
	}
	t.queryCount++
	recordOp(ctx, t.name, "read_all", true)

	span.SetStatus(codes.Ok, "readout complete")
	return out, nil
}

// effective returns the aggregate of node i with its pending update applied.
func (t *lazyTree[A]) effective(i int) A {
	nd := t.nodes[i]
	if nd.hasPending {
		return t.pol.apply(nd.agg, nd.pending, nd.rng)
	}
	return nd.agg
}

// validate checks the layout and aggregate invariants.
//
// Every node reachable from the root must carry the range the recursion
// assigns to it, every other node must be untouched padding, and every
// internal node's aggregate must equal the combine of its children's
// effective aggregates. Complexity: O(N).
func (t *lazyTree[A]) validate() error {
	if want := treeSize(t.size); len(t.nodes) != want {
		return corruptf("node count %d, want %d", len(t.nodes), want)
	}

	reached := make([]bool, len(t.nodes))
	if err := t.validateNode(0, Range{Start: 0, End: t.size - 1}, reached); err != nil {
		return err
	}

	neutral := t.pol.neutral()
	for i, nd := range t.nodes {
		if reached[i] {
			continue
		}
		if !nd.rng.IsSentinel() {
			return corruptf("padding node %d has range %s", i, nd.rng)
		}
		if nd.hasPending {
			return corruptf("padding node %d has a pending update", i)
		}
		if nd.agg != neutral {
			return corruptf("padding node %d holds data %v", i, nd.agg)
		}
	}
	return nil
}

func (t *lazyTree[A]) validateNode(i int, want Range, reached []bool) error {
	if i >= len(t.nodes) {
		return corruptf("node %d for range %s is outside the node slice", i, want)
	}
	reached[i] = true

	nd := t.nodes[i]
	if nd.rng != want {
		return corruptf("node %d has range %s, want %s", i, nd.rng, want)
	}
	if want.IsLeaf() {
		return nil
	}

	lr, rr := want.split()
	if err := t.validateNode(2*i+1, lr, reached); err != nil {
		return err
	}
	if err := t.validateNode(2*i+2, rr, reached); err != nil {
		return err
	}

	expected := t.pol.combine(t.effective(2*i+1), t.effective(2*i+2))
	if nd.agg != expected {
		return corruptf("node %d %s: aggregate %v but children combine to %v", i, nd.rng, nd.agg, expected)
	}
	return nil
}

// stats collects statistics about the tree.
func (t *lazyTree[A]) stats() Stats {
	pending := 0
	for _, nd := range t.nodes {
		if nd.hasPending {
			pending++
		}
	}
	return Stats{
		Variant:      t.name,
		Size:         t.size,
		NodeCount:    len(t.nodes),
		Height:       bits.Len(uint(nextPowerOf2(t.size))) - 1,
		PendingNodes: pending,
		BuildTime:    t.buildTime,
		UpdateCount:  t.updateCount,
		QueryCount:   t.queryCount,
	}
}
