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
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChminMaxTree_Example(t *testing.T) {
	ctx := context.Background()
	tree, err := NewChminMaxTree(ctx, []int64{5, 1, 4, 2, 8})
	require.NoError(t, err)

	agg, err := tree.Update(ctx, 1, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, MinMax{Min: 1, Max: 8}, agg)

	top, err := tree.QueryMax(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(8), top)

	top, err = tree.QueryMax(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), top)

	arr, err := tree.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 1, 2, 2, 8}, arr)
	require.NoError(t, tree.Validate(ctx))
}

func TestChminMaxTree_Query_EntireRange(t *testing.T) {
	ctx := context.Background()
	tree, err := NewChminMaxTree(ctx, []int64{3, 1, 4, 1, 5, 9, 2, 6})
	require.NoError(t, err)

	agg, err := tree.Query(ctx, 0, 7)
	require.NoError(t, err)
	assert.Equal(t, MinMax{Min: 1, Max: 9}, agg)

	lo, err := tree.QueryMin(ctx, 4, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), lo)
}

// Test updating the whole array defers work below the root
func TestChminMaxTree_Update_EntireRange(t *testing.T) {
	ctx := context.Background()
	tree, err := NewChminMaxTree(ctx, makeTestArray(5))
	require.NoError(t, err)

	agg, err := tree.Update(ctx, 0, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, MinMax{Min: 1, Max: 3}, agg)

	stats := tree.Stats()
	assert.Equal(t, 2, stats.PendingNodes)
	require.NoError(t, tree.Validate(ctx))

	for i, want := range []int64{1, 2, 3, 3, 3} {
		got, err := tree.Get(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "index %d", i)
	}
}

// Test that a larger operand never raises values
func TestChminMaxTree_Update_NoRaise(t *testing.T) {
	ctx := context.Background()
	tree, err := NewChminMaxTree(ctx, []int64{4, -2, 7})
	require.NoError(t, err)

	_, err = tree.Update(ctx, 0, 2, 100)
	require.NoError(t, err)

	arr, err := tree.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, -2, 7}, arr)
}

func TestChminMaxTree_Update_Idempotent(t *testing.T) {
	ctx := context.Background()
	tree, err := NewChminMaxTree(ctx, []int64{9, 8, 7, 6, 5, 4, 3})
	require.NoError(t, err)

	first, err := tree.Update(ctx, 1, 5, 5)
	require.NoError(t, err)
	once, err := tree.ReadAll(ctx)
	require.NoError(t, err)

	second, err := tree.Update(ctx, 1, 5, 5)
	require.NoError(t, err)
	twice, err := tree.ReadAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, once, twice)
	assert.Equal(t, []int64{9, 5, 5, 5, 5, 4, 3}, twice)
}

// Test that stacked pending updates keep the smallest operand
func TestChminMaxTree_PendingMerge(t *testing.T) {
	ctx := context.Background()
	tree, err := NewChminMaxTree(ctx, makeTestArray(8))
	require.NoError(t, err)

	_, err = tree.Update(ctx, 0, 7, 6)
	require.NoError(t, err)
	_, err = tree.Update(ctx, 0, 7, 4)
	require.NoError(t, err)
	_, err = tree.Update(ctx, 0, 7, 5)
	require.NoError(t, err)
	require.NoError(t, tree.Validate(ctx))

	arr, err := tree.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 4, 4, 4, 4}, arr)
}

func TestChminMaxTree_SingleElement(t *testing.T) {
	ctx := context.Background()
	tree, err := NewChminMaxTree(ctx, []int64{42})
	require.NoError(t, err)

	_, err = tree.Update(ctx, 0, 0, 10)
	require.NoError(t, err)

	v, err := tree.QueryMax(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	arr, err := tree.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, arr)
}

func TestChminMaxTree_ExtremeValues(t *testing.T) {
	ctx := context.Background()
	tree, err := NewChminMaxTree(ctx, []int64{math.MaxInt64, math.MinInt64, 0})
	require.NoError(t, err)

	top, err := tree.QueryMax(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), top)

	_, err = tree.Update(ctx, 0, 2, math.MinInt64)
	require.NoError(t, err)
	top, err = tree.QueryMax(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), top)
}

func TestChminMaxTree_InvalidRanges(t *testing.T) {
	ctx := context.Background()
	tree, err := NewChminMaxTree(ctx, makeTestArray(10))
	require.NoError(t, err)

	tests := []struct {
		name        string
		left, right int
	}{
		{"negative left", -1, 5},
		{"right beyond size", 0, 10},
		{"left > right", 5, 3},
		{"both beyond size", 10, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tree.Update(ctx, tt.left, tt.right, 0)
			assert.ErrorIs(t, err, ErrInvalidRange)

			_, err = tree.QueryMax(ctx, tt.left, tt.right)
			assert.ErrorIs(t, err, ErrInvalidRange)

			_, err = tree.QueryMin(ctx, tt.left, tt.right)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}

	// Failed calls leave the tree untouched
	arr, err := tree.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, makeTestArray(10), arr)

	_, err = tree.Get(ctx, 10)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestChminMaxTree_NilContext(t *testing.T) {
	tree, err := NewChminMaxTree(context.Background(), makeTestArray(3))
	require.NoError(t, err)

	//nolint:staticcheck // nil context is the case under test
	_, err = tree.Update(nil, 0, 1, 0)
	assert.ErrorIs(t, err, ErrNilContext)
	//nolint:staticcheck // nil context is the case under test
	_, err = tree.QueryMax(nil, 0, 1)
	assert.ErrorIs(t, err, ErrNilContext)
	//nolint:staticcheck // nil context is the case under test
	_, err = tree.ReadAll(nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

// Test random operation sequences against a plain array
func TestChminMaxTree_RandomAgainstBruteForce(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	for _, size := range []int{1, 2, 3, 5, 8, 13, 31, 64, 100} {
		t.Run(fmt.Sprintf("n=%d", size), func(t *testing.T) {
			model := makeRandomArray(rng, size, 1000)
			tree, err := NewChminMaxTree(ctx, model)
			require.NoError(t, err)

			for op := 0; op < 300; op++ {
				l := rng.IntN(size)
				r := l + rng.IntN(size-l)

				switch rng.IntN(3) {
				case 0:
					v := rng.Int64N(2001) - 1000
					for p := l; p <= r; p++ {
						model[p] = min(model[p], v)
					}
					_, err := tree.Update(ctx, l, r, v)
					require.NoError(t, err)
				case 1:
					want := model[l]
					for p := l; p <= r; p++ {
						want = max(want, model[p])
					}
					got, err := tree.QueryMax(ctx, l, r)
					require.NoError(t, err)
					require.Equal(t, want, got, "op %d: max[%d,%d]", op, l, r)
				default:
					want := model[l]
					for p := l; p <= r; p++ {
						want = min(want, model[p])
					}
					got, err := tree.QueryMin(ctx, l, r)
					require.NoError(t, err)
					require.Equal(t, want, got, "op %d: min[%d,%d]", op, l, r)
				}
				require.NoError(t, tree.Validate(ctx), "op %d", op)
			}

			arr, err := tree.ReadAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, model, arr)
		})
	}
}

// Benchmarks

func BenchmarkNewChminMaxTree_N10000(b *testing.B) {
	arr := makeTestArray(10000)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := NewChminMaxTree(ctx, arr)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkChminMaxTree_Update_N10000(b *testing.B) {
	ctx := context.Background()
	tree, _ := NewChminMaxTree(ctx, makeTestArray(10000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l := i % 5000
		_, _ = tree.Update(ctx, l, l+4999, int64(10000-i%10000))
	}
}

func BenchmarkChminMaxTree_QueryMax_N10000(b *testing.B) {
	ctx := context.Background()
	tree, _ := NewChminMaxTree(ctx, makeTestArray(10000))
	_, _ = tree.Update(ctx, 0, 9999, 5000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l := i % 5000
		_, _ = tree.QueryMax(ctx, l, l+2500)
	}
}
