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

func TestRangeAddTree_Example(t *testing.T) {
	ctx := context.Background()
	tree, err := NewRangeAddTree(ctx, []int64{0, 0, 0, 0})
	require.NoError(t, err)

	require.NoError(t, tree.Add(ctx, 0, 1, 5))
	require.NoError(t, tree.Add(ctx, 2, 3, 3))

	arr, err := tree.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 5, 3, 3}, arr)
	require.NoError(t, tree.Validate(ctx))
}

func TestRangeAddTree_QuerySum(t *testing.T) {
	ctx := context.Background()
	tree, err := NewRangeAddTree(ctx, makeTestArray(10))
	require.NoError(t, err)

	tests := []struct {
		left, right int
		expected    int64
	}{
		{0, 9, 55},
		{0, 0, 1},
		{9, 9, 10},
		{2, 5, 3 + 4 + 5 + 6},
		{4, 8, 5 + 6 + 7 + 8 + 9},
	}
	for _, tt := range tests {
		sum, err := tree.QuerySum(ctx, tt.left, tt.right)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, sum, "range [%d,%d]", tt.left, tt.right)
	}
}

// Test that sums stay correct across overlapping deferred updates
func TestRangeAddTree_LazyPropagation(t *testing.T) {
	ctx := context.Background()
	tree, err := NewRangeAddTree(ctx, makeTestArray(8))
	require.NoError(t, err)

	require.NoError(t, tree.Add(ctx, 0, 7, 10))
	require.NoError(t, tree.Add(ctx, 2, 5, -3))
	require.NoError(t, tree.Add(ctx, 4, 4, 100))

	sum, err := tree.QuerySum(ctx, 0, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(36+80-12+100), sum)

	v, err := tree.Get(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5+10-3+100), v)

	arr, err := tree.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12, 10, 11, 112, 13, 17, 18}, arr)
	assert.Equal(t, 0, tree.Stats().PendingNodes)
}

func TestRangeAddTree_ReadAll_Repeatable(t *testing.T) {
	ctx := context.Background()
	tree, err := NewRangeAddTree(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, tree.Add(ctx, 0, 2, 1))

	first, err := tree.ReadAll(ctx)
	require.NoError(t, err)
	second, err := tree.ReadAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 3, 4}, first)
	assert.Equal(t, first, second)
}

func TestRangeAddTree_SingleElement(t *testing.T) {
	ctx := context.Background()
	tree, err := NewRangeAddTree(ctx, []int64{7})
	require.NoError(t, err)

	require.NoError(t, tree.Add(ctx, 0, 0, -9))
	arr, err := tree.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{-2}, arr)
	assert.Equal(t, 1, tree.Len())
}

func TestRangeAddTree_Saturation(t *testing.T) {
	ctx := context.Background()
	tree, err := NewRangeAddTree(ctx, []int64{math.MaxInt64 - 1, 0})
	require.NoError(t, err)

	require.NoError(t, tree.Add(ctx, 0, 0, 10))
	v, err := tree.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)

	sum, err := tree.QuerySum(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), sum)
}

func TestSaturatingArithmetic(t *testing.T) {
	assert.Equal(t, int64(5), saturatingAdd(2, 3))
	assert.Equal(t, int64(math.MaxInt64), saturatingAdd(math.MaxInt64, 1))
	assert.Equal(t, int64(math.MinInt64), saturatingAdd(math.MinInt64, -1))
	assert.Equal(t, int64(-1), saturatingAdd(math.MaxInt64, math.MinInt64))

	assert.Equal(t, int64(12), saturatingMul(3, 4))
	assert.Equal(t, int64(-12), saturatingMul(-3, 4))
	assert.Equal(t, int64(0), saturatingMul(0, 1000))
	assert.Equal(t, int64(7), saturatingMul(7, 1))
	assert.Equal(t, int64(math.MaxInt64), saturatingMul(math.MaxInt64/2, 3))
	assert.Equal(t, int64(math.MinInt64), saturatingMul(math.MinInt64/2, 3))
}

func TestRangeAddTree_InvalidRanges(t *testing.T) {
	ctx := context.Background()
	tree, err := NewRangeAddTree(ctx, makeTestArray(6))
	require.NoError(t, err)

	assert.ErrorIs(t, tree.Add(ctx, -1, 2, 1), ErrInvalidRange)
	assert.ErrorIs(t, tree.Add(ctx, 0, 6, 1), ErrInvalidRange)
	assert.ErrorIs(t, tree.Add(ctx, 4, 2, 1), ErrInvalidRange)

	_, err = tree.QuerySum(ctx, 3, 2)
	assert.ErrorIs(t, err, ErrInvalidRange)

	arr, err := tree.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, makeTestArray(6), arr)

	//nolint:staticcheck // nil context is the case under test
	assert.ErrorIs(t, tree.Add(nil, 0, 1, 1), ErrNilContext)
}

// Test random operation sequences against a plain array
func TestRangeAddTree_RandomAgainstBruteForce(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(3, 4))

	for _, size := range []int{1, 2, 3, 6, 16, 17, 50, 127} {
		t.Run(fmt.Sprintf("n=%d", size), func(t *testing.T) {
			model := makeRandomArray(rng, size, 1000)
			tree, err := NewRangeAddTree(ctx, model)
			require.NoError(t, err)

			for op := 0; op < 300; op++ {
				l := rng.IntN(size)
				r := l + rng.IntN(size-l)

				switch rng.IntN(3) {
				case 0:
					d := rng.Int64N(201) - 100
					for p := l; p <= r; p++ {
						model[p] += d
					}
					require.NoError(t, tree.Add(ctx, l, r, d))
				case 1:
					var want int64
					for p := l; p <= r; p++ {
						want += model[p]
					}
					got, err := tree.QuerySum(ctx, l, r)
					require.NoError(t, err)
					require.Equal(t, want, got, "op %d: sum[%d,%d]", op, l, r)
				default:
					arr, err := tree.ReadAll(ctx)
					require.NoError(t, err)
					require.Equal(t, model, arr, "op %d", op)
				}
				require.NoError(t, tree.Validate(ctx), "op %d", op)
			}
		})
	}
}

// Benchmarks

func BenchmarkNewRangeAddTree_N10000(b *testing.B) {
	arr := makeTestArray(10000)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := NewRangeAddTree(ctx, arr)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRangeAddTree_Add_N10000_LargeRange(b *testing.B) {
	ctx := context.Background()
	tree, _ := NewRangeAddTree(ctx, makeTestArray(10000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tree.Add(ctx, 0, 9999, 1)
	}
}

func BenchmarkRangeAddTree_ReadAll_N10000(b *testing.B) {
	ctx := context.Background()
	tree, _ := NewRangeAddTree(ctx, makeTestArray(10000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tree.Add(ctx, i%5000, 5000+i%5000, 2)
		_, _ = tree.ReadAll(ctx)
	}
}
