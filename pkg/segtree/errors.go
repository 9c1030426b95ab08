// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package segtree provides lazily-propagated segment trees over fixed-size
// integer arrays.
//
// Two variants share one engine:
//
//   - ChminMaxTree: range "assign if smaller" updates (a[p] = min(a[p], v))
//     with range maximum and minimum queries.
//   - RangeAddTree: range additive updates with range sum queries and a
//     full-array readout.
//
// # Layout
//
// Nodes are stored in a flat slice using implicit heap indexing: the root is
// node 0 and the children of node i are 2i+1 and 2i+2. The slice holds
// 2*2^ceil(log2(n))-1 nodes. Nodes that fall outside the recursion over
// [0, n-1] are padding: they carry the sentinel range [-1,-1] and a neutral
// aggregate, and are never visited.
//
// # Lazy Propagation
//
// An update that fully covers a node is resolved on that node only; the
// operand is parked on the node's children as a pending update. Every visit
// (update, query or readout) resolves the visited node's pending update and
// pushes it exactly one level down before looking at the node's aggregate.
//
// # Errors
//
// Caller mistakes (empty input, invalid ranges, nil context) are returned as
// wrapped sentinel errors. Broken bookkeeping inside a tree is not a caller
// mistake and panics with an error wrapping ErrTreeCorrupted.
//
// # Thread Safety
//
// Trees are NOT safe for concurrent use. Queries mutate the tree because
// they resolve pending updates. A tree is owned by a single goroutine.
package segtree

import (
	"errors"
	"fmt"
)

// Sentinel errors for segment tree operations.
var (
	// ErrEmptyArray is returned when a tree is built over no values.
	ErrEmptyArray = errors.New("array must not be empty")

	// ErrArrayTooLarge is returned when the input exceeds MaxSize.
	ErrArrayTooLarge = errors.New("array size exceeds maximum")

	// ErrInvalidRange is returned when an update or query range is outside
	// [0, n) or has left > right.
	ErrInvalidRange = errors.New("invalid query range")

	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("ctx must not be nil")

	// ErrTreeCorrupted marks a broken internal invariant. It is carried by
	// panics from the traversal code and returned by Validate.
	ErrTreeCorrupted = errors.New("segment tree corrupted")
)

// corruptf builds an error wrapping ErrTreeCorrupted.
func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTreeCorrupted, fmt.Sprintf(format, args...))
}
