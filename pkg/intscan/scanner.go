// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intscan reads line-oriented, whitespace-separated integer input.
//
// Each call consumes one logical line. Blank lines are skipped. Every error
// wraps ErrMalformedInput and names the 1-based line it refers to.
package intscan

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxLineBytes is the longest line the scanner accepts. Array lines for
// large inputs are long.
const MaxLineBytes = 64 * 1024 * 1024

// ErrMalformedInput is wrapped by every parse error.
var ErrMalformedInput = errors.New("malformed input")

// Scanner reads integer lines from an io.Reader.
//
// Thread Safety: NOT safe for concurrent use.
type Scanner struct {
	sc   *bufio.Scanner
	line int
}

// New creates a Scanner over r.
func New(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	// Increase buffer for long lines
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, MaxLineBytes)
	return &Scanner{sc: sc}
}

// Line returns the 1-based number of the last line consumed, or 0 before the
// first read.
func (s *Scanner) Line() int {
	return s.line
}

// Ints returns the integers on the next non-blank line.
func (s *Scanner) Ints() ([]int64, error) {
	for s.sc.Scan() {
		s.line++
		fields := strings.Fields(s.sc.Text())
		if len(fields) == 0 {
			continue
		}

		out := make([]int64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d, field %d: %q is not an integer",
					ErrMalformedInput, s.line, i+1, f)
			}
			out[i] = v
		}
		return out, nil
	}

	if err := s.sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedInput, s.line+1, err)
	}
	return nil, fmt.Errorf("%w: line %d: unexpected end of input", ErrMalformedInput, s.line+1)
}

// IntsN returns the next non-blank line, which must hold exactly n integers.
func (s *Scanner) IntsN(n int) ([]int64, error) {
	vals, err := s.Ints()
	if err != nil {
		return nil, err
	}
	if len(vals) != n {
		return nil, fmt.Errorf("%w: line %d: got %d values, want %d",
			ErrMalformedInput, s.line, len(vals), n)
	}
	return vals, nil
}

// IntsAtLeast returns the next non-blank line, which must hold at least n
// integers.
func (s *Scanner) IntsAtLeast(n int) ([]int64, error) {
	vals, err := s.Ints()
	if err != nil {
		return nil, err
	}
	if len(vals) < n {
		return nil, fmt.Errorf("%w: line %d: got %d values, want at least %d",
			ErrMalformedInput, s.line, len(vals), n)
	}
	return vals, nil
}

// Errorf returns an error wrapping ErrMalformedInput that names the last
// line consumed.
func (s *Scanner) Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedInput, s.line, fmt.Sprintf(format, args...))
}
