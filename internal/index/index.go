// Package index builds, serializes and caches per-document inverted indexes.
//
// An Index maps each token to the set of line numbers the token occurs on.
// Indexes are built once per document and treated as immutable afterwards;
// a rebuild replaces the whole index, never merges into it.
package index

import (
	"fmt"
	"sort"
)

// Index maps token -> sorted, de-duplicated line numbers.
type Index map[string][]int

// Lines returns the line set for a token, or nil when the token is absent.
func (ix Index) Lines(tok string) []int {
	return ix[tok]
}

// TokenCount returns the number of distinct tokens.
func (ix Index) TokenCount() int {
	return len(ix)
}

// normalize sorts and de-duplicates every posting list in place.
func (ix Index) normalize() {
	for tok, lines := range ix {
		sort.Ints(lines)
		out := lines[:0]
		for i, n := range lines {
			if i == 0 || n != lines[i-1] {
				out = append(out, n)
			}
		}
		ix[tok] = out
	}
}

// Build failure reasons.
const (
	ReasonCapacity   = "capacity"
	ReasonExtraction = "extraction"
)

// BuildError reports a failed index build. Reason distinguishes a serialized
// index exceeding the size ceiling from an upstream extraction failure, so
// the user knows whether to shrink the document or retry.
type BuildError struct {
	DocID  string
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("index build for %s failed (%s): %v", e.DocID, e.Reason, e.Err)
	}
	return fmt.Sprintf("index build for %s failed (%s)", e.DocID, e.Reason)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
