package query

import (
	"context"
	"sort"
	"strings"

	"github.com/choislab/hanisearch/internal/index"
	"github.com/choislab/hanisearch/internal/logging"
)

var queryLog = logging.ForComponent(logging.CompSearch)

// Parse splits a raw query on "/" into distinct search terms.
// Whitespace is trimmed, empties dropped, duplicates keep first position.
func Parse(raw string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, "/") {
		term := strings.TrimSpace(part)
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

// Result is one matching line. Lines containing every term sort ahead of
// lines containing only some.
type Result struct {
	LineNo     int    `json:"line_no"`
	Text       string `json:"text"`
	IsAndMatch bool   `json:"is_and_match"`
}

// Engine runs term searches over document lines, through the inverted
// index when one is cached and by scanning raw lines otherwise.
type Engine struct {
	indexes *index.Store
}

func NewEngine(indexes *index.Store) *Engine {
	return &Engine{indexes: indexes}
}

// Search returns every line matching at least one term, AND matches first,
// original line order within each group. Empty terms yield no results.
//
// The indexed path only sees tokens up to the index cap, so a term longer
// than the cap matches nothing there even when the text contains it. The
// raw scan is the ground truth for such terms.
func (e *Engine) Search(ctx context.Context, docID string, lines []string, terms []string) ([]Result, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []Result
	if ix, ok := e.lookupIndex(ctx, docID); ok {
		results = searchIndexed(ix, lines, terms)
	} else {
		results = searchRaw(lines, terms)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].IsAndMatch && !results[j].IsAndMatch
	})

	queryLog.Debug("search complete", "doc", docID, "terms", len(terms), "results", len(results))
	return results, nil
}

func (e *Engine) lookupIndex(ctx context.Context, docID string) (index.Index, bool) {
	if e.indexes == nil || docID == "" {
		return nil, false
	}
	ix, ok, err := e.indexes.LoadFromSource(ctx, docID)
	if err != nil {
		queryLog.Warn("index load failed, falling back to raw scan", "doc", docID, "error", err)
		return nil, false
	}
	return ix, ok
}

func searchIndexed(ix index.Index, lines []string, terms []string) []Result {
	candidates := make(map[int]struct{})
	for _, term := range terms {
		for _, n := range ix.Lines(term) {
			candidates[n] = struct{}{}
		}
	}

	ordered := make([]int, 0, len(candidates))
	for n := range candidates {
		ordered = append(ordered, n)
	}
	sort.Ints(ordered)

	results := make([]Result, 0, len(ordered))
	for _, n := range ordered {
		if n < 0 || n >= len(lines) {
			continue
		}
		results = append(results, Result{
			LineNo:     n,
			Text:       lines[n],
			IsAndMatch: containsAll(lines[n], terms),
		})
	}
	return results
}

func searchRaw(lines []string, terms []string) []Result {
	var results []Result
	for n, line := range lines {
		if !containsAny(line, terms) {
			continue
		}
		results = append(results, Result{
			LineNo:     n,
			Text:       line,
			IsAndMatch: containsAll(line, terms),
		})
	}
	return results
}

// Matching folds case on both sides, same as the highlighter's (?i)
// pattern, so a match and its marks never disagree on Latin text.
func containsAny(line string, terms []string) bool {
	folded := strings.ToLower(line)
	for _, term := range terms {
		if strings.Contains(folded, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func containsAll(line string, terms []string) bool {
	folded := strings.ToLower(line)
	for _, term := range terms {
		if !strings.Contains(folded, strings.ToLower(term)) {
			return false
		}
	}
	return true
}
