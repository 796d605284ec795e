package query

import (
	"context"
	"sort"
)

// Source supplies document lines. docs.Adapter satisfies it.
type Source interface {
	Lines(ctx context.Context, id string) ([]string, error)
}

// DocRef names one document to search.
type DocRef struct {
	ID   string
	Name string
}

// DocResult is one matching line across the selected set.
type DocResult struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	LineNo       int    `json:"line_no"`
	Text         string `json:"text"`
	IsAndMatch   bool   `json:"is_and_match"`
}

// SearchAll runs the term search over every referenced document and
// merges the results: AND matches first, then document order, then line
// order, stable throughout. A document whose lines cannot be loaded is
// skipped; the others still return.
func (e *Engine) SearchAll(ctx context.Context, src Source, refs []DocRef, terms []string) ([]DocResult, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	var merged []DocResult
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines, err := src.Lines(ctx, ref.ID)
		if err != nil {
			queryLog.Warn("document skipped during search", "doc", ref.ID, "error", err)
			continue
		}
		results, err := e.Search(ctx, ref.ID, lines, terms)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			merged = append(merged, DocResult{
				DocumentID:   ref.ID,
				DocumentName: ref.Name,
				LineNo:       r.LineNo,
				Text:         r.Text,
				IsAndMatch:   r.IsAndMatch,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].IsAndMatch && !merged[j].IsAndMatch
	})
	return merged, nil
}
