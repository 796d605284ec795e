package index

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/choislab/hanisearch/internal/token"
)

// yieldEvery is how many lines are processed between cooperative yields.
// At each yield the builder checks for cancellation, reports progress and,
// when pacing is configured, waits on the rate limiter.
const yieldEvery = 1000

// BuildOptions tunes a single build run.
type BuildOptions struct {
	// Progress, when non-nil, receives a 0-100 percentage at every yield
	// point and once more at completion.
	Progress func(pct int)

	// Limiter, when non-nil, paces the build so background indexing does
	// not starve interactive work. One token is consumed per yield.
	Limiter *rate.Limiter
}

// Builder turns document lines into an Index.
type Builder struct {
	tok *token.Tokenizer
}

// NewBuilder returns a Builder using the given tokenizer.
func NewBuilder(tok *token.Tokenizer) *Builder {
	return &Builder{tok: tok}
}

// Build indexes every line. Line numbers in the result are positions in the
// input slice, so the caller must pass the same normalized lines it will
// search against later.
func (b *Builder) Build(ctx context.Context, lines []string, opts BuildOptions) (Index, error) {
	acc := make(map[string]map[int]struct{})

	for i, line := range lines {
		for tok := range b.tok.Tokenize(line) {
			set, ok := acc[tok]
			if !ok {
				set = make(map[int]struct{})
				acc[tok] = set
			}
			set[i] = struct{}{}
		}

		if (i+1)%yieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}
			if opts.Progress != nil {
				opts.Progress((i + 1) * 100 / len(lines))
			}
		}
	}

	ix := make(Index, len(acc))
	for tok, set := range acc {
		lines := make([]int, 0, len(set))
		for n := range set {
			lines = append(lines, n)
		}
		ix[tok] = lines
	}
	ix.normalize()

	if opts.Progress != nil {
		opts.Progress(100)
	}
	return ix, nil
}
