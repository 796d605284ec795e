// Package token extracts indexable tokens from document lines.
//
// Only two Unicode script ranges are indexed: CJK Unified Ideographs and
// Hangul Syllables. Everything else (Latin, digits, punctuation, whitespace)
// acts purely as a separator. Each extracted run is expanded into bounded
// n-grams so the resulting index stays small; unbounded n-gram generation
// over long runs was the dominant cause of oversized index payloads.
package token

// DefaultMaxTokenLen caps the n-gram length. Raising it grows the index
// superlinearly; lowering it loses recall for longer compounds.
const DefaultMaxTokenLen = 3

// Tokenizer generates bounded n-gram tokens from text lines.
type Tokenizer struct {
	maxLen int
}

// New returns a Tokenizer with the given n-gram cap.
// A cap of zero or less falls back to DefaultMaxTokenLen.
func New(maxLen int) *Tokenizer {
	if maxLen <= 0 {
		maxLen = DefaultMaxTokenLen
	}
	return &Tokenizer{maxLen: maxLen}
}

// MaxLen returns the configured n-gram cap.
func (t *Tokenizer) MaxLen() int {
	return t.maxLen
}

// script classifies a rune into one of the two indexed ranges, or scriptNone.
type script int

const (
	scriptNone   script = iota
	scriptHanja         // CJK Unified Ideographs, U+4E00..U+9FFF
	scriptHangul        // Hangul Syllables, U+AC00..U+D7AF
)

func classify(r rune) script {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF:
		return scriptHanja
	case r >= 0xAC00 && r <= 0xD7AF:
		return scriptHangul
	default:
		return scriptNone
	}
}

// Runs returns the maximal contiguous single-script runs of indexable
// characters in line, in order of appearance. A run breaks at separator
// characters and at script boundaries, so adjacent Hangul and Hanja form
// separate runs.
func Runs(line string) []string {
	var runs []string
	var cur []rune
	curScript := scriptNone
	flush := func() {
		if len(cur) > 0 {
			runs = append(runs, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range line {
		s := classify(r)
		if s == scriptNone {
			flush()
			curScript = scriptNone
			continue
		}
		if s != curScript {
			flush()
			curScript = s
		}
		cur = append(cur, r)
	}
	flush()
	return runs
}

// Tokenize returns the set of distinct tokens for one line: every contiguous
// substring of every indexable run, with length 1..min(runLen, maxLen).
// Duplicates within the line collapse.
func (t *Tokenizer) Tokenize(line string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, run := range Runs(line) {
		runes := []rune(run)
		maxN := len(runes)
		if maxN > t.maxLen {
			maxN = t.maxLen
		}
		for n := 1; n <= maxN; n++ {
			for start := 0; start+n <= len(runes); start++ {
				tokens[string(runes[start:start+n])] = struct{}{}
			}
		}
	}
	return tokens
}
