package highlight

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
)

// PreviewPalette holds the background colors used for on-screen marks.
// ExportPalette holds the font colors used in exported documents. Both
// cycle when a query carries more terms than colors.
var (
	PreviewPalette = []string{"#fde047", "#ffcfdf", "#d1fae5", "#e0e7ff"}
	ExportPalette  = []string{"#0000FF", "#FF0000", "#2ecc71", "#e67e22"}
)

// Span is a highlighted region of a line.
type Span struct {
	Start int
	End   int
	Term  string
	Color int
}

// Scheme maps each search term to a stable color slot, assigned by the
// term's position in the query.
type Scheme struct {
	terms   []string
	colors  map[string]int
	pattern *regexp.Regexp
}

// Assign builds a Scheme for the given terms. Matching is case
// insensitive, longer terms win over their own substrings.
func Assign(terms []string) *Scheme {
	s := &Scheme{colors: make(map[string]int, len(terms))}
	for _, term := range terms {
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, dup := s.colors[key]; dup {
			continue
		}
		s.colors[key] = len(s.terms)
		s.terms = append(s.terms, term)
	}
	if len(s.terms) == 0 {
		return s
	}

	byLength := make([]string, len(s.terms))
	copy(byLength, s.terms)
	sort.SliceStable(byLength, func(i, j int) bool {
		return len(byLength[i]) > len(byLength[j])
	})
	quoted := make([]string, len(byLength))
	for i, term := range byLength {
		quoted[i] = regexp.QuoteMeta(term)
	}
	s.pattern = regexp.MustCompile("(?i)" + strings.Join(quoted, "|"))
	return s
}

// ColorIndex returns the palette slot for a term, or -1 if the term is
// not part of the scheme.
func (s *Scheme) ColorIndex(term string) int {
	i, ok := s.colors[strings.ToLower(term)]
	if !ok {
		return -1
	}
	return i
}

// PreviewColor and ExportColor resolve a term's slot against a palette.
func (s *Scheme) PreviewColor(term string) string {
	return paletteAt(PreviewPalette, s.ColorIndex(term))
}

func (s *Scheme) ExportColor(term string) string {
	return paletteAt(ExportPalette, s.ColorIndex(term))
}

func paletteAt(palette []string, i int) string {
	if i < 0 {
		return ""
	}
	return palette[i%len(palette)]
}

// Spans finds every term occurrence in line, left to right,
// non-overlapping, longest term first at each position.
func (s *Scheme) Spans(line string) []Span {
	if s.pattern == nil {
		return nil
	}
	var spans []Span
	for _, loc := range s.pattern.FindAllStringIndex(line, -1) {
		matched := line[loc[0]:loc[1]]
		spans = append(spans, Span{
			Start: loc[0],
			End:   loc[1],
			Term:  matched,
			Color: s.ColorIndex(matched),
		})
	}
	return spans
}

// Mark renders a line as HTML with each term occurrence wrapped in a
// <mark> carrying its preview background color. Text outside marks is
// escaped.
func (s *Scheme) Mark(line string) string {
	spans := s.Spans(line)
	if len(spans) == 0 {
		return html.EscapeString(line)
	}
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		b.WriteString(html.EscapeString(line[last:sp.Start]))
		fmt.Fprintf(&b, `<mark style="background-color:%s">%s</mark>`,
			paletteAt(PreviewPalette, sp.Color), html.EscapeString(sp.Term))
		last = sp.End
	}
	b.WriteString(html.EscapeString(line[last:]))
	return b.String()
}

var markTag = regexp.MustCompile(`</?mark[^>]*>`)

// Strip removes mark tags from previously rendered output, leaving the
// escaped text.
func Strip(marked string) string {
	return markTag.ReplaceAllString(marked, "")
}
