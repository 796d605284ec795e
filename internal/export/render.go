package export

import (
	"fmt"
	"html"
	"strings"

	"github.com/choislab/hanisearch/internal/highlight"
	"github.com/choislab/hanisearch/internal/query"
)

// SectionsByDocument groups merged search results back into
// per-document sections, keeping result order inside each.
func SectionsByDocument(results []query.DocResult) []Section {
	var sections []Section
	byID := map[string]int{}
	for _, res := range results {
		i, ok := byID[res.DocumentID]
		if !ok {
			i = len(sections)
			byID[res.DocumentID] = i
			sections = append(sections, Section{Heading: res.DocumentName})
		}
		sections[i].Lines = append(sections[i].Lines, res.Text)
	}
	return sections
}

// RenderHTML builds the rich clipboard flavor: headings plus marked
// lines, one paragraph each.
func RenderHTML(sections []Section, scheme *highlight.Scheme) string {
	var b strings.Builder
	for _, sec := range sections {
		if sec.Heading != "" {
			fmt.Fprintf(&b, "<h4>%s</h4>\n", html.EscapeString(sec.Heading))
		}
		for _, line := range sec.Lines {
			marked := line
			if scheme != nil {
				marked = scheme.Mark(line)
			} else {
				marked = html.EscapeString(line)
			}
			fmt.Fprintf(&b, "<p>%s</p>\n", marked)
		}
	}
	return b.String()
}

// RenderPlain builds the plain clipboard flavor.
func RenderPlain(sections []Section) string {
	var b strings.Builder
	for _, sec := range sections {
		if sec.Heading != "" {
			fmt.Fprintf(&b, "[%s]\n", sec.Heading)
		}
		for _, line := range sec.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
