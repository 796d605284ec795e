// Package export turns search results into shareable artifacts: a
// word-processor document with per-term colored runs, and system
// clipboard copies in rich and plain flavors.
package export

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"

	"github.com/choislab/hanisearch/internal/highlight"
	"github.com/choislab/hanisearch/internal/logging"
)

var exportLog = logging.ForComponent(logging.CompExport)

// Section groups result lines under one heading, typically the source
// document's name.
type Section struct {
	Heading string
	Lines   []string
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// RenderDocx writes a minimal .docx containing the sections, with every
// term occurrence rendered bold in its export palette color.
func RenderDocx(w io.Writer, title string, sections []Section, scheme *highlight.Scheme) error {
	zw := zip.NewWriter(w)

	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", documentXML(title, sections, scheme)},
	}
	for _, part := range parts {
		f, err := zw.Create(part.name)
		if err != nil {
			return fmt.Errorf("export: create %s: %w", part.name, err)
		}
		if _, err := f.Write([]byte(part.body)); err != nil {
			return fmt.Errorf("export: write %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("export: close archive: %w", err)
	}

	exportLog.Info("document rendered", "title", title, "sections", len(sections))
	return nil
}

func documentXML(title string, sections []Section, scheme *highlight.Scheme) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	if title != "" {
		writeParagraph(&b, title, true, "")
	}
	for _, sec := range sections {
		if sec.Heading != "" {
			writeParagraph(&b, sec.Heading, true, "")
		}
		for _, line := range sec.Lines {
			writeHighlighted(&b, line, scheme)
		}
		// Blank spacer between sections.
		b.WriteString(`<w:p/>`)
	}

	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func writeHighlighted(b *strings.Builder, line string, scheme *highlight.Scheme) {
	if scheme == nil {
		writeParagraph(b, line, false, "")
		return
	}
	spans := scheme.Spans(line)
	if len(spans) == 0 {
		writeParagraph(b, line, false, "")
		return
	}

	b.WriteString(`<w:p>`)
	last := 0
	for _, sp := range spans {
		if sp.Start > last {
			writeRun(b, line[last:sp.Start], false, "")
		}
		writeRun(b, sp.Term, true, strings.TrimPrefix(scheme.ExportColor(sp.Term), "#"))
		last = sp.End
	}
	if last < len(line) {
		writeRun(b, line[last:], false, "")
	}
	b.WriteString(`</w:p>`)
}

func writeParagraph(b *strings.Builder, text string, bold bool, color string) {
	b.WriteString(`<w:p>`)
	writeRun(b, text, bold, color)
	b.WriteString(`</w:p>`)
}

func writeRun(b *strings.Builder, text string, bold bool, color string) {
	b.WriteString(`<w:r>`)
	if bold || color != "" {
		b.WriteString(`<w:rPr>`)
		if bold {
			b.WriteString(`<w:b/>`)
		}
		if color != "" {
			fmt.Fprintf(b, `<w:color w:val="%s"/>`, color)
		}
		b.WriteString(`</w:rPr>`)
	}
	fmt.Fprintf(b, `<w:t xml:space="preserve">%s</w:t>`, escapeXML(text))
	b.WriteString(`</w:r>`)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
