package export

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choislab/hanisearch/internal/extract"
	"github.com/choislab/hanisearch/internal/highlight"
	"github.com/choislab/hanisearch/internal/query"
)

func renderTestDocx(t *testing.T) []byte {
	t.Helper()
	scheme := highlight.Assign([]string{"시호", "백호"})
	sections := []Section{
		{Heading: "han.docx", Lines: []string{"시호 처방", "백호 처방 기록"}},
	}
	var buf bytes.Buffer
	require.NoError(t, RenderDocx(&buf, "검색 결과", sections, scheme))
	return buf.Bytes()
}

func TestRenderDocxArchiveLayout(t *testing.T) {
	data := renderTestDocx(t)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["[Content_Types].xml"])
	assert.True(t, names["_rels/.rels"])
	assert.True(t, names["word/document.xml"])
}

func TestRenderDocxColoredRuns(t *testing.T) {
	data := renderTestDocx(t)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var doc string
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			doc = string(body)
		}
	}
	require.NotEmpty(t, doc)

	// First and second terms carry the first two export palette colors.
	assert.Contains(t, doc, `<w:color w:val="0000FF"/>`)
	assert.Contains(t, doc, `<w:color w:val="FF0000"/>`)
	assert.Contains(t, doc, `<w:b/>`)
	assert.Contains(t, doc, `<w:t xml:space="preserve">시호</w:t>`)
}

// The exporter's output must be readable by our own docx extractor.
func TestRenderDocxRoundTripsThroughExtract(t *testing.T) {
	data := renderTestDocx(t)
	lines, err := extract.NewRegistry().Lines("results.docx", data)
	require.NoError(t, err)
	assert.Contains(t, lines, "검색 결과")
	assert.Contains(t, lines, "han.docx")
	assert.Contains(t, lines, "시호 처방")
	assert.Contains(t, lines, "백호 처방 기록")
}

func TestRenderDocxEscapes(t *testing.T) {
	var buf bytes.Buffer
	sections := []Section{{Lines: []string{`a < b & "c"`}}}
	require.NoError(t, RenderDocx(&buf, "", sections, nil))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, _ := f.Open()
		body, _ := io.ReadAll(rc)
		rc.Close()
		assert.Contains(t, string(body), "a &lt; b &amp; &quot;c&quot;")
	}
}

func TestRenderHTMLAndPlain(t *testing.T) {
	scheme := highlight.Assign([]string{"시호"})
	sections := []Section{{Heading: "han.txt", Lines: []string{"시호 처방"}}}

	htmlOut := RenderHTML(sections, scheme)
	assert.Contains(t, htmlOut, "<h4>han.txt</h4>")
	assert.Contains(t, htmlOut, `<mark style="background-color:#fde047">시호</mark>`)

	plain := RenderPlain(sections)
	assert.Equal(t, "[han.txt]\n시호 처방\n", plain)
}

func TestGenerateOSC52(t *testing.T) {
	seq := generateOSC52("aGVsbG8=", false)
	assert.Equal(t, "\x1b]52;c;aGVsbG8=\x07", seq)

	wrapped := generateOSC52("aGVsbG8=", true)
	assert.True(t, strings.HasPrefix(wrapped, "\x1bPtmux;"))
	assert.True(t, strings.HasSuffix(wrapped, "\x1b\\"))
	assert.Contains(t, wrapped, "aGVsbG8=")
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("one"))
	assert.Equal(t, 1, countLines("one\n"))
	assert.Equal(t, 2, countLines("one\ntwo"))
}

func TestCopyTextEmpty(t *testing.T) {
	_, err := CopyText("", false)
	assert.Error(t, err)
	_, err = CopyRich("", "", false)
	assert.Error(t, err)
}

func TestSectionsByDocument(t *testing.T) {
	results := []query.DocResult{
		{DocumentID: "a", DocumentName: "han.txt", LineNo: 3, Text: "시호 백호 처방", IsAndMatch: true},
		{DocumentID: "b", DocumentName: "old.docx", LineNo: 0, Text: "시호 기록"},
		{DocumentID: "a", DocumentName: "han.txt", LineNo: 7, Text: "백호 기록"},
	}

	sections := SectionsByDocument(results)
	require.Len(t, sections, 2)
	assert.Equal(t, "han.txt", sections[0].Heading)
	assert.Equal(t, []string{"시호 백호 처방", "백호 기록"}, sections[0].Lines)
	assert.Equal(t, "old.docx", sections[1].Heading)
	assert.Equal(t, []string{"시호 기록"}, sections[1].Lines)

	assert.Empty(t, SectionsByDocument(nil))
}
