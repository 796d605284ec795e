package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

func makeDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDOCXParagraphsBecomeLines(t *testing.T) {
	data := makeDocx(t, `<w:document><w:body>`+
		`<w:p><w:r><w:t>시호 처방</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>백호 처방 기록</w:t></w:r></w:p>`+
		`<w:p></w:p>`+
		`</w:body></w:document>`)

	lines, err := NewRegistry().Lines("han.docx", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"시호 처방", "백호 처방 기록"}, lines)
}

func TestDOCXNotAZip(t *testing.T) {
	_, err := NewRegistry().Lines("broken.docx", []byte("plain bytes"))
	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "broken.docx", xerr.Name)
}

func TestDOCXMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("unrelated.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = NewRegistry().Lines("empty.docx", buf.Bytes())
	assert.Error(t, err)
}

func TestTextUTF8(t *testing.T) {
	lines, err := NewRegistry().Lines("notes.txt", []byte("시호 처방\r\n\r\n백호\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"시호 처방", "백호"}, lines)
}

func TestTextEUCKRFallback(t *testing.T) {
	encoded, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte("시호 처방\n백호"))
	require.NoError(t, err)
	require.False(t, bytes.Equal(encoded, []byte("시호 처방\n백호")))

	lines, err := NewRegistry().Lines("legacy.txt", encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{"시호 처방", "백호"}, lines)
}

func TestTextStripsBOM(t *testing.T) {
	lines, err := NewRegistry().Lines("bom.txt", []byte("\xEF\xBB\xBF시호"))
	require.NoError(t, err)
	assert.Equal(t, []string{"시호"}, lines)
}

func TestUnsupportedExtension(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Supported("sheet.xlsx"))
	assert.True(t, r.Supported("doc.DOCX"))

	_, err := r.Lines("sheet.xlsx", nil)
	var xerr *Error
	require.ErrorAs(t, err, &xerr)
}
