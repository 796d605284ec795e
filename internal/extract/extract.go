// Package extract turns stored document bytes into searchable lines.
package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/choislab/hanisearch/internal/logging"
)

var extractLog = logging.ForComponent(logging.CompExtract)

// Error reports a failed extraction, keeping the file name for the
// caller's diagnostics.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extractor turns raw file bytes into plain text, one paragraph per line.
type Extractor interface {
	ExtractText(data []byte) (string, error)
}

// Registry resolves an extractor by file extension.
type Registry struct {
	extractors map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{extractors: map[string]Extractor{
		"txt":  &TextExtractor{},
		"docx": &DOCXExtractor{},
	}}
}

// Supported reports whether the file name has a registered extractor.
func (r *Registry) Supported(name string) bool {
	_, ok := r.extractors[normalizeExt(name)]
	return ok
}

// Lines extracts text from data and splits it into trimmed, non-empty
// lines. Unsupported extensions and extractor failures return *Error.
func (r *Registry) Lines(name string, data []byte) ([]string, error) {
	ext := normalizeExt(name)
	extractor, ok := r.extractors[ext]
	if !ok {
		return nil, &Error{Name: name, Err: fmt.Errorf("unsupported file type %q", ext)}
	}
	text, err := extractor.ExtractText(data)
	if err != nil {
		return nil, &Error{Name: name, Err: err}
	}

	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line != "" {
			lines = append(lines, line)
		}
	}
	extractLog.Debug("extracted document", "name", name, "lines", len(lines))
	return lines, nil
}

func normalizeExt(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// TextExtractor reads plain text files. Files that are not valid UTF-8
// are retried as EUC-KR, the common legacy encoding for Korean sources.
type TextExtractor struct{}

func (e *TextExtractor) ExtractText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return normalizeNewlines(string(data)), nil
	}
	decoded, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("not UTF-8 and EUC-KR decode failed: %w", err)
	}
	return normalizeNewlines(string(decoded)), nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// DOCXExtractor extracts text from .docx files (Office Open XML).
type DOCXExtractor struct{}

var xmlTag = regexp.MustCompile(`<[^>]*>`)

func (e *DOCXExtractor) ExtractText(data []byte) (string, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("not a zip archive: %w", err)
	}

	for _, file := range zipReader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		return docxText(content), nil
	}
	return "", fmt.Errorf("word/document.xml missing from archive")
}

// docxText keeps paragraph structure: each </w:p> becomes a line break
// before the remaining tags are stripped.
func docxText(content []byte) string {
	text := strings.ReplaceAll(string(content), "</w:p>", "\n")
	text = xmlTag.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
