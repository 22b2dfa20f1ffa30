// Package extract provides text extraction from uploaded document formats.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrUnsupported is returned for extensions the extractor does not handle.
var ErrUnsupported = errors.New("unsupported document type")

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot, any case) can be extracted.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".xlsx", ".txt", ".md", ".rst":
		return true
	}
	return false
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Content starting with the PDF
// magic is treated as PDF whatever the extension. Failures wrap models.ErrExtraction.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if bytes.HasPrefix(content, []byte("%PDF")) {
		ext = ".pdf"
	}
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".xlsx":
		text, err = extractExcel(content)
	case ".txt", ".md", ".rst":
		text, err = extractPlain(content)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrExtraction, err)
	}
	return text, nil
}
