package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
)

// Extractor converts a source document on disk into raw text.
// Implementations must be safe to call from multiple goroutines.
type Extractor interface {
	// Extract reads the document at path and returns its text content.
	// Fails with an error wrapping ErrExtraction when the document cannot
	// be read or parsed.
	Extract(ctx context.Context, path string) (string, error)
}

// PDFExtractor extracts text from PDF files, page by page.
type PDFExtractor struct{}

// Extract parses the PDF at path and returns the concatenated page texts,
// pages separated by a blank line so page boundaries survive chunking as
// natural break points.
func (PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ingestion: %w: opening %s: %v", ErrExtraction, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("ingestion: %w: stat %s: %v", ErrExtraction, path, err)
	}

	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("ingestion: %w: parsing pdf %s: %v", ErrExtraction, path, err)
	}

	pages := make([]string, 0, len(docs))
	for _, d := range docs {
		if s := strings.TrimSpace(d.PageContent); s != "" {
			pages = append(pages, s)
		}
	}

	return strings.Join(pages, "\n\n"), nil
}

// TextExtractor reads plain-text documents (txt, markdown) verbatim.
type TextExtractor struct{}

// Extract reads the whole file at path as UTF-8 text.
func (TextExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ingestion: %w: reading %s: %v", ErrExtraction, path, err)
	}
	return string(data), nil
}

// ForFile selects an Extractor based on the file extension.
// Fails with an error wrapping ErrExtraction for unsupported formats so the
// caller sees a single extraction error taxonomy.
func ForFile(path string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return PDFExtractor{}, nil
	case ".txt", ".text", ".md", ".markdown":
		return TextExtractor{}, nil
	default:
		return nil, fmt.Errorf("ingestion: %w: unsupported format %q", ErrExtraction, filepath.Ext(path))
	}
}
