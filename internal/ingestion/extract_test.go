package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestForFile_SelectsByExtension(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path    string
		wantPDF bool
	}{
		{"syllabus.pdf", true},
		{"SYLLABUS.PDF", true},
		{"notes.txt", false},
		{"readme.md", false},
		{"plan.markdown", false},
	}

	for _, tc := range cases {
		ex, err := ForFile(tc.path)
		if err != nil {
			t.Fatalf("ForFile(%q): %v", tc.path, err)
		}
		_, isPDF := ex.(PDFExtractor)
		if isPDF != tc.wantPDF {
			t.Errorf("ForFile(%q): pdf=%v, expected %v", tc.path, isPDF, tc.wantPDF)
		}
	}
}

func TestForFile_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"image.png", "archive.zip", "noextension"} {
		_, err := ForFile(path)
		if !errors.Is(err, ErrExtraction) {
			t.Errorf("ForFile(%q): expected ErrExtraction, got %v", path, err)
		}
	}
}

func TestTextExtractor_ReadsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("chapter one\nchapter two"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := TextExtractor{}.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "chapter one\nchapter two" {
		t.Errorf("unexpected text: %q", got)
	}
}

func TestTextExtractor_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := TextExtractor{}.Extract(context.Background(), "/nonexistent/file.txt")
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("expected ErrExtraction, got %v", err)
	}
}

func TestPDFExtractor_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := PDFExtractor{}.Extract(context.Background(), "/nonexistent/file.pdf")
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("expected ErrExtraction, got %v", err)
	}
}
