package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/gccquiz/internal/report"
	"github.com/go-pdf/fpdf"
)

// writePDF renders one PDF page per entry. Empty entries produce blank pages.
func writePDF(t *testing.T, name string, pages []string, userPassword string) string {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	if userPassword != "" {
		doc.SetProtection(fpdf.CnProtectPrint, userPassword, "owner")
	}
	doc.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		doc.AddPage()
		if text != "" {
			doc.Cell(0, 10, text)
		}
	}
	path := filepath.Join(t.TempDir(), name)
	if err := doc.OutputFileAndClose(path); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func extractionError(t *testing.T, err error) *report.ExtractionError {
	t.Helper()
	var extErr *report.ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *report.ExtractionError, got %T: %v", err, err)
	}
	return extErr
}

func TestPDFParser_ExtractsPagesInOrder(t *testing.T) {
	path := writePDF(t, "FAB_2023.pdf", []string{"Net profit rose to AED 17bn", "Dividend of 52 fils per share"}, "")

	p := &PDFParser{}
	text, err := p.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := strings.Index(text, "Net profit")
	second := strings.Index(text, "Dividend")
	if first < 0 || second < 0 {
		t.Fatalf("expected both pages in text, got %q", text)
	}
	if first > second {
		t.Errorf("expected page 1 text before page 2 text")
	}
	if strings.Contains(text, "17bnDividend") {
		t.Errorf("expected a separator between pages, got %q", text)
	}
}

func TestPDFParser_BlankPageIsNotAnError(t *testing.T) {
	path := writePDF(t, "blank.pdf", []string{"Alpha", "", "Omega"}, "")

	p := &PDFParser{}
	text, err := p.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Alpha") || !strings.Contains(text, "Omega") {
		t.Errorf("expected text around the blank page, got %q", text)
	}
}

func TestPDFParser_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.pdf")
	if err := os.WriteFile(path, []byte("this is a plain text file, not a report"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &PDFParser{}
	_, err := p.Extract(context.Background(), path)
	extErr := extractionError(t, err)
	if extErr.Reason != report.ReasonCorrupt {
		t.Errorf("expected reason %q, got %q", report.ReasonCorrupt, extErr.Reason)
	}
	if report.KindOf(err) != report.KindExtraction {
		t.Errorf("expected kind %q, got %q", report.KindExtraction, report.KindOf(err))
	}
}

func TestPDFParser_TruncatedPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncated.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &PDFParser{}
	_, err := p.Extract(context.Background(), path)
	extErr := extractionError(t, err)
	if extErr.Reason != report.ReasonCorrupt {
		t.Errorf("expected reason %q, got %q", report.ReasonCorrupt, extErr.Reason)
	}
}

func TestPDFParser_PasswordProtected(t *testing.T) {
	path := writePDF(t, "locked.pdf", []string{"Confidential"}, "secret")

	p := &PDFParser{}
	_, err := p.Extract(context.Background(), path)
	extErr := extractionError(t, err)
	if extErr.Reason != report.ReasonEncrypted {
		t.Errorf("expected reason %q, got %q (%v)", report.ReasonEncrypted, extErr.Reason, extErr.Err)
	}
}

func TestPDFParser_MissingFile(t *testing.T) {
	p := &PDFParser{}
	_, err := p.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	extractionError(t, err)
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a\r\nb", "a\nb"},
		{"a\rb", "a\nb"},
		{"page1\fpage2", "page1\n\npage2"},
		{"nul\x00byte", "nulbyte"},
	}
	for _, tt := range tests {
		if got := normalizeText(tt.in); got != tt.want {
			t.Errorf("normalizeText(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
