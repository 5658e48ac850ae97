package parser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dgallion1/gccquiz/internal/report"
	"github.com/gabriel-vasile/mimetype"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// pageSeparator keeps words on adjacent pages from merging.
const pageSeparator = "\n\n"

// PDFParser extracts plain text from PDF files. It tries the Go library first,
// then falls back to pdftotext if enabled. Every failure is returned as a
// *report.ExtractionError.
type PDFParser struct {
	FallbackPdftotext bool
}

// Extract returns the text of every page in page order.
func (p *PDFParser) Extract(ctx context.Context, path string) (string, error) {
	if err := sniffPDF(path); err != nil {
		return "", &report.ExtractionError{Path: path, Reason: report.ReasonCorrupt, Err: err}
	}

	text, err := extractPDFText(path)
	if err != nil && p.FallbackPdftotext {
		if alt, altErr := extractPdftotext(ctx, path); altErr == nil {
			text, err = alt, nil
		}
	}
	if err != nil {
		return "", &report.ExtractionError{Path: path, Reason: classify(path, err), Err: err}
	}
	return normalizeText(text), nil
}

func sniffPDF(path string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if !mt.Is("application/pdf") {
		return fmt.Errorf("not a pdf: detected %s", mt.String())
	}
	return nil
}

func extractPDFText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if i > 1 {
			buf.WriteString(pageSeparator)
		}
		buf.WriteString(pageText(reader.Page(i)))
	}
	return buf.String(), nil
}

// pageText returns "" for pages without a text layer or that fail to decode.
func pageText(page pdflib.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

func extractPdftotext(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return strings.ReplaceAll(string(out), "\f", pageSeparator), nil
}

// classify decides whether a failed file is password protected or just broken.
// pdfcpu is used as a second opinion since it reports encryption explicitly.
func classify(path string, err error) report.ExtractionReason {
	if errors.Is(err, pdflib.ErrInvalidPassword) || mentionsEncryption(err) {
		return report.ReasonEncrypted
	}
	if probeEncrypted(path) {
		return report.ReasonEncrypted
	}
	return report.ReasonCorrupt
}

func probeEncrypted(path string) (encrypted bool) {
	defer func() {
		if recover() != nil {
			encrypted = false
		}
	}()
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return mentionsEncryption(err)
	}
	return pdfCtx.Encrypt != nil
}

func mentionsEncryption(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", pageSeparator)
	return strings.ReplaceAll(text, "\x00", "")
}
