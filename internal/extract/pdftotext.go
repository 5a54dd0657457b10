package extract

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText reads page text from PDFs using the pdftotext CLI tool.
// pdftotext separates pages with a form feed, which ReadPages splits on.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText reader. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ReadPages runs pdftotext -layout on the given PDF and splits stdout into pages.
func (p *PdfToText) ReadPages(ctx context.Context, path string) ([]Page, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "extract: pdftotext failed for %s: %s", path, stderr.String())
	}

	return SplitPages(path, stdout.String()), nil
}

// SplitPages splits raw pdftotext output into per-page text on form feeds.
// A trailing form feed does not produce an empty final page, but blank
// pages in the middle of a document are kept so page numbers stay aligned
// with the scan.
func SplitPages(sourceFile, raw string) []Page {
	chunks := strings.Split(raw, "\f")
	if len(chunks) > 1 && strings.TrimSpace(chunks[len(chunks)-1]) == "" {
		chunks = chunks[:len(chunks)-1]
	}

	pages := make([]Page, 0, len(chunks))
	for i, chunk := range chunks {
		pages = append(pages, Page{
			SourceFile: sourceFile,
			PageNumber: i + 1,
			Text:       chunk,
		})
	}
	return pages
}
