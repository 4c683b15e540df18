// Package pdftext extracts plain text from uploaded PDF resumes.
package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxUploadBytes bounds accepted PDF uploads.
const MaxUploadBytes = 20 << 20

// ErrNoText means the PDF parsed fine but contained no extractable text,
// typically a scanned document.
var ErrNoText = fmt.Errorf("pdf contains no extractable text")

// Extract pulls the plain text out of a PDF, page texts joined with blank
// lines.
func Extract(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty pdf upload")
	}
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("pdf exceeds %d bytes", MaxUploadBytes)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse pdf: %w", err)
	}

	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single broken page should not sink the whole resume.
			continue
		}
		if t := strings.TrimSpace(text); t != "" {
			parts = append(parts, t)
		}
	}

	if len(parts) == 0 {
		return "", ErrNoText
	}
	return strings.Join(parts, "\n\n"), nil
}
