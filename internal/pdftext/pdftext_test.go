package pdftext

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a one-page PDF carrying the given ASCII text.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	var offsets []int
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}
	writeObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	writeObj("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	writeObj("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")
	writeObj(fmt.Sprintf("4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content))
	writeObj("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xrefStart := buf.Len()
	buf.WriteString(fmt.Sprintf("xref\n0 %d\n", len(offsets)+1))
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
	}
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xrefStart))
	return buf.Bytes()
}

func TestExtractText(t *testing.T) {
	text, err := Extract(minimalPDF("Senior backend engineer"))
	require.NoError(t, err)
	assert.Contains(t, text, "Senior backend engineer")
}

func TestExtractRejectsEmptyUpload(t *testing.T) {
	_, err := Extract(nil)
	assert.Error(t, err)
}

func TestExtractRejectsOversizedUpload(t *testing.T) {
	_, err := Extract(make([]byte, MaxUploadBytes+1))
	assert.Error(t, err)
}

func TestExtractRejectsGarbage(t *testing.T) {
	_, err := Extract([]byte("this is not a pdf"))
	assert.Error(t, err)
}
