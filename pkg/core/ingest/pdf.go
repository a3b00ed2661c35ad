package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// progressThreshold is the page count above which PDF extraction reports progress.
const progressThreshold = 10

// ExtractPDF returns the plain text of every decodable page.
// Recovers from panics (e.g. zlib: invalid header) caused by corrupt PDFs.
func ExtractPDF(data []byte, progress ProgressFunc) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("panic during PDF extraction: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	totalPages := r.NumPage()
	report := progress != nil && totalPages > progressThreshold

	for i := 1; i <= totalPages; i++ {
		page := r.Page(i)
		if !page.V.IsNull() {
			if pageText, pageErr := page.GetPlainText(nil); pageErr == nil {
				sb.WriteString(pageText)
				sb.WriteString("\n")
			}
		}
		if report {
			progress(i, totalPages)
		}
	}

	return strings.TrimSpace(sb.String()), nil
}
