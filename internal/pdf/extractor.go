package pdf

import (
	"bytes"
	"strings"

	ledongthucpdf "github.com/ledongthuc/pdf"
	rscpdf "rsc.io/pdf"

	"github.com/pickflow/separation/internal/apperr"
)

// ExtractText renders a PDF byte stream to a single Unicode string with
// pages in natural reading order, using a layout-aware primary backend and
// a page-stream fallback. The fallback is attempted iff the primary
// returns an empty or whitespace-only string; any other primary failure is
// demoted to an empty result so the fallback still gets a chance.
func ExtractText(data []byte) (string, error) {
	text, _ := extractLayoutAware(data)
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	text, _ = extractPageStream(data)
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	return "", apperr.New(apperr.CodeExtractionEmpty, "no text could be extracted from the uploaded PDF")
}

// extractLayoutAware is the primary backend: ledongthuc/pdf reconstructs
// reading order from the page layout, which performs best on modern
// quotation PDFs.
func extractLayoutAware(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	doc, err := ledongthucpdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(content)
		buf.WriteString("\n")
	}

	return buf.String(), nil
}

// extractPageStream is the fallback backend: rsc.io/pdf walks the raw
// content stream per page. Less layout-faithful, but recovers text from
// PDFs the primary backend chokes on.
func extractPageStream(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	doc, err := rscpdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		for _, text := range content.Text {
			sb.WriteString(text.S)
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
