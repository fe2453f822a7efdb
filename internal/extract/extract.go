// Package extract pulls plain text out of PDF documents for providers that cannot read the
// file itself.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"resume-critique/internal/shared/telemetry"
)

// ErrNoText is returned when neither extractor finds any text.
var ErrNoText = errors.New("no text could be extracted from the document")

// PDFText extracts the document text with ledongthuc/pdf and falls back to the unipdf
// extractor for files the first parser cannot handle.
func PDFText(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("empty pdf data")
	}

	text, err := plainText(data)
	if err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), nil
	}
	if err != nil {
		telemetry.Debug("extract.fallback", map[string]any{"reason": err})
	}

	text, fallbackErr := uniText(data)
	if fallbackErr != nil {
		if err != nil {
			return "", fmt.Errorf("extract pdf: %w (fallback: %v)", err, fallbackErr)
		}
		return "", fmt.Errorf("extract pdf: %w", fallbackErr)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return strings.TrimSpace(text), nil
}

func plainText(data []byte) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func uniText(data []byte) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unipdf panic: %v", rec)
		}
	}()
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("get page count: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			continue
		}
		pageText, err := ex.ExtractText()
		if err != nil || pageText == "" {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}
