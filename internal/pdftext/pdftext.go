// Package pdftext reads the embedded text layer of PDF documents.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	ErrMalformed   = errors.New("malformed pdf")
	ErrEncrypted   = errors.New("pdf is encrypted")
	ErrNoTextLayer = errors.New("pdf has no text layer")
)

// Extractor pulls text out of PDF bytes. It does not rasterize pages, so
// scanned documents without a text layer fail with ErrNoTextLayer.
type Extractor struct {
	conf *model.Configuration
}

// NewExtractor returns an Extractor that validates documents in relaxed mode.
func NewExtractor() *Extractor {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return &Extractor{conf: cfg}
}

// Extract validates b and returns the text of every page joined by newlines.
func (e *Extractor) Extract(ctx context.Context, b []byte) (text string, err error) {
	if len(b) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrMalformed)
	}

	pageCount, err := e.validate(b)
	if err != nil {
		return "", err
	}

	// The text reader panics on some broken content streams.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	text, skipped, pageErr := joinPages(r.NumPage(), func(i int) (string, bool, error) {
		page := r.Page(i)
		if page.V.IsNull() {
			return "", false, nil
		}
		t, err := page.GetPlainText(nil)
		return t, true, err
	})

	if err := checkText(text, skipped, pageCount, pageErr); err != nil {
		return "", err
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped unreadable PDF pages.", "skipped", skipped, "pageCount", pageCount, "error", pageErr)
	}
	return text, nil
}

// checkText rejects an empty result. A document is only reported as lacking
// a text layer when no page failed to read.
func checkText(text string, skipped, pageCount int, pageErr error) error {
	if strings.TrimSpace(text) != "" {
		return nil
	}
	if pageErr != nil {
		return fmt.Errorf("%w: %d of %d page(s) unreadable: %w", ErrMalformed, skipped, pageCount, pageErr)
	}
	return fmt.Errorf("%w: %d page(s) without extractable text", ErrNoTextLayer, pageCount)
}

// joinPages reads pages 1..n and joins their text with newlines. Pages that
// fail to read are skipped; the count and the first failure are returned.
func joinPages(n int, read func(i int) (text string, ok bool, err error)) (string, int, error) {
	var (
		sb       strings.Builder
		skipped  int
		firstErr error
	)
	for i := 1; i <= n; i++ {
		pageText, ok, err := read(i)
		if err != nil {
			skipped++
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", i, err)
			}
			continue
		}
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(pageText)
	}
	return sb.String(), skipped, firstErr
}

// validate checks the document structure and returns its page count.
func (e *Extractor) validate(b []byte) (int, error) {
	pdfCtx, err := api.ReadContext(bytes.NewReader(b), e.conf)
	if err != nil {
		if isPasswordError(err) {
			return 0, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if pdfCtx.Encrypt != nil {
		return 0, ErrEncrypted
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return pdfCtx.PageCount, nil
}

func isPasswordError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
