// Package extract implements the document extractor (C1): turning a
// filesystem path into a UTF-8 string of indexable text, or an empty
// string when the file carries no indexable content.
package extract

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/nullstride/archivist/internal/config"
)

// Extractor turns a file on disk into indexable text.
//
// Extract never returns an error to the caller: any failure (oversized
// file, unreadable PDF, extraction timeout) is logged at Warn and the
// caller receives an empty string, which downstream components treat as
// "no indexable content" rather than a fault.
type Extractor struct {
	cfg    config.ExtractConfig
	logger *slog.Logger
}

// New builds an Extractor. A nil logger falls back to slog.Default().
func New(cfg config.ExtractConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract reads path and returns its text content, or "" if the file is
// too large, has an unsupported extension, or extraction fails.
func (e *Extractor) Extract(ctx context.Context, path string) string {
	info, err := os.Stat(path)
	if err != nil {
		e.logger.Warn("extract: stat failed", "path", path, "err", err)
		return ""
	}
	if info.Size() > e.cfg.MaxFileSize {
		e.logger.Warn("extract: file exceeds max_file_size", "path", path, "size", info.Size(), "max", e.cfg.MaxFileSize)
		return ""
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return e.extractPlainText(path)
	case ".pdf":
		return e.extractPDF(ctx, path)
	default:
		return ""
	}
}

func (e *Extractor) extractPlainText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Warn("extract: read failed", "path", path, "err", err)
		return ""
	}
	return strings.ToValidUTF8(string(data), "�")
}

// extractPDF races the (potentially hanging) third-party PDF extractor
// against a wall-clock timeout. The losing goroutine is never joined: if
// it outlives the timeout, its result is simply discarded when it finally
// finishes, since pdf.Open/GetPlainText give no cooperative cancellation.
func (e *Extractor) extractPDF(ctx context.Context, path string) string {
	timeout := e.cfg.PDFTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		text, err := readPDFText(path)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			e.logger.Warn("extract: pdf extraction failed", "path", path, "err", r.err)
			return ""
		}
		return r.text
	case <-time.After(timeout):
		e.logger.Warn("extract: pdf extraction timed out", "path", path, "timeout", timeout)
		return ""
	case <-ctx.Done():
		e.logger.Warn("extract: context cancelled during pdf extraction", "path", path)
		return ""
	}
}

func readPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	totalPage := r.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.ToValidUTF8(sb.String(), "�"), nil
}
