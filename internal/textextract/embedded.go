package textextract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
)

// EmbeddedExtractor reads the text layer already present in a
// born-digital PDF via pdftotext, grounded on the teacher's pdfToText.
// It never touches an OCR engine, so it is the cheap path for deeds
// that were generated electronically rather than scanned.
type EmbeddedExtractor struct {
	Pdftotext string
	runner    Runner
	logger    *slog.Logger
}

// NewEmbeddedExtractor constructs an extractor with defaults filled in.
func NewEmbeddedExtractor(pdftotext string, logger *slog.Logger) *EmbeddedExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if pdftotext == "" {
		pdftotext = "pdftotext"
	}
	return &EmbeddedExtractor{Pdftotext: pdftotext, runner: execRunner{}, logger: logger}
}

func (e *EmbeddedExtractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		return Result{}, apperr.New(apperr.Cancelled, "embedded extraction cancelled", ctx.Err())
	default:
	}

	out, errb, err := e.runner.Run(ctx, e.Pdftotext, e.logger, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return Result{}, apperr.New(apperr.OcrError, "pdftotext failed: "+string(errb), err)
	}
	text := string(out)
	pages := 1 + strings.Count(text, "\f")
	return Result{Text: text, PageCount: pages, ElapsedMs: time.Since(start).Milliseconds()}, nil
}
