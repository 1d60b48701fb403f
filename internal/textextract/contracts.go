// Package textextract implements the TextExtractor contract Stage 1
// calls: an embedded-text extractor for born-digital PDFs and an
// OCR-based extractor for scans, both shelling out to external tools.
package textextract

import "context"

// Result is what Extract returns on success.
type Result struct {
	Text       string
	PageCount  int
	ElapsedMs  int64
}

// Extractor is the TextExtractor contract from §6: an idempotent, pure
// function of the file, honouring ctx cancellation at its suspension
// points.
type Extractor interface {
	Extract(ctx context.Context, path string) (Result, error)
}
