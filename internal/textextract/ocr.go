package textextract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
)

// OCRExtractor rasterizes each page of a scanned PDF and runs an OCR
// engine over it, grounded on the teacher's pdfToOCR/tesseractOCR. It
// generalizes the teacher's always-sequential per-page loop into an
// optional bounded worker pool over pages, since this pipeline's
// enable_page_parallel_ocr/ocr_page_workers config has no analogue in
// the teacher (which never fans pages out).
//
// The sub-workers used for page fan-out are internal to this extractor
// and are never visible to PipelineEngine's Stage-1 pool accounting;
// they count against the same process's CPU/memory budget, not the
// LLM pool.
type OCRExtractor struct {
	Pdftoppm  string
	Tesseract string
	Lang      string
	DPI       int
	MaxPages  int

	// PageWorkers > 1 enables fan-out across pages within one document.
	PageWorkers int

	runner Runner
	logger *slog.Logger
}

// NewOCRExtractor constructs an extractor with defaults filled in.
// pageWorkers <= 1 means pages are OCR'd sequentially within the
// calling Stage-1 worker (enable_page_parallel_ocr = false).
func NewOCRExtractor(pdftoppm, tesseract, lang string, dpi, maxPages, pageWorkers int, logger *slog.Logger) *OCRExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	if tesseract == "" {
		tesseract = "tesseract"
	}
	if lang == "" {
		lang = "eng+kan"
	}
	if dpi <= 0 {
		dpi = 300
	}
	if pageWorkers < 1 {
		pageWorkers = 1
	}
	return &OCRExtractor{
		Pdftoppm: pdftoppm, Tesseract: tesseract, Lang: lang, DPI: dpi, MaxPages: maxPages,
		PageWorkers: pageWorkers, runner: execRunner{}, logger: logger,
	}
}

func (e *OCRExtractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		return Result{}, apperr.New(apperr.Cancelled, "ocr extraction cancelled", ctx.Err())
	default:
	}

	tmpDir, err := os.MkdirTemp("", "sd-pp-*")
	if err != nil {
		return Result{}, apperr.New(apperr.OcrError, "create temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := e.runner.Run(ctx, e.Pdftoppm, e.logger, "-r", fmt.Sprintf("%d", e.DPI), "-png", path, prefix)
	if err != nil {
		return Result{}, apperr.New(apperr.OcrError, "pdftoppm failed: "+string(errb), err)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.MaxPages > 0 && len(matches) > e.MaxPages {
		matches = matches[:e.MaxPages]
	}
	if len(matches) == 0 {
		return Result{}, apperr.New(apperr.OcrError, "pdftoppm produced no images", nil)
	}

	var pageTexts []string
	if e.PageWorkers <= 1 {
		pageTexts, err = e.ocrPagesSequential(ctx, matches)
	} else {
		pageTexts, err = e.ocrPagesParallel(ctx, matches)
	}
	if err != nil {
		return Result{}, err
	}

	text := CleanScriptNoise(strings.Join(pageTexts, "\n\f\n"))
	return Result{Text: text, PageCount: len(matches), ElapsedMs: time.Since(start).Milliseconds()}, nil
}

func (e *OCRExtractor) ocrPagesSequential(ctx context.Context, images []string) ([]string, error) {
	out := make([]string, len(images))
	for i, img := range images {
		select {
		case <-ctx.Done():
			return nil, apperr.New(apperr.Cancelled, "ocr extraction cancelled mid-page", ctx.Err())
		default:
		}
		txt, err := e.tesseractPage(ctx, img)
		if err != nil {
			return nil, err
		}
		out[i] = txt
	}
	return out, nil
}

// ocrPagesParallel runs up to PageWorkers tesseract invocations
// concurrently, bounded by a buffered semaphore channel, then
// reassembles pages in original order.
func (e *OCRExtractor) ocrPagesParallel(ctx context.Context, images []string) ([]string, error) {
	out := make([]string, len(images))
	errs := make([]error, len(images))
	sem := make(chan struct{}, e.PageWorkers)
	var wg sync.WaitGroup

	for i, img := range images {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, img string) {
			defer wg.Done()
			defer func() { <-sem }()
			select {
			case <-ctx.Done():
				errs[i] = apperr.New(apperr.Cancelled, "ocr extraction cancelled mid-page", ctx.Err())
				return
			default:
			}
			txt, err := e.tesseractPage(ctx, img)
			if err != nil {
				errs[i] = err
				return
			}
			out[i] = txt
		}(i, img)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *OCRExtractor) tesseractPage(ctx context.Context, imgPath string) (string, error) {
	stdoutBase := strings.TrimSuffix(imgPath, filepath.Ext(imgPath))
	_, errb, err := e.runner.Run(ctx, e.Tesseract, e.logger, imgPath, stdoutBase, "-l", e.Lang)
	if err != nil {
		return "", apperr.New(apperr.OcrError, "tesseract failed: "+string(errb), err)
	}
	data, err := os.ReadFile(stdoutBase + ".txt")
	if err != nil {
		return "", apperr.New(apperr.OcrError, "read tesseract output", err)
	}
	return string(data), nil
}
