// Package engine implements the PipelineEngine (§4.D): the scheduler
// that drives a batch's documents through Stage 1 (OCR) and Stage 2
// (LLM extraction) over a bounded hand-off channel, with live
// statistics and cooperative cancellation.
//
// It is the one component this module's spec calls "the hard part":
// two worker pools, a single bounded channel as the entire backpressure
// contract, a mutex-guarded FIFO cursor for work claiming, and a
// shared done-counter (sync.WaitGroup) to know when to close the
// channel. Grounded on the teacher's internal/core/async ProcessorQueue
// (functional-options construction, wg/mutex lifecycle, Enqueue/
// Shutdown naming) generalized from one pool to two pools either side
// of a channel.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
	"github.com/anandkaman/saledeedpipeline/internal/filestore"
	"github.com/anandkaman/saledeedpipeline/internal/llmextract"
	"github.com/anandkaman/saledeedpipeline/internal/model"
	"github.com/anandkaman/saledeedpipeline/internal/repository"
	"github.com/anandkaman/saledeedpipeline/internal/textextract"
)

// Config mirrors the Start configuration from §4.D.1. All fields are
// required and validated on entry.
type Config struct {
	OCRWorkers            int
	LLMWorkers            int
	QueueSize             int
	EnablePageParallelOCR bool
	OCRPageWorkers        int
	LLMTimeout            time.Duration
}

// Validate enforces the ranges §4.D.1/§6 name.
func (c Config) Validate() error {
	switch {
	case c.OCRWorkers < 1 || c.OCRWorkers > 20:
		return apperr.New(apperr.InvalidInput, "ocr_workers must be in 1..20", nil)
	case c.LLMWorkers < 1 || c.LLMWorkers > 20:
		return apperr.New(apperr.InvalidInput, "llm_workers must be in 1..20", nil)
	case c.QueueSize < 1 || c.QueueSize > 10:
		return apperr.New(apperr.InvalidInput, "queue_size must be in 1..10", nil)
	case c.EnablePageParallelOCR && (c.OCRPageWorkers < 1 || c.OCRPageWorkers > 8):
		return apperr.New(apperr.InvalidInput, "ocr_page_workers must be in 1..8", nil)
	case c.LLMTimeout <= 0:
		return apperr.New(apperr.InvalidInput, "llm_timeout must be positive", nil)
	}
	return nil
}

// BatchCoordinator is the subset of batch.Coordinator the engine drives
// a run through. Declared here, satisfied structurally by
// *batch.Coordinator, so engine tests can supply a fake.
type BatchCoordinator interface {
	BeginRun(ctx context.Context) (batchID string, docs []model.Document, err error)
	EndRun(ctx context.Context, batchID string, status model.BatchStatus, counts model.BatchCounts) error
}

// FileRouter is the subset of filestore.Store the engine's workers use
// to move a finished document's source file out of the inbox.
type FileRouter interface {
	Route(sourcePath string, outcome filestore.Outcome) error
}

// CleanFunc is validator.Clean's signature: the §4.D.4 step-3 field
// cleaning pass applied to every Stage-2 result before persistence.
type CleanFunc func(model.StructuredRecord) (model.StructuredRecord, error)

// Engine is the PipelineEngine. One instance is constructed per
// process (§9: "one constructed PipelineEngine instance threaded
// through the process"). Configuration is passed as a value to Start,
// never held as a package global.
type Engine struct {
	batch  BatchCoordinator
	files  FileRouter
	repo   repository.Repository
	struc  llmextract.Extractor
	clean  CleanFunc
	logger *slog.Logger

	stats *liveStats

	mu              sync.Mutex
	running         bool
	cancelRequested bool
	cancel          context.CancelFunc
	embedded        textextract.Extractor
	ocr             textextract.Extractor
	current         textextract.Extractor
}

// New constructs an idle Engine. embedded and ocrExtractor are the two
// hot-swappable TextExtractor implementations ToggleEmbeddedOcr flips
// between; the engine starts on ocrExtractor, matching the default
// extractor_mode of "ocr" (§6).
func New(
	coordinator BatchCoordinator,
	files FileRouter,
	repo repository.Repository,
	embedded, ocrExtractor textextract.Extractor,
	structured llmextract.Extractor,
	clean CleanFunc,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		batch:    coordinator,
		files:    files,
		repo:     repo,
		struc:    structured,
		clean:    clean,
		logger:   logger,
		stats:    &liveStats{},
		embedded: embedded,
		ocr:      ocrExtractor,
		current:  ocrExtractor,
	}
}

// Start begins a run over the oldest pending batch (§4.D.2). It
// returns once the two worker pools are launched; processing then
// proceeds on its own goroutines.
func (e *Engine) Start(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return apperr.ErrAlreadyRunning
	}
	e.running = true
	e.cancelRequested = false
	if oe, ok := e.current.(*textextract.OCRExtractor); ok {
		if cfg.EnablePageParallelOCR {
			oe.PageWorkers = cfg.OCRPageWorkers
		} else {
			oe.PageWorkers = 1
		}
	}
	e.mu.Unlock()

	batchID, docs, err := e.batch.BeginRun(ctx)
	if err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	e.stats.reset(len(docs))

	if len(docs) == 0 {
		if err := e.batch.EndRun(context.Background(), batchID, model.BatchCompleted, model.BatchCounts{}); err != nil {
			e.logger.Error("end empty run failed", "batch_id", batchID, "error", err)
		}
		e.stats.setRunning(false)
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	ch := make(chan model.StageResult, cfg.QueueSize)
	cur := newCursor(docs)
	docState := newDocStateTracker(docs)

	var wg1, wg2 sync.WaitGroup
	for i := 0; i < cfg.OCRWorkers; i++ {
		wg1.Add(1)
		go e.stage1Loop(runCtx, cur, ch, batchID, docState, &wg1)
	}
	go func() {
		wg1.Wait()
		// Any document the cursor never handed to a worker (Stop fired
		// before it was claimed) is still unaccounted for: route it to
		// failed/ as Cancelled too, or succeeded+failed+cancelled would
		// never reach total (§3, §8 scenario 3).
		e.drainCursor(cur, batchID, docState)
		close(ch)
	}()

	for i := 0; i < cfg.LLMWorkers; i++ {
		wg2.Add(1)
		go e.stage2Loop(runCtx, ch, batchID, cfg, docState, &wg2)
	}

	go func() {
		wg2.Wait()
		e.finishRun(batchID)
	}()

	e.logger.Info("run started", "batch_id", batchID, "documents", len(docs),
		"ocr_workers", cfg.OCRWorkers, "llm_workers", cfg.LLMWorkers, "queue_size", cfg.QueueSize)
	return nil
}

// Stop sets the cooperative cancellation signal and returns the count
// of documents that had not yet reached Succeeded at the moment it was
// observed (§5 Cancellation semantics). It is idempotent: calling it
// when the engine is idle is a no-op that returns 0.
func (e *Engine) Stop() int {
	e.mu.Lock()
	if !e.running || e.cancelRequested {
		e.mu.Unlock()
		return 0
	}
	e.cancelRequested = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return e.stats.notSucceeded()
}

// Stats returns a consistent, atomically-read snapshot (§4.D.5).
func (e *Engine) Stats() model.Snapshot {
	return e.stats.snapshot()
}

// ToggleEmbeddedOcr flips the active TextExtractor implementation. It
// is rejected with Busy while a batch is running (§4.D.1, §9: mutating
// the extractor pointer under a mutex, never a global).
func (e *Engine) ToggleEmbeddedOcr(useEmbedded bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return apperr.ErrBusy
	}
	if useEmbedded {
		e.current = e.embedded
	} else {
		e.current = e.ocr
	}
	return nil
}

func (e *Engine) currentExtractor() textextract.Extractor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) isCancelRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelRequested
}

func (e *Engine) finishRun(batchID string) {
	cancelled := e.isCancelRequested()
	e.stats.setRunning(false)

	snap := e.stats.snapshot()
	status := model.BatchCompleted
	if cancelled {
		status = model.BatchCancelled
	}
	counts := model.BatchCounts{
		Total: snap.Total, Succeeded: snap.Succeeded, Failed: snap.Failed, Cancelled: snap.Cancelled,
	}

	if err := e.batch.EndRun(context.Background(), batchID, status, counts); err != nil {
		e.logger.Error("end run failed", "batch_id", batchID, "error", err)
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.logger.Info("run finished", "batch_id", batchID, "status", status,
		"succeeded", counts.Succeeded, "failed", counts.Failed, "cancelled", counts.Cancelled)
}

// cursor is the §4.D.3 "simple mutex-guarded FIFO cursor": Stage-1
// workers take the next unclaimed document in filesystem enumeration
// order (the order BatchCoordinator.BeginRun returned them in, since
// FileStore.Claim sorts its listing).
type cursor struct {
	mu   sync.Mutex
	docs []model.Document
	idx  int
}

func newCursor(docs []model.Document) *cursor {
	return &cursor{docs: docs}
}

func (c *cursor) next() (model.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.docs) {
		return model.Document{}, false
	}
	d := c.docs[c.idx]
	c.idx++
	return d, true
}

func (e *Engine) routeFailed(batchID string, doc model.Document, kind apperr.Kind, diagnostic string, docState *docStateTracker) {
	docState.transition(doc.DocumentID, model.DocFailed)
	ctx := context.Background()
	if err := e.repo.RecordFailure(ctx, doc.DocumentID, batchID, kind, diagnostic); err != nil {
		e.logger.Error("record failure failed", "document_id", doc.DocumentID, "error", err)
	}
	if err := e.files.Route(doc.SourcePath, filestore.Failed); err != nil {
		e.logger.Error("route failed document failed", "document_id", doc.DocumentID, "error", err)
	}
	e.stats.incFailed()
	if kind.Retryable() {
		e.logger.Warn("document failed", "document_id", doc.DocumentID, "batch_id", batchID, "kind", kind, "diagnostic", diagnostic)
	} else {
		e.logger.Error("document failed", "document_id", doc.DocumentID, "batch_id", batchID, "kind", kind, "diagnostic", diagnostic)
	}
}

func (e *Engine) routeCancelled(batchID string, doc model.Document, docState *docStateTracker) {
	docState.transition(doc.DocumentID, model.DocCancelled)
	ctx := context.Background()
	if err := e.repo.RecordFailure(ctx, doc.DocumentID, batchID, apperr.Cancelled, "stop requested"); err != nil {
		e.logger.Error("record cancellation failed", "document_id", doc.DocumentID, "error", err)
	}
	if err := e.files.Route(doc.SourcePath, filestore.Cancelled); err != nil {
		e.logger.Error("route cancelled document failed", "document_id", doc.DocumentID, "error", err)
	}
	e.stats.incCancelled()
	e.logger.Info("document cancelled", "document_id", doc.DocumentID, "batch_id", batchID)
}

// drainCursor routes every document the cursor still holds (i.e. never
// handed to a Stage-1 worker before the pool shut down) to failed/ as
// Cancelled. When the run ends without cancellation the cursor is
// already empty and this is a no-op.
func (e *Engine) drainCursor(cur *cursor, batchID string, docState *docStateTracker) {
	for {
		doc, ok := cur.next()
		if !ok {
			return
		}
		e.routeCancelled(batchID, doc, docState)
	}
}

// stage1Loop is one Stage-1 (OCR) worker (§4.D.3).
func (e *Engine) stage1Loop(ctx context.Context, cur *cursor, ch chan<- model.StageResult, batchID string, docState *docStateTracker, wg1 *sync.WaitGroup) {
	defer wg1.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		doc, ok := cur.next()
		if !ok {
			return
		}

		docState.transition(doc.DocumentID, model.DocStage1Running)
		e.stats.setCurrentFile(doc.SourcePath)
		e.stats.incOCRActive()
		result, err := e.currentExtractor().Extract(ctx, doc.SourcePath)
		e.stats.decOCRActive()

		if err != nil {
			if apperr.Is(err, apperr.Cancelled) || ctx.Err() != nil {
				e.routeCancelled(batchID, doc, docState)
				return
			}
			e.routeFailed(batchID, doc, apperr.KindOf(err), err.Error(), docState)
			continue
		}

		sr := model.StageResult{
			DocumentID:   doc.DocumentID,
			BatchID:      batchID,
			SourcePath:   doc.SourcePath,
			Text:         result.Text,
			OCRElapsedMs: result.ElapsedMs,
			OCRPageCount: result.PageCount,
		}

		docState.transition(doc.DocumentID, model.DocQueued)
		select {
		case <-ctx.Done():
			e.routeCancelled(batchID, doc, docState)
			return
		case ch <- sr:
		}
	}
}

// stage2Loop is one Stage-2 (LLM) worker (§4.D.4).
func (e *Engine) stage2Loop(ctx context.Context, ch <-chan model.StageResult, batchID string, cfg Config, docState *docStateTracker, wg2 *sync.WaitGroup) {
	defer wg2.Done()
	for sr := range ch {
		doc := model.Document{DocumentID: sr.DocumentID, BatchID: sr.BatchID, SourcePath: sr.SourcePath}
		docState.transition(doc.DocumentID, model.DocStage2Running)

		if ctx.Err() != nil {
			e.routeCancelled(batchID, doc, docState)
			continue
		}

		e.stats.setCurrentFile(sr.SourcePath)
		e.stats.incLLMActive()
		rec, err := e.parseWithTimeout(ctx, sr.Text, cfg.LLMTimeout)
		if err == nil {
			rec, err = e.clean(rec)
		}
		if err == nil {
			// Persist under the filename-stem id the document was admitted
			// with, not whatever identifier the LLM returned.
			rec.DocumentID = sr.DocumentID
			err = e.repo.UpsertDocument(ctx, rec, batchID)
		}
		if err == nil {
			err = e.files.Route(sr.SourcePath, filestore.Succeeded)
		}
		e.stats.decLLMActive()

		if err != nil {
			if apperr.Is(err, apperr.Cancelled) {
				e.routeCancelled(batchID, doc, docState)
			} else {
				e.routeFailed(batchID, doc, apperr.KindOf(err), err.Error(), docState)
			}
			continue
		}
		docState.transition(doc.DocumentID, model.DocSucceeded)
		e.stats.incSucceeded()
	}
}

func (e *Engine) parseWithTimeout(ctx context.Context, text string, timeout time.Duration) (model.StructuredRecord, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	rec, err := e.struc.Parse(callCtx, text)
	if err != nil && callCtx.Err() == context.DeadlineExceeded {
		return model.StructuredRecord{}, apperr.New(apperr.LlmTimeout, "llm call timed out", err)
	}
	return rec, err
}
