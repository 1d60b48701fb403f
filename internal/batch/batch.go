// Package batch implements the BatchCoordinator (§4.E): it owns batch
// identity, admits source files into a FIFO of pending runs, claims the
// oldest one into the PipelineEngine, transitions batch status, and
// aggregates the per-run counts the engine reports back at the end of
// a run.
//
// The Repository contract the pipeline depends on (§4.B) is
// deliberately minimal — it has no "list pending batches" query — so
// the FIFO itself is in-memory state owned here, the same way
// PipelineEngine owns live document state in-memory while Repository
// owns the durable row. Repository.UpsertBatch/UpdateBatchStatus keep
// that row current for anything reading the database directly (the
// out-of-scope HTTP surface, operator tooling), but BeginRun never
// reads it back.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
	"github.com/anandkaman/saledeedpipeline/internal/filestore"
	"github.com/anandkaman/saledeedpipeline/internal/model"
	"github.com/anandkaman/saledeedpipeline/internal/repository"
)

// entry is the in-memory record of one admitted-but-not-yet-run batch.
type entry struct {
	batchID   string
	batchName string
	createdAt time.Time
	total     int
}

// Coordinator is the BatchCoordinator. One instance is shared by the
// process; it is safe for concurrent use.
type Coordinator struct {
	files  *filestore.Store
	repo   repository.Repository
	logger *slog.Logger

	mu       sync.Mutex
	pending  []entry          // FIFO, oldest first
	active   map[string]entry // batchID -> entry, while Running
	attempts map[string]int   // document_id -> attempt count, stable across retries
}

// New constructs a Coordinator over the given FileStore and Repository.
func New(files *filestore.Store, repo repository.Repository, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		files:    files,
		repo:     repo,
		logger:   logger,
		active:   make(map[string]entry),
		attempts: make(map[string]int),
	}
}

// NewBatch admits sourcePaths as a new batch (§4.E NewBatch): it mints a
// batch id, copies/moves the files into the inbox via FileStore.Admit,
// persists a Pending row, and enqueues the batch for a future BeginRun.
func (c *Coordinator) NewBatch(ctx context.Context, sourcePaths []string) (string, error) {
	if len(sourcePaths) == 0 {
		return "", apperr.New(apperr.InvalidInput, "NewBatch requires at least one source path", nil)
	}

	batchID := newBatchID()
	documentIDs, admittedPaths, err := c.files.Admit(batchID, sourcePaths)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	e := entry{
		batchID:   batchID,
		batchName: filepath.Base(sourcePaths[0]),
		createdAt: now,
		total:     len(admittedPaths),
	}

	b := model.Batch{
		BatchID:   e.batchID,
		BatchName: e.batchName,
		CreatedAt: e.createdAt,
		Status:    model.BatchPending,
		Counts:    model.BatchCounts{Total: e.total},
	}
	if err := c.repo.UpsertBatch(ctx, b); err != nil {
		return "", err
	}

	c.mu.Lock()
	for _, docID := range documentIDs {
		if _, ok := c.attempts[docID]; !ok {
			c.attempts[docID] = 1
		}
	}
	c.pending = append(c.pending, e)
	c.mu.Unlock()

	c.logger.Info("batch admitted", "batch_id", batchID, "total", e.total)
	return batchID, nil
}

// BeginRun selects the oldest Pending batch, flips it to Running, and
// returns its claimed documents (§4.D.2 step 2, §4.E BeginRun). It is
// called once per PipelineEngine.Start.
func (c *Coordinator) BeginRun(ctx context.Context) (batchID string, docs []model.Document, err error) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return "", nil, apperr.New(apperr.NotFound, "no pending batch to run", nil)
	}
	e := c.pending[0]
	c.pending = c.pending[1:]
	c.active[e.batchID] = e
	c.mu.Unlock()

	paths, err := c.files.Claim(e.batchID)
	if err != nil {
		return "", nil, err
	}

	now := time.Now().UTC()
	if err := c.repo.UpdateBatchStatus(ctx, e.batchID, model.BatchRunning, &now, nil); err != nil {
		return "", nil, err
	}

	c.mu.Lock()
	docs = make([]model.Document, 0, len(paths))
	for _, p := range paths {
		docID, ok := filestore.DocumentIDFromName(e.batchID, filepath.Base(p))
		if !ok {
			c.mu.Unlock()
			return "", nil, apperr.Newf(apperr.Internal, nil, "claimed path %q does not carry batch prefix %q", p, e.batchID)
		}
		docs = append(docs, model.Document{
			DocumentID: docID,
			BatchID:    e.batchID,
			SourcePath: p,
			State:      model.DocPending,
			Attempt:    c.attempts[docID],
		})
	}
	c.mu.Unlock()

	c.logger.Info("run begun", "batch_id", e.batchID, "claimed", len(docs))
	return e.batchID, docs, nil
}

// EndRun marks batchID terminal (Completed or Cancelled), stamps
// finished_at, and persists the final counts the engine observed
// (§4.D.6, §4.E EndRun).
func (c *Coordinator) EndRun(ctx context.Context, batchID string, status model.BatchStatus, counts model.BatchCounts) error {
	if status != model.BatchCompleted && status != model.BatchCancelled {
		return apperr.Newf(apperr.Internal, nil, "EndRun requires a terminal status, got %q", status)
	}

	now := time.Now().UTC()
	if err := c.repo.UpdateBatchStatus(ctx, batchID, status, nil, &now); err != nil {
		return err
	}

	c.mu.Lock()
	e, ok := c.active[batchID]
	if ok {
		delete(c.active, batchID)
	}
	c.mu.Unlock()
	if !ok {
		e = entry{batchID: batchID}
	}

	b := model.Batch{
		BatchID:             batchID,
		BatchName:           e.batchName,
		CreatedAt:           e.createdAt,
		ProcessingStartedAt: &now,
		FinishedAt:          &now,
		Status:              status,
		Counts:              counts,
	}
	if err := c.repo.UpsertBatch(ctx, b); err != nil {
		return err
	}

	c.logger.Info("run ended", "batch_id", batchID, "status", status,
		"succeeded", counts.Succeeded, "failed", counts.Failed, "cancelled", counts.Cancelled)
	return nil
}

// RetryBatch enumerates failed/ for oldBatchID, moves those files back
// into the inbox under a freshly-minted batch id, and enqueues a new
// Pending batch for them (§4.E RetryBatch, §9 open question: a new
// batch id is minted rather than reusing oldBatchID, so progress on the
// retry is independently observable).
func (c *Coordinator) RetryBatch(ctx context.Context, oldBatchID string) (retryBatchID string, err error) {
	failedPaths, err := c.files.CollectFailed(oldBatchID)
	if err != nil {
		return "", err
	}
	if len(failedPaths) == 0 {
		return "", apperr.Newf(apperr.NotFound, nil, "no failed documents for batch %q", oldBatchID)
	}

	retryBatchID = newBatchID()
	documentIDs, admittedPaths, err := c.files.ReAdmit(retryBatchID, failedPaths)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	e := entry{
		batchID:   retryBatchID,
		batchName: fmt.Sprintf("retry of %s", oldBatchID),
		createdAt: now,
		total:     len(admittedPaths),
	}

	b := model.Batch{
		BatchID:   e.batchID,
		BatchName: e.batchName,
		CreatedAt: e.createdAt,
		Status:    model.BatchPending,
		Counts:    model.BatchCounts{Total: e.total},
	}
	if err := c.repo.UpsertBatch(ctx, b); err != nil {
		return "", err
	}

	c.mu.Lock()
	for _, docID := range documentIDs {
		c.attempts[docID]++
	}
	c.pending = append(c.pending, e)
	c.mu.Unlock()

	c.logger.Info("batch retried", "old_batch_id", oldBatchID, "new_batch_id", retryBatchID, "count", e.total)
	return retryBatchID, nil
}

// HasPending reports whether a batch is waiting for BeginRun, so the
// process's control loop (cmd/saledeedpipeline) can decide whether
// calling Start would find anything to do.
func (c *Coordinator) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

func newBatchID() string {
	stamp := time.Now().UTC().Format("20060102T150405Z")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("BATCH-%s-%s", stamp, suffix)
}
