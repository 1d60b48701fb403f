package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
	"github.com/anandkaman/saledeedpipeline/internal/filestore"
	"github.com/anandkaman/saledeedpipeline/internal/model"
)

// repoFake is a minimal repository.Repository for exercising the
// Coordinator's calls without a database.
type repoFake struct {
	mu      sync.Mutex
	batches map[string]model.Batch
}

func newRepoFake() *repoFake { return &repoFake{batches: make(map[string]model.Batch)} }

func (r *repoFake) UpsertBatch(_ context.Context, b model.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[b.BatchID] = b
	return nil
}

func (r *repoFake) UpdateBatchStatus(_ context.Context, batchID string, status model.BatchStatus, startedAt, finishedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return apperr.ErrNotFound
	}
	if !model.CanTransitionBatch(b.Status, status) {
		return apperr.Newf(apperr.Conflict, nil, "illegal transition %s -> %s", b.Status, status)
	}
	b.Status = status
	if startedAt != nil {
		b.ProcessingStartedAt = startedAt
	}
	if finishedAt != nil {
		b.FinishedAt = finishedAt
	}
	r.batches[batchID] = b
	return nil
}

func (r *repoFake) UpsertDocument(context.Context, model.StructuredRecord, string) error { return nil }
func (r *repoFake) RecordFailure(context.Context, string, string, apperr.Kind, string) error {
	return nil
}
func (r *repoFake) GetFailedByBatch(context.Context) (map[string][]string, error) { return nil, nil }

func (r *repoFake) get(batchID string) model.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[batchID]
}

func newTempStore(t *testing.T) *filestore.Store {
	t.Helper()
	root := t.TempDir()
	store, err := filestore.New(filestore.Config{
		InboxDir:     filepath.Join(root, "inbox"),
		ProcessedDir: filepath.Join(root, "processed"),
		FailedDir:    filepath.Join(root, "failed"),
		RetryFeeDir:  filepath.Join(root, "retry_fee"),
	}, nil)
	if err != nil {
		t.Fatalf("new filestore: %v", err)
	}
	return store
}

func writeTempFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("pdf-bytes"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestCoordinator_NewBatchThenBeginRun(t *testing.T) {
	store := newTempStore(t)
	repo := newRepoFake()
	c := New(store, repo, nil)
	ctx := context.Background()

	src := t.TempDir()
	a := writeTempFile(t, src, "deed-1.pdf")
	b := writeTempFile(t, src, "deed-2.pdf")

	batchID, err := c.NewBatch(ctx, []string{a, b})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if repo.get(batchID).Status != model.BatchPending {
		t.Fatalf("expected batch to persist as Pending")
	}
	if !c.HasPending() {
		t.Fatalf("expected a pending batch")
	}

	gotBatchID, docs, err := c.BeginRun(ctx)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if gotBatchID != batchID {
		t.Fatalf("batch id mismatch: %s != %s", gotBatchID, batchID)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 claimed documents, got %d", len(docs))
	}
	for _, d := range docs {
		if d.Attempt != 1 {
			t.Fatalf("expected first attempt = 1, got %d", d.Attempt)
		}
		if d.State != model.DocPending {
			t.Fatalf("expected documents to start Pending")
		}
	}
	if repo.get(batchID).Status != model.BatchRunning {
		t.Fatalf("expected batch to transition to Running")
	}
	if c.HasPending() {
		t.Fatalf("expected no pending batch once claimed")
	}

	// BeginRun with nothing pending is NotFound.
	if _, _, err := c.BeginRun(ctx); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCoordinator_EndRunPersistsCounts(t *testing.T) {
	store := newTempStore(t)
	repo := newRepoFake()
	c := New(store, repo, nil)
	ctx := context.Background()

	src := t.TempDir()
	a := writeTempFile(t, src, "deed-1.pdf")
	batchID, err := c.NewBatch(ctx, []string{a})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if _, _, err := c.BeginRun(ctx); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	counts := model.BatchCounts{Total: 1, Succeeded: 1}
	if err := c.EndRun(ctx, batchID, model.BatchCompleted, counts); err != nil {
		t.Fatalf("EndRun: %v", err)
	}
	final := repo.get(batchID)
	if final.Status != model.BatchCompleted {
		t.Fatalf("expected Completed, got %s", final.Status)
	}
	if final.Counts != counts {
		t.Fatalf("expected counts %+v, got %+v", counts, final.Counts)
	}
	if final.FinishedAt == nil {
		t.Fatalf("expected finished_at to be set")
	}
}

// Scenario 5 (spec §8): retry a batch with a failed document.
func TestCoordinator_RetryBatchMintsNewBatchID(t *testing.T) {
	store := newTempStore(t)
	repo := newRepoFake()
	c := New(store, repo, nil)
	ctx := context.Background()

	src := t.TempDir()
	a := writeTempFile(t, src, "deed-1.pdf")
	oldBatchID, err := c.NewBatch(ctx, []string{a})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	_, docs, err := c.BeginRun(ctx)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.Route(docs[0].SourcePath, filestore.Failed); err != nil {
		t.Fatalf("route to failed: %v", err)
	}
	if err := c.EndRun(ctx, oldBatchID, model.BatchCompleted, model.BatchCounts{Total: 1, Failed: 1}); err != nil {
		t.Fatalf("EndRun: %v", err)
	}

	newBatchID, err := c.RetryBatch(ctx, oldBatchID)
	if err != nil {
		t.Fatalf("RetryBatch: %v", err)
	}
	if newBatchID == oldBatchID {
		t.Fatalf("expected a freshly minted batch id")
	}
	if repo.get(oldBatchID).Status != model.BatchCompleted {
		t.Fatalf("original batch should remain Completed")
	}
	if repo.get(newBatchID).Status != model.BatchPending {
		t.Fatalf("new batch should start Pending")
	}

	_, newDocs, err := c.BeginRun(ctx)
	if err != nil {
		t.Fatalf("BeginRun on retried batch: %v", err)
	}
	if len(newDocs) != 1 {
		t.Fatalf("expected 1 retried document, got %d", len(newDocs))
	}
	if newDocs[0].DocumentID != docs[0].DocumentID {
		t.Fatalf("expected document id to survive retry: %s != %s", newDocs[0].DocumentID, docs[0].DocumentID)
	}
	if newDocs[0].Attempt != 2 {
		t.Fatalf("expected attempt to increment to 2, got %d", newDocs[0].Attempt)
	}
}

func TestCoordinator_RetryBatchNoFailures(t *testing.T) {
	store := newTempStore(t)
	repo := newRepoFake()
	c := New(store, repo, nil)
	ctx := context.Background()

	if _, err := c.RetryBatch(ctx, "BATCH-NONE"); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

// Scenario 6 (spec §8): duplicate document id across re-upload is
// resolved by FileStore.Admit's collision suffixing, and each remains
// independently addressable through BeginRun.
func TestCoordinator_DuplicateStemCollision(t *testing.T) {
	store := newTempStore(t)
	repo := newRepoFake()
	c := New(store, repo, nil)
	ctx := context.Background()

	srcA := t.TempDir()
	srcB := t.TempDir()
	a := writeTempFile(t, srcA, "deed.pdf")
	b := writeTempFile(t, srcB, "deed.pdf")

	batchID, err := c.NewBatch(ctx, []string{a, b})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	_, docs, err := c.BeginRun(ctx)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].DocumentID == docs[1].DocumentID {
		t.Fatalf("expected distinct document ids, got %q twice", docs[0].DocumentID)
	}
	seenSuffixed := false
	for _, d := range docs {
		if d.DocumentID == "deed_1" {
			seenSuffixed = true
		}
	}
	if !seenSuffixed {
		t.Fatalf("expected one document id to carry the _1 collision suffix, got %v", []string{docs[0].DocumentID, docs[1].DocumentID})
	}
	_ = batchID
}
