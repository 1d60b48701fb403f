package filestore

import (
	"os"
	"path/filepath"
	"testing"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := New(Config{
		InboxDir:     filepath.Join(root, "inbox"),
		ProcessedDir: filepath.Join(root, "processed"),
		FailedDir:    filepath.Join(root, "failed"),
		RetryFeeDir:  filepath.Join(root, "retry_fee"),
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, root
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestAdmitAndClaim(t *testing.T) {
	s, _ := newStore(t)
	src := t.TempDir()
	a := writeFile(t, src, "deed-a.pdf")
	b := writeFile(t, src, "deed-b.pdf")

	docIDs, admitted, err := s.Admit("BATCH-1", []string{a, b})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if len(docIDs) != 2 || len(admitted) != 2 {
		t.Fatalf("expected 2 admitted, got %d/%d", len(docIDs), len(admitted))
	}
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Fatalf("expected source file moved, still exists at %s", a)
	}

	claimed, err := s.Claim("BATCH-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed paths, got %d", len(claimed))
	}
}

func TestAdmitCollisionSuffix(t *testing.T) {
	s, _ := newStore(t)
	srcA := t.TempDir()
	srcB := t.TempDir()
	a := writeFile(t, srcA, "deed.pdf")
	b := writeFile(t, srcB, "deed.pdf")

	docIDs, _, err := s.Admit("BATCH-1", []string{a, b})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if docIDs[0] != "deed" || docIDs[1] != "deed_1" {
		t.Fatalf("expected [deed deed_1], got %v", docIDs)
	}
}

func TestRouteSucceededStripsBatchPrefix(t *testing.T) {
	s, root := newStore(t)
	src := t.TempDir()
	a := writeFile(t, src, "deed.pdf")

	_, admitted, err := s.Admit("BATCH-1", []string{a})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	if err := s.Route(admitted[0], Succeeded); err != nil {
		t.Fatalf("Route: %v", err)
	}
	dest := filepath.Join(root, "processed", "deed.pdf")
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected file at %s (batch prefix stripped): %v", dest, err)
	}
}

func TestRouteFailedKeepsBatchPrefix(t *testing.T) {
	s, root := newStore(t)
	src := t.TempDir()
	a := writeFile(t, src, "deed.pdf")

	_, admitted, err := s.Admit("BATCH-1", []string{a})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	if err := s.Route(admitted[0], Failed); err != nil {
		t.Fatalf("Route: %v", err)
	}
	dest := filepath.Join(root, "failed", "BATCH-1__deed.pdf")
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected file at %s: %v", dest, err)
	}
}

func TestRouteCollisionAppendsSuffix(t *testing.T) {
	s, root := newStore(t)
	failedDir := filepath.Join(root, "failed")
	existing := filepath.Join(failedDir, "BATCH-1__deed.pdf")
	if err := os.WriteFile(existing, []byte("old"), 0o644); err != nil {
		t.Fatalf("seed existing file: %v", err)
	}

	src := t.TempDir()
	a := writeFile(t, src, "deed.pdf")
	_, admitted, err := s.Admit("BATCH-1", []string{a})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if err := s.Route(admitted[0], Failed); err != nil {
		t.Fatalf("Route: %v", err)
	}
	suffixed := filepath.Join(failedDir, "BATCH-1__deed_1.pdf")
	if _, err := os.Stat(suffixed); err != nil {
		t.Fatalf("expected collision-suffixed path %s: %v", suffixed, err)
	}
}

func TestCollectFailedFiltersByBatch(t *testing.T) {
	s, root := newStore(t)
	failedDir := filepath.Join(root, "failed")
	if err := os.WriteFile(filepath.Join(failedDir, "BATCH-1__a.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(failedDir, "BATCH-2__b.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.CollectFailed("BATCH-1")
	if err != nil {
		t.Fatalf("CollectFailed: %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "BATCH-1__a.pdf" {
		t.Fatalf("expected only BATCH-1's failure, got %v", got)
	}
}

func TestDocumentIDFromName(t *testing.T) {
	id, ok := DocumentIDFromName("BATCH-1", "BATCH-1__deed_1.pdf")
	if !ok || id != "deed_1" {
		t.Fatalf("expected (deed_1, true), got (%q, %v)", id, ok)
	}
	if _, ok := DocumentIDFromName("BATCH-1", "BATCH-2__deed.pdf"); ok {
		t.Fatalf("expected no match for a different batch prefix")
	}
}

func TestReAdmitPreservesDocumentID(t *testing.T) {
	s, root := newStore(t)
	failedDir := filepath.Join(root, "failed")
	oldPath := filepath.Join(failedDir, "BATCH-OLD__deed_1.pdf")
	if err := os.WriteFile(oldPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	docIDs, admitted, err := s.ReAdmit("BATCH-NEW", []string{oldPath})
	if err != nil {
		t.Fatalf("ReAdmit: %v", err)
	}
	if len(docIDs) != 1 || docIDs[0] != "deed_1" {
		t.Fatalf("expected document id deed_1 preserved, got %v", docIDs)
	}
	want := filepath.Join(root, "inbox", "BATCH-NEW__deed_1.pdf")
	if admitted[0] != want {
		t.Fatalf("expected re-admitted path %s, got %s", want, admitted[0])
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected file at %s: %v", want, err)
	}
}
