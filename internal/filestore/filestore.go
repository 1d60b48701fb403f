// Package filestore owns the four on-disk directories the pipeline
// moves files through (inbox, processed, failed, retry_fee) and the
// atomic per-file move semantics between them.
package filestore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
)

// Outcome is the terminal disposition Route files a source path under.
type Outcome string

const (
	Succeeded Outcome = "Succeeded"
	Failed    Outcome = "Failed"
	Cancelled Outcome = "Cancelled"
)

// Store resolves the four directories at construction and implements
// Admit/Claim/Route/CollectFailed against them.
type Store struct {
	inboxDir     string
	processedDir string
	failedDir    string
	retryFeeDir  string
	logger       *slog.Logger
}

// Config names the four directory roots.
type Config struct {
	InboxDir     string
	ProcessedDir string
	FailedDir    string
	RetryFeeDir  string
}

// New resolves and creates (if missing) the four directories.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		inboxDir:     cfg.InboxDir,
		processedDir: cfg.ProcessedDir,
		failedDir:    cfg.FailedDir,
		retryFeeDir:  cfg.RetryFeeDir,
		logger:       logger,
	}
	for _, dir := range []string{s.inboxDir, s.processedDir, s.failedDir, s.retryFeeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.New(apperr.IoError, "create filestore directory", err)
		}
	}
	return s, nil
}

// Admit copies/moves each source path into the inbox under a name that
// encodes batch_id and a collision-safe document id derived from the
// filename's stem.
func (s *Store) Admit(batchID string, srcPaths []string) (documentIDs []string, admittedPaths []string, err error) {
	used := make(map[string]struct{})
	for _, src := range srcPaths {
		stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		docID := uniqueDocumentID(stem, used)
		used[docID] = struct{}{}

		dest := filepath.Join(s.inboxDir, fmt.Sprintf("%s__%s%s", batchID, docID, filepath.Ext(src)))
		if err := atomicMove(src, dest); err != nil {
			return documentIDs, admittedPaths, apperr.New(apperr.IoError, "admit "+src, err)
		}
		documentIDs = append(documentIDs, docID)
		admittedPaths = append(admittedPaths, dest)
	}
	s.logger.Info("admitted batch", "batch_id", batchID, "count", len(admittedPaths))
	return documentIDs, admittedPaths, nil
}

// uniqueDocumentID appends _<n> on collision, per §4.A.
func uniqueDocumentID(stem string, used map[string]struct{}) string {
	if _, ok := used[stem]; !ok {
		return stem
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d", stem, n)
		if _, ok := used[candidate]; !ok {
			return candidate
		}
	}
}

// Claim lists all inbox files whose name carries the batch_id prefix.
// Idempotent: it only reads.
func (s *Store) Claim(batchID string) ([]string, error) {
	entries, err := os.ReadDir(s.inboxDir)
	if err != nil {
		return nil, apperr.New(apperr.IoError, "claim batch "+batchID, err)
	}
	prefix := batchID + "__"
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			paths = append(paths, filepath.Join(s.inboxDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Route moves sourcePath to processed/ or failed/ depending on outcome.
// Overwrite on destination collision is not permitted; a monotonic
// suffix is appended instead. On Succeeded, the batch_id prefix Admit
// encoded into the inbox name is stripped so processed/ holds the
// original filename (§6 "On-disk layout": inbox/failed keep the
// <batch_id>__ prefix, processed/ does not).
func (s *Store) Route(sourcePath string, outcome Outcome) error {
	var destDir string
	var base string
	switch outcome {
	case Succeeded:
		destDir = s.processedDir
		base = stripBatchPrefix(filepath.Base(sourcePath))
	case Failed, Cancelled:
		destDir = s.failedDir
		base = filepath.Base(sourcePath)
	default:
		return apperr.Newf(apperr.Internal, nil, "unknown outcome %q", outcome)
	}

	dest := filepath.Join(destDir, base)
	dest = collisionSafe(dest)
	if err := atomicMove(sourcePath, dest); err != nil {
		return apperr.New(apperr.IoError, "route "+sourcePath, err)
	}
	return nil
}

// stripBatchPrefix removes the leading "<batch_id>__" Admit/ReAdmit
// encode into an inbox file name, returning "<document_id><ext>". If
// name carries no such prefix it is returned unchanged.
func stripBatchPrefix(name string) string {
	if i := strings.Index(name, "__"); i >= 0 {
		return name[i+2:]
	}
	return name
}

// collisionSafe appends a monotonic _<n> suffix (before the extension)
// until the path does not already exist.
func collisionSafe(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// CollectFailed enumerates files in failed/, optionally filtered by an
// embedded batch prefix.
func (s *Store) CollectFailed(batchID string) ([]string, error) {
	entries, err := os.ReadDir(s.failedDir)
	if err != nil {
		return nil, apperr.New(apperr.IoError, "collect failed", err)
	}
	var prefix string
	if batchID != "" {
		prefix = batchID + "__"
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if prefix == "" || strings.HasPrefix(e.Name(), prefix) {
			paths = append(paths, filepath.Join(s.failedDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// InboxDir returns the inbox root directory.
func (s *Store) InboxDir() string { return s.inboxDir }

// DocumentIDFromName recovers the document id encoded in a file admitted
// under batchID, i.e. the inverse of the "<batch_id>__<document_id>.ext"
// naming Admit uses. ok is false if the name does not carry that prefix.
func DocumentIDFromName(batchID, name string) (documentID string, ok bool) {
	prefix := batchID + "__"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(name, prefix)
	return strings.TrimSuffix(rest, filepath.Ext(rest)), true
}

// ReAdmit moves previously-failed files back into the inbox under
// newBatchID, preserving each file's original document id (recovered
// from its "<old_batch_id>__<document_id>.ext" name) rather than
// re-deriving one from the stem, which would pick up the old batch
// prefix. Used by BatchCoordinator.RetryBatch (§4.E).
func (s *Store) ReAdmit(newBatchID string, failedPaths []string) (documentIDs []string, admittedPaths []string, err error) {
	for _, src := range failedPaths {
		base := filepath.Base(src)
		oldBatchPrefix := strings.SplitN(base, "__", 2)
		if len(oldBatchPrefix) != 2 {
			return documentIDs, admittedPaths, apperr.Newf(apperr.Internal, nil, "malformed failed file name %q", base)
		}
		stem := strings.TrimSuffix(oldBatchPrefix[1], filepath.Ext(oldBatchPrefix[1]))

		dest := filepath.Join(s.inboxDir, fmt.Sprintf("%s__%s%s", newBatchID, stem, filepath.Ext(src)))
		if err := atomicMove(src, dest); err != nil {
			return documentIDs, admittedPaths, apperr.New(apperr.IoError, "re-admit "+src, err)
		}
		documentIDs = append(documentIDs, stem)
		admittedPaths = append(admittedPaths, dest)
	}
	s.logger.Info("re-admitted batch for retry", "batch_id", newBatchID, "count", len(admittedPaths))
	return documentIDs, admittedPaths, nil
}

// atomicMove renames within the same volume, falling back to
// copy-then-rename-then-remove-source across volumes. Either the whole
// operation succeeds or the filesystem is left unchanged.
func atomicMove(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		_ = os.Remove(dest)
		return err
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
