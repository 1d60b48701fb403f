// Package watch implements the optional inbox hot-folder watcher (§2.2
// supplemented feature): it observes a drop directory for new files,
// waits for each one to go quiet (no further write events for a short
// period, since a large PDF copy emits many Write events before
// Close), and hands the stabilized set to BatchCoordinator.NewBatch.
//
// It is ambient infrastructure around the pipeline, not a pipeline
// stage: the daemon runs fine with no watcher and only explicit
// NewBatch calls. Grounded on the teacher's internal/ingest/watcher.go
// StartWatcher, generalized from a recursive multi-root walk (the
// teacher watches several receipt-drop roots) to a single flat drop
// directory, since sale deeds are admitted one directory at a time.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Admitter is the subset of batch.Coordinator the watcher drives.
type Admitter interface {
	NewBatch(ctx context.Context, sourcePaths []string) (batchID string, err error)
}

var allowedExts = map[string]struct{}{
	"pdf": {},
}

// Config holds the watcher's settings.
type Config struct {
	// DropDir is watched non-recursively for new files.
	DropDir string
	// Debounce is how long a file must go quiet before it is admitted.
	Debounce time.Duration
}

// InboxWatcher watches DropDir and calls Admitter.NewBatch once new
// files there have stabilized.
type InboxWatcher struct {
	cfg      Config
	admitter Admitter
	logger   *slog.Logger
}

// New constructs an InboxWatcher. It does not start watching until Run
// is called.
func New(cfg Config, admitter Admitter, logger *slog.Logger) *InboxWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	return &InboxWatcher{cfg: cfg, admitter: admitter, logger: logger}
}

// Run blocks, watching cfg.DropDir until ctx is cancelled. Each
// stabilized batch of files is admitted as one BatchCoordinator.NewBatch
// call, so a burst of files copied together lands as a single batch.
func (w *InboxWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.DropDir); err != nil {
		return err
	}
	w.logger.Info("inbox watcher started", "drop_dir", w.cfg.DropDir, "debounce", w.cfg.Debounce)

	var mu sync.Mutex
	pending := make(map[string]struct{})
	var timer *time.Timer

	admit := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})
		mu.Unlock()

		if len(paths) == 0 {
			return
		}
		batchID, err := w.admitter.NewBatch(context.Background(), paths)
		if err != nil {
			w.logger.Error("watcher admission failed", "error", err, "count", len(paths))
			return
		}
		w.logger.Info("watcher admitted batch", "batch_id", batchID, "count", len(paths))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !allowed(ev.Name) || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			mu.Lock()
			pending[ev.Name] = struct{}{}
			mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.cfg.Debounce, admit)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func allowed(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	_, ok := allowedExts[ext]
	return ok
}
