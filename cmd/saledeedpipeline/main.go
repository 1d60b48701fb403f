// Command saledeedpipeline is the CLI/daemon entrypoint: it wires the
// Repository, FileStore, TextExtractor pair, StructuredExtractor,
// BatchCoordinator and PipelineEngine, then either admits a directory
// of deeds as a new batch, retries a previously failed batch, or runs
// the engine over pending batches, polling for new ones until
// interrupted (optionally watching a drop directory for more work as it
// arrives).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anandkaman/saledeedpipeline/internal/batch"
	"github.com/anandkaman/saledeedpipeline/internal/config"
	"github.com/anandkaman/saledeedpipeline/internal/engine"
	"github.com/anandkaman/saledeedpipeline/internal/filestore"
	"github.com/anandkaman/saledeedpipeline/internal/llmextract/openai"
	"github.com/anandkaman/saledeedpipeline/internal/repository"
	"github.com/anandkaman/saledeedpipeline/internal/textextract"
	"github.com/anandkaman/saledeedpipeline/internal/validator"
	"github.com/anandkaman/saledeedpipeline/internal/watch"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		admitDir = flag.String("admit", "", "admit every file in this directory as a new batch and exit")
		retry    = flag.String("retry", "", "re-admit the failed documents from this batch_id as a new batch and exit")
		run      = flag.Bool("run", false, "drive the engine over pending batches, polling for new ones until interrupted")
		watchFl  = flag.Bool("watch", false, "also watch the configured drop directory for new files while running")
		pollEach = flag.Duration("poll", 2*time.Second, "Stats() poll interval while a run is in flight")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		printError("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	repo := repository.NewPGRepository(pool, logger)

	files, err := filestore.New(filestore.Config{
		InboxDir:     cfg.Files.InboxDir,
		ProcessedDir: cfg.Files.ProcessedDir,
		FailedDir:    cfg.Files.FailedDir,
		RetryFeeDir:  cfg.Files.RetryFeeDir,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize filestore", "error", err)
		os.Exit(1)
	}

	embedded := textextract.NewEmbeddedExtractor("", logger)
	ocrExtractor := textextract.NewOCRExtractor("", "", "", 0, 0, cfg.Engine.OCRPageWorkers, logger)

	llmClient := openai.NewClient(openai.Config{
		Endpoint:    cfg.LLM.Endpoint,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	coord := batch.New(files, repo, logger)
	eng := engine.New(coord, files, repo, embedded, ocrExtractor, llmClient, validator.Clean, logger)
	if cfg.Engine.ExtractorMode == "embedded" {
		if err := eng.ToggleEmbeddedOcr(true); err != nil {
			logger.Error("failed to select embedded extractor", "error", err)
			os.Exit(1)
		}
	}

	switch {
	case *admitDir != "":
		if err := admitDirectory(ctx, coord, *admitDir); err != nil {
			logger.Error("admit failed", "dir", *admitDir, "error", err)
			os.Exit(1)
		}
	case *retry != "":
		newBatchID, err := coord.RetryBatch(ctx, *retry)
		if err != nil {
			logger.Error("retry failed", "batch_id", *retry, "error", err)
			os.Exit(1)
		}
		logger.Info("retry admitted", "old_batch_id", *retry, "new_batch_id", newBatchID)
	}

	if !*run {
		return
	}

	if *watchFl {
		w := watch.New(watch.Config{DropDir: cfg.Files.InboxDir, Debounce: cfg.Watch.Debounce}, coord, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("inbox watcher stopped", "error", err)
			}
		}()
	}

	runUntilDrained(ctx, coord, eng, cfg.Engine, *pollEach, logger)
}

// admitDirectory admits every regular file directly under dir as one
// new batch.
func admitDirectory(ctx context.Context, coord *batch.Coordinator, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files found in %s", dir)
	}
	batchID, err := coord.NewBatch(ctx, paths)
	if err != nil {
		return err
	}
	slog.Info("batch admitted", "batch_id", batchID, "count", len(paths))
	return nil
}

// runUntilDrained starts runs against the engine's config, one per
// pending batch, polling Stats() until each finishes, stopping early on
// ctx cancellation. When nothing is pending it keeps polling HasPending
// every pollEvery; it does not return once the pending batches are
// drained, only when ctx is cancelled or a Start fails.
func runUntilDrained(ctx context.Context, coord *batch.Coordinator, eng *engine.Engine, cfg config.EngineConfig, pollEvery time.Duration, logger *slog.Logger) {
	engCfg := engine.Config{
		OCRWorkers:            cfg.OCRWorkers,
		LLMWorkers:            cfg.LLMWorkers,
		QueueSize:             cfg.QueueSize,
		EnablePageParallelOCR: cfg.EnablePageParallelOCR,
		OCRPageWorkers:        cfg.OCRPageWorkers,
		LLMTimeout:            cfg.LLMTimeout,
	}

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if !coord.HasPending() {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				continue
			}
		}

		if err := eng.Start(ctx, engCfg); err != nil {
			logger.Error("failed to start run", "error", err)
			return
		}

		for {
			snap := eng.Stats()
			if !snap.IsRunning {
				logger.Info("run drained", "succeeded", snap.Succeeded, "failed", snap.Failed, "cancelled", snap.Cancelled)
				break
			}
			select {
			case <-ctx.Done():
				stopped := eng.Stop()
				logger.Info("shutdown requested, waiting for in-flight documents", "outstanding", stopped)
				for eng.Stats().IsRunning {
					time.Sleep(50 * time.Millisecond)
				}
				return
			case <-ticker.C:
				logger.Info("run progress", "current_file", snap.CurrentFile,
					"ocr_active", snap.OCRActive, "llm_active", snap.LLMActive,
					"succeeded", snap.Succeeded, "failed", snap.Failed)
			}
		}
	}
}
