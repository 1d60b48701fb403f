// Package repository defines the persistence contract the pipeline
// depends on and a PostgreSQL implementation of it built on pgx.
//
// The pipeline and BatchCoordinator are constructed against the
// Repository interface only; nothing above this package knows the
// concrete driver or schema.
package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
	"github.com/anandkaman/saledeedpipeline/internal/model"
)

// Repository is the minimal surface the pipeline uses (§4.B).
type Repository interface {
	UpsertBatch(ctx context.Context, b model.Batch) error
	UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus, startedAt, finishedAt *time.Time) error
	UpsertDocument(ctx context.Context, r model.StructuredRecord, batchID string) error
	RecordFailure(ctx context.Context, documentID, batchID string, kind apperr.Kind, diagnostic string) error
	GetFailedByBatch(ctx context.Context) (map[string][]string, error)
}

// Config holds pgxpool connection settings.
type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// Open creates a pgx connection pool.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, apperr.New(apperr.IoError, "parse DSN", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "saledeedpipeline"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, apperr.New(apperr.IoError, "connect", err)
	}
	logger.Info("successfully connected to database")
	return pool, nil
}

// Close releases the pool.
func Close(pool *pgxpool.Pool, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if pool != nil {
		pool.Close()
	}
}

// HealthCheck pings the pool, bounded by timeout.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		return apperr.New(apperr.IoError, "ping database", err)
	}
	return nil
}
