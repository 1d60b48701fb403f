package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
	"github.com/anandkaman/saledeedpipeline/internal/model"
)

// PGRepository is the pgx-backed Repository implementation. It replaces
// the teacher's ent-generated client with raw SQL, since the generated
// client is not available to regenerate here; the transaction and
// upsert shapes below are grounded on the teacher's
// UpsertFromFields/UpsertByHash patterns.
type PGRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGRepository constructs a Repository over an already-open pool.
func NewPGRepository(pool *pgxpool.Pool, logger *slog.Logger) *PGRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGRepository{pool: pool, logger: logger}
}

func (r *PGRepository) UpsertBatch(ctx context.Context, b model.Batch) error {
	const q = `
INSERT INTO batches (batch_id, batch_name, status, created_at, processing_started_at, finished_at,
                      total, succeeded, failed, cancelled)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (batch_id) DO UPDATE SET
  batch_name = EXCLUDED.batch_name,
  status = EXCLUDED.status,
  processing_started_at = EXCLUDED.processing_started_at,
  finished_at = EXCLUDED.finished_at,
  total = EXCLUDED.total,
  succeeded = EXCLUDED.succeeded,
  failed = EXCLUDED.failed,
  cancelled = EXCLUDED.cancelled`

	_, err := r.pool.Exec(ctx, q,
		b.BatchID, b.BatchName, string(b.Status), b.CreatedAt, b.ProcessingStartedAt, b.FinishedAt,
		b.Counts.Total, b.Counts.Succeeded, b.Counts.Failed, b.Counts.Cancelled)
	if err != nil {
		r.logger.Error("upsert batch failed", "batch_id", b.BatchID, "error", err)
		return apperr.New(apperr.IoError, "upsert batch", err)
	}
	return nil
}

// UpdateBatchStatus enforces the batch status DAG at the SQL level: the
// conditional WHERE clause only allows the transitions model.CanTransitionBatch
// permits, so an illegal transition simply updates zero rows rather than
// silently corrupting state.
func (r *PGRepository) UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus, startedAt, finishedAt *time.Time) error {
	var allowedFrom []string
	switch status {
	case model.BatchRunning:
		allowedFrom = []string{string(model.BatchPending)}
	case model.BatchCompleted, model.BatchCancelled:
		allowedFrom = []string{string(model.BatchRunning)}
	default:
		return apperr.Newf(apperr.Internal, nil, "unsupported target batch status %q", status)
	}

	const q = `
UPDATE batches
SET status = $1, processing_started_at = COALESCE($2, processing_started_at), finished_at = $3
WHERE batch_id = $4 AND status = ANY($5)`

	tag, err := r.pool.Exec(ctx, q, string(status), startedAt, finishedAt, batchID, allowedFrom)
	if err != nil {
		r.logger.Error("update batch status failed", "batch_id", batchID, "error", err)
		return apperr.New(apperr.IoError, "update batch status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.Conflict, nil, "illegal batch status transition to %q for batch %s", status, batchID)
	}
	return nil
}

// UpsertDocument writes document + property + parties in one
// transaction, idempotent by document_id via delete-then-insert on the
// child tables.
func (r *PGRepository) UpsertDocument(ctx context.Context, rec model.StructuredRecord, batchID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.New(apperr.IoError, "begin upsert document tx", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	const upsertDoc = `
INSERT INTO documents (document_id, batch_id, transaction_date, registration_office, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (document_id) DO UPDATE SET
  batch_id = EXCLUDED.batch_id,
  transaction_date = EXCLUDED.transaction_date,
  registration_office = EXCLUDED.registration_office,
  updated_at = EXCLUDED.updated_at`
	if _, err := tx.Exec(ctx, upsertDoc, rec.DocumentID, batchID, rec.TransactionDate, rec.RegistrationOffice, now); err != nil {
		return apperr.New(apperr.IoError, "upsert document row", err)
	}

	const upsertProperty = `
INSERT INTO properties (document_id, schedule_b_area, schedule_c_property_name, schedule_c_property_address,
                         schedule_c_property_area, sale_consideration, stamp_duty_fee, registration_fee, guidance_value)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (document_id) DO UPDATE SET
  schedule_b_area = EXCLUDED.schedule_b_area,
  schedule_c_property_name = EXCLUDED.schedule_c_property_name,
  schedule_c_property_address = EXCLUDED.schedule_c_property_address,
  schedule_c_property_area = EXCLUDED.schedule_c_property_area,
  sale_consideration = EXCLUDED.sale_consideration,
  stamp_duty_fee = EXCLUDED.stamp_duty_fee,
  registration_fee = EXCLUDED.registration_fee,
  guidance_value = EXCLUDED.guidance_value`
	p := rec.Property
	if _, err := tx.Exec(ctx, upsertProperty, rec.DocumentID, p.ScheduleBArea, p.ScheduleCPropertyName,
		p.ScheduleCPropertyAddress, p.ScheduleCPropertyArea, p.SaleConsideration, p.StampDutyFee,
		p.RegistrationFee, p.GuidanceValue); err != nil {
		return apperr.New(apperr.IoError, "upsert property row", err)
	}

	if err := replaceParties(ctx, tx, "buyers", rec.DocumentID, rec.Buyers, false); err != nil {
		return err
	}
	if err := replaceParties(ctx, tx, "sellers", rec.DocumentID, rec.Sellers, true); err != nil {
		return err
	}
	if err := replaceParties(ctx, tx, "confirming_parties", rec.DocumentID, rec.ConfirmingParties, false); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.New(apperr.IoError, "commit upsert document tx", err)
	}
	return nil
}

// replaceParties deletes a document's existing rows in the named table
// and re-inserts the current set, giving idempotent last-writer-wins
// semantics per §4.D.4 step 4.
func replaceParties(ctx context.Context, tx pgx.Tx, table, documentID string, parties []model.Party, withShare bool) error {
	if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE document_id = $1", documentID); err != nil {
		return apperr.New(apperr.IoError, "delete "+table, err)
	}
	for _, p := range parties {
		if withShare {
			const q = `
INSERT INTO sellers (document_id, name, gender, father_name, date_of_birth, aadhaar_number, pan_card_number,
                      address, pincode, state, phone_numbers, email, property_share)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
			if _, err := tx.Exec(ctx, q, documentID, p.Name, p.Gender, p.FatherName, p.DateOfBirth,
				p.AadhaarNumber, p.PANCardNumber, p.Address, p.Pincode, p.State, p.PhoneNumbers, p.Email, p.PropertyShare); err != nil {
				return apperr.New(apperr.IoError, "insert "+table, err)
			}
			continue
		}
		q := `
INSERT INTO ` + table + ` (document_id, name, gender, father_name, date_of_birth, aadhaar_number, pan_card_number,
                      address, pincode, state, phone_numbers, email)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		if _, err := tx.Exec(ctx, q, documentID, p.Name, p.Gender, p.FatherName, p.DateOfBirth,
			p.AadhaarNumber, p.PANCardNumber, p.Address, p.Pincode, p.State, p.PhoneNumbers, p.Email); err != nil {
			return apperr.New(apperr.IoError, "insert "+table, err)
		}
	}
	return nil
}

func (r *PGRepository) RecordFailure(ctx context.Context, documentID, batchID string, kind apperr.Kind, diagnostic string) error {
	const q = `
INSERT INTO document_failures (document_id, batch_id, error_kind, diagnostic, recorded_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.pool.Exec(ctx, q, documentID, batchID, string(kind), diagnostic, time.Now().UTC()); err != nil {
		r.logger.Error("record failure failed", "document_id", documentID, "error", err)
		return apperr.New(apperr.IoError, "record failure", err)
	}
	return nil
}

func (r *PGRepository) GetFailedByBatch(ctx context.Context) (map[string][]string, error) {
	const q = `SELECT batch_id, document_id FROM document_failures ORDER BY batch_id, recorded_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, apperr.New(apperr.IoError, "get failed by batch", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var batchID, documentID string
		if err := rows.Scan(&batchID, &documentID); err != nil {
			return nil, apperr.New(apperr.IoError, "scan failed document row", err)
		}
		out[batchID] = append(out[batchID], documentID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.New(apperr.IoError, "iterate failed documents", err)
	}
	return out, nil
}
