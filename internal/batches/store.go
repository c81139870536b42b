package batches

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voice-dialer/pkg/utils"
)

var (
	ErrNotFound        = errors.New("batches: not found")
	ErrInvalidArgument = errors.New("batches: invalid argument")
	ErrAlreadyFinished = errors.New("batches: batch already finished")
	// ErrCounterExceeded means an increment would push successful+failed past total.
	ErrCounterExceeded = errors.New("batches: counter would exceed total")
)

// Store is the persistence contract the orchestrator depends on.
//
// Rules:
// - Item marks only apply to PENDING items and report whether they changed anything.
// - IncrementCounter is a single atomic statement returning post-increment values.
// - Status changes follow BatchStatus.allowedFrom and report whether they applied.
type Store interface {
	// CreateBatch persists the batch and all its items atomically.
	CreateBatch(ctx context.Context, b BatchUpload, items []CallItem) error
	GetBatch(ctx context.Context, id string) (BatchUpload, error)
	ListBatches(ctx context.Context, profileID string, limit, offset int) ([]BatchUpload, int, error)
	// ListItems returns a batch's items in creation order.
	ListItems(ctx context.Context, batchID string) ([]CallItem, error)
	ListPendingItems(ctx context.Context, batchID string) ([]CallItem, error)

	SetBatchStatus(ctx context.Context, id string, status BatchStatus, now time.Time) (bool, error)
	MarkItemScheduled(ctx context.Context, itemID, callID string, now time.Time) (bool, error)
	MarkItemFailed(ctx context.Context, itemID, message string, now time.Time) (bool, error)
	IncrementCounter(ctx context.Context, batchID string, success bool, now time.Time) (Counters, error)
	// RecountBatch recomputes both counters from item statuses in one statement.
	RecountBatch(ctx context.Context, batchID string, now time.Time) (Counters, error)

	// ListUnfinishedBatches returns PENDING/PROCESSING batches not touched since before staleBefore.
	ListUnfinishedBatches(ctx context.Context, staleBefore time.Time, limit int) ([]BatchUpload, error)
}

// PostgresStore keeps batches in batch_uploads and call_items.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const batchColumns = `id, filename, total_calls, successful_calls, failed_calls, status, assistant_id, profile_id, created_at, updated_at`
const itemColumns = `id, batch_upload_id, position, phone_number, status, error_message, call_id, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanBatch(row scanner) (BatchUpload, error) {
	var b BatchUpload
	if err := row.Scan(&b.ID, &b.Filename, &b.TotalCalls, &b.SuccessfulCalls, &b.FailedCalls,
		&b.Status, &b.AssistantID, &b.ProfileID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BatchUpload{}, ErrNotFound
		}
		return BatchUpload{}, err
	}
	return b, nil
}

func scanItem(row scanner) (CallItem, error) {
	var it CallItem
	var msg, callID sql.NullString
	if err := row.Scan(&it.ID, &it.BatchUploadID, &it.Position, &it.PhoneNumber, &it.Status,
		&msg, &callID, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return CallItem{}, err
	}
	it.ErrorMessage = msg.String
	it.CallID = callID.String
	return it, nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, b BatchUpload, items []CallItem) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const qb = `
INSERT INTO batch_uploads (` + batchColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
		if _, err := tx.ExecContext(ctx, qb,
			b.ID, b.Filename, b.TotalCalls, b.SuccessfulCalls, b.FailedCalls,
			b.Status, b.AssistantID, b.ProfileID, b.CreatedAt, b.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO call_items (`+itemColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, it := range items {
			if _, err := stmt.ExecContext(ctx,
				it.ID, it.BatchUploadID, it.Position, it.PhoneNumber, it.Status,
				utils.NullString(it.ErrorMessage), utils.NullString(it.CallID), it.CreatedAt, it.UpdatedAt,
			); err != nil {
				return fmt.Errorf("insert item %d: %w", it.Position, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (BatchUpload, error) {
	const q = `SELECT ` + batchColumns + ` FROM batch_uploads WHERE id = $1`
	return scanBatch(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) ListBatches(ctx context.Context, profileID string, limit, offset int) ([]BatchUpload, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batch_uploads WHERE profile_id = $1`, profileID).Scan(&total); err != nil {
		return nil, 0, err
	}
	const q = `SELECT ` + batchColumns + ` FROM batch_uploads WHERE profile_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	out, err := s.queryBatches(ctx, q, profileID, limit, offset)
	return out, total, err
}

func (s *PostgresStore) queryBatches(ctx context.Context, q string, args ...any) ([]BatchUpload, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []BatchUpload{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListItems(ctx context.Context, batchID string) ([]CallItem, error) {
	const q = `SELECT ` + itemColumns + ` FROM call_items WHERE batch_upload_id = $1 ORDER BY position`
	return s.queryItems(ctx, q, batchID)
}

func (s *PostgresStore) ListPendingItems(ctx context.Context, batchID string) ([]CallItem, error) {
	const q = `SELECT ` + itemColumns + ` FROM call_items WHERE batch_upload_id = $1 AND status = 'PENDING' ORDER BY position`
	return s.queryItems(ctx, q, batchID)
}

func (s *PostgresStore) queryItems(ctx context.Context, q string, args ...any) ([]CallItem, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CallItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetBatchStatus(ctx context.Context, id string, status BatchStatus, now time.Time) (bool, error) {
	from := status.allowedFrom()
	if len(from) == 0 {
		return false, fmt.Errorf("%w: cannot move batch to %s", ErrInvalidArgument, status)
	}
	allowed := make([]string, len(from))
	for i, f := range from {
		allowed[i] = string(f)
	}
	const q = `UPDATE batch_uploads SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`
	return affected(s.db.ExecContext(ctx, q, id, status, now, allowed))
}

func (s *PostgresStore) MarkItemScheduled(ctx context.Context, itemID, callID string, now time.Time) (bool, error) {
	const q = `UPDATE call_items SET status = 'SCHEDULED', call_id = $2, updated_at = $3 WHERE id = $1 AND status = 'PENDING'`
	return affected(s.db.ExecContext(ctx, q, itemID, callID, now))
}

func (s *PostgresStore) MarkItemFailed(ctx context.Context, itemID, message string, now time.Time) (bool, error) {
	const q = `UPDATE call_items SET status = 'FAILED', error_message = $2, updated_at = $3 WHERE id = $1 AND status = 'PENDING'`
	return affected(s.db.ExecContext(ctx, q, itemID, message, now))
}

func (s *PostgresStore) IncrementCounter(ctx context.Context, batchID string, success bool, now time.Time) (Counters, error) {
	q := `
UPDATE batch_uploads SET successful_calls = successful_calls + 1, updated_at = $2
WHERE id = $1 AND successful_calls + failed_calls < total_calls
RETURNING total_calls, successful_calls, failed_calls`
	if !success {
		q = `
UPDATE batch_uploads SET failed_calls = failed_calls + 1, updated_at = $2
WHERE id = $1 AND successful_calls + failed_calls < total_calls
RETURNING total_calls, successful_calls, failed_calls`
	}
	var c Counters
	err := s.db.QueryRowContext(ctx, q, batchID, now).Scan(&c.Total, &c.Successful, &c.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetBatch(ctx, batchID); errors.Is(getErr, ErrNotFound) {
			return Counters{}, ErrNotFound
		}
		return Counters{}, ErrCounterExceeded
	}
	return c, err
}

func (s *PostgresStore) RecountBatch(ctx context.Context, batchID string, now time.Time) (Counters, error) {
	const q = `
UPDATE batch_uploads b
SET successful_calls = (SELECT COUNT(*) FROM call_items WHERE batch_upload_id = b.id AND status = 'SCHEDULED'),
    failed_calls     = (SELECT COUNT(*) FROM call_items WHERE batch_upload_id = b.id AND status = 'FAILED'),
    updated_at       = $2
WHERE b.id = $1
RETURNING total_calls, successful_calls, failed_calls`
	var c Counters
	err := s.db.QueryRowContext(ctx, q, batchID, now).Scan(&c.Total, &c.Successful, &c.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return Counters{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) ListUnfinishedBatches(ctx context.Context, staleBefore time.Time, limit int) ([]BatchUpload, error) {
	const q = `
SELECT ` + batchColumns + ` FROM batch_uploads
WHERE status IN ('PENDING', 'PROCESSING') AND updated_at < $1
ORDER BY created_at
LIMIT $2`
	return s.queryBatches(ctx, q, staleBefore, limit)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
