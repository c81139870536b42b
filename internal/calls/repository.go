package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voice-dialer/pkg/utils"
)

// Repository is the persistence contract for calls. Reads are always scoped by profile.
type Repository interface {
	Create(ctx context.Context, c Call) (Call, error)
	Get(ctx context.Context, profileID, id string) (Call, error)
	GetByExternalID(ctx context.Context, externalID string) (Call, error)
	// List returns one page newest first plus the profile's total.
	List(ctx context.Context, profileID string, limit, offset int) ([]Call, int, error)
	ApplyRefresh(ctx context.Context, id string, r Refresh, now time.Time) (Call, error)
	StatusCounts(ctx context.Context, profileID string) ([]StatusCount, error)
}

// PostgresRepo stores calls in the calls table.
type PostgresRepo struct {
	db utils.Querier
}

func NewPostgresRepo(db utils.Querier) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `id, external_id, status, phone_number, assistant_id, recording_url, transcript, summary, metadata, profile_id, created_at, updated_at`

func scanCall(row interface{ Scan(dest ...any) error }) (Call, error) {
	var c Call
	var rec, transcript, summary sql.NullString
	var meta []byte
	if err := row.Scan(&c.ID, &c.ExternalID, &c.Status, &c.PhoneNumber, &c.AssistantID,
		&rec, &transcript, &summary, &meta, &c.ProfileID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	c.RecordingURL = rec.String
	c.Transcript = transcript.String
	c.Summary = summary.String
	if len(meta) > 0 {
		c.Metadata = meta
	}
	return c, nil
}

func (r *PostgresRepo) Create(ctx context.Context, c Call) (Call, error) {
	const q = `
INSERT INTO calls (id, external_id, status, phone_number, assistant_id, recording_url, transcript, summary, metadata, profile_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING ` + callColumns
	return scanCall(r.db.QueryRowContext(ctx, q,
		c.ID,
		c.ExternalID,
		c.Status,
		c.PhoneNumber,
		c.AssistantID,
		utils.NullString(c.RecordingURL),
		utils.NullString(c.Transcript),
		utils.NullString(c.Summary),
		nullJSON(c.Metadata),
		c.ProfileID,
		c.CreatedAt,
		c.UpdatedAt,
	))
}

func (r *PostgresRepo) Get(ctx context.Context, profileID, id string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE id = $1 AND profile_id = $2`
	return scanCall(r.db.QueryRowContext(ctx, q, id, profileID))
}

func (r *PostgresRepo) GetByExternalID(ctx context.Context, externalID string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE external_id = $1 ORDER BY created_at DESC LIMIT 1`
	return scanCall(r.db.QueryRowContext(ctx, q, externalID))
}

func (r *PostgresRepo) List(ctx context.Context, profileID string, limit, offset int) ([]Call, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls WHERE profile_id = $1`, profileID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const q = `SELECT ` + callColumns + ` FROM calls WHERE profile_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, q, profileID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Call, 0, limit)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// ApplyRefresh writes provider state in one statement. NULLIF/COALESCE keep stored values
// for fields the provider left empty. The status CASE re-checks the forward-only rule
// against the stored row, so a stale caller cannot regress a concurrent update.
func (r *PostgresRepo) ApplyRefresh(ctx context.Context, id string, rf Refresh, now time.Time) (Call, error) {
	const q = `
UPDATE calls
SET status        = CASE
                      WHEN $2 = '' OR status IN ('COMPLETED', 'FAILED') THEN status
                      WHEN $2 IN ('COMPLETED', 'FAILED') THEN $2
                      WHEN $2 = 'IN_PROGRESS' AND status = 'PENDING' THEN $2
                      ELSE status
                    END,
    recording_url = COALESCE(NULLIF($3, ''), recording_url),
    transcript    = COALESCE(NULLIF($4, ''), transcript),
    summary       = COALESCE(NULLIF($5, ''), summary),
    metadata      = COALESCE($6::jsonb, metadata),
    updated_at    = $7
WHERE id = $1
RETURNING ` + callColumns
	return scanCall(r.db.QueryRowContext(ctx, q,
		id,
		string(rf.Status),
		rf.RecordingURL,
		rf.Transcript,
		rf.Summary,
		nullJSON(rf.Metadata),
		now,
	))
}

func (r *PostgresRepo) StatusCounts(ctx context.Context, profileID string) ([]StatusCount, error) {
	const q = `
SELECT status, COUNT(*), COUNT(recording_url)
FROM calls
WHERE profile_id = $1
GROUP BY status`
	rows, err := r.db.QueryContext(ctx, q, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Calls, &sc.Recorded); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
