package audit

import (
	"context"
	"database/sql"

	"voice-dialer/pkg/utils"
)

// PostgresRepo appends events to the audit_events table. It exposes no update or delete.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, profile_id, actor_user_id, actor_role, batch_id, call_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	var meta any
	if e.Metadata != "" {
		meta = e.Metadata
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		utils.NullString(e.ProfileID),
		utils.NullString(e.ActorUserID),
		utils.NullString(e.ActorRole),
		utils.NullString(e.BatchID),
		utils.NullString(e.CallID),
		utils.NullString(e.Message),
		meta,
		e.CreatedAt,
	)
	return err
}
