package profiles

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voice-dialer/pkg/utils"
)

// Repository is the persistence contract for profiles.
type Repository interface {
	GetByUserID(ctx context.Context, userID string) (Profile, error)
	Create(ctx context.Context, p Profile) (Profile, error)
	Update(ctx context.Context, userID string, patch Patch, now time.Time) (Profile, error)
}

// PostgresRepo stores profiles in the profiles table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const profileColumns = `id, user_id, first_name, last_name, avatar_url, role, active, created_at, updated_at`

func scanProfile(row interface{ Scan(dest ...any) error }) (Profile, error) {
	var p Profile
	var first, last, avatar sql.NullString
	if err := row.Scan(&p.ID, &p.UserID, &first, &last, &avatar, &p.Role, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	p.FirstName = first.String
	p.LastName = last.String
	p.AvatarURL = avatar.String
	return p, nil
}

func (r *PostgresRepo) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	return scanProfile(r.db.QueryRowContext(ctx, q, userID))
}

func (r *PostgresRepo) Create(ctx context.Context, p Profile) (Profile, error) {
	const q = `
INSERT INTO profiles (id, user_id, first_name, last_name, avatar_url, role, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING ` + profileColumns
	out, err := scanProfile(r.db.QueryRowContext(ctx, q,
		p.ID,
		p.UserID,
		utils.NullString(p.FirstName),
		utils.NullString(p.LastName),
		utils.NullString(p.AvatarURL),
		p.Role,
		p.Active,
		p.CreatedAt,
		p.UpdatedAt,
	))
	if utils.IsUniqueViolation(err) {
		return Profile{}, ErrAlreadyExists
	}
	return out, err
}

func (r *PostgresRepo) Update(ctx context.Context, userID string, patch Patch, now time.Time) (Profile, error) {
	// COALESCE keeps the stored value for fields the patch leaves nil.
	const q = `
UPDATE profiles
SET first_name = COALESCE($2, first_name),
    last_name  = COALESCE($3, last_name),
    avatar_url = COALESCE($4, avatar_url),
    active     = COALESCE($5, active),
    updated_at = $6
WHERE user_id = $1
RETURNING ` + profileColumns
	return scanProfile(r.db.QueryRowContext(ctx, q,
		userID,
		nullable(patch.FirstName),
		nullable(patch.LastName),
		nullable(patch.AvatarURL),
		nullableBool(patch.Active),
		now,
	))
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
