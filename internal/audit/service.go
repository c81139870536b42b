package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information. Records are not exposed to regular users.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.BatchID == "" && e.CallID == "" && e.ActorUserID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogBatch records a batch lifecycle transition made by the system.
func (s *Service) LogBatch(ctx context.Context, typ EventType, profileID, batchID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:      typ,
		ProfileID: profileID,
		BatchID:   batchID,
		Message:   message,
		Metadata:  metadata,
	})
}

// LogAdminAction records an operator action. batchID is empty for actions
// that are not about one batch.
func (s *Service) LogAdminAction(ctx context.Context, typ EventType, actorUserID, actorRole, batchID, message string) error {
	return s.Append(ctx, Event{
		Type:        typ,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		BatchID:     batchID,
		Message:     message,
	})
}
