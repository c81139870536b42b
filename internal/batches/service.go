package batches

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voice-dialer/internal/audit"
	"voice-dialer/internal/metrics"
	"voice-dialer/pkg/logger"
	"voice-dialer/pkg/utils"

	"github.com/google/uuid"
)

// Enqueuer hands a batch to the background dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, batchID string) error
}

// Service accepts batch submissions and serves batch reads.
type Service struct {
	store   Store
	queue   Enqueuer
	policy  Policy
	audit   *audit.Service
	metrics *metrics.Metrics
	clock   func() time.Time
}

func NewService(store Store, queue Enqueuer, policy Policy, auditSvc *audit.Service, m *metrics.Metrics) *Service {
	return &Service{store: store, queue: queue, policy: policy, audit: auditSvc, metrics: m, clock: time.Now}
}

type SubmitRequest struct {
	AssistantID  string
	PhoneNumbers []string
	Filename     string
}

type SubmitResult struct {
	BatchUploadID   string      `json:"batchUploadId"`
	TotalCalls      int         `json:"totalCalls"`
	Status          BatchStatus `json:"status"`
	RejectedNumbers []string    `json:"rejectedNumbers,omitempty"`
}

// Submit validates the numbers, persists the batch with one PENDING item per valid number,
// marks it PROCESSING and enqueues it. It returns before any call is placed.
// Numbers that are not E.164 are dropped and reported in RejectedNumbers.
func (s *Service) Submit(ctx context.Context, profileID string, req SubmitRequest) (SubmitResult, error) {
	assistantID := strings.TrimSpace(req.AssistantID)
	if profileID == "" {
		return SubmitResult{}, ErrNotFound
	}
	if assistantID == "" {
		return SubmitResult{}, fmt.Errorf("%w: assistantId is required", ErrInvalidArgument)
	}
	valid, rejected := utils.SplitPhones(req.PhoneNumbers)
	if len(valid) == 0 {
		return SubmitResult{}, fmt.Errorf("%w: no valid phone numbers", ErrInvalidArgument)
	}
	if s.policy.MaxItems > 0 && len(valid) > s.policy.MaxItems {
		return SubmitResult{}, fmt.Errorf("%w: %d phone numbers exceeds the limit of %d", ErrInvalidArgument, len(valid), s.policy.MaxItems)
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = DefaultFilename
	}

	now := s.clock().UTC()
	batch := BatchUpload{
		ID:          uuid.NewString(),
		Filename:    filename,
		TotalCalls:  len(valid),
		Status:      BatchPending,
		AssistantID: assistantID,
		ProfileID:   profileID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	items := make([]CallItem, len(valid))
	for i, phone := range valid {
		items[i] = CallItem{
			ID:            uuid.NewString(),
			BatchUploadID: batch.ID,
			Position:      i,
			PhoneNumber:   phone,
			Status:        ItemPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if err := s.store.CreateBatch(ctx, batch, items); err != nil {
		return SubmitResult{}, fmt.Errorf("create batch: %w", err)
	}
	if _, err := s.store.SetBatchStatus(ctx, batch.ID, BatchProcessing, now); err != nil {
		return SubmitResult{}, fmt.Errorf("mark batch processing: %w", err)
	}

	log := logger.From(ctx).With("batch_id", batch.ID)
	// A batch that fails to enqueue is picked up by the reconciliation sweep.
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, batch.ID); err != nil {
			log.Error("enqueue batch failed", "err", err)
		}
	}
	s.metrics.BatchSubmitted()
	if s.audit != nil {
		msg := fmt.Sprintf("%d numbers accepted, %d rejected", len(valid), len(rejected))
		if err := s.audit.LogBatch(ctx, audit.EventBatchSubmitted, profileID, batch.ID, msg, ""); err != nil {
			log.Warn("audit append failed", "err", err)
		}
	}
	log.Info("batch submitted", "total", len(valid), "rejected", len(rejected))

	return SubmitResult{
		BatchUploadID:   batch.ID,
		TotalCalls:      batch.TotalCalls,
		Status:          BatchProcessing,
		RejectedNumbers: rejected,
	}, nil
}

// List returns one page of the profile's batches, newest first, and the total count.
func (s *Service) List(ctx context.Context, profileID string, limit, offset int) ([]BatchUpload, int, error) {
	if profileID == "" {
		return nil, 0, ErrNotFound
	}
	if limit <= 0 || offset < 0 {
		return nil, 0, ErrInvalidArgument
	}
	return s.store.ListBatches(ctx, profileID, limit, offset)
}

// Get returns a batch owned by profileID together with its items in creation order.
func (s *Service) Get(ctx context.Context, profileID, id string) (BatchUpload, []CallItem, error) {
	if profileID == "" || id == "" {
		return BatchUpload{}, nil, ErrNotFound
	}
	b, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return BatchUpload{}, nil, err
	}
	if b.ProfileID != profileID {
		return BatchUpload{}, nil, ErrNotFound
	}
	items, err := s.store.ListItems(ctx, id)
	if err != nil {
		return BatchUpload{}, nil, err
	}
	return b, items, nil
}
