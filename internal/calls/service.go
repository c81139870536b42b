package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-dialer/internal/telephony"
	"voice-dialer/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Service places calls through the gateway and keeps stored calls in sync with the provider.
type Service struct {
	repo    Repository
	gateway telephony.Gateway
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository, gateway telephony.Gateway) *Service {
	return &Service{repo: repo, gateway: gateway, clock: time.Now}
}

// PlaceRequest is a single-call request.
type PlaceRequest struct {
	PhoneNumber string
	AssistantID string
}

// Place dials one number. A gateway failure is returned as-is and no call is stored.
func (s *Service) Place(ctx context.Context, profileID string, req PlaceRequest) (Call, error) {
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.AssistantID = strings.TrimSpace(req.AssistantID)
	if profileID == "" || req.PhoneNumber == "" || req.AssistantID == "" {
		return Call{}, fmt.Errorf("%w: phoneNumber and assistantId are required", ErrInvalidArgument)
	}
	if s.gateway == nil {
		return Call{}, errors.New("calls: gateway not configured")
	}

	ref, err := s.gateway.PlaceCall(ctx, telephony.PlaceCallRequest{PhoneNumber: req.PhoneNumber, AssistantID: req.AssistantID})
	if err != nil {
		return Call{}, err
	}
	return s.Record(ctx, profileID, req, ref)
}

// Record stores a call the gateway has accepted. The call starts PENDING.
func (s *Service) Record(ctx context.Context, profileID string, req PlaceRequest, ref telephony.CallRef) (Call, error) {
	externalID := ref.ExternalID
	if externalID == "" {
		externalID = telephony.UnknownCallID
	}
	now := s.clock().UTC()
	c := Call{
		ID:          uuid.NewString(),
		ExternalID:  externalID,
		Status:      StatusPending,
		PhoneNumber: req.PhoneNumber,
		AssistantID: req.AssistantID,
		ProfileID:   profileID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ref.Raw != nil {
		c.Metadata = ref.Raw.JSON()
	}
	return s.repo.Create(ctx, c)
}

// List returns one page of the profile's calls, newest first, and the total count.
func (s *Service) List(ctx context.Context, profileID string, limit, offset int) ([]Call, int, error) {
	if profileID == "" {
		return nil, 0, ErrNotFound
	}
	if limit <= 0 || offset < 0 {
		return nil, 0, ErrInvalidArgument
	}
	return s.repo.List(ctx, profileID, limit, offset)
}

// Get returns a call owned by profileID after a best-effort refresh from the provider.
// If the provider or the write-back fails the stored record is returned unchanged.
func (s *Service) Get(ctx context.Context, profileID, id string) (Call, error) {
	if profileID == "" || id == "" {
		return Call{}, ErrNotFound
	}
	c, err := s.repo.Get(ctx, profileID, id)
	if err != nil {
		return Call{}, err
	}
	if s.gateway == nil || c.ExternalID == "" || c.ExternalID == telephony.UnknownCallID {
		return c, nil
	}

	log := logger.From(ctx).With("call_id", c.ID, "external_id", c.ExternalID)
	state, err := s.gateway.GetCall(ctx, c.ExternalID)
	if err != nil {
		log.Warn("call refresh failed", "err", err)
		return c, nil
	}

	updated, changed, err := s.applyState(ctx, c, state)
	if err != nil {
		log.Warn("call refresh not persisted", "err", err)
		return c, nil
	}
	if !changed {
		return c, nil
	}
	return updated, nil
}

// ApplyProviderEvent applies a pushed provider update using the same rules as refresh.
func (s *Service) ApplyProviderEvent(ctx context.Context, ev telephony.CallEvent) error {
	id := ev.State.ExternalID
	if id == "" || id == telephony.UnknownCallID {
		return fmt.Errorf("%w: event without call id", ErrInvalidArgument)
	}
	c, err := s.repo.GetByExternalID(ctx, id)
	if err != nil {
		return err
	}
	_, _, err = s.applyState(ctx, c, ev.State)
	return err
}

// applyState persists provider state onto c. Status only moves forward and empty
// provider fields never overwrite stored ones.
func (s *Service) applyState(ctx context.Context, c Call, state telephony.CallState) (Call, bool, error) {
	rf := Refresh{
		RecordingURL: state.RecordingURL,
		Transcript:   state.Transcript,
		Summary:      state.Summary,
	}
	if state.Status != "" {
		if next := c.Status.advance(MapProviderStatus(state.Status)); next != c.Status {
			rf.Status = next
		}
	}
	if state.Raw != nil {
		rf.Metadata = state.Raw.JSON()
	}

	preview := c
	rf.apply(&preview)
	if !callChanged(c, preview) {
		return c, false, nil
	}

	updated, err := s.repo.ApplyRefresh(ctx, c.ID, rf, s.clock().UTC())
	if err != nil {
		return c, false, err
	}
	return updated, true, nil
}

func callChanged(before, after Call) bool {
	return before.Status != after.Status ||
		before.RecordingURL != after.RecordingURL ||
		before.Transcript != after.Transcript ||
		before.Summary != after.Summary ||
		string(before.Metadata) != string(after.Metadata)
}

// Summary counts the profile's calls per status.
func (s *Service) Summary(ctx context.Context, profileID string) (Summary, error) {
	if profileID == "" {
		return Summary{}, ErrNotFound
	}
	rows, err := s.repo.StatusCounts(ctx, profileID)
	if err != nil {
		return Summary{}, err
	}

	var out Summary
	for _, r := range rows {
		out.TotalCalls += r.Calls
		out.RecordedCalls += r.Recorded
		switch r.Status {
		case StatusPending:
			out.PendingCalls += r.Calls
		case StatusInProgress:
			out.InProgressCalls += r.Calls
		case StatusCompleted:
			out.CompletedCalls += r.Calls
		case StatusFailed:
			out.FailedCalls += r.Calls
		}
	}
	return out, nil
}
