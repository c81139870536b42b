package batches

import (
	"context"
	"fmt"
	"time"

	"voice-dialer/internal/calls"
	"voice-dialer/internal/telephony"
)

// CallRecorder stores a call the gateway accepted. *calls.Service implements it.
type CallRecorder interface {
	Record(ctx context.Context, profileID string, req calls.PlaceRequest, ref telephony.CallRef) (calls.Call, error)
}

// Outcome is the result of processing one item.
type Outcome struct {
	ItemID  string
	Success bool
	CallID  string
	Message string
	// Applied is false when the item was no longer PENDING; such outcomes are not counted.
	Applied bool
}

// Processor handles one call item: dial, record the call, and mark the item terminal.
//
// It is not idempotent: running it twice for one item places two calls.
// The orchestrator only hands it PENDING items, one at a time.
type Processor struct {
	gateway telephony.Gateway
	calls   CallRecorder
	store   Store
	clock   func() time.Time
}

func NewProcessor(gateway telephony.Gateway, recorder CallRecorder, store Store) *Processor {
	return &Processor{gateway: gateway, calls: recorder, store: store, clock: time.Now}
}

// Process never fails on gateway or call-recording errors; those mark the item FAILED.
// An error is returned only when the item's terminal state could not be written.
// Callers must not cancel ctx mid-item: the call may already be placed.
func (p *Processor) Process(ctx context.Context, batch BatchUpload, item CallItem) (Outcome, error) {
	out := Outcome{ItemID: item.ID}

	call, placeErr := p.place(ctx, batch, item)
	if placeErr == nil {
		out.Success, out.CallID = true, call.ID
		applied, err := p.store.MarkItemScheduled(ctx, item.ID, call.ID, p.clock().UTC())
		if err != nil {
			// The call exists; marking the item FAILED would orphan it.
			return out, fmt.Errorf("mark item %s scheduled: %w", item.ID, err)
		}
		out.Applied = applied
		return out, nil
	}

	out.Message = failureMessage(placeErr)
	applied, err := p.store.MarkItemFailed(ctx, item.ID, out.Message, p.clock().UTC())
	if err != nil {
		return out, fmt.Errorf("mark item %s failed: %w", item.ID, err)
	}
	out.Applied = applied
	return out, nil
}

// place dials and records the call, turning panics into errors.
func (p *Processor) place(ctx context.Context, batch BatchUpload, item CallItem) (call calls.Call, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error: %v", r)
		}
	}()

	req := calls.PlaceRequest{PhoneNumber: item.PhoneNumber, AssistantID: batch.AssistantID}
	ref, err := p.gateway.PlaceCall(ctx, telephony.PlaceCallRequest{PhoneNumber: req.PhoneNumber, AssistantID: req.AssistantID})
	if err != nil {
		return calls.Call{}, err
	}
	return p.calls.Record(ctx, batch.ProfileID, req, ref)
}

func failureMessage(err error) string {
	if ge, ok := telephony.AsGatewayError(err); ok {
		return ge.Error()
	}
	if err == nil || err.Error() == "" {
		return "Failed to create call"
	}
	return err.Error()
}
