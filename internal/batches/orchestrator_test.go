package batches

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-dialer/internal/audit"
	"voice-dialer/internal/calls"
	"voice-dialer/internal/telephony"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SingleValidNumberCompletes(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, "+15551234567", "bad-number")
	assert.Equal(t, 1, res.TotalCalls)
	assert.Equal(t, []string{"bad-number"}, res.RejectedNumbers)
	assert.Equal(t, BatchProcessing, res.Status)

	b, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, b.Status)
	assert.Equal(t, 1, b.TotalCalls)
	assert.Equal(t, 1, b.SuccessfulCalls)
	assert.Equal(t, 0, b.FailedCalls)

	stored := h.callRepo.All()
	require.Len(t, stored, 1)
	assert.Equal(t, calls.StatusPending, stored[0].Status)
	assert.Equal(t, "p1", stored[0].ProfileID)

	items := h.items(t, res.BatchUploadID)
	require.Len(t, items, 1)
	assert.Equal(t, ItemScheduled, items[0].Status)
	assert.Equal(t, stored[0].ID, items[0].CallID)
	assert.Equal(t, []string{"+15551234567"}, h.gateway.PlacedNumbers())
}

func TestRun_ItemFailureDoesNotFailBatch(t *testing.T) {
	h := newHarness(t)
	h.gateway.FailNumbers["+15551234502"] = "Invalid number"
	res := h.submit(t, "+15551234501", "+15551234502", "+15551234503")

	b, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, b.Status)
	assert.Equal(t, 2, b.SuccessfulCalls)
	assert.Equal(t, 1, b.FailedCalls)

	items := h.items(t, res.BatchUploadID)
	require.Len(t, items, 3)
	assert.Equal(t, ItemScheduled, items[0].Status)
	assert.Equal(t, ItemFailed, items[1].Status)
	assert.Contains(t, items[1].ErrorMessage, "Invalid number")
	assert.Empty(t, items[1].CallID)
	assert.Equal(t, ItemScheduled, items[2].Status)
	assert.Len(t, h.callRepo.All(), 2)

	stored, err := h.store.GetBatch(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, stored.Status)
	assert.Equal(t, b.Counters(), stored.Counters())
}

func TestRun_SequentialInCreationOrderWithPacing(t *testing.T) {
	h := newHarness(t)
	phones := []string{"+15551234503", "+15551234501", "+15551234502"}
	res := h.submit(t, phones...)

	_, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, phones, h.gateway.PlacedNumbers())
	assert.Equal(t, 1, h.gateway.MaxInFlight)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, h.waits)
}

func TestRun_EachItemWrittenExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.gateway.FailNumbers["+15551234501"] = "busy"
	res := h.submit(t, "+15551234501", "+15551234502", "+15551234503", "+15551234504")

	_, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	// A second run finds nothing left to do.
	b, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, b.Status)

	for _, it := range h.items(t, res.BatchUploadID) {
		assert.Contains(t, []ItemStatus{ItemScheduled, ItemFailed}, it.Status)
		assert.Equal(t, 1, h.store.ItemWrites[it.ID], "item %d", it.Position)
	}
	assert.Len(t, h.gateway.Placed, 4)
}

func TestRun_StoreErrorFailsBatchAndLeavesRestPending(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, "+15551234501", "+15551234502", "+15551234503")
	h.store.FailAfter("IncrementCounter", 1, errors.New("connection refused"))

	b, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.Error(t, err)
	assert.Equal(t, BatchFailed, b.Status)

	stored, err := h.store.GetBatch(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchFailed, stored.Status)
	assert.LessOrEqual(t, stored.SuccessfulCalls+stored.FailedCalls, stored.TotalCalls)

	items := h.items(t, res.BatchUploadID)
	assert.Equal(t, ItemScheduled, items[0].Status)
	assert.Equal(t, ItemScheduled, items[1].Status)
	assert.Equal(t, ItemPending, items[2].Status)

	var failed int
	for _, ev := range h.audit.Events() {
		if ev.Type == audit.EventBatchFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRun_ResumesAfterInterruption(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, "+15551234501", "+15551234502", "+15551234503")

	ctx, cancel := context.WithCancel(context.Background())
	h.orch.wait = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	b, err := h.orch.Run(ctx, res.BatchUploadID)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, BatchProcessing, b.Status)

	h.orch.wait = func(ctx context.Context, d time.Duration) error { return nil }
	b, err = h.orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, b.Status)
	assert.Equal(t, 3, b.SuccessfulCalls)
	assert.Len(t, h.gateway.Placed, 3)
}

// cancelAwareStore fails writes once ctx is done, like a real database driver.
type cancelAwareStore struct {
	*MemoryStore
}

func (s cancelAwareStore) MarkItemScheduled(ctx context.Context, itemID, callID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.MemoryStore.MarkItemScheduled(ctx, itemID, callID, now)
}

func (s cancelAwareStore) MarkItemFailed(ctx context.Context, itemID, message string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.MemoryStore.MarkItemFailed(ctx, itemID, message, now)
}

func (s cancelAwareStore) IncrementCounter(ctx context.Context, batchID string, success bool, now time.Time) (Counters, error) {
	if err := ctx.Err(); err != nil {
		return Counters{}, err
	}
	return s.MemoryStore.IncrementCounter(ctx, batchID, success, now)
}

func TestRun_ShutdownDuringDialFinishesThatItem(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, "+15551234501", "+15551234502")

	store := cancelAwareStore{h.store}
	callSvc := calls.NewService(h.callRepo, h.gateway)
	orch := NewOrchestrator(store, NewProcessor(h.gateway, callSvc, store), Policy{Pacing: time.Millisecond}, nil, nil)
	orch.wait = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	ctx, cancel := context.WithCancel(context.Background())
	h.gateway.OnPlace = func(req telephony.PlaceCallRequest) { cancel() }

	b, err := orch.Run(ctx, res.BatchUploadID)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, BatchProcessing, b.Status)

	items := h.items(t, res.BatchUploadID)
	assert.Equal(t, ItemScheduled, items[0].Status)
	assert.NotEmpty(t, items[0].CallID)
	assert.Equal(t, ItemPending, items[1].Status)

	h.gateway.OnPlace = nil
	b, err = orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, b.Status)
	assert.Equal(t, 2, b.SuccessfulCalls)
	assert.Equal(t, []string{"+15551234501", "+15551234502"}, h.gateway.PlacedNumbers())
	assert.Len(t, h.callRepo.All(), 2)
}

func TestRun_ScheduledMarkFailureFailsBatch(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, "+15551234501", "+15551234502")
	h.store.FailAfter("MarkItemScheduled", 0, errors.New("connection reset"))

	b, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.Error(t, err)
	assert.Equal(t, BatchFailed, b.Status)

	// The placed call is kept and the item is not reported as a failed call.
	assert.Len(t, h.callRepo.All(), 1)
	assert.Len(t, h.gateway.Placed, 1)
	items := h.items(t, res.BatchUploadID)
	assert.Equal(t, ItemPending, items[0].Status)
	assert.Empty(t, items[0].ErrorMessage)
	assert.Equal(t, ItemPending, items[1].Status)

	stored, err := h.store.GetBatch(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedCalls)
	assert.Equal(t, 0, stored.SuccessfulCalls)
}

func TestRun_RecountsItemsMarkedBeforeCrash(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, "+15551234501", "+15551234502")
	ctx := context.Background()

	// Both items reached a terminal state but only the first was counted.
	items := h.items(t, res.BatchUploadID)
	_, err := h.store.MarkItemScheduled(ctx, items[0].ID, "c1", time.Now())
	require.NoError(t, err)
	_, err = h.store.IncrementCounter(ctx, res.BatchUploadID, true, time.Now())
	require.NoError(t, err)
	_, err = h.store.MarkItemFailed(ctx, items[1].ID, "boom", time.Now())
	require.NoError(t, err)

	b, err := h.orch.Run(ctx, res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, b.Status)
	assert.Equal(t, 1, b.SuccessfulCalls)
	assert.Equal(t, 1, b.FailedCalls)
	assert.Empty(t, h.gateway.Placed)
}

func TestRun_GatewayPanicFailsOnlyThatItem(t *testing.T) {
	h := newHarness(t)
	h.gateway.OnPlace = func(req telephony.PlaceCallRequest) {
		if req.PhoneNumber == "+15551234501" {
			panic("nil map")
		}
	}
	res := h.submit(t, "+15551234501", "+15551234502")

	b, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, b.Status)
	assert.Equal(t, 1, b.FailedCalls)

	items := h.items(t, res.BatchUploadID)
	assert.Equal(t, ItemFailed, items[0].Status)
	assert.Contains(t, items[0].ErrorMessage, "unexpected error")
}

func TestRun_CallRecordErrorFailsItem(t *testing.T) {
	h := newHarness(t)
	h.callRepo.FailWrites = errors.New("calls table locked")
	res := h.submit(t, "+15551234501")

	b, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, b.Status)
	assert.Equal(t, 1, b.FailedCalls)
	assert.Equal(t, "calls table locked", h.items(t, res.BatchUploadID)[0].ErrorMessage)
}

func TestRun_TerminalBatchIsNoop(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, "+15551234501")
	_, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)

	b, err := h.orch.Run(context.Background(), res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, b.Status)
	assert.Len(t, h.gateway.Placed, 1)
}

func TestIncrementCounter_NeverExceedsTotal(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, "+15551234501")
	ctx := context.Background()

	c, err := h.store.IncrementCounter(ctx, res.BatchUploadID, false, time.Now())
	require.NoError(t, err)
	assert.True(t, c.Done())

	_, err = h.store.IncrementCounter(ctx, res.BatchUploadID, true, time.Now())
	assert.ErrorIs(t, err, ErrCounterExceeded)
}

func TestSetBatchStatus_ForwardOnly(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, "+15551234501")
	ctx := context.Background()

	ok, err := h.store.SetBatchStatus(ctx, res.BatchUploadID, BatchFailed, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.store.SetBatchStatus(ctx, res.BatchUploadID, BatchCompleted, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.store.SetBatchStatus(ctx, res.BatchUploadID, BatchPending, time.Now())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
