package batches

import (
	"context"
	"testing"
	"time"

	"voice-dialer/internal/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_PersistsAndEnqueuesWithoutPlacingCalls(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, " +15551234501 ", "+15551234502")

	assert.Equal(t, 2, res.TotalCalls)
	assert.Empty(t, res.RejectedNumbers)
	assert.Empty(t, h.gateway.Placed)
	assert.Equal(t, 1, h.queue.Pending())

	b, items, err := h.svc.Get(context.Background(), "p1", res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, BatchProcessing, b.Status)
	assert.Equal(t, DefaultFilename, b.Filename)
	assert.Equal(t, "asst", b.AssistantID)
	require.Len(t, items, 2)
	assert.Equal(t, "+15551234501", items[0].PhoneNumber)
	for _, it := range items {
		assert.Equal(t, ItemPending, it.Status)
	}

	evs := h.audit.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, audit.EventBatchSubmitted, evs[0].Type)
}

func TestSubmit_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing assistant", SubmitRequest{PhoneNumbers: []string{"+15551234501"}}},
		{"empty list", SubmitRequest{AssistantID: "a"}},
		{"only invalid numbers", SubmitRequest{AssistantID: "a", PhoneNumbers: []string{"bad-number", "123"}}},
		{"too many numbers", SubmitRequest{AssistantID: "a", PhoneNumbers: []string{
			"+15551234501", "+15551234502", "+15551234503", "+15551234504", "+15551234505", "+15551234506",
		}}},
	}
	for _, tc := range cases {
		_, err := h.svc.Submit(ctx, "p1", tc.req)
		assert.ErrorIs(t, err, ErrInvalidArgument, tc.name)
	}
	assert.Equal(t, 0, h.queue.Pending())
}

func TestSubmit_KeepsFilename(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Submit(context.Background(), "p1", SubmitRequest{AssistantID: "a", PhoneNumbers: []string{"+15551234501"}, Filename: "leads.xlsx"})
	require.NoError(t, err)

	b, _, err := h.svc.Get(context.Background(), "p1", res.BatchUploadID)
	require.NoError(t, err)
	assert.Equal(t, "leads.xlsx", b.Filename)
}

func TestGet_NotOwned(t *testing.T) {
	h := newHarness(t)
	res := h.submit(t, "+15551234501")

	_, _, err := h.svc.Get(context.Background(), "p2", res.BatchUploadID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = h.svc.Get(context.Background(), "p1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	h := newHarness(t)
	base := time.Unix(1700000000, 0)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		h.svc.clock = func() time.Time { return at }
		ids = append(ids, h.submit(t, "+15551234501").BatchUploadID)
	}

	page, total, err := h.svc.List(context.Background(), "p1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	page, total, err = h.svc.List(context.Background(), "p2", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, page)
}
