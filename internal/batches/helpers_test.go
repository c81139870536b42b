package batches

import (
	"context"
	"sync"
	"testing"
	"time"

	"voice-dialer/internal/audit"
	"voice-dialer/internal/calls"
	"voice-dialer/internal/telephony/telephonytest"

	"github.com/stretchr/testify/require"
)

type harness struct {
	store    *MemoryStore
	callRepo *calls.MemoryRepo
	gateway  *telephonytest.Gateway
	queue    *MemoryQueue
	audit    *audit.MemoryRepo
	svc      *Service
	orch     *Orchestrator

	mu    sync.Mutex
	waits []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    NewMemoryStore(),
		callRepo: calls.NewMemoryRepo(),
		gateway:  telephonytest.New(),
		queue:    NewMemoryQueue(),
		audit:    audit.NewMemoryRepo(),
	}
	callSvc := calls.NewService(h.callRepo, h.gateway)
	auditSvc := audit.NewService(h.audit)
	policy := Policy{Pacing: 500 * time.Millisecond, MaxItems: 5}

	h.svc = NewService(h.store, h.queue, policy, auditSvc, nil)
	h.orch = NewOrchestrator(h.store, NewProcessor(h.gateway, callSvc, h.store), policy, auditSvc, nil)
	h.orch.wait = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.waits = append(h.waits, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	return h
}

func (h *harness) submit(t *testing.T, phones ...string) SubmitResult {
	t.Helper()
	res, err := h.svc.Submit(context.Background(), "p1", SubmitRequest{AssistantID: "asst", PhoneNumbers: phones})
	require.NoError(t, err)
	return res
}

func (h *harness) items(t *testing.T, batchID string) []CallItem {
	t.Helper()
	items, err := h.store.ListItems(context.Background(), batchID)
	require.NoError(t, err)
	return items
}
