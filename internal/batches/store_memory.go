package batches

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local runs.
// FailAfter injects datastore failures per operation name.
type MemoryStore struct {
	mu      sync.Mutex
	batches map[string]BatchUpload
	items   map[string]CallItem
	byBatch map[string][]string
	order   []string

	calls    map[string]int
	failures map[string]failure
	// ItemWrites counts successful terminal writes per item id.
	ItemWrites map[string]int
}

type failure struct {
	after int
	err   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches:    map[string]BatchUpload{},
		items:      map[string]CallItem{},
		byBatch:    map[string][]string{},
		calls:      map[string]int{},
		failures:   map[string]failure{},
		ItemWrites: map[string]int{},
	}
}

// FailAfter makes op (a Store method name) fail with err once it has succeeded n times.
func (s *MemoryStore) FailAfter(op string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = failure{after: n, err: err}
}

// check must be called with mu held.
func (s *MemoryStore) check(op string) error {
	f, ok := s.failures[op]
	if ok && s.calls[op] >= f.after {
		return f.err
	}
	s.calls[op]++
	return nil
}

func (s *MemoryStore) CreateBatch(ctx context.Context, b BatchUpload, items []CallItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateBatch"); err != nil {
		return err
	}
	if _, ok := s.batches[b.ID]; ok {
		return fmt.Errorf("batch %s already exists", b.ID)
	}
	s.batches[b.ID] = b
	s.order = append(s.order, b.ID)
	ids := make([]string, 0, len(items))
	for _, it := range items {
		s.items[it.ID] = it
		ids = append(ids, it.ID)
	}
	s.byBatch[b.ID] = ids
	return nil
}

func (s *MemoryStore) GetBatch(ctx context.Context, id string) (BatchUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("GetBatch"); err != nil {
		return BatchUpload{}, err
	}
	b, ok := s.batches[id]
	if !ok {
		return BatchUpload{}, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) ListBatches(ctx context.Context, profileID string, limit, offset int) ([]BatchUpload, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var owned []BatchUpload
	for i := len(s.order) - 1; i >= 0; i-- {
		if b := s.batches[s.order[i]]; b.ProfileID == profileID {
			owned = append(owned, b)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })
	total := len(owned)
	if offset >= total {
		return []BatchUpload{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return owned[offset:end], total, nil
}

func (s *MemoryStore) ListItems(ctx context.Context, batchID string) ([]CallItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listItems(batchID, false), nil
}

func (s *MemoryStore) ListPendingItems(ctx context.Context, batchID string) ([]CallItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("ListPendingItems"); err != nil {
		return nil, err
	}
	return s.listItems(batchID, true), nil
}

func (s *MemoryStore) listItems(batchID string, pendingOnly bool) []CallItem {
	out := []CallItem{}
	for _, id := range s.byBatch[batchID] {
		it := s.items[id]
		if pendingOnly && it.Status != ItemPending {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *MemoryStore) SetBatchStatus(ctx context.Context, id string, status BatchStatus, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("SetBatchStatus"); err != nil {
		return false, err
	}
	from := status.allowedFrom()
	if len(from) == 0 {
		return false, fmt.Errorf("%w: cannot move batch to %s", ErrInvalidArgument, status)
	}
	b, ok := s.batches[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if b.Status == f {
			b.Status = status
			b.UpdatedAt = now
			s.batches[id] = b
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) MarkItemScheduled(ctx context.Context, itemID, callID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("MarkItemScheduled"); err != nil {
		return false, err
	}
	return s.markItem(itemID, ItemScheduled, callID, "", now), nil
}

func (s *MemoryStore) MarkItemFailed(ctx context.Context, itemID, message string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("MarkItemFailed"); err != nil {
		return false, err
	}
	return s.markItem(itemID, ItemFailed, "", message, now), nil
}

func (s *MemoryStore) markItem(itemID string, status ItemStatus, callID, message string, now time.Time) bool {
	it, ok := s.items[itemID]
	if !ok || it.Status != ItemPending {
		return false
	}
	it.Status = status
	it.CallID = callID
	it.ErrorMessage = message
	it.UpdatedAt = now
	s.items[itemID] = it
	s.ItemWrites[itemID]++
	return true
}

func (s *MemoryStore) IncrementCounter(ctx context.Context, batchID string, success bool, now time.Time) (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("IncrementCounter"); err != nil {
		return Counters{}, err
	}
	b, ok := s.batches[batchID]
	if !ok {
		return Counters{}, ErrNotFound
	}
	if b.SuccessfulCalls+b.FailedCalls >= b.TotalCalls {
		return Counters{}, ErrCounterExceeded
	}
	if success {
		b.SuccessfulCalls++
	} else {
		b.FailedCalls++
	}
	b.UpdatedAt = now
	s.batches[batchID] = b
	return b.Counters(), nil
}

func (s *MemoryStore) RecountBatch(ctx context.Context, batchID string, now time.Time) (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("RecountBatch"); err != nil {
		return Counters{}, err
	}
	b, ok := s.batches[batchID]
	if !ok {
		return Counters{}, ErrNotFound
	}
	b.SuccessfulCalls, b.FailedCalls = 0, 0
	for _, id := range s.byBatch[batchID] {
		switch s.items[id].Status {
		case ItemScheduled:
			b.SuccessfulCalls++
		case ItemFailed:
			b.FailedCalls++
		}
	}
	b.UpdatedAt = now
	s.batches[batchID] = b
	return b.Counters(), nil
}

func (s *MemoryStore) ListUnfinishedBatches(ctx context.Context, staleBefore time.Time, limit int) ([]BatchUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("ListUnfinishedBatches"); err != nil {
		return nil, err
	}
	out := []BatchUpload{}
	for _, id := range s.order {
		b := s.batches[id]
		if b.Status.IsTerminal() || !b.UpdatedAt.Before(staleBefore) {
			continue
		}
		out = append(out, b)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Touch overrides a batch's UpdatedAt (tests use it to age batches).
func (s *MemoryStore) Touch(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.batches[id]; ok {
		b.UpdatedAt = at
		s.batches[id] = b
	}
}
