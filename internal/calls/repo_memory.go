package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory call repository for tests and local development.
type MemoryRepo struct {
	mu    sync.Mutex
	byID  map[string]Call
	order []string

	// FailWrites makes every mutation fail with this error (simulates an unreachable datastore).
	FailWrites error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{byID: map[string]Call{}} }

func (r *MemoryRepo) Create(ctx context.Context, c Call) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return Call{}, r.FailWrites
	}
	r.byID[c.ID] = c
	r.order = append(r.order, c.ID)
	return c, nil
}

func (r *MemoryRepo) Get(ctx context.Context, profileID, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.ProfileID != profileID {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) GetByExternalID(ctx context.Context, externalID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		if c := r.byID[r.order[i]]; c.ExternalID == externalID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (r *MemoryRepo) List(ctx context.Context, profileID string, limit, offset int) ([]Call, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var owned []Call
	for i := len(r.order) - 1; i >= 0; i-- {
		if c := r.byID[r.order[i]]; c.ProfileID == profileID {
			owned = append(owned, c)
		}
	}
	// Insertion order breaks ties between equal timestamps.
	sort.SliceStable(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })

	total := len(owned)
	if offset >= total {
		return []Call{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return owned[offset:end], total, nil
}

func (r *MemoryRepo) ApplyRefresh(ctx context.Context, id string, rf Refresh, now time.Time) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return Call{}, r.FailWrites
	}
	c, ok := r.byID[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	rf.apply(&c)
	c.UpdatedAt = now
	r.byID[id] = c
	return c, nil
}

func (r *MemoryRepo) StatusCounts(ctx context.Context, profileID string) ([]StatusCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := map[Status]int{}
	var out []StatusCount
	for _, id := range r.order {
		c := r.byID[id]
		if c.ProfileID != profileID {
			continue
		}
		i, ok := idx[c.Status]
		if !ok {
			i = len(out)
			idx[c.Status] = i
			out = append(out, StatusCount{Status: c.Status})
		}
		out[i].Calls++
		if c.RecordingURL != "" {
			out[i].Recorded++
		}
	}
	return out, nil
}

// All returns every stored call in creation order.
func (r *MemoryRepo) All() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
