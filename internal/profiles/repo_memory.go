package profiles

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory profile repository for tests and local development.
type MemoryRepo struct {
	mu       sync.Mutex
	byUserID map[string]Profile
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{byUserID: map[string]Profile{}} }

func (r *MemoryRepo) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUserID[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) Create(ctx context.Context, p Profile) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUserID[p.UserID]; ok {
		return Profile{}, ErrAlreadyExists
	}
	r.byUserID[p.UserID] = p
	return p, nil
}

func (r *MemoryRepo) Update(ctx context.Context, userID string, patch Patch, now time.Time) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUserID[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	patch.apply(&p)
	p.UpdatedAt = now
	r.byUserID[userID] = p
	return p, nil
}
