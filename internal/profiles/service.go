package profiles

import (
	"context"
	"errors"
	"time"

	"voice-dialer/internal/auth"
	"voice-dialer/internal/rbac"
	"voice-dialer/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("profiles: not found")
	ErrAlreadyExists = errors.New("profiles: already exists")
	ErrForbidden     = errors.New("profiles: forbidden")
)

type Service struct {
	repo Repository
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Get returns the profile of userID without creating one.
func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	if userID == "" {
		return Profile{}, ErrNotFound
	}
	return s.repo.GetByUserID(ctx, userID)
}

// GetOrCreate returns the caller's profile, creating a default one on first access.
func (s *Service) GetOrCreate(ctx context.Context, id auth.Identity) (Profile, error) {
	p, err := s.repo.GetByUserID(ctx, id.UserID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	seed := Patch{}
	if id.FirstName != "" {
		seed.FirstName = &id.FirstName
	}
	if id.LastName != "" {
		seed.LastName = &id.LastName
	}
	return s.create(ctx, id.UserID, seed)
}

// Create makes the caller's profile explicitly; it fails when one already exists.
func (s *Service) Create(ctx context.Context, userID string, patch Patch) (Profile, error) {
	if userID == "" {
		return Profile{}, ErrNotFound
	}
	if _, err := s.repo.GetByUserID(ctx, userID); err == nil {
		return Profile{}, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	// Explicit creation always starts active.
	patch.Active = nil
	p, err := s.newProfile(userID, patch)
	if err != nil {
		return Profile{}, err
	}
	return s.repo.Create(ctx, p)
}

// UpdateOwn patches the caller's profile, creating it first when absent.
func (s *Service) UpdateOwn(ctx context.Context, id auth.Identity, patch Patch) (Profile, error) {
	if _, err := s.repo.GetByUserID(ctx, id.UserID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Profile{}, err
		}
		return s.create(ctx, id.UserID, patch)
	}
	return s.repo.Update(ctx, id.UserID, patch, s.clock().UTC())
}

// GetFor returns targetUserID's profile on behalf of actor.
// Only the owner or a super admin may read it; a missing profile is created lazily.
func (s *Service) GetFor(ctx context.Context, actor auth.Identity, targetUserID string) (Profile, error) {
	if err := s.authorize(ctx, actor, targetUserID); err != nil {
		return Profile{}, err
	}
	p, err := s.repo.GetByUserID(ctx, targetUserID)
	if errors.Is(err, ErrNotFound) {
		if targetUserID == actor.UserID {
			return s.GetOrCreate(ctx, actor)
		}
		logger.From(ctx).Info("creating profile on admin read", "target_user_id", targetUserID)
		return s.create(ctx, targetUserID, Patch{})
	}
	return p, err
}

// UpdateFor patches targetUserID's profile on behalf of actor. The target must exist.
func (s *Service) UpdateFor(ctx context.Context, actor auth.Identity, targetUserID string, patch Patch) (Profile, error) {
	if err := s.authorize(ctx, actor, targetUserID); err != nil {
		return Profile{}, err
	}
	return s.repo.Update(ctx, targetUserID, patch, s.clock().UTC())
}

// Subject adapts profiles to the rbac lookup contract.
func (s *Service) Subject(ctx context.Context, userID string) (rbac.Subject, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rbac.Subject{}, rbac.ErrNoSubject
		}
		return rbac.Subject{}, err
	}
	return rbac.Subject{Role: p.Role, Active: p.Active}, nil
}

func (s *Service) authorize(ctx context.Context, actor auth.Identity, targetUserID string) error {
	if actor.UserID == "" {
		return auth.ErrUnauthenticated
	}
	if actor.UserID == targetUserID {
		return nil
	}
	role := ""
	if p, err := s.repo.GetByUserID(ctx, actor.UserID); err == nil {
		role = p.Role
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if !rbac.CanAccessProfile(role, actor.UserID, targetUserID) {
		return ErrForbidden
	}
	return nil
}

func (s *Service) create(ctx context.Context, userID string, patch Patch) (Profile, error) {
	p, err := s.newProfile(userID, patch)
	if err != nil {
		return Profile{}, err
	}
	out, err := s.repo.Create(ctx, p)
	if errors.Is(err, ErrAlreadyExists) {
		// Lost a creation race with a concurrent request.
		return s.repo.GetByUserID(ctx, userID)
	}
	return out, err
}

func (s *Service) newProfile(userID string, patch Patch) (Profile, error) {
	if userID == "" {
		return Profile{}, ErrNotFound
	}
	now := s.clock().UTC()
	p := Profile{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      rbac.RoleUser,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	patch.apply(&p)
	return p, nil
}
