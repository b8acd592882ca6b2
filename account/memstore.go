package account

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory [Store] guarded by a mutex. It returns copies,
// never internal pointers, so callers cannot mutate stored state.
type MemStore struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
}

// NewMemStore creates an empty in-memory account store.
func NewMemStore() *MemStore {
	return &MemStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func (s *MemStore) Create(ctx context.Context, a *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := NormalizeEmail(a.Email)
	if _, exists := s.byEmail[email]; exists {
		return ErrDuplicate
	}
	if _, exists := s.byID[a.ID]; exists {
		return ErrDuplicate
	}

	stored := *a
	stored.Email = email
	s.byID[a.ID] = &stored
	s.byEmail[email] = a.ID

	return nil
}

func (s *MemStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.byID[id]
	return &copied, nil
}

func (s *MemStore) FindByID(ctx context.Context, id string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *MemStore) SetVerified(ctx context.Context, id string, verified bool) error {
	return s.update(ctx, id, func(a *Account) {
		a.Verified = verified
	})
}

func (s *MemStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.update(ctx, id, func(a *Account) {
		a.PasswordHash = hash
	})
}

func (s *MemStore) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return s.update(ctx, id, func(a *Account) {
		a.Disabled = disabled
	})
}

func (s *MemStore) update(ctx context.Context, id string, apply func(*Account)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	apply(a)
	a.UpdatedAt = time.Now().UTC()

	return nil
}
