package account

import (
	"context"
	"math/rand/v2"
	"sync"
)

// MemoryStore implements Store using an in-memory map keyed by email.
// Accounts are copied on the way in and out so callers never alias store
// state.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewMemoryStore creates a new in-memory account store, optionally seeded.
func NewMemoryStore(seed ...*Account) *MemoryStore {
	s := &MemoryStore{accounts: make(map[string]*Account, len(seed))}
	for _, a := range seed {
		cp := *a
		s.accounts[a.Email] = &cp
	}
	return s
}

// GetAll returns every account in the store.
func (s *MemoryStore) GetAll(_ context.Context) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

// GetRandom returns one account chosen uniformly at random.
func (s *MemoryStore) GetRandom(_ context.Context) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.accounts) == 0 {
		return nil, ErrNoAccounts
	}

	n := rand.IntN(len(s.accounts))
	for _, a := range s.accounts {
		if n == 0 {
			cp := *a
			return &cp, nil
		}
		n--
	}
	return nil, ErrNoAccounts
}

// Get retrieves an account by email.
func (s *MemoryStore) Get(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Set persists a new account.
func (s *MemoryStore) Set(_ context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.Email]; ok {
		return ErrDuplicate
	}
	cp := *a
	s.accounts[a.Email] = &cp
	return nil
}

// Update applies a partial mutation to the account with the given email.
func (s *MemoryStore) Update(_ context.Context, email string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[email]
	if !ok {
		return ErrNotFound
	}
	u.Apply(a)
	return nil
}

// Delete removes an account.
func (s *MemoryStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accounts, email)
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
