// Package account defines the credential record shared by the pool and the
// client, and the Store contract that account backends implement.
package account

import (
	"context"
	"errors"
	"time"
)

// Store errors returned by all backends.
var (
	// ErrNotFound is returned when no account exists for the given email.
	ErrNotFound = errors.New("account not found")

	// ErrNoAccounts is returned by GetRandom when the store is empty.
	ErrNoAccounts = errors.New("no accounts in store")

	// ErrDuplicate is returned by Set when an account with the same email
	// already exists.
	ErrDuplicate = errors.New("account already exists")
)

// Account is one credential set and its current session state.
// Email is the sole identity key; an account with no SessionToken has never
// authenticated.
type Account struct {
	// Email uniquely identifies the account.
	Email string

	// Password is used only for the login handshake.
	Password string

	// TOTPSeed is the optional shared secret for generating time-based
	// two-factor codes. When empty, two-factor challenges must be satisfied
	// through an external code provider.
	TOTPSeed string

	// SessionToken is the primary session credential.
	SessionToken string

	// SessionExpiresAt is the absolute expiry of SessionToken.
	SessionExpiresAt time.Time

	// TOTPSessionToken proves the two-factor step was satisfied. It is only
	// meaningful together with a non-expired SessionToken.
	TOTPSessionToken string

	// TOTPSessionExpiresAt is the absolute expiry of TOTPSessionToken.
	TOTPSessionExpiresAt time.Time
}

// SessionValid reports whether the account holds a session token that is
// still usable at the given time.
func (a *Account) SessionValid(now time.Time) bool {
	if a.SessionToken == "" {
		return false
	}
	if a.SessionExpiresAt.IsZero() {
		return true
	}
	return now.Before(a.SessionExpiresAt)
}

// SessionUpdate returns an Update carrying exactly the account's session
// fields. Credentials are never part of an update.
func (a *Account) SessionUpdate() Update {
	return Update{
		SessionToken:         ptr(a.SessionToken),
		SessionExpiresAt:     ptr(a.SessionExpiresAt),
		TOTPSessionToken:     ptr(a.TOTPSessionToken),
		TOTPSessionExpiresAt: ptr(a.TOTPSessionExpiresAt),
	}
}

// Update is a partial account mutation. Nil fields are left untouched.
type Update struct {
	TOTPSeed             *string
	SessionToken         *string
	SessionExpiresAt     *time.Time
	TOTPSessionToken     *string
	TOTPSessionExpiresAt *time.Time
}

// Apply copies the non-nil fields of the update onto the account.
func (u Update) Apply(a *Account) {
	if u.TOTPSeed != nil {
		a.TOTPSeed = *u.TOTPSeed
	}
	if u.SessionToken != nil {
		a.SessionToken = *u.SessionToken
	}
	if u.SessionExpiresAt != nil {
		a.SessionExpiresAt = *u.SessionExpiresAt
	}
	if u.TOTPSessionToken != nil {
		a.TOTPSessionToken = *u.TOTPSessionToken
	}
	if u.TOTPSessionExpiresAt != nil {
		a.TOTPSessionExpiresAt = *u.TOTPSessionExpiresAt
	}
}

// Store defines the interface for account persistence. Each operation is
// individually atomic; the contract does not require cross-call transactions.
type Store interface {
	// GetAll returns every account in the store.
	GetAll(ctx context.Context) ([]*Account, error)

	// GetRandom returns one account chosen uniformly at random.
	// Returns ErrNoAccounts when the store is empty.
	GetRandom(ctx context.Context) (*Account, error)

	// Get retrieves an account by email. Returns ErrNotFound if absent.
	Get(ctx context.Context, email string) (*Account, error)

	// Set persists a new account. Returns ErrDuplicate if the email is
	// already registered.
	Set(ctx context.Context, a *Account) error

	// Update applies a partial mutation to the account with the given email.
	// Returns ErrNotFound if absent.
	Update(ctx context.Context, email string, u Update) error

	// Delete removes an account. Deleting an absent account is not an error.
	Delete(ctx context.Context, email string) error
}

func ptr[T any](v T) *T { return &v }
