// Package postgres provides PostgreSQL storage for pool accounts.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/wirecat/sessionpool/pkg/account"
	"github.com/wirecat/sessionpool/pkg/cipher"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// accountColumns lists columns returned by account SELECT queries.
var accountColumns = []string{
	"email", "password", "totp_seed",
	"session_token", "session_expires_at",
	"totp_session_token", "totp_session_expires_at",
}

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// Store implements account.Store using PostgreSQL.
type Store struct {
	db     *sql.DB
	secret string
}

// Config configures the PostgreSQL account store.
type Config struct {
	// EncryptionSecret, when non-empty, enables at-rest encryption of the
	// password and TOTP seed columns through the cipher package.
	EncryptionSecret string
}

// New creates a new PostgreSQL account store.
func New(db *sql.DB, cfg Config) *Store {
	return &Store{
		db:     db,
		secret: cfg.EncryptionSecret,
	}
}

// GetAll returns every account in the store.
func (s *Store) GetAll(ctx context.Context) ([]*account.Account, error) {
	query, args, err := psq.Select(accountColumns...).From("pool_accounts").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []*account.Account
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}
	return accounts, nil
}

// GetRandom returns one account chosen at random.
func (s *Store) GetRandom(ctx context.Context) (*account.Account, error) {
	query, args, err := psq.Select(accountColumns...).
		From("pool_accounts").
		OrderBy("random()").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("picking account: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("picking account: %w", err)
		}
		return nil, account.ErrNoAccounts
	}
	return s.scanAccount(rows)
}

// Get retrieves an account by email.
func (s *Store) Get(ctx context.Context, email string) (*account.Account, error) {
	query, args, err := psq.Select(accountColumns...).
		From("pool_accounts").
		Where(sq.Eq{"email": email}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("getting account: %w", err)
		}
		return nil, account.ErrNotFound
	}
	return s.scanAccount(rows)
}

// Set persists a new account.
func (s *Store) Set(ctx context.Context, a *account.Account) error {
	password, err := s.seal(a.Password)
	if err != nil {
		return err
	}
	seed, err := s.seal(a.TOTPSeed)
	if err != nil {
		return err
	}

	query, args, err := psq.Insert("pool_accounts").
		Columns(accountColumns...).
		Values(
			a.Email, password, seed,
			a.SessionToken, nullTime(a.SessionExpiresAt),
			a.TOTPSessionToken, nullTime(a.TOTPSessionExpiresAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return account.ErrDuplicate
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// Update applies a partial mutation to the account with the given email.
func (s *Store) Update(ctx context.Context, email string, u account.Update) error {
	set := map[string]any{}
	if u.TOTPSeed != nil {
		seed, err := s.seal(*u.TOTPSeed)
		if err != nil {
			return err
		}
		set["totp_seed"] = seed
	}
	if u.SessionToken != nil {
		set["session_token"] = *u.SessionToken
	}
	if u.SessionExpiresAt != nil {
		set["session_expires_at"] = nullTime(*u.SessionExpiresAt)
	}
	if u.TOTPSessionToken != nil {
		set["totp_session_token"] = *u.TOTPSessionToken
	}
	if u.TOTPSessionExpiresAt != nil {
		set["totp_session_expires_at"] = nullTime(*u.TOTPSessionExpiresAt)
	}
	if len(set) == 0 {
		return nil
	}

	query, args, err := psq.Update("pool_accounts").
		SetMap(set).
		Where(sq.Eq{"email": email}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	if affected == 0 {
		return account.ErrNotFound
	}
	return nil
}

// Delete removes an account.
func (s *Store) Delete(ctx context.Context, email string) error {
	query, args, err := psq.Delete("pool_accounts").
		Where(sq.Eq{"email": email}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return nil
}

// scanAccount scans the current row into an Account, decrypting sealed
// columns when an encryption secret is configured.
func (s *Store) scanAccount(rows *sql.Rows) (*account.Account, error) {
	var a account.Account
	var sessionExpires, totpExpires sql.NullTime

	err := rows.Scan(
		&a.Email, &a.Password, &a.TOTPSeed,
		&a.SessionToken, &sessionExpires,
		&a.TOTPSessionToken, &totpExpires,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning account row: %w", err)
	}

	if sessionExpires.Valid {
		a.SessionExpiresAt = sessionExpires.Time
	}
	if totpExpires.Valid {
		a.TOTPSessionExpiresAt = totpExpires.Time
	}

	if a.Password, err = s.open(a.Password); err != nil {
		return nil, err
	}
	if a.TOTPSeed, err = s.open(a.TOTPSeed); err != nil {
		return nil, err
	}
	return &a, nil
}

// seal encrypts a credential column when encryption is configured.
func (s *Store) seal(plaintext string) (string, error) {
	if s.secret == "" || plaintext == "" {
		return plaintext, nil
	}
	sealed, err := cipher.Encrypt(plaintext, s.secret)
	if err != nil {
		return "", fmt.Errorf("encrypting credential: %w", err)
	}
	return sealed, nil
}

// open decrypts a credential column when encryption is configured.
func (s *Store) open(stored string) (string, error) {
	if s.secret == "" || stored == "" {
		return stored, nil
	}
	plain, err := cipher.Decrypt(stored, s.secret)
	if err != nil {
		return "", fmt.Errorf("decrypting credential: %w", err)
	}
	return plain, nil
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// Verify interface compliance.
var _ account.Store = (*Store)(nil)
