//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wirecat/sessionpool/pkg/account"
)

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:15",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(ctx) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, Migrate(db))
	// Re-running migrations must be a no-op.
	require.NoError(t, Migrate(db))

	store := New(db, Config{EncryptionSecret: "integration-secret"})

	t.Run("round trip with encryption at rest", func(t *testing.T) {
		err := store.Set(ctx, &account.Account{
			Email:    "it@example.com",
			Password: "pw",
			TOTPSeed: "seed",
		})
		require.NoError(t, err)

		// The raw column must not hold the plaintext password.
		var raw string
		err = db.QueryRowContext(ctx,
			"SELECT password FROM pool_accounts WHERE email = $1", "it@example.com",
		).Scan(&raw)
		require.NoError(t, err)
		assert.NotEqual(t, "pw", raw)

		a, err := store.Get(ctx, "it@example.com")
		require.NoError(t, err)
		assert.Equal(t, "pw", a.Password)
		assert.Equal(t, "seed", a.TOTPSeed)
	})

	t.Run("duplicate set", func(t *testing.T) {
		err := store.Set(ctx, &account.Account{Email: "it@example.com", Password: "pw"})
		assert.ErrorIs(t, err, account.ErrDuplicate)
	})

	t.Run("session write-through", func(t *testing.T) {
		token := "tok"
		expires := time.Now().UTC().Add(time.Hour)
		err := store.Update(ctx, "it@example.com", account.Update{
			SessionToken:     &token,
			SessionExpiresAt: &expires,
		})
		require.NoError(t, err)

		a, err := store.Get(ctx, "it@example.com")
		require.NoError(t, err)
		assert.Equal(t, "tok", a.SessionToken)
		assert.WithinDuration(t, expires, a.SessionExpiresAt, time.Second)
	})

	t.Run("random and all", func(t *testing.T) {
		a, err := store.GetRandom(ctx)
		require.NoError(t, err)
		assert.Equal(t, "it@example.com", a.Email)

		all, err := store.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "it@example.com"))
		_, err := store.Get(ctx, "it@example.com")
		assert.ErrorIs(t, err, account.ErrNotFound)

		_, err = store.GetRandom(ctx)
		assert.ErrorIs(t, err, account.ErrNoAccounts)
	})
}
