package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirecat/sessionpool/pkg/pool"
)

func TestOpenStoreMemory(t *testing.T) {
	cfg := &pool.Config{
		BaseURL: "https://api.example.com",
		Accounts: []pool.AccountConfig{
			{Email: "a@example.com", Password: "pw"},
		},
	}

	store, closeStore, err := openStore(t.Context(), cliOptions{store: "memory"}, cfg)
	require.NoError(t, err)
	defer closeStore()

	a, err := store.Get(t.Context(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "pw", a.Password)
}

func TestOpenStoreUnknown(t *testing.T) {
	_, _, err := openStore(t.Context(), cliOptions{store: "redis"}, &pool.Config{})
	assert.ErrorContains(t, err, "unknown store")
}

func TestOpenStorePostgresRequiresDSN(t *testing.T) {
	_, _, err := openStore(t.Context(), cliOptions{store: "postgres"}, &pool.Config{})
	assert.ErrorContains(t, err, "database-url")
}
