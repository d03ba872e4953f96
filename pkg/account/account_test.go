package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionValid(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		account Account
		want    bool
	}{
		{
			name:    "no token",
			account: Account{},
			want:    false,
		},
		{
			name:    "token with future expiry",
			account: Account{SessionToken: "tok", SessionExpiresAt: now.Add(time.Hour)},
			want:    true,
		},
		{
			name:    "token with past expiry",
			account: Account{SessionToken: "tok", SessionExpiresAt: now.Add(-time.Hour)},
			want:    false,
		},
		{
			name:    "token with no expiry",
			account: Account{SessionToken: "tok"},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.account.SessionValid(now))
		})
	}
}

func TestUpdateApply(t *testing.T) {
	a := Account{
		Email:        "user@example.com",
		Password:     "hunter2",
		SessionToken: "old",
	}

	token := "new"
	expires := time.Now().Add(time.Hour)
	Update{SessionToken: &token, SessionExpiresAt: &expires}.Apply(&a)

	assert.Equal(t, "new", a.SessionToken)
	assert.Equal(t, expires, a.SessionExpiresAt)
	assert.Equal(t, "hunter2", a.Password, "password must be untouched")
	assert.Empty(t, a.TOTPSessionToken, "nil fields must be left alone")
}

func TestSessionUpdateCarriesOnlySessionFields(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	a := Account{
		Email:            "user@example.com",
		Password:         "hunter2",
		TOTPSeed:         "seed",
		SessionToken:     "tok",
		SessionExpiresAt: expires,
		TOTPSessionToken: "totp-tok",
	}

	u := a.SessionUpdate()

	assert.Nil(t, u.TOTPSeed, "seed is a credential, not session state")
	assert.Equal(t, "tok", *u.SessionToken)
	assert.Equal(t, expires, *u.SessionExpiresAt)
	assert.Equal(t, "totp-tok", *u.TOTPSessionToken)

	var fresh Account
	u.Apply(&fresh)
	assert.Empty(t, fresh.Password)
	assert.Empty(t, fresh.TOTPSeed)
	assert.Equal(t, "tok", fresh.SessionToken)
}
