package pool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wirecat/sessionpool/pkg/account"
	"github.com/wirecat/sessionpool/pkg/client"
)

// Config is the YAML-loadable pool configuration.
type Config struct {
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`

	MaxRequestRetryAttempts int           `yaml:"max_request_retry_attempts"`
	RequestRetryInterval    time.Duration `yaml:"request_retry_interval"`

	MaxSessionRefreshAttempts int           `yaml:"max_session_refresh_attempts"`
	SessionRefreshInterval    time.Duration `yaml:"session_refresh_interval"`

	// Accounts optionally seeds the account store.
	Accounts []AccountConfig `yaml:"accounts"`
}

// AccountConfig is one seed credential in a pool configuration file.
type AccountConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	TOTPSeed string `yaml:"totp_seed"`
}

// LoadConfig reads and validates a pool configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	for i, a := range c.Accounts {
		if a.Email == "" {
			return fmt.Errorf("accounts[%d]: email is required", i)
		}
		if a.Password == "" {
			return fmt.Errorf("accounts[%d] (%s): password is required", i, a.Email)
		}
	}
	return nil
}

// Options converts the configuration into client options. Zero-valued
// budgets and intervals fall back to the client defaults.
func (c *Config) Options() client.Options {
	return client.Options{
		BaseURL:                   c.BaseURL,
		UserAgent:                 c.UserAgent,
		MaxRequestRetryAttempts:   c.MaxRequestRetryAttempts,
		RequestRetryInterval:      c.RequestRetryInterval,
		MaxSessionRefreshAttempts: c.MaxSessionRefreshAttempts,
		SessionRefreshInterval:    c.SessionRefreshInterval,
	}
}

// Seed registers the configured accounts in the given store. Accounts that
// already exist are left untouched.
func (c *Config) Seed(ctx context.Context, store account.Store) error {
	for _, a := range c.Accounts {
		err := store.Set(ctx, &account.Account{
			Email:    a.Email,
			Password: a.Password,
			TOTPSeed: a.TOTPSeed,
		})
		if err != nil && !errors.Is(err, account.ErrDuplicate) {
			return fmt.Errorf("seeding account %s: %w", a.Email, err)
		}
	}
	return nil
}
