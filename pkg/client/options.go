package client

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wirecat/sessionpool/pkg/account"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:129.0) Gecko/20100101 Firefox/129.0"

	DefaultMaxRequestRetryAttempts   = 5
	DefaultRequestRetryInterval      = 100 * time.Millisecond
	DefaultMaxSessionRefreshAttempts = 3
	DefaultSessionRefreshInterval    = 500 * time.Millisecond
)

// RefreshListener is notified after every successful session refresh, before
// the refresh is considered complete. The pool uses it to write refreshed
// session state back to the account store.
type RefreshListener interface {
	SessionRefreshed(ctx context.Context, a *account.Account) error
}

// RefreshListenerFunc adapts a function to the RefreshListener interface.
type RefreshListenerFunc func(ctx context.Context, a *account.Account) error

// SessionRefreshed calls the wrapped function.
func (f RefreshListenerFunc) SessionRefreshed(ctx context.Context, a *account.Account) error {
	return f(ctx, a)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the root of the remote API, without a trailing slash.
	BaseURL string

	// UserAgent overrides the User-Agent header on every request.
	UserAgent string

	// MaxRequestRetryAttempts bounds retries after the initial attempt of a
	// managed request.
	MaxRequestRetryAttempts int

	// RequestRetryInterval is the fixed delay between request attempts.
	RequestRetryInterval time.Duration

	// MaxSessionRefreshAttempts bounds retries after the initial attempt of
	// a session refresh.
	MaxSessionRefreshAttempts int

	// SessionRefreshInterval is the fixed delay between refresh attempts.
	SessionRefreshInterval time.Duration

	// HTTPClient performs the underlying requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives debug and warning logs. Defaults to slog.Default().
	Logger *slog.Logger

	// CodeProvider supplies two-factor codes for accounts without a TOTP
	// seed.
	CodeProvider CodeProvider

	// OnSessionRefreshed is invoked synchronously after each successful
	// refresh.
	OnSessionRefreshed RefreshListener

	// Flights deduplicates concurrent session refreshes, keyed by account
	// email. When nil the client owns a private group; the pool shares one
	// group across all clients it constructs so concurrent dispatches for
	// the same account share a single login.
	Flights *singleflight.Group
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.MaxRequestRetryAttempts <= 0 {
		o.MaxRequestRetryAttempts = DefaultMaxRequestRetryAttempts
	}
	if o.RequestRetryInterval <= 0 {
		o.RequestRetryInterval = DefaultRequestRetryInterval
	}
	if o.MaxSessionRefreshAttempts <= 0 {
		o.MaxSessionRefreshAttempts = DefaultMaxSessionRefreshAttempts
	}
	if o.SessionRefreshInterval <= 0 {
		o.SessionRefreshInterval = DefaultSessionRefreshInterval
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Flights == nil {
		o.Flights = &singleflight.Group{}
	}
	return o
}
