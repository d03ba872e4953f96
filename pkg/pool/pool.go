// Package pool dispatches requests across a pool of credentialed accounts.
// Each call binds a fresh client to an account read from the store, so
// session state is always current, and every refresh is written back to the
// store before the call completes.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/wirecat/sessionpool/pkg/account"
	"github.com/wirecat/sessionpool/pkg/client"
)

// Pooler selects accounts from a store and executes managed requests with
// them. It is safe for concurrent use.
type Pooler struct {
	store account.Store
	opts  client.Options

	// flights is shared by every client the pooler constructs so that
	// concurrent dispatches for the same account share one in-flight
	// session refresh.
	flights singleflight.Group
}

// New creates a pooler over the given account store.
func New(store account.Store, opts client.Options) *Pooler {
	return &Pooler{
		store: store,
		opts:  opts,
	}
}

// Store returns the underlying account store.
func (p *Pooler) Store() account.Store { return p.store }

// Client returns a managed client bound to the given account. Session
// refreshes performed by the client are persisted to the pool's store.
func (p *Pooler) Client(a *account.Account) *client.Client {
	opts := p.opts
	opts.Flights = &p.flights

	next := opts.OnSessionRefreshed
	opts.OnSessionRefreshed = client.RefreshListenerFunc(func(ctx context.Context, a *account.Account) error {
		if err := p.store.Update(ctx, a.Email, a.SessionUpdate()); err != nil {
			return fmt.Errorf("persisting refreshed session for %s: %w", a.Email, err)
		}
		if next != nil {
			return next.SessionRefreshed(ctx, a)
		}
		return nil
	})

	return client.New(a, opts)
}

// Request performs a managed request with a randomly selected account.
func (p *Pooler) Request(ctx context.Context, path, method string, init *client.RequestInit) (*http.Response, error) {
	a, err := p.store.GetRandom(ctx)
	if err != nil {
		return nil, err
	}
	return p.Client(a).Do(ctx, path, method, init)
}

// RequestWith performs a managed request pinned to the given account.
func (p *Pooler) RequestWith(ctx context.Context, a *account.Account, path, method string, init *client.RequestInit) (*http.Response, error) {
	return p.Client(a).Do(ctx, path, method, init)
}

// RequestAll performs the same managed request concurrently with every
// account in the store. Responses are ordered like the store's account list.
// The aggregate fails fast: the first failing account cancels the remaining
// calls and its error fails the whole operation.
func (p *Pooler) RequestAll(ctx context.Context, path, method string, init *client.RequestInit) ([]*http.Response, error) {
	accounts, err := p.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]*http.Response, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range accounts {
		g.Go(func() error {
			resp, err := p.Client(a).Do(gctx, path, method, init)
			if err != nil {
				return fmt.Errorf("account %s: %w", a.Email, err)
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, resp := range responses {
			if resp != nil {
				_ = resp.Body.Close()
			}
		}
		return nil, err
	}
	return responses, nil
}

// Get performs a GET with a random account and decodes the response into
// out.
func (p *Pooler) Get(ctx context.Context, path string, out any) error {
	return p.decode(p.Request(ctx, path, http.MethodGet, nil))(out)
}

// Post performs a POST with a random account and decodes the response into
// out.
func (p *Pooler) Post(ctx context.Context, path string, body, out any) error {
	return p.decode(p.Request(ctx, path, http.MethodPost, &client.RequestInit{Body: body}))(out)
}

// Put performs a PUT with a random account and decodes the response into
// out.
func (p *Pooler) Put(ctx context.Context, path string, body, out any) error {
	return p.decode(p.Request(ctx, path, http.MethodPut, &client.RequestInit{Body: body}))(out)
}

// Delete performs a DELETE with a random account and decodes the response
// into out.
func (p *Pooler) Delete(ctx context.Context, path string, out any) error {
	return p.decode(p.Request(ctx, path, http.MethodDelete, nil))(out)
}

// GetWith performs a GET pinned to the given account.
func (p *Pooler) GetWith(ctx context.Context, a *account.Account, path string, out any) error {
	return p.decode(p.RequestWith(ctx, a, path, http.MethodGet, nil))(out)
}

// PostWith performs a POST pinned to the given account.
func (p *Pooler) PostWith(ctx context.Context, a *account.Account, path string, body, out any) error {
	return p.decode(p.RequestWith(ctx, a, path, http.MethodPost, &client.RequestInit{Body: body}))(out)
}

// PutWith performs a PUT pinned to the given account.
func (p *Pooler) PutWith(ctx context.Context, a *account.Account, path string, body, out any) error {
	return p.decode(p.RequestWith(ctx, a, path, http.MethodPut, &client.RequestInit{Body: body}))(out)
}

// DeleteWith performs a DELETE pinned to the given account.
func (p *Pooler) DeleteWith(ctx context.Context, a *account.Account, path string, out any) error {
	return p.decode(p.RequestWith(ctx, a, path, http.MethodDelete, nil))(out)
}

// GetAll performs a GET with every account and decodes each response.
func GetAll[T any](ctx context.Context, p *Pooler, path string) ([]T, error) {
	return decodeAll[T](p.RequestAll(ctx, path, http.MethodGet, nil))
}

// PostAll performs a POST with every account and decodes each response.
func PostAll[T any](ctx context.Context, p *Pooler, path string, body any) ([]T, error) {
	return decodeAll[T](p.RequestAll(ctx, path, http.MethodPost, &client.RequestInit{Body: body}))
}

// PutAll performs a PUT with every account and decodes each response.
func PutAll[T any](ctx context.Context, p *Pooler, path string, body any) ([]T, error) {
	return decodeAll[T](p.RequestAll(ctx, path, http.MethodPut, &client.RequestInit{Body: body}))
}

// DeleteAll performs a DELETE with every account and decodes each response.
func DeleteAll[T any](ctx context.Context, p *Pooler, path string) ([]T, error) {
	return decodeAll[T](p.RequestAll(ctx, path, http.MethodDelete, nil))
}

// decode adapts a (response, error) pair into a decode-into-out step.
func (p *Pooler) decode(resp *http.Response, err error) func(out any) error {
	return func(out any) error {
		if err != nil {
			return err
		}
		return decodeJSON(resp, out)
	}
}

// decodeAll decodes each response of a broadcast into a T.
func decodeAll[T any](responses []*http.Response, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}

	results := make([]T, len(responses))
	for i, resp := range responses {
		if err := decodeJSON(resp, &results[i]); err != nil {
			for _, rest := range responses[i+1:] {
				_ = rest.Body.Close()
			}
			return nil, err
		}
	}
	return results, nil
}

// decodeJSON drains and closes the response body, decoding into out unless
// out is nil.
func decodeJSON(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
