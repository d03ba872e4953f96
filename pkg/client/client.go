// Package client performs authenticated calls against a cookie/session web
// API on behalf of a single account. It owns the session lifecycle: the
// Basic-auth login, the optional time-based two-factor handshake, bounded
// retry of transient failures, and refresh of expired sessions.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wirecat/sessionpool/pkg/account"
)

// sessionExpirySafetyMargin is subtracted from server-reported cookie
// lifetimes so a token is refreshed before the server expires it.
const sessionExpirySafetyMargin = 5 * time.Second

// maxErrorBody bounds how much of a failed response body is retained on a
// RequestError.
const maxErrorBody = 64 * 1024

// RequestInit carries the optional body and headers of a managed request.
// The body is JSON-encoded per attempt.
type RequestInit struct {
	Body   any
	Header http.Header
}

// Client performs authenticated requests for one account. Session fields on
// the bound account are mutated only by the client's refresh path.
//
// A Client is safe for concurrent use; concurrent refreshes for the same
// account collapse into a single login through the configured singleflight
// group.
type Client struct {
	auth *account.Account
	opts Options
}

// New creates a client bound to the given account. The account pointer is
// retained and its session fields are updated in place on refresh.
func New(auth *account.Account, opts Options) *Client {
	return &Client{
		auth: auth,
		opts: opts.withDefaults(),
	}
}

// Account returns the account the client is bound to.
func (c *Client) Account() *account.Account { return c.auth }

// EnsureSession makes the bound account's session usable, performing a
// refresh when the session token is absent or expired.
func (c *Client) EnsureSession(ctx context.Context) error {
	if c.auth.SessionValid(time.Now()) {
		return nil
	}
	return c.refreshSession(ctx)
}

// Do performs one managed request: it ensures the session is valid, attempts
// the call, and retries classified failures with a fixed delay. A 401
// additionally forces a session refresh before the next attempt. Exhausting
// the retry budget returns a *RequestError carrying the last response status
// and the total attempt count.
func (c *Client) Do(ctx context.Context, path, method string, init *RequestInit) (*http.Response, error) {
	if err := c.EnsureSession(ctx); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	attempts := 0
	for {
		resp, err := c.doAuthed(ctx, path, method, init)
		if err == nil {
			return resp, nil
		}

		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			// Building or encoding the request failed; retrying cannot help.
			return nil, err
		}

		if attempts >= c.opts.MaxRequestRetryAttempts {
			return nil, &RequestError{
				StatusCode: reqErr.StatusCode,
				Body:       reqErr.Body,
				Attempts:   attempts + 1,
				Err:        reqErr.Err,
			}
		}

		c.opts.Logger.Debug("retrying request",
			"request_id", requestID,
			"method", method,
			"path", path,
			"status", reqErr.StatusCode,
			"attempt", attempts+1,
		)

		if reqErr.HintsRefresh() {
			if err := c.refreshSession(ctx); err != nil {
				return nil, err
			}
		}

		attempts++
		if err := sleep(ctx, c.opts.RequestRetryInterval); err != nil {
			return nil, err
		}
	}
}

// DoRaw performs a single unmanaged request: no session handling and no
// retries. The base URL and User-Agent are applied; a non-2xx response is
// drained and returned as a *RequestError.
func (c *Client) DoRaw(ctx context.Context, path, method string, init *RequestInit) (*http.Response, error) {
	var body io.Reader
	if init != nil && init.Body != nil {
		encoded, err := json.Marshal(init.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if init != nil {
		for name, values := range init.Header {
			req.Header[name] = slices.Clone(values)
		}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, &RequestError{Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		drained, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: drained}
	}
	return resp, nil
}

// Get performs a managed GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, path, http.MethodGet, nil, out)
}

// Post performs a managed POST with a JSON body and decodes the response
// into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, path, http.MethodPost, body, out)
}

// Put performs a managed PUT with a JSON body and decodes the response into
// out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, path, http.MethodPut, body, out)
}

// Delete performs a managed DELETE and decodes the JSON response into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, path, http.MethodDelete, nil, out)
}

// doJSON runs a managed request and decodes the response body. A nil out
// discards the body.
func (c *Client) doJSON(ctx context.Context, path, method string, body, out any) error {
	resp, err := c.Do(ctx, path, method, &RequestInit{Body: body})
	if err != nil {
		return err
	}
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

// doAuthed performs one attempt of a managed request with the session
// cookies attached.
func (c *Client) doAuthed(ctx context.Context, path, method string, init *RequestInit) (*http.Response, error) {
	header := http.Header{}
	if init != nil {
		for name, values := range init.Header {
			header[name] = slices.Clone(values)
		}
	}
	header.Set("Content-Type", "application/json")
	header.Set("Cookie", c.sessionCookies())

	var body any
	if init != nil {
		body = init.Body
	}
	return c.DoRaw(ctx, path, method, &RequestInit{Body: body, Header: header})
}

// sessionCookies renders the Cookie header value for the current session.
// The two-factor cookie is omitted when absent.
func (c *Client) sessionCookies() string {
	pairs := []string{sessionCookieName + "=" + c.auth.SessionToken}
	if c.auth.TOTPSessionToken != "" {
		pairs = append(pairs, twoFactorCookieName+"="+c.auth.TOTPSessionToken)
	}
	return strings.Join(pairs, "; ")
}

// refreshSession refreshes the session, deduplicating concurrent refreshes
// for the same account email. Every waiter observes the outcome of the
// single in-flight refresh; once it settles, a later call starts a new one.
func (c *Client) refreshSession(ctx context.Context) error {
	v, err, _ := c.opts.Flights.Do(c.auth.Email, func() (any, error) {
		if err := c.doRefresh(ctx); err != nil {
			return nil, err
		}
		snapshot := *c.auth
		return &snapshot, nil
	})
	if err != nil {
		return err
	}

	// When the flight is shared across clients for the same account, adopt
	// the session fields the executing client obtained.
	if snapshot, ok := v.(*account.Account); ok && snapshot != nil {
		snapshot.SessionUpdate().Apply(c.auth)
	}
	return nil
}

// doRefresh runs the bounded refresh attempt loop.
func (c *Client) doRefresh(ctx context.Context) error {
	attempts := 0
	for {
		err := c.refreshOnce(ctx)
		if err == nil {
			return nil
		}

		if attempts >= c.opts.MaxSessionRefreshAttempts {
			var refreshErr *RefreshError
			if errors.As(err, &refreshErr) {
				return err
			}
			return &RefreshError{
				Reason: fmt.Sprintf("exhausted %d refresh attempts", attempts+1),
				Err:    err,
			}
		}

		c.opts.Logger.Debug("retrying session refresh",
			"email", c.auth.Email,
			"attempt", attempts+1,
			"error", err,
		)

		attempts++
		if err := sleep(ctx, c.opts.SessionRefreshInterval); err != nil {
			return err
		}
	}
}

// refreshOnce performs one full login sequence: Basic-auth login, the
// two-factor handshake when demanded, and the refresh notification.
func (c *Client) refreshOnce(ctx context.Context) error {
	resp, err := c.DoRaw(ctx, RouteLogin(), http.MethodGet, &RequestInit{
		Header: http.Header{
			"Authorization": []string{basicAuth(c.auth.Email, c.auth.Password)},
			"Content-Type":  []string{"application/json"},
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	session := findCookie(resp.Cookies(), sessionCookieName)
	if session == nil {
		return &RefreshError{Reason: "login response set no session cookie"}
	}
	c.auth.SessionToken = session.Value
	c.auth.SessionExpiresAt = cookieExpiry(session, time.Now())

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return &RefreshError{Reason: "decoding login response", Err: err}
	}

	if len(login.RequiresTwoFactorAuth) > 0 {
		if err := c.completeTwoFactor(ctx, login.RequiresTwoFactorAuth); err != nil {
			return err
		}
	} else if login.ID == "" {
		return &RefreshError{Reason: "login response carries no user identity"}
	}

	if listener := c.opts.OnSessionRefreshed; listener != nil {
		if err := listener.SessionRefreshed(ctx, c.auth); err != nil {
			return fmt.Errorf("session refresh listener: %w", err)
		}
	}

	c.opts.Logger.Debug("session refreshed",
		"email", c.auth.Email,
		"expires_at", c.auth.SessionExpiresAt,
	)
	return nil
}

// completeTwoFactor verifies a time-based code and both session cookies.
func (c *Client) completeTwoFactor(ctx context.Context, methods []string) error {
	if !slices.Contains(methods, TwoFactorMethodTOTP) {
		return &RefreshError{
			Reason: fmt.Sprintf("unsupported two-factor method(s): %s", strings.Join(methods, ", ")),
		}
	}

	code, err := c.twoFactorCode(ctx, methods)
	if err != nil {
		return err
	}

	verifyResp, err := c.DoRaw(ctx, RouteVerifyTOTP(), http.MethodPost, &RequestInit{
		Body: verifyCodeRequest{Code: code},
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"Cookie":       []string{sessionCookieName + "=" + c.auth.SessionToken},
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = verifyResp.Body.Close() }()

	var verified verifyCodeResponse
	if err := json.NewDecoder(verifyResp.Body).Decode(&verified); err != nil {
		return &RefreshError{Reason: "decoding two-factor verification response", Err: err}
	}
	if !verified.Verified {
		return &RefreshError{Reason: "two-factor code rejected"}
	}

	if totpCookie := findCookie(verifyResp.Cookies(), twoFactorCookieName); totpCookie != nil {
		c.auth.TOTPSessionToken = totpCookie.Value
		c.auth.TOTPSessionExpiresAt = cookieExpiry(totpCookie, time.Now())
	}

	tokenResp, err := c.DoRaw(ctx, RouteVerifyToken(), http.MethodGet, &RequestInit{
		Header: http.Header{
			"Cookie": []string{c.sessionCookies()},
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = tokenResp.Body.Close() }()

	var token verifyTokenResponse
	if err := json.NewDecoder(tokenResp.Body).Decode(&token); err != nil {
		return &RefreshError{Reason: "decoding token verification response", Err: err}
	}
	if !token.OK {
		return &RefreshError{Reason: "session token verification not ok"}
	}
	return nil
}

// twoFactorCode obtains a code from the account seed or the configured
// provider.
func (c *Client) twoFactorCode(ctx context.Context, methods []string) (string, error) {
	if c.auth.TOTPSeed != "" {
		code, err := GenerateTOTP(c.auth.TOTPSeed, time.Now(), DefaultTOTPPeriod)
		if err != nil {
			return "", &RefreshError{Reason: "generating two-factor code", Err: err}
		}
		return code, nil
	}
	if c.opts.CodeProvider != nil {
		code, err := c.opts.CodeProvider.TwoFactorCode(ctx, c.auth.Email, methods)
		if err != nil {
			return "", &RefreshError{Reason: "two-factor code provider", Err: err}
		}
		return code, nil
	}
	return "", &RefreshError{Reason: "two-factor required but no TOTP seed or code provider configured"}
}

// basicAuth builds the Authorization header value from URL-encoded
// credentials.
func basicAuth(email, password string) string {
	raw := url.QueryEscape(email) + ":" + url.QueryEscape(password)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// findCookie returns the named cookie, or nil.
func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// cookieExpiry derives the absolute token expiry from a cookie, preferring
// Max-Age and keeping a safety margin ahead of server-side expiry. A cookie
// with no lifetime yields the zero time, which SessionValid treats as
// non-expiring.
func cookieExpiry(cookie *http.Cookie, now time.Time) time.Time {
	switch {
	case cookie.MaxAge > 0:
		return now.Add(time.Duration(cookie.MaxAge)*time.Second - sessionExpirySafetyMargin)
	case !cookie.Expires.IsZero():
		return cookie.Expires.Add(-sessionExpirySafetyMargin)
	default:
		return time.Time{}
	}
}

// sleep waits for the given duration or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
