package client

import (
	"fmt"
	"net/http"
)

// RefreshError reports a failed session refresh: the login, two-factor, or
// token-verification step failed, or the refresh attempt budget was
// exhausted. Every caller waiting on the same in-flight refresh observes the
// same error.
type RefreshError struct {
	// Reason is the human-readable cause.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session refresh failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("session refresh failed: %s", e.Reason)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// RequestError reports an outbound call that did not produce a 2xx response.
// StatusCode is zero when no response was received at all.
type RequestError struct {
	// StatusCode is the HTTP status of the last response, or zero for a
	// network-level failure.
	StatusCode int

	// Attempts is the total number of attempts made before giving up. It is
	// zero on errors raised by a single raw attempt.
	Attempts int

	// Body is the drained response body of the last response, if any.
	Body []byte

	// Err is the underlying transport error, if any.
	Err error
}

func (e *RequestError) Error() string {
	var msg string
	switch {
	case e.StatusCode != 0:
		msg = fmt.Sprintf("request failed with status %d", e.StatusCode)
	case e.Err != nil:
		msg = fmt.Sprintf("request failed with no response: %v", e.Err)
	default:
		msg = "request failed with no response"
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	return msg
}

func (e *RequestError) Unwrap() error { return e.Err }

// HintsRefresh reports whether the failure suggests the session is no longer
// valid and should be refreshed before retrying.
func (e *RequestError) HintsRefresh() bool {
	return e.StatusCode == http.StatusUnauthorized
}
