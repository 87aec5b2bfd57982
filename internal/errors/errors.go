package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the lichess client
var (
	// Authentication errors
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrCodeExchangeFailed  = errors.New("authorization code exchange failed")
	ErrNoAccessToken       = errors.New("no access token in response")
	ErrNoRefreshToken      = errors.New("no refresh token available")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
	ErrInvalidState        = errors.New("authorization state mismatch")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrWrongPassphrase     = errors.New("credential record cannot be read with this passphrase")

	// Transport errors
	ErrConnectFailed   = errors.New("connect failed")
	ErrUnexpectedClose = errors.New("stream closed unexpectedly")
	ErrParse           = errors.New("parse error")

	// Request errors
	ErrRequestFailed = errors.New("request failed")

	// Session errors
	ErrMoveAlreadyInFlight = errors.New("move already in flight")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrSessionClosed       = errors.New("session closed")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInvalidMove = errors.New("invalid move")
)

// RequestError is returned when the server answers with a non-2xx status.
type RequestError struct {
	Status   int
	Body     string
	Endpoint string
	Err      error // underlying cause, e.g. a failed refresh after a 401
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("request %s failed with status %d", e.Endpoint, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRequestFailed}
	}
	return []error{ErrRequestFailed, e.Err}
}

// TransportError is returned when no response was received at all.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrConnectFailed, e.Err}
}

// StatusCode extracts the HTTP status from a RequestError chain, or 0.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join is errors.Join re-exported so callers need only this package
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// New is errors.New re-exported so callers need only this package
func New(text string) error {
	return errors.New(text)
}
