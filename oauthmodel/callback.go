package oauthmodel

import (
	"crypto/subtle"
	"fmt"
	"net/url"
	"strings"
)

// CallbackParameters are the query parameters lichess appends to the redirect
// URI when the interactive authorization step finishes.
type CallbackParameters struct {
	// Code is the single use authorization code. Empty when the user denied access.
	Code string

	// State echoes the opaque value sent with the authorization request.
	// Must match exactly to guard against CSRF.
	State string

	// Error is set instead of Code when authorization failed.
	// Example: "access_denied"
	Error string

	// ErrorDescription is an optional human readable companion to Error.
	ErrorDescription string
}

// ParseCallback extracts the callback parameters from a redirect query.
func ParseCallback(values url.Values) CallbackParameters {
	return CallbackParameters{
		Code:             values.Get("code"),
		State:            values.Get("state"),
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
	}
}

// Denied reports whether the authorization server returned an error.
func (p CallbackParameters) Denied() bool {
	return strings.TrimSpace(p.Error) != ""
}

// Validate checks the callback carries a code and the expected state.
func (p CallbackParameters) Validate(expectedState string) error {
	if p.Denied() {
		if p.ErrorDescription != "" {
			return fmt.Errorf("%s: %s", p.Error, p.ErrorDescription)
		}
		return fmt.Errorf("%s", p.Error)
	}
	if p.State == "" {
		return ErrMissingState
	}
	if subtle.ConstantTimeCompare([]byte(p.State), []byte(expectedState)) != 1 {
		return ErrStateMismatch
	}
	if p.Code == "" {
		return ErrMissingCode
	}
	return nil
}
