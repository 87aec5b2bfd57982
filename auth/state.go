package auth

import (
	"context"

	"github.com/jrsteele09/go-lichess-client/oauthmodel"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateLoggedOut State = iota
	StateAuthorizing
	StateAuthenticated
	StateRefreshing
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// Authorizer performs the interactive step of the authorization-code flow:
// it sends the user to authURL and returns the parameters lichess redirected
// back with.
type Authorizer interface {
	Authorize(ctx context.Context, authURL string) (oauthmodel.CallbackParameters, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, authURL string) (oauthmodel.CallbackParameters, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, authURL string) (oauthmodel.CallbackParameters, error) {
	return f(ctx, authURL)
}
