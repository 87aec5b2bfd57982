package credentials

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
)

// StorageKey is the fixed key the credential record is persisted under.
const StorageKey = "authState"

// Credentials is the persisted authentication record. A nil *Credentials
// means logged out.
type Credentials struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// Store persists at most one credential record. Load returns nil, nil when no
// record exists.
type Store interface {
	Load(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, creds *Credentials) error
	Clear(ctx context.Context) error
}

// Validate checks the record carries a token and a definite expiry.
func (c *Credentials) Validate() error {
	if c == nil {
		return errors.ErrNotAuthenticated
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		return errors.Wrapf(errors.ErrInvalidCredentials, "empty access token")
	}
	if c.ExpiresAt.IsZero() {
		return errors.Wrapf(errors.ErrInvalidCredentials, "missing expiry")
	}
	return nil
}

// Expired reports whether the access token is expired at now, treating the
// last skew of its lifetime as already expired.
func (c *Credentials) Expired(now time.Time, skew time.Duration) bool {
	if c == nil {
		return true
	}
	return !now.Add(skew).Before(c.ExpiresAt)
}

func (c *Credentials) HasRefreshToken() bool {
	return c != nil && strings.TrimSpace(c.RefreshToken) != ""
}

func (c *Credentials) HasScope(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}

// Clone returns a deep copy so callers never share the session's record.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Scopes = slices.Clone(c.Scopes)
	return &cp
}
