// Package token talks to the lichess OAuth2 endpoints: building the
// authorization URL, exchanging codes, refreshing and revoking tokens.
package token

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/jrsteele09/go-lichess-client/token/jwt"
	"golang.org/x/oauth2"
)

const (
	AuthorizePath = "/oauth"
	TokenPath     = "/api/token"

	// DefaultExpiry applies when the token response omits expires_in.
	DefaultExpiry = time.Hour
)

// Token is the result of a successful code exchange or refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
}

// Client is the external authorization-code exchange capability used by the
// auth session.
type Client interface {
	AuthCodeURL(state string, pkce PKCE) string
	Exchange(ctx context.Context, code string, pkce PKCE) (*Token, error)
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
	Revoke(ctx context.Context, accessToken string) error
}

var _ Client = (*OAuthClient)(nil)

// OAuthClient implements Client over golang.org/x/oauth2 for a public
// (secretless) client.
type OAuthClient struct {
	config        *oauth2.Config
	host          string
	httpClient    *http.Client
	defaultExpiry time.Duration
	now           func() time.Time
}

type Option func(*OAuthClient)

func WithHTTPClient(c *http.Client) Option {
	return func(o *OAuthClient) {
		o.httpClient = c
	}
}

// WithEndpoint overrides the lichess endpoints, e.g. with ones found through
// OIDC discovery.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(o *OAuthClient) {
		o.config.Endpoint = endpoint
	}
}

func WithDefaultExpiry(d time.Duration) Option {
	return func(o *OAuthClient) {
		if d > 0 {
			o.defaultExpiry = d
		}
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(o *OAuthClient) {
		o.now = now
	}
}

// LichessEndpoint returns the authorization and token endpoints under host.
func LichessEndpoint(host string) oauth2.Endpoint {
	host = strings.TrimRight(host, "/")
	return oauth2.Endpoint{
		AuthURL:   host + AuthorizePath,
		TokenURL:  host + TokenPath,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func NewOAuthClient(host, clientID, redirectURL string, scopes []string, opts ...Option) *OAuthClient {
	c := &OAuthClient{
		config: &oauth2.Config{
			ClientID:    clientID,
			Endpoint:    LichessEndpoint(host),
			RedirectURL: redirectURL,
			Scopes:      slices.Clone(scopes),
		},
		host:          strings.TrimRight(host, "/"),
		httpClient:    http.DefaultClient,
		defaultExpiry: DefaultExpiry,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthCodeURL builds the URL the user must visit to grant access.
func (c *OAuthClient) AuthCodeURL(state string, pkce PKCE) string {
	return c.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", string(pkce.Method)),
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
	)
}

func (c *OAuthClient) Exchange(ctx context.Context, code string, pkce PKCE) (*Token, error) {
	tok, err := c.config.Exchange(c.clientContext(ctx), code, oauth2.VerifierOption(pkce.Verifier))
	if err != nil {
		// x/oauth2 reports an empty access_token as a plain error
		if strings.Contains(err.Error(), "missing access_token") {
			return nil, fmt.Errorf("%w: %w", errors.ErrNoAccessToken, err)
		}
		return nil, fmt.Errorf("%w: %w", errors.ErrCodeExchangeFailed, err)
	}
	return c.fromOAuth2(tok, ""), nil
}

func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.ErrNoRefreshToken
	}
	// An empty access token forces the source to hit the token endpoint.
	src := c.config.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
	}
	return c.fromOAuth2(tok, refreshToken), nil
}

func (c *OAuthClient) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// fromOAuth2 resolves expiry as expires_in, then the JWT exp claim, then the
// default lifetime.
func (c *OAuthClient) fromOAuth2(tok *oauth2.Token, previousRefresh string) *Token {
	now := c.now()
	var expiresAt time.Time
	switch {
	case tok.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	case !tok.Expiry.IsZero():
		expiresAt = tok.Expiry
	default:
		expiresAt = jwt.ExpiryOr(tok.AccessToken, now.Add(c.defaultExpiry))
	}

	scopes := slices.Clone(c.config.Scopes)
	if granted, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(granted) != "" {
		scopes = strings.Fields(granted)
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		Scopes:       scopes,
	}
}
