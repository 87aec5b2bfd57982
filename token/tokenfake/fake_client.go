package tokenfake

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/jrsteele09/go-lichess-client/token"
)

var _ token.Client = (*FakeClient)(nil)

// FakeClient is a scriptable token.Client that counts calls.
type FakeClient struct {
	lock sync.Mutex

	// ExchangeToken is returned by Exchange for ValidCode.
	ValidCode     string
	ExchangeToken *token.Token
	ExchangeErr   error

	// RefreshResult is returned by Refresh; nil means refresh fails.
	RefreshResult *token.Token
	RefreshErr    error
	// RefreshGate, when set, blocks Refresh until it is closed.
	RefreshGate chan struct{}

	RevokeErr error

	Exchanges   int
	Refreshes   int
	Revocations []string
	LastPKCE    token.PKCE
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

func (c *FakeClient) AuthCodeURL(state string, pkce token.PKCE) string {
	c.lock.Lock()
	c.LastPKCE = pkce
	c.lock.Unlock()
	q := url.Values{
		"state":                 {state},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {string(pkce.Method)},
	}
	return "https://lichess.test/oauth?" + q.Encode()
}

func (c *FakeClient) Exchange(_ context.Context, code string, pkce token.PKCE) (*token.Token, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.Exchanges++
	if c.ExchangeErr != nil {
		return nil, c.ExchangeErr
	}
	if code != c.ValidCode || token.CodeChallenge(pkce.Verifier) != c.LastPKCE.Challenge {
		return nil, fmt.Errorf("%w: invalid_grant", errors.ErrCodeExchangeFailed)
	}
	cp := *c.ExchangeToken
	return &cp, nil
}

func (c *FakeClient) Refresh(ctx context.Context, refreshToken string) (*token.Token, error) {
	c.lock.Lock()
	gate := c.RefreshGate
	c.Refreshes++
	c.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return nil, fmt.Errorf("%w: gate never opened", errors.ErrRefreshFailed)
		}
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if c.RefreshErr != nil {
		return nil, c.RefreshErr
	}
	if c.RefreshResult == nil {
		return nil, fmt.Errorf("%w: invalid_grant", errors.ErrRefreshFailed)
	}
	cp := *c.RefreshResult
	return &cp, nil
}

func (c *FakeClient) Revoke(_ context.Context, accessToken string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.Revocations = append(c.Revocations, accessToken)
	return c.RevokeErr
}

func (c *FakeClient) RefreshCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.Refreshes
}

func (c *FakeClient) ExchangeCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.Exchanges
}
