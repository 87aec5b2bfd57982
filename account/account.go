// Package account fetches the authenticated lichess identity.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
)

const (
	// AccountPath is the profile endpoint relative to the lichess host.
	AccountPath = "/api/account"

	maxErrorBody = 8 << 10
)

// Perf is one rating category from the profile.
type Perf struct {
	Games       int  `json:"games"`
	Rating      int  `json:"rating"`
	RD          int  `json:"rd"`
	Progression int  `json:"prog"`
	Provisional bool `json:"prov,omitempty"`
}

// Me is the identity of the logged in user. It is a plain value: request
// plumbing lives in httpclient, never here.
type Me struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Title     string          `json:"title,omitempty"`
	Patron    bool            `json:"patron,omitempty"`
	URL       string          `json:"url,omitempty"`
	CreatedAt int64           `json:"createdAt,omitempty"` // epoch millis
	Disabled  bool            `json:"disabled,omitempty"`
	Perfs     map[string]Perf `json:"perfs,omitempty"`
}

func (m *Me) Created() time.Time {
	if m == nil || m.CreatedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.CreatedAt)
}

// Clone returns a deep copy.
func (m *Me) Clone() *Me {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Perfs != nil {
		cp.Perfs = make(map[string]Perf, len(m.Perfs))
		for k, v := range m.Perfs {
			cp.Perfs[k] = v
		}
	}
	return &cp
}

// Fetcher resolves the identity owning an access token.
type Fetcher interface {
	Fetch(ctx context.Context, accessToken string) (*Me, error)
}

var _ Fetcher = (*Client)(nil)

// Client calls the lichess profile endpoint with an explicit bearer token.
// It is used before a token is committed to the session, so it cannot go
// through the refreshing client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) Fetch(ctx context.Context, accessToken string) (*Me, error) {
	endpoint := c.baseURL + AccountPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errors.TransportError{Endpoint: AccountPath, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &errors.RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body)), Endpoint: AccountPath}
	}

	var me Me
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, errors.Wrapf(errors.ErrParse, "decode %s: %v", AccountPath, err)
	}
	if me.ID == "" {
		return nil, errors.Wrapf(errors.ErrParse, "%s returned no id", AccountPath)
	}
	return &me, nil
}
