// Package httpclient executes lichess API requests with the session's bearer
// token, classifying failures and retrying once after a refresh on 401.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/jrsteele09/go-lichess-client/internal/logging"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 8 // requests per second
	DefaultRateBurst = 4
	RequestIDHeader  = "X-Request-Id"

	maxErrorBody = 8 << 10
)

// TokenSource supplies bearer tokens. auth.Session implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshAccessToken(ctx context.Context, stale string) (string, error)
}

// RequestConfig enumerates the recognised per-request options. Header
// precedence, lowest first: client defaults, Headers, then Authorization,
// which is always the session token.
type RequestConfig struct {
	Method  string
	Path    string // relative to the base URL, or absolute
	Query   url.Values
	Headers http.Header
	Body    []byte
	Form    url.Values // sent urlencoded when Body is nil
	// Timeout bounds the whole exchange including reading the body. Zero uses
	// the client default; negative disables it for long-lived streams.
	Timeout time.Duration
}

// Client implements the authorized request layer
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	limiter        *rate.Limiter
	timeout        time.Duration
	defaultHeaders http.Header
	logger         zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithHTTPClient sets the transport. Its Timeout must be zero or streams
// would be cut off.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets the client side rate limit
func WithRateLimit(requestsPerSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithTimeout sets the default per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.defaultHeaders.Set("User-Agent", userAgent)
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for baseURL authorized by tokens.
func New(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateBurst),
		timeout:    DefaultTimeout,
		defaultHeaders: http.Header{
			"Accept":     {"application/json"},
			"User-Agent": {"go-lichess-client"},
		},
		logger: logging.Silent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes cfg with the current token. A 2xx response is returned with
// its body open for the caller to close. A 401 triggers one refresh and one
// retry. Other non-2xx statuses return *errors.RequestError and transport
// failures *errors.TransportError.
func (c *Client) Do(ctx context.Context, cfg RequestConfig) (*http.Response, error) {
	accessToken, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, cfg, accessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		body := readErrorBody(resp)
		c.logger.Debug().Str("path", cfg.Path).Msg("unauthorized, refreshing token")

		fresh, refreshErr := c.tokens.RefreshAccessToken(ctx, accessToken)
		if refreshErr != nil {
			return nil, &errors.RequestError{Status: resp.StatusCode, Body: body, Endpoint: cfg.Path, Err: refreshErr}
		}
		if resp, err = c.send(ctx, cfg, fresh); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errors.RequestError{Status: resp.StatusCode, Body: readErrorBody(resp), Endpoint: cfg.Path}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, cfg RequestConfig, accessToken string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	req, err := c.newRequest(ctx, cfg, accessToken)
	if err != nil {
		cancel()
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, &errors.TransportError{Endpoint: cfg.Path, Err: err}
	}
	c.logger.Debug().
		Str("request_id", req.Header.Get(RequestIDHeader)).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("lichess request")

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, cfg RequestConfig, accessToken string) (*http.Request, error) {
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	endpoint, err := c.resolve(cfg.Path, cfg.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	contentType := ""
	switch {
	case cfg.Body != nil:
		body = bytes.NewReader(cfg.Body)
	case cfg.Form != nil:
		body = strings.NewReader(cfg.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range c.defaultHeaders {
		req.Header[k] = append([]string(nil), vs...)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range cfg.Headers {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return req, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	raw := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		raw = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, RequestConfig{Method: http.MethodGet, Path: path}, out)
}

// PostForm posts form urlencoded and decodes the JSON response into out when
// out is non-nil.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	if form == nil {
		form = url.Values{}
	}
	return c.DoJSON(ctx, RequestConfig{Method: http.MethodPost, Path: path, Form: form}, out)
}

// DoJSON executes cfg and decodes the response body into out.
func (c *Client) DoJSON(ctx context.Context, cfg RequestConfig, out any) error {
	resp, err := c.Do(ctx, cfg)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(errors.ErrParse, "decode %s: %v", cfg.Path, err)
	}
	return nil
}

// Open starts a long-lived GET with no timeout and returns its body. It lets
// the client act as the transport for a stream reader.
func (c *Client) Open(ctx context.Context, endpoint string, headers http.Header) (io.ReadCloser, error) {
	resp, err := c.Do(ctx, RequestConfig{
		Method:  http.MethodGet,
		Path:    endpoint,
		Headers: headers,
		Timeout: -1,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Stream opens path as a long-lived body with the given Accept type.
func (c *Client) Stream(ctx context.Context, path, accept string) (io.ReadCloser, error) {
	return c.Open(ctx, path, http.Header{"Accept": {accept}})
}

func readErrorBody(resp *http.Response) string {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(body))
}

// cancelOnClose releases the per-request timeout when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
