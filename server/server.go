// Package server runs the short-lived loopback listener that receives the
// OAuth redirect for a command line login.
package server

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-lichess-client/auth"
	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/jrsteele09/go-lichess-client/internal/logging"
	"github.com/jrsteele09/go-lichess-client/oauthmodel"
	"github.com/jrsteele09/go-lichess-client/server/authflowrepo"
	"github.com/rs/zerolog"
)

const (
	DefaultLoginTimeout = 5 * time.Minute
	shutdownTimeout     = 2 * time.Second
)

var _ auth.Authorizer = (*LoopbackAuthorizer)(nil)

// PromptFunc shows the authorization URL to the user.
type PromptFunc func(ctx context.Context, authURL string) error

// LoopbackAuthorizer implements auth.Authorizer by listening on the redirect
// URI's host and port for the single callback lichess sends back.
type LoopbackAuthorizer struct {
	env          string
	listenAddr   string
	callbackPath string
	prompt       PromptFunc
	timeout      time.Duration
	logger       zerolog.Logger
	flows        authflowrepo.Repo
	page         *template.Template
	nowFunc      func() time.Time

	mu   sync.Mutex
	addr string
}

type Option func(*LoopbackAuthorizer)

func WithPrompt(prompt PromptFunc) Option {
	return func(a *LoopbackAuthorizer) {
		a.prompt = prompt
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(a *LoopbackAuthorizer) {
		a.timeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *LoopbackAuthorizer) {
		a.logger = logger
	}
}

// WithEnv enables coloured request logging on stdout for "DEV".
func WithEnv(env string) Option {
	return func(a *LoopbackAuthorizer) {
		a.env = env
	}
}

// WithListenAddr overrides the address derived from the redirect URL.
func WithListenAddr(addr string) Option {
	return func(a *LoopbackAuthorizer) {
		a.listenAddr = addr
	}
}

func WithFlowRepo(flows authflowrepo.Repo) Option {
	return func(a *LoopbackAuthorizer) {
		a.flows = flows
	}
}

// NewLoopbackAuthorizer prepares a listener for redirectURL, which must be an
// http URL with an explicit port.
func NewLoopbackAuthorizer(redirectURL string, opts ...Option) (*LoopbackAuthorizer, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("[NewLoopbackAuthorizer] invalid redirect url: %w", err)
	}
	if u.Scheme != "http" || u.Port() == "" {
		return nil, fmt.Errorf("[NewLoopbackAuthorizer] redirect url %q must be http with an explicit port", redirectURL)
	}

	page, err := ParseTemplate(CallbackTemplate)
	if err != nil {
		return nil, fmt.Errorf("[NewLoopbackAuthorizer] %w", err)
	}

	callbackPath := u.Path
	if callbackPath == "" {
		callbackPath = RouteCallback
	}

	a := &LoopbackAuthorizer{
		listenAddr:   u.Host,
		callbackPath: callbackPath,
		prompt:       printPrompt,
		timeout:      DefaultLoginTimeout,
		logger:       logging.Silent(),
		flows:        authflowrepo.NewInMemoryRepo(),
		page:         page,
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func printPrompt(_ context.Context, authURL string) error {
	_, err := fmt.Fprintf(os.Stderr, "Open this URL in your browser to authorize:\n\n  %s\n\n", authURL)
	return err
}

// Addr is the bound listener address while an authorization is running.
func (a *LoopbackAuthorizer) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Authorize serves the callback route, prompts the user and waits for the
// redirect carrying the state embedded in authURL.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, authURL string) (oauthmodel.CallbackParameters, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return oauthmodel.CallbackParameters{}, fmt.Errorf("invalid authorization url: %w", err)
	}
	state := u.Query().Get("state")
	if state == "" {
		return oauthmodel.CallbackParameters{}, oauthmodel.ErrMissingState
	}

	now := a.nowFunc()
	if n := a.flows.Expire(now.Add(-a.timeout)); n > 0 {
		a.logger.Debug().Int("expired", n).Msg("dropped stale authorization flows")
	}
	if err := a.flows.Upsert(state, &authflowrepo.AuthFlowState{AuthURL: authURL, CreatedAt: now}); err != nil {
		return oauthmodel.CallbackParameters{}, err
	}
	defer func() { _ = a.flows.Delete(state) }()

	ln, err := net.Listen("tcp", a.listenAddr)
	if err != nil {
		return oauthmodel.CallbackParameters{}, fmt.Errorf("listen on %s: %w", a.listenAddr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr().String()
	a.mu.Unlock()

	results := make(chan oauthmodel.CallbackParameters, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+RouteHealth, func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	mux.HandleFunc(a.callbackPath, ChainMiddleware(a.CallbackHandler(results), a.standardMiddleware()...))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("callback listener failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		a.mu.Lock()
		a.addr = ""
		a.mu.Unlock()
	}()

	a.logger.Info().Str("addr", ln.Addr().String()).Msg("waiting for authorization callback")
	if err := a.prompt(ctx, authURL); err != nil {
		return oauthmodel.CallbackParameters{}, fmt.Errorf("prompt: %w", err)
	}

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case params := <-results:
		return params, nil
	case <-ctx.Done():
		return oauthmodel.CallbackParameters{}, ctx.Err()
	case <-timer.C:
		return oauthmodel.CallbackParameters{}, fmt.Errorf("no callback within %s", a.timeout)
	}
}

type callbackPage struct {
	Success bool
	Title   string
	Message string
}

// CallbackHandler accepts the redirect for a pending state. Requests for
// unknown states are rejected and do not end the wait.
func (a *LoopbackAuthorizer) CallbackHandler(results chan<- oauthmodel.CallbackParameters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Supports both query parameters and form_post responses.
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Malformed callback", http.StatusBadRequest)
			return
		}
		params := oauthmodel.ParseCallback(r.Form)

		if params.State == "" {
			http.Error(w, "Missing state parameter", http.StatusBadRequest)
			return
		}
		if _, err := a.flows.Get(params.State); err != nil {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		if err := a.flows.Delete(params.State); err != nil {
			http.Error(w, "Invalid state parameter", http.StatusInternalServerError)
			return
		}

		select {
		case results <- params:
		default:
		}

		page := callbackPage{Success: true, Title: "Authorized", Message: "Login complete."}
		status := http.StatusOK
		switch {
		case params.Denied():
			page = callbackPage{Title: "Authorization failed", Message: strings.TrimSpace(params.Error + " " + params.ErrorDescription)}
			status = http.StatusBadRequest
		case params.Code == "":
			page = callbackPage{Title: "Authorization failed", Message: "Missing code parameter."}
			status = http.StatusBadRequest
		}
		a.render(w, status, page)
	}
}

func (a *LoopbackAuthorizer) render(w http.ResponseWriter, status int, page callbackPage) {
	var buf bytes.Buffer
	if err := a.page.Execute(&buf, page); err != nil {
		a.logger.Error().Err(err).Msg("render callback page")
		http.Error(w, page.Title, status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
