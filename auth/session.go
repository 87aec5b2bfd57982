// Package auth owns the lichess credential lifecycle: PKCE login, manual
// token login, restore from storage, refresh and logout.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-lichess-client/account"
	"github.com/jrsteele09/go-lichess-client/credentials"
	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/jrsteele09/go-lichess-client/internal/logging"
	"github.com/jrsteele09/go-lichess-client/token"
	"github.com/jrsteele09/go-lichess-client/token/jwt"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// Deps holds the collaborators a Session cannot work without.
type Deps struct {
	Store    credentials.Store // durable credential record
	Tokens   token.Client      // code exchange, refresh and revocation
	Profiles account.Fetcher   // identity lookup for a token
}

// Session is the authenticated session against lichess. It is the only
// writer of the credential store. Create one per process and pass it to the
// consumers that need a token.
type Session struct {
	deps          Deps
	authorizer    Authorizer
	logger        zerolog.Logger
	nowTime       func() time.Time
	defaultExpiry time.Duration
	refreshSkew   time.Duration

	mu     sync.RWMutex
	state  State
	creds  *credentials.Credentials
	me     *account.Me
	closed bool

	// storeMu orders store writes against Logout's clear.
	storeMu sync.Mutex

	refreshGroup singleflight.Group
}

// SessionOption defines a function type to modify the Session instance.
type SessionOption func(*Session)

// WithAuthorizer sets the interactive step used by Login.
func WithAuthorizer(a Authorizer) SessionOption {
	return func(s *Session) {
		s.authorizer = a
	}
}

func WithLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SessionOption {
	return func(s *Session) {
		s.nowTime = nowFunc
	}
}

// WithDefaultExpiry sets the lifetime assumed for manually supplied tokens.
func WithDefaultExpiry(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.defaultExpiry = d
		}
	}
}

// WithRefreshSkew treats tokens as expired this long before their expiry.
func WithRefreshSkew(d time.Duration) SessionOption {
	return func(s *Session) {
		if d >= 0 {
			s.refreshSkew = d
		}
	}
}

// NewSession initializes a logged out Session. Call Init to restore a
// persisted login.
func NewSession(deps Deps, options ...SessionOption) (*Session, error) {
	if deps.Store == nil {
		return nil, errors.New("[NewSession] credential store is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("[NewSession] token client is required")
	}
	if deps.Profiles == nil {
		return nil, errors.New("[NewSession] profile fetcher is required")
	}

	s := &Session{
		deps:          deps,
		logger:        logging.Silent(),
		nowTime:       time.Now,
		defaultExpiry: token.DefaultExpiry,
		state:         StateLoggedOut,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Init restores the persisted credentials. A missing record leaves the
// session logged out without error, and a malformed one is discarded. A
// record the store cannot decrypt is left in place and the error returned.
// Expired credentials are refreshed before the identity is fetched.
func (s *Session) Init(ctx context.Context) error {
	if s.isClosed() {
		return errors.ErrSessionClosed
	}

	creds, err := s.deps.Store.Load(ctx)
	if errors.Is(err, errors.ErrInvalidCredentials) {
		s.logger.Warn().Err(err).Msg("discarding unreadable credential record")
		return s.clearStore(ctx)
	}
	if err != nil {
		s.setState(StateLoggedOut)
		return errors.Wrapf(err, "[Session Init] load credentials")
	}
	if creds == nil {
		s.setState(StateLoggedOut)
		return nil
	}

	expired := creds.Expired(s.nowTime(), s.refreshSkew)
	s.mu.Lock()
	s.creds = creds
	s.me = nil
	s.state = StateAuthenticated
	if expired {
		s.state = StateExpired
	}
	s.mu.Unlock()

	accessToken := creds.AccessToken
	if expired {
		s.logger.Debug().Time("expires_at", creds.ExpiresAt).Msg("stored token expired, refreshing")
		if accessToken, err = s.RefreshAccessToken(ctx, creds.AccessToken); err != nil {
			return err
		}
	}

	me, err := s.deps.Profiles.Fetch(ctx, accessToken)
	if err != nil {
		s.mu.Lock()
		s.creds = nil
		s.state = StateLoggedOut
		s.mu.Unlock()
		// A rejected token is useless; anything else may be transient.
		if errors.StatusCode(err) == http.StatusUnauthorized {
			if clearErr := s.clearStore(ctx); clearErr != nil {
				s.logger.Error().Err(clearErr).Msg("failed to clear rejected credentials")
			}
		}
		return fmt.Errorf("%w: %w", errors.ErrProfileFetchFailed, err)
	}

	s.mu.Lock()
	s.me = me
	s.mu.Unlock()
	s.logger.Info().Str("user", me.Username).Msg("session restored")
	return nil
}

// Login runs the interactive PKCE authorization-code flow. On failure the
// prior session is left untouched and nothing is persisted.
func (s *Session) Login(ctx context.Context) error {
	if s.authorizer == nil {
		return errors.Wrapf(errors.ErrAuthorizationDenied, "[Session Login] no authorizer configured")
	}
	prev, err := s.beginAuthorizing()
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			s.restoreState(prev)
		}
	}()

	pkce, err := token.NewPKCE()
	if err != nil {
		return fmt.Errorf("[Session Login] pkce: %w", err)
	}
	state := uuid.NewString()

	params, err := s.authorizer.Authorize(ctx, s.deps.Tokens.AuthCodeURL(state, pkce))
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrAuthorizationDenied, err)
	}
	if err := params.Validate(state); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrAuthorizationDenied, err)
	}

	tok, err := s.deps.Tokens.Exchange(ctx, params.Code, pkce)
	if err != nil {
		if !errors.Is(err, errors.ErrCodeExchangeFailed) && !errors.Is(err, errors.ErrNoAccessToken) {
			err = fmt.Errorf("%w: %w", errors.ErrCodeExchangeFailed, err)
		}
		return err
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return errors.ErrNoAccessToken
	}

	if err := s.establish(ctx, tok); err != nil {
		return err
	}
	committed = true
	return nil
}

// ManualLogin adopts a personal API token. The token is validated by fetching
// the identity it belongs to.
func (s *Session) ManualLogin(ctx context.Context, accessToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return errors.ErrNoAccessToken
	}
	prev, err := s.beginAuthorizing()
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			s.restoreState(prev)
		}
	}()

	expiresAt := s.nowTime().Add(s.defaultExpiry)
	tok := &token.Token{AccessToken: accessToken, ExpiresAt: expiresAt}
	if claims, err := jwt.Inspect(accessToken); err == nil {
		if !claims.ExpiresAt.IsZero() && claims.ExpiresAt.Before(expiresAt) {
			tok.ExpiresAt = claims.ExpiresAt
		}
		tok.Scopes = claims.Scopes
	}

	if err := s.establish(ctx, tok); err != nil {
		return err
	}
	committed = true
	return nil
}

// establish fetches the identity for tok, persists and commits it.
func (s *Session) establish(ctx context.Context, tok *token.Token) error {
	me, err := s.deps.Profiles.Fetch(ctx, tok.AccessToken)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrProfileFetchFailed, err)
	}

	creds := &credentials.Credentials{
		ID:           me.ID,
		Username:     me.Username,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
		Scopes:       tok.Scopes,
	}
	if err := s.persist(ctx, creds); err != nil {
		return errors.Wrapf(err, "[Session] persist credentials")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrSessionClosed
	}
	s.creds = creds
	s.me = me
	s.state = StateAuthenticated
	s.logger.Info().Str("user", me.Username).Time("expires_at", creds.ExpiresAt).Msg("logged in")
	return nil
}

// RefreshToken exchanges the refresh token for new credentials. On failure
// the session is logged out and storage cleared.
func (s *Session) RefreshToken(ctx context.Context) error {
	s.mu.RLock()
	creds := s.creds
	s.mu.RUnlock()
	if creds == nil {
		return errors.ErrNotAuthenticated
	}
	_, err := s.RefreshAccessToken(ctx, creds.AccessToken)
	return err
}

// AccessToken returns a token valid for an authorized call, refreshing first
// when the current one has expired.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.ErrSessionClosed
	}
	if s.creds == nil {
		s.mu.Unlock()
		return "", errors.ErrNotAuthenticated
	}
	accessToken := s.creds.AccessToken
	expired := s.creds.Expired(s.nowTime(), s.refreshSkew)
	if expired && s.state == StateAuthenticated {
		s.state = StateExpired
	}
	s.mu.Unlock()

	if !expired {
		return accessToken, nil
	}
	return s.RefreshAccessToken(ctx, accessToken)
}

// RefreshAccessToken replaces stale with a fresh token. Concurrent callers
// share one exchange, and a caller whose stale token was already replaced
// gets the current token without a second exchange.
func (s *Session) RefreshAccessToken(ctx context.Context, stale string) (string, error) {
	s.mu.RLock()
	closed, creds := s.closed, s.creds
	s.mu.RUnlock()
	if closed {
		return "", errors.ErrSessionClosed
	}
	if creds == nil {
		return "", errors.ErrNotAuthenticated
	}
	if stale != "" && creds.AccessToken != stale {
		return creds.AccessToken, nil
	}

	// The shared exchange must not die with whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return s.doRefresh(flightCtx, creds.AccessToken)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) doRefresh(ctx context.Context, observed string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.ErrSessionClosed
	}
	if s.creds == nil {
		s.mu.Unlock()
		return "", errors.ErrNotAuthenticated
	}
	if s.creds.AccessToken != observed {
		current := s.creds.AccessToken
		s.mu.Unlock()
		return current, nil
	}
	creds := s.creds.Clone()
	s.state = StateRefreshing
	s.mu.Unlock()

	if !creds.HasRefreshToken() {
		return "", s.failRefresh(ctx, errors.ErrNoRefreshToken)
	}

	tok, err := s.deps.Tokens.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		if !errors.Is(err, errors.ErrRefreshFailed) && !errors.Is(err, errors.ErrNoRefreshToken) {
			err = fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
		}
		return "", s.failRefresh(ctx, err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return "", s.failRefresh(ctx, fmt.Errorf("%w: %w", errors.ErrRefreshFailed, errors.ErrNoAccessToken))
	}

	refreshed := &credentials.Credentials{
		ID:           creds.ID,
		Username:     creds.Username,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
		Scopes:       tok.Scopes,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}
	if len(refreshed.Scopes) == 0 {
		refreshed.Scopes = creds.Scopes
	}

	if err := s.persist(ctx, refreshed); err != nil {
		if errors.Is(err, errors.ErrSessionClosed) {
			return "", err
		}
		// The new token is still good in memory; the next refresh retries the write.
		s.logger.Error().Err(err).Msg("failed to persist refreshed credentials")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.ErrSessionClosed
	}
	s.creds = refreshed
	s.state = StateAuthenticated
	s.logger.Debug().Time("expires_at", refreshed.ExpiresAt).Msg("access token refreshed")
	return refreshed.AccessToken, nil
}

func (s *Session) failRefresh(ctx context.Context, cause error) error {
	s.mu.Lock()
	s.creds = nil
	s.me = nil
	s.state = StateLoggedOut
	s.mu.Unlock()

	s.logger.Warn().Err(cause).Msg("refresh failed, logging out")
	if err := s.clearStore(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to clear credentials after refresh failure")
	}
	return cause
}

// Logout revokes the token on a best effort basis and clears memory and
// storage. The session cannot be used again afterwards. Calling it again is a
// no-op.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	creds := s.creds
	s.creds = nil
	s.me = nil
	s.state = StateLoggedOut
	s.mu.Unlock()

	if creds != nil {
		if err := s.deps.Tokens.Revoke(ctx, creds.AccessToken); err != nil {
			s.logger.Warn().Err(err).Msg("token revocation failed")
		}
	}
	if err := s.clearStore(ctx); err != nil {
		return errors.Wrapf(err, "[Session Logout] clear credentials")
	}
	s.logger.Info().Msg("logged out")
	return nil
}

// IsAuthenticated reports whether the session holds credentials.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds != nil && !s.closed
}

// Me returns a copy of the identity, or nil when logged out.
func (s *Session) Me() *account.Me {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.me.Clone()
}

// Credentials returns a copy of the current record, or nil when logged out.
func (s *Session) Credentials() *credentials.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Clone()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) beginAuthorizing() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.state, errors.ErrSessionClosed
	}
	prev := s.state
	s.state = StateAuthorizing
	return prev, nil
}

func (s *Session) restoreState(prev State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthorizing {
		s.state = prev
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) persist(ctx context.Context, creds *credentials.Credentials) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if s.isClosed() {
		return errors.ErrSessionClosed
	}
	return s.deps.Store.Save(ctx, creds)
}

func (s *Session) clearStore(ctx context.Context) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	return s.deps.Store.Clear(ctx)
}
