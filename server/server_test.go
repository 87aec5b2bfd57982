package server_test

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-lichess-client/account"
	"github.com/jrsteele09/go-lichess-client/account/accountfake"
	"github.com/jrsteele09/go-lichess-client/auth"
	"github.com/jrsteele09/go-lichess-client/credentials/repofake"
	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/jrsteele09/go-lichess-client/oauthmodel"
	"github.com/jrsteele09/go-lichess-client/server"
	"github.com/jrsteele09/go-lichess-client/server/authflowrepo"
	"github.com/jrsteele09/go-lichess-client/token"
	"github.com/jrsteele09/go-lichess-client/token/tokenfake"
	"github.com/stretchr/testify/require"
)

const testAuthURL = "https://lichess.test/oauth?state=st-123&code_challenge=abc"

// redirectPrompt simulates the browser following the redirect with query.
func redirectPrompt(t *testing.T, a **server.LoopbackAuthorizer, query func(authURL string) url.Values, statuses chan<- int) server.PromptFunc {
	return func(_ context.Context, authURL string) error {
		target := "http://" + (*a).Addr() + server.RouteCallback + "?" + query(authURL).Encode()
		go func() {
			resp, err := http.Get(target)
			if err != nil {
				statuses <- 0
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
		return nil
	}
}

func stateOf(authURL string) string {
	u, _ := url.Parse(authURL)
	return u.Query().Get("state")
}

func newAuthorizer(t *testing.T, query func(string) url.Values, statuses chan<- int, opts ...server.Option) *server.LoopbackAuthorizer {
	t.Helper()
	var a *server.LoopbackAuthorizer
	options := append([]server.Option{
		server.WithListenAddr("127.0.0.1:0"),
		server.WithPrompt(redirectPrompt(t, &a, query, statuses)),
		server.WithTimeout(2 * time.Second),
	}, opts...)
	var err error
	a, err = server.NewLoopbackAuthorizer("http://127.0.0.1:8085/callback", options...)
	require.NoError(t, err)
	return a
}

func TestNewLoopbackAuthorizerValidation(t *testing.T) {
	_, err := server.NewLoopbackAuthorizer("https://127.0.0.1:8085/callback")
	require.Error(t, err)
	_, err = server.NewLoopbackAuthorizer("http://localhost/callback")
	require.Error(t, err)
	_, err = server.NewLoopbackAuthorizer("http://127.0.0.1:8085/callback")
	require.NoError(t, err)
}

func TestParseTemplate(t *testing.T) {
	tmpl, err := server.ParseTemplate(server.CallbackTemplate)
	require.NoError(t, err)
	require.Equal(t, server.CallbackTemplate, tmpl.Name())

	_, err = server.ParseTemplate("missing.html")
	require.Error(t, err)
}

func TestAuthorizeReceivesCode(t *testing.T) {
	statuses := make(chan int, 1)
	a := newAuthorizer(t, func(authURL string) url.Values {
		return url.Values{"code": {"liu_code"}, "state": {stateOf(authURL)}}
	}, statuses)

	params, err := a.Authorize(context.Background(), testAuthURL)
	require.NoError(t, err)
	require.Equal(t, oauthmodel.CallbackParameters{Code: "liu_code", State: "st-123"}, params)
	require.Equal(t, http.StatusOK, <-statuses)
	require.Empty(t, a.Addr())
}

func TestAuthorizeReturnsDenial(t *testing.T) {
	statuses := make(chan int, 1)
	a := newAuthorizer(t, func(authURL string) url.Values {
		return url.Values{"error": {"access_denied"}, "error_description": {"user cancelled"}, "state": {stateOf(authURL)}}
	}, statuses)

	params, err := a.Authorize(context.Background(), testAuthURL)
	require.NoError(t, err)
	require.True(t, params.Denied())
	require.Error(t, params.Validate("st-123"))
	require.Equal(t, http.StatusBadRequest, <-statuses)
}

func TestAuthorizeIgnoresUnknownState(t *testing.T) {
	statuses := make(chan int, 2)
	var a *server.LoopbackAuthorizer
	prompt := func(_ context.Context, authURL string) error {
		base := "http://" + a.Addr() + server.RouteCallback
		go func() {
			for _, state := range []string{"forged", stateOf(authURL)} {
				resp, err := http.Get(base + "?" + url.Values{"code": {"c"}, "state": {state}}.Encode())
				if err != nil {
					statuses <- 0
					continue
				}
				resp.Body.Close()
				statuses <- resp.StatusCode
			}
		}()
		return nil
	}
	var err error
	a, err = server.NewLoopbackAuthorizer("http://127.0.0.1:8085/callback",
		server.WithListenAddr("127.0.0.1:0"), server.WithPrompt(prompt), server.WithTimeout(2*time.Second))
	require.NoError(t, err)

	params, err := a.Authorize(context.Background(), testAuthURL)
	require.NoError(t, err)
	require.Equal(t, "st-123", params.State)
	require.Equal(t, http.StatusBadRequest, <-statuses)
	require.Equal(t, http.StatusOK, <-statuses)
}

func TestAuthorizeTimesOut(t *testing.T) {
	a, err := server.NewLoopbackAuthorizer("http://127.0.0.1:8085/callback",
		server.WithListenAddr("127.0.0.1:0"),
		server.WithPrompt(func(context.Context, string) error { return nil }),
		server.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = a.Authorize(context.Background(), testAuthURL)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Authorize(ctx, testAuthURL)
	require.ErrorIs(t, err, context.Canceled)

	_, err = a.Authorize(context.Background(), "https://lichess.test/oauth")
	require.ErrorIs(t, err, oauthmodel.ErrMissingState)
}

func TestFlowRepoExpiry(t *testing.T) {
	repo := authflowrepo.NewInMemoryRepo()
	now := time.Now()
	require.NoError(t, repo.Upsert("old", &authflowrepo.AuthFlowState{CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.Upsert("new", &authflowrepo.AuthFlowState{CreatedAt: now}))

	require.Equal(t, 1, repo.Expire(now.Add(-time.Minute)))
	_, err := repo.Get("old")
	require.ErrorIs(t, err, errors.ErrNotFound)
	got, err := repo.Get("new")
	require.NoError(t, err)
	require.Equal(t, "new", got.State)
	require.Error(t, repo.Upsert("", &authflowrepo.AuthFlowState{}))
}

func TestSessionLoginThroughLoopback(t *testing.T) {
	tokens := tokenfake.NewFakeClient()
	tokens.ValidCode = "liu_code"
	tokens.ExchangeToken = &token.Token{AccessToken: "lio_token", ExpiresAt: time.Now().Add(time.Hour)}
	profiles := accountfake.NewFakeFetcher()
	profiles.Add("lio_token", &account.Me{ID: "bobby", Username: "Bobby"})
	store := repofake.NewFakeStore(nil)

	statuses := make(chan int, 1)
	a := newAuthorizer(t, func(authURL string) url.Values {
		return url.Values{"code": {"liu_code"}, "state": {stateOf(authURL)}}
	}, statuses)

	session, err := auth.NewSession(auth.Deps{Store: store, Tokens: tokens, Profiles: profiles}, auth.WithAuthorizer(a))
	require.NoError(t, err)
	require.NoError(t, session.Login(context.Background()))
	require.True(t, session.IsAuthenticated())
	require.Equal(t, "Bobby", session.Me().Username)
	require.Equal(t, "lio_token", store.Current().AccessToken)
	require.Equal(t, http.StatusOK, <-statuses)
}
