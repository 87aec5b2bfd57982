package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-lichess-client/account"
	"github.com/jrsteele09/go-lichess-client/auth"
	"github.com/jrsteele09/go-lichess-client/credentials"
	"github.com/jrsteele09/go-lichess-client/httpclient"
	"github.com/jrsteele09/go-lichess-client/internal/config"
	"github.com/jrsteele09/go-lichess-client/internal/logging"
	"github.com/jrsteele09/go-lichess-client/server"
	"github.com/jrsteele09/go-lichess-client/stream"
	"github.com/jrsteele09/go-lichess-client/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Error().Err(err).Msg("lichess")
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	c, err := config.New()
	if err != nil {
		return err
	}
	logger := logging.New(c.GetLogLevel())
	logging.SetGlobal(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.banner {
		displayAppname(c.GetAppName())
	}

	app, err := newApp(ctx, c, logger)
	if err != nil {
		return err
	}
	defer app.close()

	return cmd.run(ctx, app, args[1:])
}

// app holds the wired components shared by every command.
type app struct {
	config   config.Config
	logger   zerolog.Logger
	session  *auth.Session
	api      *httpclient.Client
	streams  *stream.Reader
	closeFns []func() error
}

func newApp(ctx context.Context, c config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{config: c, logger: logger}

	store, closeStore, err := newStore(c)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		a.closeFns = append(a.closeFns, closeStore)
	}

	httpClient := &http.Client{}
	tokenOpts := []token.Option{
		token.WithHTTPClient(&http.Client{Timeout: c.GetRequestTimeout()}),
		token.WithDefaultExpiry(c.GetDefaultAccessTokenExpiry()),
	}
	if issuer := c.GetIssuer(); issuer != "" {
		endpoint, err := token.DiscoverEndpoint(ctx, issuer, httpClient)
		if err != nil {
			a.close()
			return nil, err
		}
		tokenOpts = append(tokenOpts, token.WithEndpoint(endpoint))
	}
	tokens := token.NewOAuthClient(c.GetHost(), c.GetClientID(), c.GetRedirectURL(), c.GetScopes(), tokenOpts...)

	authorizer, err := server.NewLoopbackAuthorizer(c.GetRedirectURL(),
		server.WithTimeout(c.GetLoginTimeout()),
		server.WithEnv(c.GetEnv()),
		server.WithLogger(logger),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	a.session, err = auth.NewSession(
		auth.Deps{
			Store:    store,
			Tokens:   tokens,
			Profiles: account.NewClient(c.GetHost(), &http.Client{Timeout: c.GetRequestTimeout()}),
		},
		auth.WithAuthorizer(authorizer),
		auth.WithLogger(logger),
		auth.WithDefaultExpiry(c.GetDefaultAccessTokenExpiry()),
		auth.WithRefreshSkew(c.GetRefreshSkew()),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	if err := a.session.Init(ctx); err != nil {
		// Not fatal: the user may be about to log in again.
		logger.Warn().Err(err).Msg("could not restore session")
	}

	a.api = httpclient.New(c.GetHost(), a.session,
		httpclient.WithHTTPClient(httpClient),
		httpclient.WithTimeout(c.GetRequestTimeout()),
		httpclient.WithRateLimit(c.GetRateLimit(), c.GetRateBurst()),
		httpclient.WithUserAgent(c.GetUserAgent()),
		httpclient.WithLogger(logger),
	)

	streamOpts := []stream.ReaderOption{stream.WithLogger(logger), stream.WithReconnectDelay(c.GetReconnectDelay())}
	if c.GetExponentialBackoff() {
		streamOpts = append(streamOpts, stream.WithExponentialBackoff(c.GetReconnectDelay(), c.GetMaxReconnectDelay()))
	}
	a.streams = stream.NewReader(a.api, streamOpts...)
	return a, nil
}

func newStore(c config.Config) (credentials.Store, func() error, error) {
	switch c.GetStoreBackend() {
	case config.StoreBackendBadger:
		store, err := credentials.NewBadgerStore(c.GetStorePath())
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StoreBackendFile, "":
		return credentials.NewFileStore(c.GetStorePath(), credentials.WithPassphrase(c.GetStorePassphrase())), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", c.GetStoreBackend())
	}
}

func (a *app) close() {
	for _, fn := range a.closeFns {
		if err := fn(); err != nil {
			a.logger.Warn().Err(err).Msg("close")
		}
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
