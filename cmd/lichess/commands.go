package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/go-lichess-client/board"
	"github.com/jrsteele09/go-lichess-client/game"
	"github.com/jrsteele09/go-lichess-client/internal/errors"
)

type command struct {
	summary string
	banner  bool
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":       {summary: "log in through the browser (OAuth PKCE)", banner: true, run: loginCmd},
	"login-token": {summary: "log in with a personal API token", run: loginTokenCmd},
	"logout":      {summary: "revoke the token and forget the session", run: logoutCmd},
	"whoami":      {summary: "show the logged in account", run: whoamiCmd},
	"play-ai":     {summary: "challenge the lichess AI and play from the terminal", banner: true, run: playAICmd},
	"watch":       {summary: "follow one of your games", run: watchCmd},
	"cancel":      {summary: "cancel a challenge", run: cancelCmd},
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "usage: lichess <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", name, commands[name].summary)
	}
}

func loginCmd(ctx context.Context, a *app, _ []string) error {
	if err := a.session.Login(ctx); err != nil {
		if errors.Is(err, errors.ErrAuthorizationDenied) {
			return fmt.Errorf("%w (run login again to retry)", err)
		}
		return err
	}
	fmt.Printf("Logged in as %s\n", a.session.Me().Username)
	return nil
}

func loginTokenCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login-token", flag.ContinueOnError)
	tok := fs.String("token", os.Getenv("LICHESS_TOKEN"), "personal API token (default $LICHESS_TOKEN)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tok == "" && fs.NArg() > 0 {
		*tok = fs.Arg(0)
	}
	if err := a.session.ManualLogin(ctx, *tok); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", a.session.Me().Username)
	return nil
}

func logoutCmd(ctx context.Context, a *app, _ []string) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func whoamiCmd(_ context.Context, a *app, _ []string) error {
	if !a.session.IsAuthenticated() {
		fmt.Println("Not logged in")
		return nil
	}
	me := a.session.Me()
	creds := a.session.Credentials()
	fmt.Printf("%s (%s)\n", me.Username, me.ID)
	if me.Title != "" {
		fmt.Printf("  title:   %s\n", me.Title)
	}
	if created := me.Created(); !created.IsZero() {
		fmt.Printf("  joined:  %s\n", created.Format("2006-01-02"))
	}
	fmt.Printf("  scopes:  %s\n", strings.Join(creds.Scopes, " "))
	fmt.Printf("  expires: %s\n", creds.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func cancelCmd(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: lichess cancel <challenge-id>")
	}
	if err := requireLogin(a); err != nil {
		return err
	}
	return game.NewChallenges(a.api).Cancel(ctx, args[0])
}

func watchCmd(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: lichess watch <game-id>")
	}
	if err := requireLogin(a); err != nil {
		return err
	}
	session := game.NewSession(a.api, a.streams, game.WithLogger(a.logger), game.WithEventHandler(printEvent))
	if err := session.Open(args[0]); err != nil {
		return err
	}
	defer session.Close()

	select {
	case <-session.Done():
	case <-ctx.Done():
	}
	return nil
}

func playAICmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("play-ai", flag.ContinueOnError)
	level := fs.Int("level", 1, "AI strength 1-8")
	limit := fs.Int("limit", 300, "clock limit in seconds")
	inc := fs.Int("inc", 3, "clock increment in seconds")
	color := fs.String("color", "white", "white, black or random")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireLogin(a); err != nil {
		return err
	}

	session := game.NewSession(a.api, a.streams, game.WithLogger(a.logger), game.WithEventHandler(printEvent))
	defer session.Close()

	challenge := game.AIChallenge{Level: *level, ClockLimit: *limit, ClockIncrement: *inc, Color: *color}
	gameID, err := game.NewChallenges(a.api).PlayAI(ctx, challenge, session)
	if err != nil {
		return err
	}
	fmt.Printf("Game %s created. Enter moves in UCI (e2e4), or: moves, resign, abort, say <text>, quit\n", gameID)

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			fmt.Println("Game stream ended")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleInput(ctx, session, line); quit {
				return nil
			}
		}
	}
}

func handleInput(ctx context.Context, session *game.Session, line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	var err error
	switch cmd {
	case "":
		return false
	case "quit", "exit":
		return true
	case "moves":
		var moves []board.Move
		if moves, err = session.LegalMoves(board.Square(rest)); err == nil {
			parts := make([]string, 0, len(moves))
			for _, m := range moves {
				parts = append(parts, m.UCI())
			}
			fmt.Println(strings.Join(parts, " "))
		}
	case "resign":
		err = session.Resign(ctx)
	case "abort":
		err = session.Abort(ctx)
	case "say":
		err = session.SendChat(ctx, "player", rest)
	default:
		var m board.Move
		if m, err = board.ParseUCI(cmd); err == nil {
			err = session.SubmitMove(ctx, m)
		}
	}
	if err != nil {
		// Rejections are reported inline; the stream keeps running.
		fmt.Printf("! %v\n", err)
	}
	return false
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func printEvent(ev game.Event, snap game.Snapshot) {
	switch e := ev.(type) {
	case game.GameFull:
		fmt.Printf("%s vs %s (%s)\n", e.White.DisplayName(), e.Black.DisplayName(), e.Speed)
		printState(snap)
	case game.GameState:
		printState(snap)
	case game.ChatLine:
		fmt.Printf("[%s] %s: %s\n", e.Room, e.Username, e.Text)
	case game.OpponentGone:
		if e.Gone {
			fmt.Printf("Opponent left; win can be claimed in %ds\n", e.ClaimWinInSeconds)
		} else {
			fmt.Println("Opponent is back")
		}
	}
}

func printState(snap game.Snapshot) {
	last := "-"
	if n := len(snap.Moves); n > 0 {
		last = snap.Moves[n-1].UCI()
	}
	fmt.Printf("ply %d last %s | %s to move | white %s black %s | %s\n",
		len(snap.Moves), last, snap.Turn,
		snap.WhiteClock.Truncate(time.Second), snap.BlackClock.Truncate(time.Second), snap.Status)
	if snap.Finished() {
		winner := snap.Winner
		if winner == "" {
			winner = "nobody"
		}
		fmt.Printf("Game over: %s, winner %s\n", snap.Status, winner)
	}
}

func requireLogin(a *app) error {
	if !a.session.IsAuthenticated() {
		return fmt.Errorf("%w: run lichess login first", errors.ErrNotAuthenticated)
	}
	return nil
}
