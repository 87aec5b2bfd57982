// Package game binds a lichess board game stream to a local position and
// submits moves for the authenticated player.
package game

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-lichess-client/board"
	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/jrsteele09/go-lichess-client/internal/logging"
	"github.com/jrsteele09/go-lichess-client/stream"
	"github.com/rs/zerolog"
)

const (
	StreamPathFormat = "/api/board/game/stream/%s"
	MovePathFormat   = "/api/board/game/%s/move/%s"
	ActionPathFormat = "/api/board/game/%s/%s"

	maxChatLines = 100
)

var (
	ErrGameNotOpen     = errors.New("game not open")
	ErrGameAlreadyOpen = errors.New("game already open")
)

// Requester posts form requests. httpclient.Client implements it.
type Requester interface {
	PostForm(ctx context.Context, path string, form url.Values, out any) error
}

// Streamer opens event streams. stream.Reader implements it.
type Streamer interface {
	Open(endpoint string, headers http.Header, sink stream.Sink) *stream.Handle
}

// Snapshot is a copy of the local view of the game.
type Snapshot struct {
	GameID       string
	Rated        bool
	Variant      string
	Speed        string
	White        Player
	Black        Player
	InitialFEN   string
	FEN          string
	Moves        []board.Move
	Turn         string
	WhiteClock   time.Duration
	BlackClock   time.Duration
	Status       string
	Winner       string
	WhiteDraw    bool
	BlackDraw    bool
	OpponentGone bool
	ClaimWinIn   time.Duration
	Chat         []ChatLine
	// Predicted is true when FEN includes a locally applied move the server
	// has not yet confirmed.
	Predicted bool
}

func (s Snapshot) clone() Snapshot {
	s.Moves = append([]board.Move(nil), s.Moves...)
	s.Chat = append([]ChatLine(nil), s.Chat...)
	return s
}

// Finished reports whether the last known status is terminal.
func (s Snapshot) Finished() bool {
	return GameState{Status: s.Status}.Finished()
}

// EventHandler observes each applied event together with the resulting
// snapshot. It runs on the stream goroutine and must not call Close.
type EventHandler func(Event, Snapshot)

type Session struct {
	requests Requester
	streams  Streamer
	engine   board.Engine
	logger   zerolog.Logger
	onEvent  EventHandler

	mu     sync.RWMutex
	snap   Snapshot
	handle *stream.Handle
	closed bool

	moveInFlight atomic.Bool
}

type SessionOption func(*Session)

func WithEngine(engine board.Engine) SessionOption {
	return func(s *Session) {
		s.engine = engine
	}
}

func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithEventHandler(handler EventHandler) SessionOption {
	return func(s *Session) {
		s.onEvent = handler
	}
}

func NewSession(requests Requester, streams Streamer, opts ...SessionOption) *Session {
	s := &Session{
		requests: requests,
		streams:  streams,
		engine:   board.NewChessEngine(),
		logger:   logging.Silent(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open binds the session to gameID and starts applying its events. A session
// plays one game.
func (s *Session) Open(gameID string) error {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return errors.Wrapf(errors.ErrNotFound, "empty game id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrSessionClosed
	}
	if s.handle != nil {
		return ErrGameAlreadyOpen
	}

	s.snap = Snapshot{GameID: gameID, InitialFEN: board.StartFEN, FEN: board.StartFEN, Turn: "white"}
	s.logger = s.logger.With().Str("game_id", gameID).Logger()
	s.handle = s.streams.Open(fmt.Sprintf(StreamPathFormat, url.PathEscape(gameID)), nil, s.receive)
	return nil
}

// SubmitMove sends m for the open game. Only one move may be outstanding; a
// concurrent call fails with ErrMoveAlreadyInFlight without a request. A
// rejected move is not applied locally.
func (s *Session) SubmitMove(ctx context.Context, m board.Move) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if !s.moveInFlight.CompareAndSwap(false, true) {
		return errors.ErrMoveAlreadyInFlight
	}
	defer s.moveInFlight.Store(false)

	gameID, err := s.openGameID()
	if err != nil {
		return err
	}

	s.mu.RLock()
	ply := len(s.snap.Moves)
	s.mu.RUnlock()

	path := fmt.Sprintf(MovePathFormat, url.PathEscape(gameID), m.UCI())
	if err := s.requests.PostForm(ctx, path, nil, nil); err != nil {
		s.logger.Warn().Err(err).Str("move", m.UCI()).Msg("move rejected")
		return err
	}

	s.predict(m, ply)
	return nil
}

// predict applies an accepted move unless the stream already moved past it.
func (s *Session) predict(m board.Move, ply int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snap.Moves) != ply {
		return
	}
	fen, err := s.engine.Apply(s.snap.FEN, m)
	if err != nil {
		s.logger.Debug().Err(err).Str("move", m.UCI()).Msg("accepted move not applicable locally, awaiting server state")
		return
	}
	s.snap.FEN = fen
	s.snap.Moves = append(s.snap.Moves, m)
	s.snap.Turn = board.SideToMove(fen)
	s.snap.Predicted = true
}

func (s *Session) Resign(ctx context.Context) error {
	return s.action(ctx, "resign", nil)
}

func (s *Session) Abort(ctx context.Context) error {
	return s.action(ctx, "abort", nil)
}

// SendChat posts text to the "player" or "spectator" room.
func (s *Session) SendChat(ctx context.Context, room, text string) error {
	if room == "" {
		room = "player"
	}
	return s.action(ctx, "chat", url.Values{"room": {room}, "text": {text}})
}

func (s *Session) action(ctx context.Context, name string, form url.Values) error {
	gameID, err := s.openGameID()
	if err != nil {
		return err
	}
	return s.requests.PostForm(ctx, fmt.Sprintf(ActionPathFormat, url.PathEscape(gameID), name), form, nil)
}

func (s *Session) openGameID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", errors.ErrSessionClosed
	}
	if s.handle == nil {
		return "", ErrGameNotOpen
	}
	return s.snap.GameID, nil
}

// Snapshot returns a copy of the current local view.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// LegalMoves lists legal moves in the current position, optionally only from
// one square.
func (s *Session) LegalMoves(from board.Square) ([]board.Move, error) {
	s.mu.RLock()
	fen := s.snap.FEN
	s.mu.RUnlock()
	return s.engine.LegalMoves(fen, from)
}

// StreamState reports the underlying stream state.
func (s *Session) StreamState() stream.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handle == nil {
		return stream.StateClosed
	}
	return s.handle.State()
}

// Done is closed when the game stream ends. It is nil before Open.
func (s *Session) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handle == nil {
		return nil
	}
	return s.handle.Done()
}

// Close stops the stream. No event is applied after it returns.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		h.Close()
	}
}

func (s *Session) receive(raw json.RawMessage) {
	ev, err := DecodeEvent(raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("dropping game event")
		return
	}

	s.mu.Lock()
	switch e := ev.(type) {
	case GameFull:
		s.snap.Rated = e.Rated
		s.snap.Variant = e.Variant.Key
		s.snap.Speed = e.Speed
		s.snap.White = e.White
		s.snap.Black = e.Black
		s.snap.InitialFEN = board.StartFEN
		if e.InitialFEN != "" && e.InitialFEN != "startpos" {
			s.snap.InitialFEN = e.InitialFEN
		}
		s.reconcile(e.State)
	case GameState:
		s.reconcile(e)
	case ChatLine:
		s.snap.Chat = append(s.snap.Chat, e)
		if len(s.snap.Chat) > maxChatLines {
			s.snap.Chat = append([]ChatLine(nil), s.snap.Chat[len(s.snap.Chat)-maxChatLines:]...)
		}
	case OpponentGone:
		s.snap.OpponentGone = e.Gone
		s.snap.ClaimWinIn = time.Duration(e.ClaimWinInSeconds) * time.Second
	}
	snap := s.snap.clone()
	s.mu.Unlock()

	if s.onEvent != nil {
		s.onEvent(ev, snap)
	}
}

// reconcile rebuilds the position from the server's move list, discarding any
// local prediction. Callers hold s.mu.
func (s *Session) reconcile(state GameState) {
	s.snap.WhiteClock = state.WhiteClock()
	s.snap.BlackClock = state.BlackClock()
	s.snap.Status = state.Status
	s.snap.Winner = state.Winner
	s.snap.WhiteDraw = state.WDraw
	s.snap.BlackDraw = state.BDraw

	moves, err := board.ParseMoveList(state.Moves)
	if err == nil {
		var fen string
		if fen, err = s.engine.Replay(s.snap.InitialFEN, moves); err == nil {
			s.snap.Moves = moves
			s.snap.FEN = fen
			s.snap.Turn = board.SideToMove(fen)
			s.snap.Predicted = false
			return
		}
	}
	s.logger.Error().Err(err).Str("moves", state.Moves).Msg("cannot replay server move list")
}
