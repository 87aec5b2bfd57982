package game

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
)

// EventType is the discriminant carried in the "type" field of every record
// on the board game stream.
type EventType string

const (
	EventGameFull     EventType = "gameFull"
	EventGameState    EventType = "gameState"
	EventChatLine     EventType = "chatLine"
	EventOpponentGone EventType = "opponentGone"
)

// Event is one of GameFull, GameState, ChatLine or OpponentGone.
type Event interface {
	Type() EventType
	isEvent()
}

type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Rating int    `json:"rating,omitempty"`
	// AILevel is set when the player is the lichess engine.
	AILevel int `json:"aiLevel,omitempty"`
}

// DisplayName falls back to the engine level for AI opponents.
func (p Player) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.AILevel > 0:
		return "Stockfish level " + strconv.Itoa(p.AILevel)
	default:
		return "Anonymous"
	}
}

type Variant struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// GameFull is the first record of a game stream and is resent on reconnect.
type GameFull struct {
	ID         string    `json:"id"`
	Rated      bool      `json:"rated"`
	Variant    Variant   `json:"variant"`
	Speed      string    `json:"speed"`
	White      Player    `json:"white"`
	Black      Player    `json:"black"`
	InitialFEN string    `json:"initialFen"`
	State      GameState `json:"state"`
	CreatedAt  int64     `json:"createdAt"`
}

func (GameFull) Type() EventType { return EventGameFull }
func (GameFull) isEvent()        {}

// GameState carries the authoritative move list and clocks. Times are in
// milliseconds.
type GameState struct {
	Moves  string `json:"moves"`
	WTime  int64  `json:"wtime"`
	BTime  int64  `json:"btime"`
	WInc   int64  `json:"winc"`
	BInc   int64  `json:"binc"`
	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
	WDraw  bool   `json:"wdraw,omitempty"`
	BDraw  bool   `json:"bdraw,omitempty"`
}

func (GameState) Type() EventType { return EventGameState }
func (GameState) isEvent()        {}

func (s GameState) WhiteClock() time.Duration { return time.Duration(s.WTime) * time.Millisecond }
func (s GameState) BlackClock() time.Duration { return time.Duration(s.BTime) * time.Millisecond }

// Finished reports whether status is a terminal lichess game status.
func (s GameState) Finished() bool {
	switch s.Status {
	case "", "created", "started":
		return false
	}
	return true
}

type ChatLine struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

func (ChatLine) Type() EventType { return EventChatLine }
func (ChatLine) isEvent()        {}

type OpponentGone struct {
	Gone              bool `json:"gone"`
	ClaimWinInSeconds int  `json:"claimWinInSeconds,omitempty"`
}

func (OpponentGone) Type() EventType { return EventOpponentGone }
func (OpponentGone) isEvent()        {}

// DecodeEvent decodes one stream record. Unknown or malformed records return
// an error wrapping ErrParse.
func DecodeEvent(raw json.RawMessage) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, errors.Wrapf(errors.ErrParse, "event envelope: %v", err)
	}

	var (
		ev  Event
		err error
	)
	switch head.Type {
	case EventGameFull:
		var e GameFull
		err = json.Unmarshal(raw, &e)
		ev = e
	case EventGameState:
		var e GameState
		err = json.Unmarshal(raw, &e)
		ev = e
	case EventChatLine:
		var e ChatLine
		err = json.Unmarshal(raw, &e)
		ev = e
	case EventOpponentGone:
		var e OpponentGone
		err = json.Unmarshal(raw, &e)
		ev = e
	default:
		return nil, errors.Wrapf(errors.ErrParse, "unknown event type %q", string(head.Type))
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrParse, "%s: %v", string(head.Type), err)
	}
	return ev, nil
}
