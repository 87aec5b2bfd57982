// Package board models moves and positions and the rules engine the game
// session relies on.
package board

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Square is an algebraic square name such as "e4".
type Square string

func (s Square) Valid() bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// Promotion is the lower-case piece letter a pawn promotes to, or empty.
type Promotion string

const (
	NoPromotion Promotion = ""
	Queen       Promotion = "q"
	Rook        Promotion = "r"
	Bishop      Promotion = "b"
	Knight      Promotion = "n"
)

func (p Promotion) valid() bool {
	switch p {
	case NoPromotion, Queen, Rook, Bishop, Knight:
		return true
	}
	return false
}

type Move struct {
	From      Square
	To        Square
	Promotion Promotion
}

// UCI encodes the move the way lichess URLs and move lists carry it.
func (m Move) UCI() string {
	return string(m.From) + string(m.To) + string(m.Promotion)
}

func (m Move) String() string {
	return m.UCI()
}

func (m Move) Validate() error {
	if !m.From.Valid() || !m.To.Valid() || m.From == m.To {
		return errors.Wrapf(errors.ErrInvalidMove, "bad squares %q", m.UCI())
	}
	if !m.Promotion.valid() {
		return errors.Wrapf(errors.ErrInvalidMove, "bad promotion %q", string(m.Promotion))
	}
	return nil
}

// ParseUCI parses moves like "e2e4" or "e7e8q".
func ParseUCI(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, errors.Wrapf(errors.ErrInvalidMove, "bad uci %q", s)
	}
	m := Move{From: Square(s[0:2]), To: Square(s[2:4])}
	if len(s) == 5 {
		m.Promotion = Promotion(s[4:5])
	}
	if err := m.Validate(); err != nil {
		return Move{}, err
	}
	return m, nil
}

// ParseMoveList parses a space separated UCI move list as found in lichess
// game state events.
func ParseMoveList(list string) ([]Move, error) {
	fields := strings.Fields(list)
	moves := make([]Move, 0, len(fields))
	for i, f := range fields {
		m, err := ParseUCI(f)
		if err != nil {
			return nil, fmt.Errorf("move %d: %w", i+1, err)
		}
		moves = append(moves, m)
	}
	return moves, nil
}

// SideToMove reads the active colour field of a FEN, "white" or "black".
func SideToMove(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return "black"
	}
	return "white"
}
