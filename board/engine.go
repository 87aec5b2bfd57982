package board

import (
	"strings"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/notnil/chess"
)

// Engine is the rules capability. Positions are FEN strings.
type Engine interface {
	// LegalMoves lists legal moves, restricted to those leaving from when it
	// is non-empty.
	LegalMoves(fen string, from Square) ([]Move, error)
	Apply(fen string, m Move) (string, error)
	// Replay applies moves in order from initialFEN.
	Replay(initialFEN string, moves []Move) (string, error)
}

var _ Engine = ChessEngine{}

// ChessEngine implements Engine with github.com/notnil/chess.
type ChessEngine struct{}

func NewChessEngine() ChessEngine {
	return ChessEngine{}
}

func (e ChessEngine) LegalMoves(fen string, from Square) ([]Move, error) {
	pos, err := decodeFEN(fen)
	if err != nil {
		return nil, err
	}

	var moves []Move
	for _, cm := range pos.ValidMoves() {
		if from != "" && Square(cm.S1().String()) != from {
			continue
		}
		m, err := ParseUCI(chess.UCINotation{}.Encode(pos, cm))
		if err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, nil
}

func (e ChessEngine) Apply(fen string, m Move) (string, error) {
	pos, err := decodeFEN(fen)
	if err != nil {
		return "", err
	}
	next, err := apply(pos, m)
	if err != nil {
		return "", err
	}
	return next.String(), nil
}

func (e ChessEngine) Replay(initialFEN string, moves []Move) (string, error) {
	pos, err := decodeFEN(initialFEN)
	if err != nil {
		return "", err
	}
	for i, m := range moves {
		if pos, err = apply(pos, m); err != nil {
			return "", errors.Wrapf(err, "replay ply %d", i+1)
		}
	}
	return pos.String(), nil
}

func apply(pos *chess.Position, m Move) (*chess.Position, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	uci := m.UCI()
	for _, cm := range pos.ValidMoves() {
		if (chess.UCINotation{}).Encode(pos, cm) == uci {
			return pos.Update(cm), nil
		}
	}
	return nil, errors.Wrapf(errors.ErrInvalidMove, "%s is not legal in %s", uci, pos.String())
}

// decodeFEN accepts a FEN, or "" / "startpos" for the initial position as
// lichess reports it.
func decodeFEN(fen string) (*chess.Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return chess.StartingPosition(), nil
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrParse, "fen %q: %v", fen, err)
	}
	return chess.NewGame(opt).Position(), nil
}
