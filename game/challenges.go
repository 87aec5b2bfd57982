package game

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
)

const (
	AIChallengePath     = "/api/challenge/ai"
	CancelChallengePath = "/api/challenge/%s/cancel"
)

// AIChallenge describes a game against the lichess engine. Zero clock fields
// fall back to 5+3 and an empty colour to white.
type AIChallenge struct {
	Level          int // 1-8
	ClockLimit     int // seconds
	ClockIncrement int // seconds
	Color          string
	Variant        string
	FEN            string
}

func (c AIChallenge) form() (url.Values, error) {
	if c.Level < 1 || c.Level > 8 {
		return nil, fmt.Errorf("ai level %d out of range 1-8", c.Level)
	}
	limit, inc := c.ClockLimit, c.ClockIncrement
	if limit <= 0 {
		limit, inc = 300, 3
	}
	color := strings.ToLower(c.Color)
	switch color {
	case "":
		color = "white"
	case "white", "black", "random":
	default:
		return nil, fmt.Errorf("unknown color %q", c.Color)
	}

	form := url.Values{
		"level":           {strconv.Itoa(c.Level)},
		"clock.limit":     {strconv.Itoa(limit)},
		"clock.increment": {strconv.Itoa(inc)},
		"color":           {color},
	}
	if c.Variant != "" {
		form.Set("variant", c.Variant)
	}
	if c.FEN != "" {
		form.Set("fen", c.FEN)
	}
	return form, nil
}

// Challenges creates and cancels challenges.
type Challenges struct {
	requests Requester
}

func NewChallenges(requests Requester) *Challenges {
	return &Challenges{requests: requests}
}

// CreateAI starts a game against the engine and returns its id.
func (c *Challenges) CreateAI(ctx context.Context, challenge AIChallenge) (string, error) {
	form, err := challenge.form()
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.requests.PostForm(ctx, AIChallengePath, form, &created); err != nil {
		return "", errors.Wrapf(err, "create ai challenge")
	}
	if created.ID == "" {
		return "", errors.Wrapf(errors.ErrParse, "challenge response without id")
	}
	return created.ID, nil
}

// Cancel cancels a challenge, or aborts the game it started.
func (c *Challenges) Cancel(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.Wrapf(errors.ErrNotFound, "empty challenge id")
	}
	return c.requests.PostForm(ctx, fmt.Sprintf(CancelChallengePath, url.PathEscape(id)), nil, nil)
}

// PlayAI creates an AI challenge and opens its game on session. If the game
// cannot be opened the challenge is cancelled so it is not left waiting.
func (c *Challenges) PlayAI(ctx context.Context, challenge AIChallenge, session *Session) (string, error) {
	id, err := c.CreateAI(ctx, challenge)
	if err != nil {
		return "", err
	}
	if err := session.Open(id); err != nil {
		if cancelErr := c.Cancel(context.WithoutCancel(ctx), id); cancelErr != nil {
			return "", errors.Join(err, cancelErr)
		}
		return "", err
	}
	return id, nil
}
