package oauthmodel

import "errors"

var (
	ErrInvalidCodeChallenge       = errors.New("invalid code challenge")
	ErrInvalidCodeChallengeMethod = errors.New("invalid code challenge method")
	ErrMissingCode                = errors.New("missing code parameter")
	ErrMissingState               = errors.New("missing state parameter")
	ErrStateMismatch              = errors.New("state parameter does not match")
)
