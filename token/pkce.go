package token

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-lichess-client/oauthmodel"
	"golang.org/x/oauth2"
)

// PKCE holds the verifier kept by the client and the challenge sent with the
// authorization request.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    oauthmodel.CodeMethodType
}

// NewPKCE generates a fresh S256 verifier/challenge pair.
func NewPKCE() (PKCE, error) {
	verifier := oauth2.GenerateVerifier()
	p := PKCE{
		Verifier:  verifier,
		Challenge: CodeChallenge(verifier),
		Method:    oauthmodel.CodeMethodTypeS256,
	}
	if err := ValidatePKCE(p.Challenge, p.Method); err != nil {
		return PKCE{}, err
	}
	return p, nil
}

// CodeChallenge derives the S256 challenge from a verifier.
func CodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// ValidatePKCE checks a challenge before it is sent. Lichess only accepts S256.
func ValidatePKCE(codeChallenge string, method oauthmodel.CodeMethodType) error {
	if method != oauthmodel.CodeMethodTypeS256 {
		return fmt.Errorf("%w: %q", oauthmodel.ErrInvalidCodeChallengeMethod, method)
	}
	// base64url of a SHA-256 digest is 43 characters; the RFC allows up to 128
	if len(codeChallenge) < 43 || len(codeChallenge) > 128 {
		return fmt.Errorf("%w: length must be between 43 and 128 characters", oauthmodel.ErrInvalidCodeChallenge)
	}
	return nil
}
