package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-lichess-client/internal/utils"
)

// ErrNotJWT is returned for opaque tokens such as lichess "lio_" tokens.
var ErrNotJWT = errors.New("token is not a JWT")

// Claims are the unverified claims of an access token.
// The client never holds the issuer's key, so nothing here is trusted for
// authorization; it only refines expiry bookkeeping.
type Claims struct {
	Subject   string
	Issuer    string
	Scopes    []string
	ExpiresAt time.Time // zero when the token has no exp claim
	IssuedAt  time.Time
}

// LooksLikeJWT reports whether raw has the three dot separated segments of a
// compact JWS.
func LooksLikeJWT(raw string) bool {
	return strings.Count(strings.TrimSpace(raw), ".") == 2
}

// Inspect parses raw without verifying its signature.
func Inspect(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if !LooksLikeJWT(raw) {
		return nil, ErrNotJWT
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims")
	}

	claims := &Claims{}
	claims.Subject, _ = mapClaims.GetSubject()
	claims.Issuer, _ = mapClaims.GetIssuer()
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	claims.Scopes = utils.ScopeList(mapClaims["scope"])
	if len(claims.Scopes) == 0 {
		claims.Scopes = utils.ScopeList(mapClaims["scp"])
	}
	return claims, nil
}

// ExpiryOr returns the token's exp claim, or fallback when raw is opaque or
// carries no expiry.
func ExpiryOr(raw string, fallback time.Time) time.Time {
	claims, err := Inspect(raw)
	if err != nil || claims.ExpiresAt.IsZero() {
		return fallback
	}
	return claims.ExpiresAt
}
