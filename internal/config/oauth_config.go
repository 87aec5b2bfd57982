package config

import (
	"strings"
	"time"
)

type OAuthConfig interface {
	GetClientID() string
	GetScopes() []string
	GetRedirectURL() string
	GetIssuer() string
	GetLoginTimeout() time.Duration
	GetDefaultAccessTokenExpiry() time.Duration
	GetRefreshSkew() time.Duration
}

type OAuth struct {
	file *FileSettings
}

var _ OAuthConfig = OAuth{}

var defaultScopes = []string{"challenge:write", "board:play", "bot:play"}

func (o OAuth) GetClientID() string {
	return GetEnv("LICHESS_CLIENT_ID", orDefault(o.settings().OAuth.ClientID, "lichess-api-demo"))
}

// GetScopes reads LICHESS_SCOPES as a space or comma separated list.
func (o OAuth) GetScopes() []string {
	if raw := GetEnv("LICHESS_SCOPES", ""); raw != "" {
		return strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	}
	if scopes := o.settings().OAuth.Scopes; len(scopes) > 0 {
		return append([]string(nil), scopes...)
	}
	return append([]string(nil), defaultScopes...)
}

// GetRedirectURL is where lichess sends the authorization code; the loopback
// authorizer listens on its host and path.
func (o OAuth) GetRedirectURL() string {
	return GetEnv("LICHESS_REDIRECT_URL", orDefault(o.settings().OAuth.RedirectURL, "http://127.0.0.1:8085/callback"))
}

func (o OAuth) GetIssuer() string {
	return GetEnv("OAUTH_ISSUER", o.settings().OAuth.Issuer)
}

func (o OAuth) GetLoginTimeout() time.Duration {
	return GetEnvDuration("LICHESS_LOGIN_TIMEOUT", o.settings().OAuth.LoginTimeout, 5*time.Minute)
}

// GetDefaultAccessTokenExpiry applies when the token response omits expires_in
// and to manually supplied tokens.
func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return 1 * time.Hour
}

func (OAuth) GetRefreshSkew() time.Duration {
	return 30 * time.Second
}

func (o OAuth) settings() *FileSettings {
	if o.file == nil {
		return &FileSettings{}
	}
	return o.file
}
