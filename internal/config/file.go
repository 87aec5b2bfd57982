package config

import (
	"errors"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// FileSettings mirrors the optional TOML configuration file. Empty values fall
// through to the defaults.
type FileSettings struct {
	Env      string `toml:"env"`
	Host     string `toml:"host"`
	LogLevel string `toml:"log_level"`

	OAuth struct {
		ClientID     string   `toml:"client_id"`
		Scopes       []string `toml:"scopes"`
		RedirectURL  string   `toml:"redirect_url"`
		Issuer       string   `toml:"issuer"` // enables OIDC endpoint discovery
		LoginTimeout string   `toml:"login_timeout"`
	} `toml:"oauth"`

	Stream struct {
		ReconnectDelay    string `toml:"reconnect_delay"`
		MaxReconnectDelay string `toml:"max_reconnect_delay"`
		Exponential       *bool  `toml:"exponential"`
	} `toml:"stream"`

	HTTP struct {
		Timeout   string  `toml:"timeout"`
		RateLimit float64 `toml:"rate_limit"` // requests per second
		RateBurst int     `toml:"rate_burst"`
		UserAgent string  `toml:"user_agent"`
	} `toml:"http"`

	Store struct {
		Backend    string `toml:"backend"` // "file" or "badger"
		Path       string `toml:"path"`
		Passphrase string `toml:"passphrase"`
	} `toml:"store"`
}

// LoadFile parses the TOML file at path. An empty path or a missing file
// yields empty settings.
func LoadFile(path string) (*FileSettings, error) {
	settings := &FileSettings{}
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return settings, nil
}
