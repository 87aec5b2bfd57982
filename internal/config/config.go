package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	OAuthConfig
	StreamConfig
	HTTPConfig
	StoreConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetHost() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Stream
	HTTP
	Store
}

// New loads an optional .env file and the optional TOML file named by
// LICHESS_CONFIG. Environment variables override file values, which override
// the built-in defaults.
func New() (Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	file, err := LoadFile(GetEnv(configFileEnvVar, ""))
	if err != nil {
		return nil, fmt.Errorf("[config New] %w", err)
	}
	return NewFromFile(file), nil
}

// NewFromFile builds a Config over already-parsed file settings.
func NewFromFile(file *FileSettings) Config {
	if file == nil {
		file = &FileSettings{}
	}
	return mainConfig{
		EnvVars: EnvVars{file: file},
		OAuth:   OAuth{file: file},
		Stream:  Stream{file: file},
		HTTP:    HTTP{file: file},
		Store:   Store{file: file},
	}
}
