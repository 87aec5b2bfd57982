package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	configFileEnvVar = "LICHESS_CONFIG"
	appNameVar       = "APP_NAME"
	hostEnvVar       = "LICHESS_HOST"
	logLevelEnvVar   = "LOG_LEVEL"
)

type EnvVars struct {
	file *FileSettings
}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Lichess Client")
}

func (e EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return orDefault(e.settings().Env, "DEV")
	}
	return env
}

// GetHost returns the lichess base URL (e.g., "https://lichess.org")
// Every API, OAuth and stream endpoint is resolved against it.
func (e EnvVars) GetHost() string {
	host := GetEnv(hostEnvVar, orDefault(e.settings().Host, "https://lichess.org"))
	return strings.TrimRight(host, "/")
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelEnvVar, orDefault(e.settings().LogLevel, "info"))
}

func (e EnvVars) settings() *FileSettings {
	if e.file == nil {
		return &FileSettings{}
	}
	return e.file
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration reads a duration such as "5s", falling back to fileValue and
// then defaultValue when unset or unparsable.
func GetEnvDuration(envVar, fileValue string, defaultValue time.Duration) time.Duration {
	for _, raw := range []string{os.Getenv(envVar), fileValue} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
			return d
		}
	}
	return defaultValue
}

func GetEnvBool(envVar string, fileValue *bool, defaultValue bool) bool {
	if raw := os.Getenv(envVar); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}

func GetEnvFloat(envVar string, fileValue, defaultValue float64) float64 {
	if raw := os.Getenv(envVar); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	if fileValue != 0 {
		return fileValue
	}
	return defaultValue
}

func GetEnvInt(envVar string, fileValue, defaultValue int) int {
	if raw := os.Getenv(envVar); raw != "" {
		if i, err := strconv.Atoi(raw); err == nil {
			return i
		}
	}
	if fileValue != 0 {
		return fileValue
	}
	return defaultValue
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
