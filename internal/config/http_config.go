package config

import "time"

type HTTPConfig interface {
	GetRequestTimeout() time.Duration
	GetRateLimit() float64
	GetRateBurst() int
	GetUserAgent() string
}

type HTTP struct {
	file *FileSettings
}

var _ HTTPConfig = HTTP{}

// GetRequestTimeout bounds ordinary requests. Streams are never subject to it.
func (h HTTP) GetRequestTimeout() time.Duration {
	return GetEnvDuration("HTTP_TIMEOUT", h.settings().HTTP.Timeout, 30*time.Second)
}

func (h HTTP) GetRateLimit() float64 {
	return GetEnvFloat("HTTP_RATE_LIMIT", h.settings().HTTP.RateLimit, 8)
}

func (h HTTP) GetRateBurst() int {
	return GetEnvInt("HTTP_RATE_BURST", h.settings().HTTP.RateBurst, 4)
}

func (h HTTP) GetUserAgent() string {
	return GetEnv("HTTP_USER_AGENT", orDefault(h.settings().HTTP.UserAgent, "go-lichess-client"))
}

func (h HTTP) settings() *FileSettings {
	if h.file == nil {
		return &FileSettings{}
	}
	return h.file
}
