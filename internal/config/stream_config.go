package config

import "time"

type StreamConfig interface {
	GetReconnectDelay() time.Duration
	GetMaxReconnectDelay() time.Duration
	GetExponentialBackoff() bool
}

type Stream struct {
	file *FileSettings
}

var _ StreamConfig = Stream{}

func (s Stream) GetReconnectDelay() time.Duration {
	return GetEnvDuration("STREAM_RECONNECT_DELAY", s.settings().Stream.ReconnectDelay, 5*time.Second)
}

func (s Stream) GetMaxReconnectDelay() time.Duration {
	return GetEnvDuration("STREAM_MAX_RECONNECT_DELAY", s.settings().Stream.MaxReconnectDelay, 1*time.Minute)
}

func (s Stream) GetExponentialBackoff() bool {
	return GetEnvBool("STREAM_EXPONENTIAL_BACKOFF", s.settings().Stream.Exponential, false)
}

func (s Stream) settings() *FileSettings {
	if s.file == nil {
		return &FileSettings{}
	}
	return s.file
}
