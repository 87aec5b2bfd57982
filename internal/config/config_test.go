package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-lichess-client/internal/config"
	"github.com/jrsteele09/go-lichess-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("LICHESS_HOST", "")
	t.Setenv("STREAM_RECONNECT_DELAY", "")
	t.Setenv("LICHESS_SCOPES", "")

	c := config.NewFromFile(nil)
	require.Equal(t, "https://lichess.org", c.GetHost())
	require.Equal(t, "lichess-api-demo", c.GetClientID())
	require.Equal(t, 5*time.Second, c.GetReconnectDelay())
	require.Equal(t, time.Hour, c.GetDefaultAccessTokenExpiry())
	require.False(t, c.GetExponentialBackoff())
	require.Equal(t, config.StoreBackendFile, c.GetStoreBackend())
	require.Contains(t, c.GetScopes(), "board:play")
}

func TestFileOverridesDefaultsAndEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lichess.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
host = "http://localhost:9663/"
log_level = "debug"

[oauth]
client_id = "my-client"
scopes = ["board:play"]

[stream]
reconnect_delay = "2s"
exponential = true

[store]
backend = "badger"
`), 0o600))

	file, err := config.LoadFile(path)
	require.NoError(t, err)

	t.Setenv("LICHESS_HOST", "")
	t.Setenv("LICHESS_SCOPES", "")
	t.Setenv("STREAM_RECONNECT_DELAY", "")
	t.Setenv("STORE_BACKEND", "")

	c := config.NewFromFile(file)
	require.Equal(t, "http://localhost:9663", c.GetHost())
	require.Equal(t, "debug", c.GetLogLevel())
	require.Equal(t, "my-client", c.GetClientID())
	require.Equal(t, []string{"board:play"}, c.GetScopes())
	require.Equal(t, 2*time.Second, c.GetReconnectDelay())
	require.True(t, c.GetExponentialBackoff())
	require.Equal(t, config.StoreBackendBadger, c.GetStoreBackend())

	t.Run("env wins", func(t *testing.T) {
		t.Setenv("STREAM_RECONNECT_DELAY", "750ms")
		t.Setenv("LICHESS_SCOPES", "challenge:write, board:play")
		require.Equal(t, 750*time.Millisecond, c.GetReconnectDelay())
		require.Equal(t, []string{"challenge:write", "board:play"}, c.GetScopes())
	})

	t.Run("env bool beats file", func(t *testing.T) {
		t.Setenv("STREAM_EXPONENTIAL_BACKOFF", "false")
		require.False(t, c.GetExponentialBackoff())
		t.Setenv("STREAM_EXPONENTIAL_BACKOFF", "maybe")
		require.True(t, config.GetEnvBool("STREAM_EXPONENTIAL_BACKOFF", utils.Ptr(true), false))
		require.False(t, config.GetEnvBool("STREAM_EXPONENTIAL_BACKOFF", nil, false))
	})

	t.Run("unparsable duration falls back", func(t *testing.T) {
		t.Setenv("STREAM_RECONNECT_DELAY", "soon")
		require.Equal(t, 2*time.Second, config.GetEnvDuration("STREAM_RECONNECT_DELAY", "2s", time.Second))
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("missing file is empty settings", func(t *testing.T) {
		file, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
		require.NoError(t, err)
		require.Empty(t, file.Host)
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("host = "), 0o600))
		_, err := config.LoadFile(path)
		require.Error(t, err)
	})
}
