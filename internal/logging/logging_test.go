package logging_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/go-lichess-client/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, logging.ParseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, logging.ParseLevel(" WARN "))
	require.Equal(t, zerolog.InfoLevel, logging.ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, logging.ParseLevel("verbose"))
}

func TestNewWithOutput(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWithOutput("warn", &buf)

	l.Info().Msg("hidden")
	require.Empty(t, buf.String())

	l.Warn().Str("game", "abc").Msg("shown")
	require.Contains(t, buf.String(), `"game":"abc"`)
	require.Contains(t, buf.String(), `"message":"shown"`)
}
