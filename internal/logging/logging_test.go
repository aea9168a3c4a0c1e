package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "cookie-auth", "PROD", "warn")
	require.Equal(t, zerolog.WarnLevel, log.GetLevel())

	log.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	log.Warn().Str("k", "v").Msg("kept")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "kept", line["message"])
	require.Equal(t, "cookie-auth", line["app"])
	require.Equal(t, "v", line["k"])
}

func TestNewLogger_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "x", "DEV", "chatty")
	require.Equal(t, zerolog.InfoLevel, log.GetLevel())

	log.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
}
