package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerJSONCarriesServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json"})

	logger.Info("boot")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "taskdeck", record["service"])
	require.Equal(t, "boot", record["msg"])
}

func TestLoggerLevelFollowsEnvironment(t *testing.T) {
	var buf bytes.Buffer
	dev := newLogger(&buf, &Config{AppEnv: "development"})
	require.True(t, dev.Enabled(context.Background(), slog.LevelDebug))

	prod := newLogger(&buf, &Config{AppEnv: "production"})
	require.False(t, prod.Enabled(context.Background(), slog.LevelDebug))
	require.True(t, prod.Enabled(context.Background(), slog.LevelInfo))
}
