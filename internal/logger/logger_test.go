package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestProperty_LogsAreStructured(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every entry is a JSON object with level, timestamp, message and service", prop.ForAll(
		func(message string, level string) bool {
			var buf bytes.Buffer
			logger := NewWithWriter(zapcore.AddSync(&buf), zapcore.DebugLevel)

			switch level {
			case "debug":
				logger.Debug(message)
			case "warn":
				logger.Warn(message)
			default:
				logger.Info(message)
			}
			_ = logger.Sync()

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				return false
			}

			return entry["level"] == level &&
				entry["message"] == message &&
				entry["service"] == ServiceName &&
				entry["timestamp"] != nil
		},
		gen.AnyString(),
		gen.OneConstOf("debug", "info", "warn"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestErrorLogsIncludeStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(zapcore.AddSync(&buf), zapcore.InfoLevel)

	logger.Error("checkout failed", zap.Error(errors.New("deadlock detected")), zap.String("user_id", "u-1"))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "deadlock detected", entry["error"])
	assert.Equal(t, "u-1", entry["user_id"])
	assert.NotEmpty(t, entry["stacktrace"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(zapcore.AddSync(&buf), zapcore.InfoLevel)

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		t.Run(env, func(t *testing.T) {
			logger, err := New(env)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}
