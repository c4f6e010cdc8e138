package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := NewFromZap(zap.New(core)).With("component", "booking")

	log.Debug("dropped")
	log.Info("appointment created", "id", int64(7))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "appointment created", entries[0].Message)
	assert.Equal(t, map[string]interface{}{"component": "booking", "id": int64(7)}, entries[0].ContextMap())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}
