package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	prod, err := NewLogger(EnvProduction)
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, prod.Core().Enabled(zapcore.InfoLevel))

	dev, err := NewLogger(EnvDevelopment)
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	sugar, err := NewSugar("")
	require.NoError(t, err)
	assert.NotNil(t, sugar)
}

func TestAdapter(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	adapter := NewAdapter(zap.New(core).Sugar())

	adapter.Debug("debug", nil)
	adapter.Info("request", map[string]interface{}{"status": 200, "entity": "user"})
	adapter.Warn("warn", map[string]interface{}{"error": "boom"})
	adapter.Error("error", nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "request", entries[1].Message)
	assert.Equal(t, map[string]interface{}{"entity": "user", "status": int64(200)}, entries[1].ContextMap())
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestAdapter_NilSugar(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		NewAdapter(nil).Info("nothing", map[string]interface{}{"k": "v"})
	})
}

func TestKeysAndValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []interface{}{"a", 1, "b", 2}, keysAndValues(map[string]interface{}{"b": 2, "a": 1}))
	assert.Empty(t, keysAndValues(nil))
}
