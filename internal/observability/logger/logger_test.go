package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFrom_FallsBackToSingleton(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	From(context.Background()).Info("hello", Identity("alice"))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "hello", entries[0].Message)
		assert.Equal(t, "alice", entries[0].ContextMap()["identity"])
	}
}

func TestFrom_ScopedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	scoped := zap.New(core).With(RequestID("r-1"))

	ctx := ToContext(context.Background(), scoped)
	From(ctx).Debug("scoped", CardID("c-1"))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "r-1", fields["request_id"])
		assert.Equal(t, "c-1", fields["card_id"])
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" warning "))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nope"))
}
