package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Level(t *testing.T) {
	lg, err := New("warn", "json", "sysadmin")
	require.NoError(t, err)
	assert.False(t, lg.Core().Enabled(zap.InfoLevel))
	assert.True(t, lg.Core().Enabled(zap.WarnLevel))

	_, err = New("loud", "json", "")
	assert.Error(t, err)
}

func TestWithContext_AddsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	lg := &Logger{zap.New(core)}

	ctx := context.WithValue(context.Background(), TraceIDKey, "t-1")
	ctx = context.WithValue(ctx, UserIDKey, int64(7))
	lg.WithContext(ctx).Info("hello")
	lg.WithContext(context.Background()).Info("bare")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "t-1", entries[0].ContextMap()["trace_id"])
	assert.EqualValues(t, 7, entries[0].ContextMap()["user_id"])
	assert.Empty(t, entries[1].ContextMap())
}
