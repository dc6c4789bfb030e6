package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMaskEmail(t *testing.T) {
	require.Equal(t, "j***@example.com", MaskEmail("julie@example.com"))
	require.Equal(t, "***", MaskEmail("not-an-email"))
	require.Equal(t, "***", MaskEmail("@example.com"))
	require.Equal(t, "", MaskEmail(""))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	From(context.Background()).Info("global")

	scoped := L().With(RequestID("rid-1"))
	ctx := ToContext(context.Background(), scoped)
	From(ctx).Info("scoped", Email("anna@example.com"))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "global", entries[0].Message)
	fields := entries[1].ContextMap()
	require.Equal(t, "rid-1", fields["request_id"])
	require.Equal(t, "a***@example.com", fields["email"])
}
