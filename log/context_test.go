package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhleyai/git/log"
	"github.com/zhleyai/git/log/mocks"
)

func TestGetContextLogger(t *testing.T) {
	require.Nil(t, log.GetContextLogger(context.Background()), "an unconfigured context has no logger")

	fake := &mocks.FakeLogger{}
	ctx := log.WithContextLogger(context.Background(), fake)
	require.Same(t, fake, log.GetContextLogger(ctx))
}

func TestFromContext(t *testing.T) {
	// Without a configured logger, callers still get a usable one.
	logger := log.FromContext(context.Background())
	require.NotNil(t, logger)
	logger.Debug("goes nowhere")

	fake := &mocks.FakeLogger{}
	ctx := log.WithContextLogger(context.Background(), fake)

	log.FromContext(ctx).Debug("captured", "key", "value")
	require.Equal(t, 1, fake.DebugCallCount())

	msg, keysAndValues := fake.DebugArgsForCall(0)
	require.Equal(t, "captured", msg)
	require.Equal(t, []any{"key", "value"}, keysAndValues)
}
