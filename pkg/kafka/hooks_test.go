package kafka

import (
	"bytes"
	"context"
	"errors"
	"testing"

	xlogger "FinBars/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookChain_OrderAndThreading(t *testing.T) {
	var calls []string
	upper := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			calls = append(calls, "before-1")
			return ctx, km, bytes.ToUpper(data), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { calls = append(calls, "after-1") },
	}
	suffix := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			calls = append(calls, "before-2")
			return ctx, km, append(data, '!'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { calls = append(calls, "after-2") },
	}

	chain := NewHookChain(upper, nil, suffix)
	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("tick"))
	require.NoError(t, err)
	assert.Equal(t, "TICK!", string(data))

	chain.AfterHandle(context.Background(), "t", kafka.Message{}, data, nil)
	assert.Equal(t, []string{"before-1", "before-2", "after-2", "after-1"}, calls)
}

func TestHookChain_PanicBecomesHookError(t *testing.T) {
	var seen error
	chain := NewHookChain(
		HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { seen = err }},
		HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		}},
	)

	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var herr *HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "ERR_PANIC", herr.Code)
	assert.Equal(t, err, seen)
}

func TestLoggingHook(t *testing.T) {
	var buf bytes.Buffer
	h := LoggingHook(xlogger.NewWriter(&buf, zerolog.DebugLevel))

	msg := kafka.Message{Offset: 12, Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := h.BeforeHandle(context.Background(), "ticks", msg, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", ctx.Value(CtxTraceID))

	h.OnError(ctx, "ticks", msg, nil, &HookError{Code: "ERR_DECODE", Err: errors.New("bad json")})
	assert.Contains(t, buf.String(), `"trace_id":"abc"`)
	assert.Contains(t, buf.String(), "ERR_DECODE")
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(100e6, 1e9, attempt)
		assert.Greater(t, int64(d), int64(0))
		assert.LessOrEqual(t, int64(d), int64(1e9))
	}
}
