package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesTypedFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.DebugLevel).With(String("component", "pipeline"))

	l.Info("run finished",
		String("symbol", "AAPL"),
		Int("rows", 42),
		Float64("price", 187.5),
		Duration("took", 1500*time.Millisecond),
		Ints("intervals", []int{15, 60}),
		Error(errors.New("boom")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "run finished", entry["message"])
	assert.Equal(t, "pipeline", entry["component"])
	assert.Equal(t, "AAPL", entry["symbol"])
	assert.Equal(t, 42.0, entry["rows"])
	assert.Equal(t, 187.5, entry["price"])
	assert.Equal(t, 1500.0, entry["took"])
	assert.Equal(t, []any{15.0, 60.0}, entry["intervals"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.WarnLevel)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "chatty", Output: "stdout"})
	require.Error(t, err)

	l, err := New(&Config{Level: "info", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}
