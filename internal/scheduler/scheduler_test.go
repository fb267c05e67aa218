package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"FinBars/internal/domain/models"
	"FinBars/internal/usecase"
	xlogger "FinBars/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []usecase.RunParams
	syms  [][]string
}

func (r *recordingRunner) RunAll(_ context.Context, symbols []string, tmpl usecase.RunParams) []models.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, tmpl)
	r.syms = append(r.syms, symbols)
	out := make([]models.RunSummary, len(symbols))
	for i, s := range symbols {
		out[i] = models.RunSummary{Symbol: s}
	}
	return out
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestScheduler_RunNowUsesTrailingWindow(t *testing.T) {
	runner := &recordingRunner{}
	s := NewScheduler(runner, Job{
		Symbols:     []string{"AAPL", "MSFT"},
		Template:    usecase.RunParams{Intervals: []int{15}, Persist: true},
		Lookback:    6 * time.Hour,
		BaseMinutes: 1,
		Timeout:     time.Minute,
	}, xlogger.Nop())
	s.now = func() time.Time { return time.Date(2024, 3, 4, 16, 30, 45, 0, time.UTC) }

	out := s.RunNow()
	require.Len(t, out, 2)
	require.Equal(t, 1, runner.count())

	p := runner.calls[0]
	assert.Equal(t, time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC), p.From)
	assert.Equal(t, time.Date(2024, 3, 4, 16, 30, 0, 0, time.UTC), p.To)
	assert.True(t, p.Persist)
	assert.Equal(t, []int{15}, p.Intervals)
	assert.Equal(t, []string{"AAPL", "MSFT"}, runner.syms[0])
}

func TestScheduler_RegisterRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&recordingRunner{}, Job{}, xlogger.Nop())
	require.Error(t, s.Register("every now and then"))
	// five fields are not enough with the seconds parser
	require.Error(t, s.Register("*/5 * * * *"))
	require.NoError(t, s.Register("0 */5 * * * *"))
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	runner := &recordingRunner{}
	s := NewScheduler(runner, Job{Symbols: []string{"AAPL"}, Lookback: time.Hour, BaseMinutes: 1}, xlogger.Nop())
	require.NoError(t, s.Register("* * * * * *"))
	s.Start()

	require.Eventually(t, func() bool { return runner.count() >= 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
