package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"FinBars/internal/domain/models"
	domrepo "FinBars/internal/domain/repository"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

// minuteTicks returns one tick per minute for n minutes starting at t0.
func minuteTicks(n int) []models.Tick {
	out := make([]models.Tick, 0, n)
	for i := 0; i < n; i++ {
		p := float64(100 + i)
		out = append(out, models.Tick{
			TimestampMs: t0.Add(time.Duration(i) * time.Minute).UnixMilli(),
			Open:        p, High: p + 1, Low: p - 1, Close: p, Volume: 10,
		})
	}
	return out
}

type fakeSource struct {
	mu     sync.Mutex
	ticks  map[string][]models.Tick
	err    error
	opened int
	closed int
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Open(context.Context) (domrepo.TickSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	return &fakeSession{src: s}, nil
}

func (s *fakeSource) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

type fakeSession struct{ src *fakeSource }

func (f *fakeSession) Ticks(_ context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
	f.src.mu.Lock()
	defer f.src.mu.Unlock()
	if f.src.err != nil {
		return nil, f.src.err
	}
	var out []models.Tick
	for _, t := range f.src.ticks[symbol] {
		if !t.Time().Before(from) && t.Time().Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeSession) Close() error {
	f.src.mu.Lock()
	defer f.src.mu.Unlock()
	f.src.closed++
	return nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved map[string]models.MergedSeries
	err   error
}

func newFakeStore() *fakeStore { return &fakeStore{saved: map[string]models.MergedSeries{}} }

func (s *fakeStore) Init(context.Context) error { return nil }

func (s *fakeStore) SaveMerged(_ context.Context, symbol string, series models.MergedSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved[symbol] = series
	return nil
}

func (s *fakeStore) GetMerged(_ context.Context, symbol string, _, _ time.Time) (models.MergedSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.MergedSeries{}, s.err
	}
	return s.saved[symbol], nil
}

func (s *fakeStore) Close() error { return nil }

type fakePublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *fakePublisher) PublishMerged(_ context.Context, symbol string, _ models.MergedSeries) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, symbol)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeMetrics struct {
	mu     sync.Mutex
	errors map[string]int
	rows   map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: map[string]int{}, rows: map[string]int{}}
}

func (m *fakeMetrics) RecordMessageSent(string, string) {}
func (m *fakeMetrics) RecordLastPrice(string, float64)  {}
func (m *fakeMetrics) RecordLatency(string, float64)    {}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordRows(stage, symbol string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[stage+"/"+symbol] = n
}

type fakeTickStorage struct {
	mu     sync.Mutex
	stored []models.SymbolTick
	err    error
}

func (s *fakeTickStorage) Init(context.Context) error   { return nil }
func (s *fakeTickStorage) Health(context.Context) error { return nil }
func (s *fakeTickStorage) Close() error                 { return nil }

func (s *fakeTickStorage) StoreBatch(_ context.Context, ticks []models.SymbolTick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, ticks...)
	return nil
}

var errBoom = errors.New("boom")
