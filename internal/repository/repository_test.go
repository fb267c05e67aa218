package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"FinBars/internal/domain/models"
	pkgkafka "FinBars/pkg/kafka"
	xlogger "FinBars/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func mergedFixture() models.MergedSeries {
	rows := []models.MergedCandle{
		{
			Candle:    models.Candle{Date: day, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
			Resampled: map[string]float64{"resample_15_open": 1, "resample_15_close": 1.8},
		},
		{
			Candle:    models.Candle{Date: day.Add(time.Minute), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 12},
			Resampled: map[string]float64{"resample_15_open": 1, "resample_15_close": 1.8, "resample_60_close": 3},
		},
		{
			Candle: models.Candle{Date: day.Add(2 * time.Minute), Open: 2, High: 3, Low: 1.5, Close: 2.5, Volume: 7},
		},
	}
	return models.MergedSeries{
		Columns: []string{"resample_15_open", "resample_15_close", "resample_60_close"},
		Rows:    rows,
	}
}

func newSQLite(t *testing.T) *SQLiteSeriesStore {
	t.Helper()
	s, err := NewSQLiteSeriesStore(":memory:", xlogger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSeriesStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	in := mergedFixture()

	require.NoError(t, s.SaveMerged(ctx, "AAPL", in))
	require.NoError(t, s.SaveMerged(ctx, "MSFT", models.MergedSeries{Rows: in.Rows[:1]}))

	got, err := s.GetMerged(ctx, "AAPL", day, day.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	assert.Equal(t, in.Columns, got.Columns)

	for i, r := range got.Rows {
		assert.True(t, r.Date.Equal(in.Rows[i].Date))
		assert.Equal(t, time.UTC, r.Date.Location())
		assert.Equal(t, in.Rows[i].Close, r.Close)
		for _, col := range in.Columns {
			want, wantOK := in.Rows[i].Value(col)
			v, ok := r.Value(col)
			assert.Equal(t, wantOK, ok, "row %d col %s", i, col)
			assert.Equal(t, want, v, "row %d col %s", i, col)
		}
	}
}

func TestSQLiteSeriesStore_RangeIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	require.NoError(t, s.SaveMerged(ctx, "AAPL", mergedFixture()))

	got, err := s.GetMerged(ctx, "AAPL", day.Add(time.Minute), day.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.True(t, got.Rows[0].Date.Equal(day.Add(time.Minute)))

	none, err := s.GetMerged(ctx, "TSLA", day, day.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, none.Len())
}

func TestSQLiteSeriesStore_UpsertReplacesRows(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	in := mergedFixture()
	require.NoError(t, s.SaveMerged(ctx, "AAPL", in))

	again := models.MergedSeries{Rows: []models.MergedCandle{{Candle: in.Rows[0].Candle}}}
	again.Rows[0].Close = 99
	require.NoError(t, s.SaveMerged(ctx, "AAPL", again))

	got, err := s.GetMerged(ctx, "AAPL", day, day.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	assert.Equal(t, 99.0, got.Rows[0].Close)
	_, ok := got.Rows[0].Value("resample_15_close")
	assert.False(t, ok)
}

func TestBuildTickInsert(t *testing.T) {
	ticks := []models.SymbolTick{
		{Symbol: "AAPL", Tick: models.TradeTick(day.UnixMilli(), 187.1, 5)},
		{Symbol: "", Tick: models.TradeTick(day.UnixMilli(), 1, 1)},
		{Symbol: "MSFT", Tick: models.TradeTick(0, 1, 1)},
		{Symbol: "MSFT", Tick: models.TradeTick(day.UnixMilli()+1, 410, 2)},
	}
	q, args := buildTickInsert("finbars", "finnhub", ticks)
	assert.Contains(t, q, "INSERT INTO finbars.ticks")
	assert.Contains(t, q, "VALUES (?, ?, ?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?, ?, ?)")
	require.Len(t, args, 16)
	assert.True(t, day.Equal(args[0].(time.Time)))
	assert.Equal(t, "MSFT", args[9])

	q, args = buildTickInsert("finbars", "finnhub", ticks[1:3])
	assert.Empty(t, q)
	assert.Nil(t, args)
}

type recordingWriter struct {
	topic string
	msgs  []pkgkafka.Message
}

func (w *recordingWriter) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	w.topic = topic
	w.msgs = append(w.msgs, pkgkafka.Message{Key: key, Value: value})
	return nil
}

func (w *recordingWriter) PublishBatch(_ context.Context, topic string, messages []pkgkafka.Message) error {
	w.topic = topic
	w.msgs = append(w.msgs, messages...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaSeriesPublisher(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaSeriesPublisher{producer: w, topic: "merged"}

	require.NoError(t, p.PublishMerged(context.Background(), "AAPL", mergedFixture()))
	assert.Equal(t, "merged", w.topic)
	require.Len(t, w.msgs, 3)

	b, err := json.Marshal(w.msgs[2].Value)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"symbol": "AAPL", "date": "2024-03-04T00:02:00Z",
		"open": 2, "high": 3, "low": 1.5, "close": 2.5, "volume": 7,
		"resample_15_open": null, "resample_15_close": null, "resample_60_close": null
	}`, string(b))
	assert.Equal(t, "AAPL", string(w.msgs[0].Key))
}

func TestKafkaTickPublisher(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaTickPublisher{producer: w, topic: "ticks"}

	tick := models.SymbolTick{Symbol: "AAPL", Tick: models.TradeTick(1700000000000, 190, 3)}
	require.NoError(t, p.PublishBatch(context.Background(), []models.SymbolTick{tick}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	require.Len(t, w.msgs, 1)

	b, err := json.Marshal(w.msgs[0].Value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"AAPL","t":1700000000000,"o":190,"h":190,"l":190,"c":190,"v":3}`, string(b))
}

func TestTickQuery(t *testing.T) {
	q := tickQuery("finbars", 5)
	assert.Contains(t, q, "INTERVAL 5 MINUTE")
	assert.Contains(t, q, "FROM finbars.ticks")
	assert.Contains(t, q, "argMax(close, ts)")
	assert.Contains(t, q, "ts >= ? AND ts < ?")
}
