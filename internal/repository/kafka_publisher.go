package repository

import (
	"context"

	"FinBars/internal/domain/models"
	domrepo "FinBars/internal/domain/repository"
	pkgkafka "FinBars/pkg/kafka"
)

// messageWriter is the subset of *pkgkafka.Producer the publishers need.
type messageWriter interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaTickPublisher sends live ticks to the tick topic keyed by symbol.
type KafkaTickPublisher struct {
	producer messageWriter
	topic    string
}

func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) *KafkaTickPublisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

var _ domrepo.TickPublisher = (*KafkaTickPublisher)(nil)

func (p *KafkaTickPublisher) Publish(ctx context.Context, t models.SymbolTick) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), t)
}

func (p *KafkaTickPublisher) PublishBatch(ctx context.Context, ticks []models.SymbolTick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ticks))
	for i, t := range ticks {
		msgs[i] = pkgkafka.Message{Key: []byte(t.Symbol), Value: t}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Close is a no-op; the producer is shared and closed by the app.
func (p *KafkaTickPublisher) Close() error { return nil }

// KafkaSeriesPublisher emits one record per merged row, keyed by symbol so a
// symbol's rows stay ordered on one partition.
type KafkaSeriesPublisher struct {
	producer messageWriter
	topic    string
}

func NewKafkaSeriesPublisher(producer *pkgkafka.Producer, topic string) *KafkaSeriesPublisher {
	return &KafkaSeriesPublisher{producer: producer, topic: topic}
}

var _ domrepo.SeriesPublisher = (*KafkaSeriesPublisher)(nil)

func (p *KafkaSeriesPublisher) PublishMerged(ctx context.Context, symbol string, series models.MergedSeries) error {
	records := series.Records()
	if len(records) == 0 {
		return nil
	}
	key := []byte(symbol)
	msgs := make([]pkgkafka.Message, len(records))
	for i, rec := range records {
		rec["symbol"] = symbol
		msgs[i] = pkgkafka.Message{Key: key, Value: rec}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSeriesPublisher) Close() error { return nil }

// NoopSeriesPublisher drops everything; used when publishing is disabled.
type NoopSeriesPublisher struct{}

func (NoopSeriesPublisher) PublishMerged(context.Context, string, models.MergedSeries) error {
	return nil
}

func (NoopSeriesPublisher) Close() error { return nil }
