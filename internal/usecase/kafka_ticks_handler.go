package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinBars/internal/domain/models"
	domrepo "FinBars/internal/domain/repository"
	pkgkafka "FinBars/pkg/kafka"
)

// KafkaTicksHandler consumes the tick topic and writes to tick storage.
type KafkaTicksHandler struct {
	topic   string
	storage domrepo.TickStorage
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, storage domrepo.TickStorage, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// decodeTicks accepts a single tick object or an array of them.
func decodeTicks(b []byte) ([]models.SymbolTick, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var batch []models.SymbolTick
		if err := json.Unmarshal(b, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}
	var t models.SymbolTick
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	return []models.SymbolTick{t}, nil
}

// Handle stores the ticks of one message. Undecodable or empty payloads are
// returned as ERR_DECODE so the consumer skips retries.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	ticks, err := decodeTicks(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return &pkgkafka.HookError{Code: "ERR_DECODE", Err: err}
	}
	valid := ticks[:0]
	for _, t := range ticks {
		if t.Symbol != "" && t.TimestampMs > 0 {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		h.metrics.RecordError("consumer_invalid")
		return &pkgkafka.HookError{Code: "ERR_DECODE", Err: fmt.Errorf("no valid ticks in %d", len(ticks))}
	}

	// event time to now
	newest := valid[0].TimestampMs
	for _, t := range valid[1:] {
		newest = max(newest, t.TimestampMs)
	}
	h.metrics.RecordLatency("ingest_e2e", time.Since(time.UnixMilli(newest)).Seconds())

	start := time.Now()
	err = h.storage.StoreBatch(ctx, valid)
	h.metrics.RecordLatency("ch_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return fmt.Errorf("store ticks: %w", err)
	}
	for _, t := range valid {
		h.metrics.RecordMessageSent("clickhouse", t.Symbol)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
