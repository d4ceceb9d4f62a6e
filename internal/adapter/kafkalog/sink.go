// Package kafkalog publishes external-call records to a Kafka topic for
// durable cost and health monitoring.
package kafkalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
	"github.com/parcelworks/gis-enrichment-service/internal/observability"
)

// Sink implements domain.CallSink on top of a Kafka writer. Writes are
// asynchronous: a call record must never slow down or fail the external
// query it describes.
type Sink struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSink creates a Kafka-backed call sink for the given brokers and topic.
func NewSink(brokers []string, topic string, logger *slog.Logger, metrics *observability.Metrics) *Sink {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
		Completion: func(messages []kafkago.Message, err error) {
			if err != nil {
				logger.Warn("call log publish failed", "count", len(messages), "error", err)
			}
		},
	}
	return &Sink{writer: w, logger: logger, metrics: metrics}
}

// Record serializes and publishes the call record, and updates call metrics.
// Serialization failures are logged and dropped.
func (s *Sink) Record(ctx context.Context, rec domain.CallRecord) {
	s.metrics.ObserveCall(rec)

	msg, err := serializeToMessage(rec)
	if err != nil {
		s.logger.Warn("call log serialize failed", "source", rec.Source, "error", err)
		return
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		// Async mode only errors here on closed writer or bad config.
		s.logger.Warn("call log write failed", "source", rec.Source, "error", err)
	}
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

// serializeToMessage marshals a call record into a Kafka message keyed by
// source so per-service consumers keep ordering.
func serializeToMessage(rec domain.CallRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(rec.Source),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "endpoint", Value: []byte(rec.Endpoint)},
			{Key: "recorded_at", Value: []byte(rec.RecordedAt.Format(time.RFC3339))},
		},
	}, nil
}
