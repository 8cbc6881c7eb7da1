package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/ocpp-log-etl/internal/config"
	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
)

// Writer publishes net-new records to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured record topic.
// Messages are keyed by port so each port's records stay ordered.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes records and writes them in a single WriteMessages call.
func (w *Writer) Publish(ctx context.Context, records []domain.NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records: %w", len(msgs), err)
	}
	w.logger.Debug("records published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a record into a Kafka message keyed by port.
func serializeToMessage(rec domain.NormalizedRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record %s: %w", rec.Identity(), err)
	}
	headers := []kafkago.Header{
		{Key: "unique_id", Value: []byte(rec.Identity())},
		{Key: "direction", Value: []byte(rec.Direction)},
	}
	if rec.CallType != nil {
		headers = append(headers, kafkago.Header{Key: "call_type", Value: []byte(*rec.CallType)})
	}
	return kafkago.Message{
		Key:     []byte(rec.PortID),
		Value:   data,
		Headers: headers,
	}, nil
}
