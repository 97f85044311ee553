package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/church-discovery-engine/internal/config"
	"github.com/couchcryptid/church-discovery-engine/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the adapter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes reminder notifications to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes notifications in a single
// WriteMessages call. Messages are keyed by user so one user's reminders
// stay ordered on a partition.
func (w *Writer) LoadBatch(ctx context.Context, notes []domain.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(notes))
	for i := range notes {
		msg, err := serializeToMessage(notes[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write notifications: %w", err)
	}
	w.logger.Debug("notifications published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(note domain.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(note)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(note.UserID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "venue_id", Value: []byte(note.VenueID)},
			{Key: "fire_at", Value: []byte(note.FireAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
