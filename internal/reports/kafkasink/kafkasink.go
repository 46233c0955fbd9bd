// Package kafkasink publishes sent summaries as JSON events on a Kafka topic.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/firstline/internal/reports"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink writes one message per record, keyed by draft ID so every summary of
// an incident lands on the same partition.
type Sink struct {
	w messageWriter
}

// New creates a sink writing to topic on the given brokers.
func New(brokers []string, topic string) *Sink {
	return &Sink{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// Save implements reports.Archive.
func (s *Sink) Save(ctx context.Context, rec *reports.Record) error {
	msg, err := newMessage(rec)
	if err != nil {
		return err
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write report %s: %w", rec.ID, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (s *Sink) Close() error {
	return s.w.Close()
}

func newMessage(rec *reports.Record) (kafka.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: marshal report: %w", err)
	}
	return kafka.Message{
		Key:   []byte(rec.DraftID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(rec.Severity)},
			{Key: "recipient_tier", Value: []byte(rec.RecipientTier)},
		},
		Time: rec.SentAt,
	}, nil
}
