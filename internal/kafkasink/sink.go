// Package kafkasink publishes prediction events to a Kafka topic.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rewired-gh/solarcast/internal/models"
)

// MessageWriter is the subset of *kafka.Writer used by Sink
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the JSON payload of one prediction message
type Event struct {
	CycleID          string             `json:"cycle_id"`
	DeviceID         string             `json:"device_id"`
	DCPowerPredicted float64            `json:"dc_power_predicted"`
	Timestamp        string             `json:"timestamp"`
	Features         map[string]float64 `json:"features,omitempty"`
}

// Sink writes prediction events keyed by device ID
type Sink struct {
	w            MessageWriter
	writeTimeout time.Duration
	names        []string
}

// New builds a Sink backed by a kafka-go writer.
// names labels the feature vector in each event; nil omits features.
func New(brokers []string, topic string, writeTimeout time.Duration, names []string) *Sink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: writeTimeout,
	}
	return NewWithWriter(w, writeTimeout, names)
}

// NewWithWriter wraps an existing writer
func NewWithWriter(w MessageWriter, writeTimeout time.Duration, names []string) *Sink {
	return &Sink{w: w, writeTimeout: writeTimeout, names: names}
}

// NewEvent converts a prediction into its wire form
func NewEvent(p *models.Prediction, names []string) Event {
	ev := Event{
		CycleID:          p.CycleID,
		DeviceID:         p.DeviceID,
		DCPowerPredicted: p.Value,
		Timestamp:        p.Timestamp.Format(models.TimestampLayout),
	}
	if len(names) > 0 && len(names) == len(p.Features) {
		ev.Features = make(map[string]float64, len(names))
		for i, name := range names {
			ev.Features[name] = p.Features[i]
		}
	}
	return ev
}

// Publish writes one prediction event
func (s *Sink) Publish(ctx context.Context, p *models.Prediction) error {
	b, err := json.Marshal(NewEvent(p, s.names))
	if err != nil {
		return fmt.Errorf("failed to marshal prediction event: %w", err)
	}

	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	msg := kafka.Message{Key: []byte(p.DeviceID), Value: b, Time: p.Timestamp}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write prediction event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (s *Sink) Close() error {
	return s.w.Close()
}
