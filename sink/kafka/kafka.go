// Package kafka publishes relay outcomes to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/log"
	"github.com/segmentio/kafka-go"
)

const DefaultWriteTimeout = 10 * time.Second

type Config struct {
	Brokers      []string      `yaml:"brokers" json:"brokers" mapstructure:"brokers"`
	Topic        string        `yaml:"topic" json:"topic" mapstructure:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
}

func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(c.Topic) == "" {
		return fmt.Errorf("config attribute \"kafka.topic\" is empty")
	}
	return nil
}

// Writer is the part of a kafka.Writer the sink needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the value of every published record.
type Event struct {
	EventID string                 `json:"event_id"`
	Message *core.CanonicalMessage `json:"message"`
	Outcome *core.RelayOutcome     `json:"outcome"`
}

// Sink publishes outcomes keyed by message id, so that every outcome of a
// message lands on the same partition.
type Sink struct {
	writer  Writer
	timeout time.Duration
	logger  *log.RelayLogger
}

var _ core.OutcomeSink = (*Sink)(nil)

func NewSink(c Config) *Sink {
	logger := log.GetLogger().WithModule("sink.kafka")
	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: c.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), nil)
		}),
	}
	return NewSinkWithWriter(w, c.WriteTimeout)
}

func NewSinkWithWriter(w Writer, timeout time.Duration) *Sink {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Sink{
		writer:  w,
		timeout: timeout,
		logger:  log.GetLogger().WithModule("sink.kafka"),
	}
}

func (s *Sink) Publish(ctx context.Context, msg *core.CanonicalMessage, outcome *core.RelayOutcome) error {
	ev := Event{
		EventID: uuid.NewString(),
		Message: msg,
		Outcome: outcome,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode outcome event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(outcome.MessageID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish outcome of %s: %w", outcome.MessageID, err)
	}
	s.logger.DebugContext(ctx, "published outcome", "message id", outcome.MessageID, "event_id", ev.EventID)
	return nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
