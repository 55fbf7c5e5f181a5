// Package notify publishes unit completion events for the downstream
// warehouse loader.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"market-candle-lab/internal/domain"
)

// UnitCompleted is published once a unit's outputs are durably written.
type UnitCompleted struct {
	RunID          string         `json:"run_id"`
	UnitID         string         `json:"unit_id"`
	Exchange       string         `json:"exchange"`
	Date           string         `json:"date"`
	InstrumentKey  string         `json:"instrument_key"`
	CandleCounts   map[string]int `json:"candle_counts"`
	SnapshotCounts map[string]int `json:"snapshot_counts"`
	MissingInputs  []string       `json:"missing_inputs,omitempty"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// EventFromRecord builds the event for a finished unit record.
func EventFromRecord(rec *domain.UnitRecord) UnitCompleted {
	return UnitCompleted{
		RunID:          rec.RunID,
		UnitID:         rec.UnitID,
		Exchange:       rec.Exchange,
		Date:           rec.Date,
		InstrumentKey:  rec.InstrumentKey,
		CandleCounts:   rec.CandleCounts,
		SnapshotCounts: rec.SnapshotCounts,
		MissingInputs:  rec.MissingInputs,
		FinishedAt:     rec.FinishedAt,
	}
}

// Publisher delivers completion events.
type Publisher interface {
	Publish(ctx context.Context, ev UnitCompleted) error
	Close() error
}

// Nop discards events. Used when kafka is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, UnitCompleted) error { return nil }
func (Nop) Close() error                                 { return nil }

// Config configures the kafka publisher.
type Config struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
}

// KafkaPublisher publishes events with a sync producer, keyed by unit id so a
// unit's events stay on one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher connects a sync producer to cfg.Brokers.
func NewKafkaPublisher(cfg Config) (*KafkaPublisher, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Compression = sarama.CompressionZSTD
	sc.Version = sarama.V2_1_0_0 // zstd needs >= 2.1
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
		sc.Net.DialTimeout = cfg.Timeout
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("notify: new sync producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish sends one event.
func (p *KafkaPublisher) Publish(ctx context.Context, ev UnitCompleted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.UnitID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("run_id"), Value: []byte(ev.RunID)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("notify: send %s: %w", ev.UnitID, err)
	}
	return nil
}

// Close closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*KafkaPublisher)(nil)
)
