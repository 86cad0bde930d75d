package outbox

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/taskform/internal/store"
)

// KafkaExecutor publishes entries to a Kafka topic, keyed by stable key
// so snapshots for the same task land in order on one partition.
type KafkaExecutor struct {
	brokers []string
	topic   string

	mu     sync.Mutex
	writer *kafka.Writer
}

// NewKafkaExecutor constructs a KafkaExecutor.
func NewKafkaExecutor(brokers []string, topic string) *KafkaExecutor {
	return &KafkaExecutor{brokers: brokers, topic: topic}
}

type kafkaEnvelope struct {
	StableKey string         `json:"stableKey"`
	Document  string         `json:"document"`
	Variables map[string]any `json:"variables"`
	Attempts  int            `json:"attempts"`
}

// Deliver publishes the entry as one message.
func (e *KafkaExecutor) Deliver(ctx context.Context, entry store.OutboxEntry) error {
	value, err := json.Marshal(kafkaEnvelope{
		StableKey: entry.StableKey,
		Document:  entry.Document,
		Variables: entry.Variables,
		Attempts:  entry.Attempts,
	})
	if err != nil {
		return err
	}

	return e.lazyWriter().WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.StableKey),
		Value: value,
		Time:  time.Now().UTC(),
	})
}

func (e *KafkaExecutor) lazyWriter() *kafka.Writer {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.writer == nil {
		e.writer = &kafka.Writer{
			Addr:         kafka.TCP(e.brokers...),
			Topic:        e.topic,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		}
	}
	return e.writer
}

// Close releases the writer.
func (e *KafkaExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.writer == nil {
		return nil
	}
	err := e.writer.Close()
	e.writer = nil
	return err
}
