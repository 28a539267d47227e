package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"resizeq/internal/models"
)

// Publisher hands resize tasks to the work queue. Delivery is at-least-once;
// the consumer guards against duplicates with status transitions.
type Publisher interface {
	Publish(ctx context.Context, task models.ResizeTask) error
}

// Kafka publishes tasks to a single topic. The writer is created once at
// startup and shared across requests.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(broker, topic string) *Kafka {
	return &Kafka{writer: kafka.NewWriter(kafka.WriterConfig{
		Brokers: []string{broker},
		Topic:   topic,
	})}
}

func (k *Kafka) Publish(ctx context.Context, task models.ResizeTask) error {
	const op = "queue.Kafka.Publish"
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Key),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// NewReader builds the consumer side for the worker.
func NewReader(broker, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: groupID,
	})
}
