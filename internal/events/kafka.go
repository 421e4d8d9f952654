package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

type kafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaPublisher publishes events as JSON to topic, keyed by task id so
// one task's events stay in order on a single partition.
func NewKafkaPublisher(address, topic string) (Publisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":                     address,
		"client.id":                             "audio-extractor",
		"enable.idempotence":                    true,
		"acks":                                  "all",
		"max.in.flight.requests.per.connection": 1,
		"message.timeout.ms":                    60000,
		"linger.ms":                             5,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := &kafkaPublisher{producer: producer, topic: topic}
	go p.logDeliveries()
	return p, nil
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(ev.TaskID),
		Value: value,
	}, nil)
}

// Close flushes pending deliveries until ctx expires, then closes the
// producer.
func (p *kafkaPublisher) Close(ctx context.Context) error {
	for p.producer.Len() > 0 {
		if ctx.Err() != nil {
			slog.Warn("Dropping undelivered events", "count", p.producer.Len())
			break
		}
		p.producer.Flush(100)
	}
	p.producer.Close()
	return nil
}

func (p *kafkaPublisher) logDeliveries() {
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if err := ev.TopicPartition.Error; err != nil {
				slog.Warn("Event not delivered", "task_id", string(ev.Key), "error", err)
			}
		case kafka.Error:
			slog.Error("Kafka producer error", "code", ev.Code(), "error", ev)
		}
	}
}
