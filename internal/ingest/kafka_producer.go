package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/liftmatch/internal/models"
)

// KafkaProducer publishes ride-created events consumed by the watch
// trigger pipeline.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishRideCreated(ride models.Ride) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(models.RideCreatedEvent{Ride: ride})
	if err != nil {
		return fmt.Errorf("encode ride event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ride.ID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
