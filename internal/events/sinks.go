package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// ProofUpdateChannel is the redis pub/sub channel for proof updates
const ProofUpdateChannel = "queue:proof_update"

// RedisSink publishes events on ProofUpdateChannel
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Send(ctx context.Context, ev Event) error {
	data, err := ev.encode()
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, ProofUpdateChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", ProofUpdateChannel, err)
	}
	return nil
}

// KafkaSink writes events to a topic keyed by trader id
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, ev Event) error {
	data, err := ev.encode()
	if err != nil {
		return err
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.TraderID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("failed to write to kafka topic %s: %w", s.writer.Topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
