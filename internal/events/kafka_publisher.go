package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// KafkaEventPublisher publishes events through watermill's Kafka transport.
type KafkaEventPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewKafkaEventPublisher(brokers []string, logger *slog.Logger) (*KafkaEventPublisher, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return &KafkaEventPublisher{
		publisher: publisher,
		logger:    logger,
	}, nil
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", event.Type)
	msg.Metadata.Set("source", event.Source)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event %s to %s: %w", event.Type, topic, err)
	}

	p.logger.Debug("Event published",
		"event_id", event.ID,
		"event_type", event.Type,
		"topic", topic)

	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.publisher.Close()
}
