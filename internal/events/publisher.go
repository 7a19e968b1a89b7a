package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventType represents the type of order event
type EventType string

const (
	EventTypeOrderCreated EventType = "order.created"
)

// OrderEvent is the envelope written to the orders topic
type OrderEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// OrderPublisher announces committed orders
type OrderPublisher interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
	Close() error
}

// NewOrderPublisher returns a Kafka publisher, or a no-op one when no
// brokers are configured.
func NewOrderPublisher(cfg config.KafkaConfig, logger *zap.Logger) OrderPublisher {
	if !cfg.Enabled() {
		logger.Info("Kafka brokers not configured, order events disabled")
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg, logger)
}

// KafkaPublisher publishes order events to Kafka
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a new Kafka-based event publisher
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.OrdersTopic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	msg, err := orderCreatedMessage(order, time.Now().UTC())
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish order event: %w", err)
	}

	p.logger.Debug("Published order event",
		zap.String("order_id", order.ID.String()),
		zap.String("type", string(EventTypeOrderCreated)),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// orderCreatedMessage builds the Kafka message for a committed order. The
// order id is the partition key so all events for one order stay ordered.
func orderCreatedMessage(order *domain.Order, at time.Time) (kafka.Message, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode order: %w", err)
	}

	event := OrderEvent{
		ID:        uuid.NewString(),
		Type:      EventTypeOrderCreated,
		OrderID:   order.ID.String(),
		UserID:    order.UserID.String(),
		Data:      data,
		Timestamp: at,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode order event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(event.Type)},
		},
	}, nil
}

// NoopPublisher drops events
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderCreated(context.Context, *domain.Order) error { return nil }

func (NoopPublisher) Close() error { return nil }
