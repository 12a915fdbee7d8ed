// Package events publishes order events once a change is committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/app"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors/constants"
)

const DefaultTopic = "order-events"

const publishTimeout = 10 * time.Second

var (
	_ app.EventPublisher = (*KafkaPublisher)(nil)
	_ app.EventPublisher = (*LogPublisher)(nil)
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events keyed by order id, so every event of an
// order lands on the same partition in commit order.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event app.OrderEvent) error {
	msg, err := message(ctx, event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish %s for order %s: %w", event.Type, event.OrderID, err)
	}
	slog.DebugContext(ctx, "order event published",
		"event_id", event.ID, "type", event.Type, "order_id", event.OrderID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func message(ctx context.Context, event app.OrderEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("events: marshal %s: %w", event.Type, err)
	}
	headers := []kafka.Header{{Key: "event-type", Value: []byte(event.Type)}}
	if id := interceptors.RequestID(ctx); id != "" {
		headers = append(headers, kafka.Header{Key: constants.HeaderXRequestId, Value: []byte(id)})
	}
	return kafka.Message{
		Key:     []byte(event.OrderID),
		Value:   value,
		Headers: headers,
		Time:    event.OccurredAt,
	}, nil
}

// LogPublisher writes events to the structured log. Used when no brokers are
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event app.OrderEvent) error {
	p.logger.InfoContext(ctx, "order event",
		"event_id", event.ID,
		"type", event.Type,
		"order_id", event.OrderID,
		"customer_id", event.CustomerID,
		"status", event.Status,
		"previous_status", event.PreviousStatus,
		"amount", event.Amount.StringFixed(2),
		"payment_reference", event.PaymentReference,
	)
	return nil
}
