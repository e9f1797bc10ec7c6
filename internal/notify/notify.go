// Package notify publishes order events for downstream consumers (the email
// worker of the original system). Delivery is best-effort: settlement never
// fails or rolls back because a notification could not be sent.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/millomarket/marketplace/internal/models"
)

type Notifier interface {
	OrderCreated(ctx context.Context, order models.Order) error
}

// KafkaNotifier publishes order_created events to a kafka topic.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(address, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(address),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: 5 * time.Second,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (n *KafkaNotifier) OrderCreated(ctx context.Context, order models.Order) error {
	event := map[string]any{
		"type":           "order_created",
		"order_id":       order.ID,
		"product_id":     order.ProductID,
		"seller_id":      order.SellerID,
		"customer_email": order.CustomerEmail,
		"total":          order.Total,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(order.ID),
		Value: data,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// Noop is used when no broker is configured and in tests.
type Noop struct{}

func (Noop) OrderCreated(context.Context, models.Order) error { return nil }
