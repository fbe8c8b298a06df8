package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/notifygate/notify-gateway/internal/domain"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

// Publish sends a persistent message to the live exchange under the type's
// routing key. The message id equals the request id so downstream consumers
// can dedup on the broker side if they choose to.
func (p *RabbitMQPublisher) Publish(ctx context.Context, notificationType domain.Type, msg OutboundMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if !notificationType.IsValid() {
		return fmt.Errorf("invalid notification type %q", notificationType)
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid outbound message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    msg.RequestID,
		Body:         payload,
	}

	routingKey := RoutingKey(notificationType)
	if err := ch.PublishWithContext(ctx, LiveExchange, routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message with routing key %q: %w", routingKey, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
