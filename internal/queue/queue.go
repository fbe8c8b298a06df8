package queue

import (
	"context"
	"fmt"

	"github.com/notifygate/notify-gateway/internal/domain"
)

// Broker topology names. The downstream email/push consumers assert the same
// exchange and queue arguments, so these are part of the wire contract.
const (
	// LiveExchange routes admitted notifications to per-type queues.
	LiveExchange = "notifications.direct"
	// DeadLetterExchange receives rejected or overflowed deliveries.
	DeadLetterExchange = "notifications.dlx"
	// FailedQueue holds dead-lettered messages for inspection.
	FailedQueue = "failed"
	// FailedRoutingKey binds the failed queue to the dead-letter exchange.
	FailedRoutingKey = "failed"
)

// Publisher hands an admitted notification to the broker.
type Publisher interface {
	Publish(ctx context.Context, notificationType domain.Type, msg OutboundMessage) error
	Close() error
}

// Pinger verifies broker connectivity for health reporting.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RoutingKey returns the routing key for a notification type, e.g. email.queue.
func RoutingKey(t domain.Type) string {
	return fmt.Sprintf("%s.queue", t.String())
}

// QueueName returns the durable work queue for a notification type. Queue and
// routing key share the same name in this topology.
func QueueName(t domain.Type) string {
	return RoutingKey(t)
}
