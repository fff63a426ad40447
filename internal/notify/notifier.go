// Package notify is the boundary to the external notification/SMS system.
// The core treats delivery as fire-and-forget: services call Notify after
// their transaction commits, and a delivery failure is logged, never
// propagated into the owning operation.
package notify

import (
	"context"
	"time"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
	"github.com/pharmatech-uz/pharmacy-core/internal/messaging"
)

type Notifier interface {
	Notify(ctx context.Context, userID, notificationType string, metadata map[string]string, sendSMS bool) error
}

// KafkaNotifier hands notification events to the worker through Kafka.
type KafkaNotifier struct {
	producer *messaging.Producer
}

func NewKafkaNotifier(producer *messaging.Producer) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

func (n *KafkaNotifier) Notify(ctx context.Context, userID, notificationType string, metadata map[string]string, sendSMS bool) error {
	event := domain.NotificationEvent{
		UserID:    userID,
		Type:      notificationType,
		Metadata:  metadata,
		SendSMS:   sendSMS,
		Timestamp: time.Now().UTC(),
	}
	return n.producer.Publish(ctx, userID, event)
}

// Nop is used when no broker is configured (local runs, tests).
type Nop struct{}

func (Nop) Notify(ctx context.Context, userID, notificationType string, metadata map[string]string, sendSMS bool) error {
	return nil
}
