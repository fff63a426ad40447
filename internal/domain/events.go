package domain

import "time"

// Notification types emitted by the core. The worker resolves each to a
// template on the notification gateway side.
const (
	NotifyOrderCreated       = "order_created"
	NotifyOrderStatusChanged = "order_status_changed"
	NotifyOrderCancelled     = "order_cancelled"
	NotifyPaymentSuccess     = "payment_success"
	NotifyPrescriptionResult = "prescription_result"
)

type NotificationEvent struct {
	UserID    string            `json:"user_id"`
	Type      string            `json:"type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	SendSMS   bool              `json:"send_sms"`
	Timestamp time.Time         `json:"timestamp"`
}
