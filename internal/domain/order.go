package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusDraft                OrderStatus = "draft"
	OrderStatusAwaitingPrescription OrderStatus = "awaiting_prescription"
	OrderStatusAwaitingPayment      OrderStatus = "awaiting_payment"
	OrderStatusPaid                 OrderStatus = "paid"
	OrderStatusPreparing            OrderStatus = "preparing"
	OrderStatusReadyForDelivery     OrderStatus = "ready_for_delivery"
	OrderStatusOnTheWay             OrderStatus = "on_the_way"
	OrderStatusDelivered            OrderStatus = "delivered"
	OrderStatusCancelled            OrderStatus = "cancelled"
)

// allowedTransitions is the single source of truth for order status legality.
// Delivered and cancelled are terminal.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:                {OrderStatusAwaitingPrescription, OrderStatusAwaitingPayment, OrderStatusCancelled},
	OrderStatusAwaitingPrescription: {OrderStatusAwaitingPayment, OrderStatusCancelled},
	OrderStatusAwaitingPayment:      {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:                 {OrderStatusPreparing},
	OrderStatusPreparing:            {OrderStatusReadyForDelivery},
	OrderStatusReadyForDelivery:     {OrderStatusOnTheWay},
	OrderStatusOnTheWay:             {OrderStatusDelivered},
}

func CanTransition(from, to OrderStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanCancel reports whether an order may still be cancelled. Cancellation
// after payment is out of scope (no refund path).
func CanCancel(status OrderStatus) bool {
	switch status {
	case OrderStatusDraft, OrderStatusAwaitingPayment, OrderStatusAwaitingPrescription:
		return true
	}
	return false
}

type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Status            OrderStatus     `json:"status"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	DeliveryAddress   string          `json:"delivery_address"`
	NeedsPrescription bool            `json:"needs_prescription"`
	CourierID         *string         `json:"courier_id,omitempty"`
	Items             []OrderItem     `json:"items"`
	CreatedAt         time.Time       `json:"created_at"`
}

// OrderItem price is frozen at checkout time and never re-read from the
// live product.
type OrderItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderStatusHistory struct {
	ID         string      `json:"id"`
	OrderID    string      `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	ChangedBy  *string     `json:"changed_by,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
