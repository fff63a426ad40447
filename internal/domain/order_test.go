package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{OrderStatusDraft, OrderStatusAwaitingPrescription},
		{OrderStatusDraft, OrderStatusAwaitingPayment},
		{OrderStatusDraft, OrderStatusCancelled},
		{OrderStatusAwaitingPrescription, OrderStatusAwaitingPayment},
		{OrderStatusAwaitingPrescription, OrderStatusCancelled},
		{OrderStatusAwaitingPayment, OrderStatusPaid},
		{OrderStatusAwaitingPayment, OrderStatusCancelled},
		{OrderStatusPaid, OrderStatusPreparing},
		{OrderStatusPreparing, OrderStatusReadyForDelivery},
		{OrderStatusReadyForDelivery, OrderStatusOnTheWay},
		{OrderStatusOnTheWay, OrderStatusDelivered},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to OrderStatus }{
		{OrderStatusDraft, OrderStatusDelivered},
		{OrderStatusDraft, OrderStatusPaid},
		{OrderStatusPaid, OrderStatusCancelled},
		{OrderStatusPaid, OrderStatusDelivered},
		{OrderStatusDelivered, OrderStatusOnTheWay},
		{OrderStatusCancelled, OrderStatusDraft},
		{OrderStatusAwaitingPayment, OrderStatusPreparing},
		{OrderStatusOnTheWay, OrderStatusCancelled},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestCanTransition_TerminalStates(t *testing.T) {
	all := []OrderStatus{
		OrderStatusDraft, OrderStatusAwaitingPrescription, OrderStatusAwaitingPayment,
		OrderStatusPaid, OrderStatusPreparing, OrderStatusReadyForDelivery,
		OrderStatusOnTheWay, OrderStatusDelivered, OrderStatusCancelled,
	}
	for _, to := range all {
		if CanTransition(OrderStatusDelivered, to) {
			t.Errorf("delivered must be terminal, allowed -> %s", to)
		}
		if CanTransition(OrderStatusCancelled, to) {
			t.Errorf("cancelled must be terminal, allowed -> %s", to)
		}
	}
}

func TestCanCancel(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusDraft, OrderStatusAwaitingPayment, OrderStatusAwaitingPrescription} {
		if !CanCancel(s) {
			t.Errorf("expected %s to be cancellable", s)
		}
	}
	for _, s := range []OrderStatus{OrderStatusPaid, OrderStatusPreparing, OrderStatusReadyForDelivery, OrderStatusOnTheWay, OrderStatusDelivered, OrderStatusCancelled} {
		if CanCancel(s) {
			t.Errorf("expected %s to not be cancellable", s)
		}
	}
}

func TestOrderItemSubtotal(t *testing.T) {
	item := OrderItem{Quantity: 3, Price: decimal.RequireFromString("10000.50")}
	if got := item.Subtotal(); !got.Equal(decimal.RequireFromString("30001.50")) {
		t.Errorf("unexpected subtotal: %s", got)
	}
}
