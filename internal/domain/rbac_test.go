package domain

import "testing"

func TestCanPerform(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleCustomer, ActionCheckout, true},
		{RoleCustomer, ActionCancelOrder, true},
		{RoleCustomer, ActionCreatePayment, true},
		{RoleCustomer, ActionChangeOrderStatus, false},
		{RoleCustomer, ActionReviewPrescription, false},
		{RoleOperator, ActionChangeOrderStatus, true},
		{RoleOperator, ActionReviewPrescription, true},
		{RoleOperator, ActionCheckout, false},
		{RoleCourier, ActionChangeOrderStatus, true},
		{RoleCourier, ActionReviewPrescription, false},
		{RoleAdmin, ActionCheckout, true},
		{RoleAdmin, ActionViewPaymentLogs, true},
	}
	for _, tc := range cases {
		if got := CanPerform(tc.role, tc.action); got != tc.want {
			t.Errorf("CanPerform(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestCanSetStatus(t *testing.T) {
	cases := []struct {
		role   Role
		target OrderStatus
		want   bool
	}{
		{RoleOperator, OrderStatusPreparing, true},
		{RoleOperator, OrderStatusReadyForDelivery, true},
		{RoleOperator, OrderStatusOnTheWay, false},
		{RoleCourier, OrderStatusOnTheWay, true},
		{RoleCourier, OrderStatusDelivered, true},
		{RoleCourier, OrderStatusPreparing, false},
		{RoleCustomer, OrderStatusPreparing, false},
		{RoleAdmin, OrderStatusPreparing, true},
		{RoleAdmin, OrderStatusPaid, true},
		{RoleOperator, OrderStatusPaid, false},
	}
	for _, tc := range cases {
		if got := CanSetStatus(tc.role, tc.target); got != tc.want {
			t.Errorf("CanSetStatus(%s, %s) = %v, want %v", tc.role, tc.target, got, tc.want)
		}
	}
}
