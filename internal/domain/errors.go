package domain

import "errors"

var (
	ErrCartEmpty         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
	ErrProductExpired    = errors.New("product is expired")
	ErrInvalidQuantity   = errors.New("quantity must be between 1 and 100")

	ErrOrderNotFound      = errors.New("order not found")
	ErrIllegalTransition  = errors.New("illegal order status transition")
	ErrInvalidOrderStatus = errors.New("order status does not permit this operation")
	ErrForbidden          = errors.New("actor role does not permit this action")

	ErrPaymentNotFound          = errors.New("payment not found")
	ErrInvalidOrderState        = errors.New("order is not awaiting payment")
	ErrIllegalPaymentTransition = errors.New("illegal payment status transition")

	ErrPrescriptionNotFound = errors.New("prescription not found")
	ErrNotPending           = errors.New("prescription is not pending")
	ErrMissingReason        = errors.New("rejection reason is required")
	ErrImageLimit           = errors.New("prescription image limit reached")
	ErrNoImages             = errors.New("at least one prescription image is required")
)
