package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
	RoleCourier  Role = "courier"
	RoleAdmin    Role = "admin"
)

type Action string

const (
	ActionCheckout           Action = "checkout"
	ActionCancelOrder        Action = "cancel_order"
	ActionChangeOrderStatus  Action = "change_order_status"
	ActionAssignCourier      Action = "assign_courier"
	ActionCreatePayment      Action = "create_payment"
	ActionViewPaymentLogs    Action = "view_payment_logs"
	ActionReviewPrescription Action = "review_prescription"
)

// roleActions is the static role → action-set table. Admin gets everything.
var roleActions = map[Role]map[Action]bool{
	RoleCustomer: {
		ActionCheckout:      true,
		ActionCancelOrder:   true,
		ActionCreatePayment: true,
	},
	RoleOperator: {
		ActionChangeOrderStatus:  true,
		ActionAssignCourier:      true,
		ActionReviewPrescription: true,
	},
	RoleCourier: {
		ActionChangeOrderStatus: true,
	},
}

func CanPerform(role Role, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	return roleActions[role][action]
}

// statusChangeRoles gates which roles may drive an order into a given
// target status. Legality of the transition itself is the state machine's
// concern, not this table's.
var statusChangeRoles = map[OrderStatus][]Role{
	OrderStatusPreparing:        {RoleOperator, RoleAdmin},
	OrderStatusReadyForDelivery: {RoleOperator, RoleAdmin},
	OrderStatusOnTheWay:         {RoleCourier, RoleAdmin},
	OrderStatusDelivered:        {RoleCourier, RoleAdmin},
}

// CanSetStatus reports whether role may move an order into target.
// Statuses absent from the table are reachable only through dedicated flows
// (checkout, payment, prescription approval, cancellation) and are refused
// on the generic status-change path.
func CanSetStatus(role Role, target OrderStatus) bool {
	allowed, ok := statusChangeRoles[target]
	if !ok {
		return role == RoleAdmin
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
