package domain

// OrderState is a step of the checkout lifecycle.
type OrderState string

// Order states in lifecycle order. Complete and Canceled are terminal.
const (
	OrderStateCart     OrderState = "cart"
	OrderStateAddress  OrderState = "address"
	OrderStateDelivery OrderState = "delivery"
	OrderStatePayment  OrderState = "payment"
	OrderStateConfirm  OrderState = "confirm"
	OrderStateComplete OrderState = "complete"
	OrderStateCanceled OrderState = "canceled"
)

// OrderEvent triggers an order state transition.
type OrderEvent string

// Order transition triggers.
const (
	OrderEventNext     OrderEvent = "next"
	OrderEventComplete OrderEvent = "complete"
	OrderEventCancel   OrderEvent = "cancel"
)

var orderStateRank = map[OrderState]int{
	OrderStateCart:     0,
	OrderStateAddress:  1,
	OrderStateDelivery: 2,
	OrderStatePayment:  3,
	OrderStateConfirm:  4,
	OrderStateComplete: 5,
	OrderStateCanceled: 6,
}

// ValidOrderStates returns all valid order states.
func ValidOrderStates() []OrderState {
	return []OrderState{
		OrderStateCart,
		OrderStateAddress,
		OrderStateDelivery,
		OrderStatePayment,
		OrderStateConfirm,
		OrderStateComplete,
		OrderStateCanceled,
	}
}

// IsValidOrderState checks if a state string is valid.
func IsValidOrderState(s string) bool {
	_, ok := orderStateRank[OrderState(s)]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderState) IsTerminal() bool {
	return s == OrderStateComplete || s == OrderStateCanceled
}

// NotAfter reports whether s is at or before other in the checkout sequence.
// Terminal states are never before anything.
func (s OrderState) NotAfter(other OrderState) bool {
	return !s.IsTerminal() && orderStateRank[s] <= orderStateRank[other]
}

type orderTransition struct {
	to    OrderState
	guard func(*Order) error
}

// orderTransitions maps (state, event) to the target state and its entry guard.
var orderTransitions = map[OrderState]map[OrderEvent]orderTransition{
	OrderStateCart: {
		OrderEventNext:   {to: OrderStateAddress, guard: (*Order).requireLineItems},
		OrderEventCancel: {to: OrderStateCanceled},
	},
	OrderStateAddress: {
		OrderEventNext:   {to: OrderStateDelivery, guard: (*Order).requireAddresses},
		OrderEventCancel: {to: OrderStateCanceled},
	},
	OrderStateDelivery: {
		OrderEventNext:   {to: OrderStatePayment, guard: (*Order).requireShippingMethod},
		OrderEventCancel: {to: OrderStateCanceled},
	},
	OrderStatePayment: {
		OrderEventNext:   {to: OrderStateConfirm, guard: (*Order).requireLineItems},
		OrderEventCancel: {to: OrderStateCanceled},
	},
	OrderStateConfirm: {
		OrderEventNext:     {to: OrderStateComplete, guard: (*Order).requireCompletable},
		OrderEventComplete: {to: OrderStateComplete, guard: (*Order).requireCompletable},
		OrderEventCancel:   {to: OrderStateCanceled},
	},
	OrderStateComplete: {},
	OrderStateCanceled: {},
}

// CanTransition reports whether event is defined for state, ignoring guards.
func CanTransition(state OrderState, event OrderEvent) bool {
	_, ok := orderTransitions[state][event]
	return ok
}

// TransitionTarget returns the state event leads to from state.
func TransitionTarget(state OrderState, event OrderEvent) (OrderState, bool) {
	t, ok := orderTransitions[state][event]
	return t.to, ok
}
