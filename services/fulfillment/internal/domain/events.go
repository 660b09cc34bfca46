package domain

// Event is a notification raised by an aggregate while it handles an
// operation. Events are collected on the aggregate and drained by the caller
// once the operation has been persisted.
type Event interface {
	EventName() string
}

// Event names.
const (
	EventInventoryUnitCreated      = "inventory_unit.created"
	EventInventoryUnitStateChanged = "inventory_unit.state_changed"

	EventStockItemCreated       = "stock_item.created"
	EventStockAdjusted          = "stock_item.adjusted"
	EventStockReserved          = "stock_item.reserved"
	EventStockReleased          = "stock_item.released"
	EventStockFilled            = "stock_item.filled"
	EventBackorderPolicyChanged = "stock_item.backorder_policy_changed"
	EventStockItemDeleted       = "stock_item.deleted"
	EventStockItemRestored      = "stock_item.restored"

	EventOrderCreated      = "order.created"
	EventOrderUpdated      = "order.updated"
	EventOrderStateChanged = "order.state_changed"
	EventOrderCompleted    = "order.completed"
	EventOrderCanceled     = "order.canceled"
)

type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) record(e Event) {
	r.events = append(r.events, e)
}

func (r *eventRecorder) drain() []Event {
	out := r.events
	r.events = nil
	return out
}

// InventoryUnitCreated is raised when a unit placeholder is created.
type InventoryUnitCreated struct {
	UnitID      string  `json:"unit_id"`
	VariantID   string  `json:"variant_id"`
	StockItemID *string `json:"stock_item_id,omitempty"`
	OrderID     *string `json:"order_id,omitempty"`
	LineItemID  *string `json:"line_item_id,omitempty"`
}

func (InventoryUnitCreated) EventName() string { return EventInventoryUnitCreated }

// InventoryUnitStateChanged is raised on every unit transition that changes its state.
type InventoryUnitStateChanged struct {
	UnitID      string    `json:"unit_id"`
	VariantID   string    `json:"variant_id"`
	StockItemID *string   `json:"stock_item_id,omitempty"`
	OrderID     *string   `json:"order_id,omitempty"`
	From        UnitState `json:"from"`
	To          UnitState `json:"to"`
}

func (InventoryUnitStateChanged) EventName() string { return EventInventoryUnitStateChanged }

// StockItemCreated is raised by NewStockItem.
type StockItemCreated struct {
	StockItemID     string `json:"stock_item_id"`
	VariantID       string `json:"variant_id"`
	StockLocationID string `json:"stock_location_id"`
	QuantityOnHand  int    `json:"quantity_on_hand"`
}

func (StockItemCreated) EventName() string { return EventStockItemCreated }

// StockAdjusted is raised when the physical balance changes by an adjustment.
type StockAdjusted struct {
	StockItemID  string       `json:"stock_item_id"`
	VariantID    string       `json:"variant_id"`
	Quantity     int          `json:"quantity"`
	MovementType MovementType `json:"movement_type"`
	BalanceAfter int          `json:"balance_after"`
	Promoted     int          `json:"promoted"`
}

func (StockAdjusted) EventName() string { return EventStockAdjusted }

// StockReserved is raised when units are promised to an order.
type StockReserved struct {
	StockItemID string `json:"stock_item_id"`
	VariantID   string `json:"variant_id"`
	OrderID     string `json:"order_id"`
	Quantity    int    `json:"quantity"`
	OnHand      int    `json:"on_hand"`
	Backordered int    `json:"backordered"`
}

func (StockReserved) EventName() string { return EventStockReserved }

// StockReleased is raised when an order's promised units are given back.
type StockReleased struct {
	StockItemID string `json:"stock_item_id"`
	VariantID   string `json:"variant_id"`
	OrderID     string `json:"order_id"`
	LineItemID  string `json:"line_item_id,omitempty"`
	Quantity    int    `json:"quantity"`
}

func (StockReleased) EventName() string { return EventStockReleased }

// StockFilled is raised when units leave the location against a shipment.
type StockFilled struct {
	StockItemID string `json:"stock_item_id"`
	VariantID   string `json:"variant_id"`
	ShipmentID  string `json:"shipment_id"`
	Quantity    int    `json:"quantity"`
	FromReserve int    `json:"from_reserve"`
	Reference   string `json:"reference"`
}

func (StockFilled) EventName() string { return EventStockFilled }

// BackorderPolicyChanged is raised by SetBackorderPolicy.
type BackorderPolicyChanged struct {
	StockItemID    string `json:"stock_item_id"`
	VariantID      string `json:"variant_id"`
	Backorderable  bool   `json:"backorderable"`
	BackorderLimit int    `json:"backorder_limit"`
}

func (BackorderPolicyChanged) EventName() string { return EventBackorderPolicyChanged }

// StockItemDeleted is raised when a stock item is soft-deleted.
type StockItemDeleted struct {
	StockItemID string `json:"stock_item_id"`
	VariantID   string `json:"variant_id"`
}

func (StockItemDeleted) EventName() string { return EventStockItemDeleted }

// StockItemRestored is raised when a soft-deleted stock item is restored.
type StockItemRestored struct {
	StockItemID string `json:"stock_item_id"`
	VariantID   string `json:"variant_id"`
}

func (StockItemRestored) EventName() string { return EventStockItemRestored }

// OrderCreated is raised by NewOrder.
type OrderCreated struct {
	OrderID string `json:"order_id"`
	Number  string `json:"number"`
	StoreID string `json:"store_id"`
}

func (OrderCreated) EventName() string { return EventOrderCreated }

// OrderUpdated is raised when line items, addresses, shipping or adjustments change.
type OrderUpdated struct {
	OrderID string `json:"order_id"`
	Change  string `json:"change"`
	Total   int64  `json:"total"`
}

func (OrderUpdated) EventName() string { return EventOrderUpdated }

// OrderStateChanged is raised on every order state transition.
type OrderStateChanged struct {
	OrderID string     `json:"order_id"`
	From    OrderState `json:"from"`
	To      OrderState `json:"to"`
}

func (OrderStateChanged) EventName() string { return EventOrderStateChanged }

// OrderCompleted is raised when an order reaches the Complete state.
type OrderCompleted struct {
	OrderID  string `json:"order_id"`
	Number   string `json:"number"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

func (OrderCompleted) EventName() string { return EventOrderCompleted }

// OrderCanceled is raised when an order is canceled.
type OrderCanceled struct {
	OrderID string `json:"order_id"`
	Number  string `json:"number"`
}

func (OrderCanceled) EventName() string { return EventOrderCanceled }
