package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnitState is the fulfillment state of a single inventory unit.
type UnitState string

// Inventory unit states.
const (
	UnitStatePending     UnitState = "pending"
	UnitStateOnHand      UnitState = "on_hand"
	UnitStateBackordered UnitState = "backordered"
	UnitStateShipped     UnitState = "shipped"
	UnitStateReturned    UnitState = "returned"
	UnitStateCanceled    UnitState = "canceled"
	UnitStateDamaged     UnitState = "damaged"
)

// ValidUnitStates returns all valid inventory unit states.
func ValidUnitStates() []UnitState {
	return []UnitState{
		UnitStatePending,
		UnitStateOnHand,
		UnitStateBackordered,
		UnitStateShipped,
		UnitStateReturned,
		UnitStateCanceled,
		UnitStateDamaged,
	}
}

// IsValidUnitState checks if a unit state string is valid.
func IsValidUnitState(s string) bool {
	for _, v := range ValidUnitStates() {
		if string(v) == s {
			return true
		}
	}
	return false
}

// IsReserved reports whether a unit in this state counts towards a stock
// item's reserved quantity.
func (s UnitState) IsReserved() bool {
	return s == UnitStateOnHand || s == UnitStateBackordered
}

// IsAllocated reports whether a unit in this state satisfies its line item.
func (s UnitState) IsAllocated() bool {
	return s.IsReserved() || s == UnitStateShipped
}

// InventoryUnit tracks one physical or promised item. StockItemID is nil while
// the unit only hangs off an order line.
type InventoryUnit struct {
	ID              string     `json:"id"`
	VariantID       string     `json:"variant_id"`
	StockItemID     *string    `json:"stock_item_id,omitempty"`
	StockLocationID *string    `json:"stock_location_id,omitempty"`
	OrderID         *string    `json:"order_id,omitempty"`
	LineItemID      *string    `json:"line_item_id,omitempty"`
	ShipmentID      *string    `json:"shipment_id,omitempty"`
	State           UnitState  `json:"state"`
	Pending         bool       `json:"pending"`
	SerialNumber    string     `json:"serial_number,omitempty"`
	LotNumber       string     `json:"lot_number,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	events eventRecorder
}

// NewInventoryUnit creates a unit in the Pending state.
func NewInventoryUnit(variantID string, stockItemID, orderID, lineItemID *string) *InventoryUnit {
	now := timeNow()
	u := &InventoryUnit{
		ID:          uuid.New().String(),
		VariantID:   variantID,
		StockItemID: stockItemID,
		OrderID:     orderID,
		LineItemID:  lineItemID,
		State:       UnitStatePending,
		Pending:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	u.events.record(InventoryUnitCreated{
		UnitID:      u.ID,
		VariantID:   variantID,
		StockItemID: stockItemID,
		OrderID:     orderID,
		LineItemID:  lineItemID,
	})
	return u
}

// Reserve earmarks the unit against physical stock. An empty orderID leaves
// the unit without an order, as happens for direct sales.
func (u *InventoryUnit) Reserve(orderID string) error {
	if u.State != UnitStatePending && u.State != UnitStateBackordered {
		return ErrUnitInvalidStateTransition.WithMessage("cannot reserve unit in state %s", u.State)
	}
	if orderID != "" {
		u.OrderID = &orderID
	}
	u.transition(UnitStateOnHand)
	return nil
}

// Backorder promises the unit without physical stock behind it.
func (u *InventoryUnit) Backorder(orderID string) error {
	if u.State != UnitStatePending {
		return ErrUnitInvalidStateTransition.WithMessage("cannot backorder unit in state %s", u.State)
	}
	if orderID != "" {
		u.OrderID = &orderID
	}
	u.transition(UnitStateBackordered)
	return nil
}

// Ship marks an on-hand unit as having left the location.
func (u *InventoryUnit) Ship(shipmentID string) error {
	if u.State != UnitStateOnHand {
		return ErrUnitInvalidStateTransition.WithMessage("cannot ship unit in state %s", u.State)
	}
	if shipmentID != "" {
		u.ShipmentID = &shipmentID
	}
	u.Pending = false
	u.transition(UnitStateShipped)
	return nil
}

// Cancel withdraws the unit. Shipped units must be returned instead.
func (u *InventoryUnit) Cancel() error {
	if u.State == UnitStateShipped {
		return ErrUnitAlreadyShipped
	}
	u.Pending = false
	u.transition(UnitStateCanceled)
	return nil
}

// Return records a shipped unit coming back.
func (u *InventoryUnit) Return() error {
	if u.State != UnitStateShipped {
		return ErrUnitInvalidStateTransition.WithMessage("cannot return unit in state %s", u.State)
	}
	u.transition(UnitStateReturned)
	return nil
}

// MarkAsDamaged is allowed from every state.
func (u *InventoryUnit) MarkAsDamaged() {
	u.transition(UnitStateDamaged)
}

// Finalize clears the pending flag once the owning order completes. The
// state is left untouched.
func (u *InventoryUnit) Finalize() {
	if !u.Pending {
		return
	}
	u.Pending = false
	u.UpdatedAt = timeNow()
}

// SetSerialNumber records the manufacturer serial of the unit.
func (u *InventoryUnit) SetSerialNumber(serial string) {
	u.SerialNumber = serial
	u.UpdatedAt = timeNow()
}

// SetLotNumber records the production lot of the unit.
func (u *InventoryUnit) SetLotNumber(lot string) {
	u.LotNumber = lot
	u.UpdatedAt = timeNow()
}

// Delete soft-deletes the unit. Units are never removed from storage.
func (u *InventoryUnit) Delete() {
	if u.DeletedAt != nil {
		return
	}
	now := timeNow()
	u.DeletedAt = &now
	u.UpdatedAt = now
}

// IsDeleted reports whether the unit was soft-deleted.
func (u *InventoryUnit) IsDeleted() bool { return u.DeletedAt != nil }

// heldBy reports whether the unit is reserved for the order and, when
// lineItemID is set, for that line.
func (u *InventoryUnit) heldBy(orderID, lineItemID string) bool {
	if !u.State.IsReserved() || deref(u.OrderID) != orderID {
		return false
	}
	return lineItemID == "" || deref(u.LineItemID) == lineItemID
}

// PullEvents drains the notifications recorded by the unit.
func (u *InventoryUnit) PullEvents() []Event {
	return u.events.drain()
}

func (u *InventoryUnit) transition(to UnitState) {
	from := u.State
	u.State = to
	u.UpdatedAt = timeNow()
	if from == to {
		return
	}
	u.events.record(InventoryUnitStateChanged{
		UnitID:      u.ID,
		VariantID:   u.VariantID,
		StockItemID: u.StockItemID,
		OrderID:     u.OrderID,
		From:        from,
		To:          to,
	})
}
