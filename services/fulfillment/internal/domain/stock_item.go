package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Quantity bounds for a stock item.
const (
	MinQuantity       = -1_000_000
	MaxQuantity       = 1_000_000
	MaxBackorderLimit = 1_000_000
)

// StockItem is the balance of one variant at one stock location. It owns the
// units promised against it and the ledger entries it has appended.
//
// Units holds every unit the item currently tracks in a reserved state plus
// any unit touched since the item was loaded. Movements holds the ledger
// entries appended since load; the full ledger is paged from storage.
type StockItem struct {
	ID               string     `json:"id"`
	VariantID        string     `json:"variant_id"`
	StockLocationID  string     `json:"stock_location_id"`
	SKU              string     `json:"sku"`
	QuantityOnHand   int        `json:"quantity_on_hand"`
	QuantityReserved int        `json:"quantity_reserved"`
	Backorderable    bool       `json:"backorderable"`
	BackorderLimit   int        `json:"backorder_limit"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Units     []*InventoryUnit `json:"-"`
	Movements []*StockMovement `json:"-"`

	events eventRecorder
}

// NewStockItemParams holds the inputs of NewStockItem.
type NewStockItemParams struct {
	VariantID       string
	StockLocationID string
	SKU             string
	InitialQuantity int
	UnitCost        int64
	Backorderable   bool
	BackorderLimit  int
}

// NewStockItem creates a stock item. A positive initial quantity is booked as
// a receipt so the ledger explains the opening balance.
func NewStockItem(p NewStockItemParams) (*StockItem, error) {
	if strings.TrimSpace(p.VariantID) == "" {
		return nil, ErrStockVariantRequired
	}
	if strings.TrimSpace(p.StockLocationID) == "" {
		return nil, ErrStockLocationRequired
	}
	if strings.TrimSpace(p.SKU) == "" {
		return nil, ErrStockSKURequired
	}
	if p.InitialQuantity < 0 || p.InitialQuantity > MaxQuantity {
		return nil, ErrStockQuantityOutOfRange
	}
	if p.BackorderLimit < 0 || p.BackorderLimit > MaxBackorderLimit {
		return nil, ErrStockInvalidBackorderLimit
	}
	if p.UnitCost < 0 {
		return nil, ErrStockInvalidUnitCost
	}

	now := timeNow()
	item := &StockItem{
		ID:              uuid.New().String(),
		VariantID:       p.VariantID,
		StockLocationID: p.StockLocationID,
		SKU:             strings.TrimSpace(p.SKU),
		Backorderable:   p.Backorderable,
		BackorderLimit:  p.BackorderLimit,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.InitialQuantity > 0 {
		item.appendMovement(p.InitialQuantity, MovementReceipt, p.UnitCost, "Initial stock", "")
		item.QuantityOnHand = p.InitialQuantity
	}
	item.events.record(StockItemCreated{
		StockItemID:     item.ID,
		VariantID:       item.VariantID,
		StockLocationID: item.StockLocationID,
		QuantityOnHand:  item.QuantityOnHand,
	})
	return item, nil
}

// CountAvailable is the sellable quantity. Backorderable items report the raw
// difference, which goes negative while backorders are outstanding.
func (i *StockItem) CountAvailable() int {
	available := i.QuantityOnHand - i.QuantityReserved
	if i.Backorderable || available > 0 {
		return available
	}
	return 0
}

// IsDeleted reports whether the item was soft-deleted.
func (i *StockItem) IsDeleted() bool { return i.DeletedAt != nil }

// ----- Ledger operations -----

// AdjustStock changes the physical balance by quantity and books one ledger
// entry. Incoming stock promotes the oldest backordered units first.
func (i *StockItem) AdjustStock(quantity int, movementType MovementType, unitCost int64, reason, reference string) error {
	if err := i.ensureActive(); err != nil {
		return err
	}
	if quantity == 0 {
		return ErrStockInvalidQuantity.WithMessage("adjustment quantity must not be zero")
	}
	if !IsValidMovementType(string(movementType)) {
		return ErrStockInvalidMovementType
	}
	if unitCost < 0 {
		return ErrStockInvalidUnitCost
	}

	newOnHand := i.QuantityOnHand + quantity
	if err := i.checkBalance(newOnHand); err != nil {
		return err
	}
	if !i.Backorderable && newOnHand-i.QuantityReserved < 0 {
		return ErrStockInsufficientStock.WithMessage(
			"adjustment would leave %d on hand against %d reserved", newOnHand, i.QuantityReserved)
	}

	i.appendMovement(quantity, movementType, unitCost, reason, reference)
	i.QuantityOnHand = newOnHand

	promoted := 0
	if quantity > 0 {
		promoted = i.promoteBackorders(quantity)
	}

	i.touch()
	i.events.record(StockAdjusted{
		StockItemID:  i.ID,
		VariantID:    i.VariantID,
		Quantity:     quantity,
		MovementType: movementType,
		BalanceAfter: i.QuantityOnHand,
		Promoted:     promoted,
	})
	return nil
}

// Audit books the difference between a physical count and the recorded
// balance. A count that matches changes nothing.
func (i *StockItem) Audit(physicalCount int, reason, reference string) error {
	if err := i.ensureActive(); err != nil {
		return err
	}
	if physicalCount < 0 {
		return ErrStockInvalidQuantity.WithMessage("physical count must not be negative")
	}
	if strings.TrimSpace(reference) == "" {
		return ErrStockReferenceRequired
	}
	delta := physicalCount - i.QuantityOnHand
	if delta == 0 {
		return nil
	}
	if strings.TrimSpace(reason) == "" {
		reason = "Physical Inventory Audit"
	}
	return i.AdjustStock(delta, MovementAdjustment, 0, reason, reference)
}

// promoteBackorders moves up to n backordered units to OnHand, oldest first.
// The reserved count is unchanged since those units were already promised.
func (i *StockItem) promoteBackorders(n int) int {
	backordered := i.unitsInState(UnitStateBackordered)
	slices.SortStableFunc(backordered, func(a, b *InventoryUnit) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if len(backordered) > n {
		backordered = backordered[:n]
	}
	for _, u := range backordered {
		must(u.Reserve(deref(u.OrderID)))
	}
	return len(backordered)
}

// ----- Reservation operations -----

// Reserve promises quantity units to an order line. Each unit is earmarked
// against physical stock while slack remains and backordered after that, so
// one call can produce a mix of both.
func (i *StockItem) Reserve(quantity int, orderID, lineItemID string) error {
	if err := i.ensureActive(); err != nil {
		return err
	}
	if quantity <= 0 || quantity > MaxQuantity {
		return ErrStockInvalidQuantity.WithMessage("reserve quantity must be between 1 and %d", MaxQuantity)
	}
	if orderID == "" {
		return ErrStockOrderRequired
	}
	if i.QuantityReserved+quantity > MaxQuantity {
		return ErrStockQuantityOutOfRange.WithMessage(
			"reserved quantity would be %d, maximum is %d", i.QuantityReserved+quantity, MaxQuantity)
	}
	remaining := i.QuantityOnHand - i.QuantityReserved - quantity
	switch {
	case !i.Backorderable && remaining < 0:
		return ErrStockInsufficientStock.WithMessage(
			"requested %d, available %d", quantity, i.CountAvailable())
	case i.Backorderable && remaining < -i.BackorderLimit:
		return ErrStockBackorderLimitExceeded.WithMessage(
			"requested %d, available %d, limit is -%d", quantity, i.CountAvailable(), i.BackorderLimit)
	}

	var lineID *string
	if lineItemID != "" {
		lineID = &lineItemID
	}

	onHand, backordered := 0, 0
	for range quantity {
		u := i.newUnit(lineID)
		if i.QuantityOnHand-i.QuantityReserved > 0 {
			must(u.Reserve(orderID))
			onHand++
		} else {
			must(u.Backorder(orderID))
			backordered++
		}
		i.QuantityReserved++
	}

	i.touch()
	i.events.record(StockReserved{
		StockItemID: i.ID,
		VariantID:   i.VariantID,
		OrderID:     orderID,
		Quantity:    quantity,
		OnHand:      onHand,
		Backordered: backordered,
	})
	return nil
}

// Release cancels quantity reserved units of an order. A release larger than
// what the order holds is rejected as a whole.
func (i *StockItem) Release(quantity int, orderID string) error {
	return i.release(quantity, orderID, "")
}

// ReleaseLine cancels quantity reserved units of one order line, leaving the
// order's other lines reserved.
func (i *StockItem) ReleaseLine(quantity int, orderID, lineItemID string) error {
	if lineItemID == "" {
		return ErrStockLineItemRequired
	}
	return i.release(quantity, orderID, lineItemID)
}

func (i *StockItem) release(quantity int, orderID, lineItemID string) error {
	if quantity <= 0 {
		return ErrStockInvalidQuantity.WithMessage("release quantity must be positive")
	}
	if orderID == "" {
		return ErrStockOrderRequired
	}

	// Newest first, so the oldest promises keep their place in line.
	var selected []*InventoryUnit
	for idx := len(i.Units) - 1; idx >= 0 && len(selected) < quantity; idx-- {
		u := i.Units[idx]
		if u.heldBy(orderID, lineItemID) {
			selected = append(selected, u)
		}
	}
	if len(selected) < quantity {
		return ErrStockInvalidRelease.WithMessage(
			"order %s holds %d reserved units, cannot release %d", orderID, len(selected), quantity)
	}

	i.QuantityReserved -= len(selected)
	for _, u := range selected {
		must(u.Cancel())
	}

	i.touch()
	i.events.record(StockReleased{
		StockItemID: i.ID,
		VariantID:   i.VariantID,
		OrderID:     orderID,
		LineItemID:  lineItemID,
		Quantity:    len(selected),
	})
	return nil
}

// ReservedFor returns the number of reserved units held by an order.
func (i *StockItem) ReservedFor(orderID string) int {
	return i.ReservedForLine(orderID, "")
}

// ReservedForLine returns the number of reserved units held by one order
// line. An empty lineItemID counts every line of the order.
func (i *StockItem) ReservedForLine(orderID, lineItemID string) int {
	n := 0
	for _, u := range i.Units {
		if u.heldBy(orderID, lineItemID) {
			n++
		}
	}
	return n
}

// EarmarkedForLine returns how many of a line's units are OnHand here.
func (i *StockItem) EarmarkedForLine(orderID, lineItemID string) int {
	n := 0
	for _, u := range i.Units {
		if u.State == UnitStateOnHand && u.heldBy(orderID, lineItemID) {
			n++
		}
	}
	return n
}

// Fulfill ships quantity units. Earmarked units go first; any remainder is
// sold straight off the shelf and still gets a unit of its own, so the number
// of shipped units always equals the size of the sale entry.
func (i *StockItem) Fulfill(quantity int, shipmentID, reference string, unitCost int64) error {
	return i.fulfill(quantity, "", shipmentID, reference, unitCost)
}

// FulfillOrder ships quantity on-hand units reserved by one order. Unlike
// Fulfill it never sells unreserved stock.
func (i *StockItem) FulfillOrder(orderID string, quantity int, shipmentID, reference string) error {
	if orderID == "" {
		return ErrStockOrderRequired
	}
	return i.fulfill(quantity, orderID, shipmentID, reference, 0)
}

func (i *StockItem) fulfill(quantity int, orderID, shipmentID, reference string, unitCost int64) error {
	if err := i.ensureActive(); err != nil {
		return err
	}
	if quantity <= 0 || quantity > MaxQuantity {
		return ErrStockInvalidQuantity.WithMessage("fulfill quantity must be between 1 and %d", MaxQuantity)
	}
	if strings.TrimSpace(reference) == "" {
		return ErrStockReferenceRequired
	}
	if unitCost < 0 {
		return ErrStockInvalidUnitCost
	}

	selected := i.unitsInState(UnitStateOnHand)
	if orderID != "" {
		selected = slices.DeleteFunc(selected, func(u *InventoryUnit) bool {
			return deref(u.OrderID) != orderID
		})
	}
	slices.SortStableFunc(selected, func(a, b *InventoryUnit) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if len(selected) > quantity {
		selected = selected[:quantity]
	}
	extra := quantity - len(selected)

	if orderID != "" && extra > 0 {
		return ErrStockInsufficientStock.WithMessage(
			"order %s has %d units on hand, cannot ship %d", orderID, len(selected), quantity)
	}
	if !i.Backorderable && i.QuantityOnHand-i.QuantityReserved < extra {
		return ErrStockInsufficientStock.WithMessage(
			"%d units not covered by reservations, %d available", extra, i.CountAvailable())
	}
	newOnHand := i.QuantityOnHand - quantity
	if err := i.checkBalance(newOnHand); err != nil {
		return err
	}

	i.appendMovement(-quantity, MovementSale, unitCost, "", reference)
	i.QuantityReserved -= len(selected)
	i.QuantityOnHand = newOnHand

	for _, u := range selected {
		must(u.Ship(shipmentID))
	}
	for range extra {
		u := i.newUnit(nil)
		must(u.Reserve(""))
		must(u.Ship(shipmentID))
	}

	i.touch()
	i.events.record(StockFilled{
		StockItemID: i.ID,
		VariantID:   i.VariantID,
		ShipmentID:  shipmentID,
		Quantity:    quantity,
		FromReserve: len(selected),
		Reference:   reference,
	})
	return nil
}

// ----- Policy and lifecycle -----

// SetBackorderPolicy changes whether the item may sell below zero and how far.
func (i *StockItem) SetBackorderPolicy(backorderable bool, limit int) error {
	if limit < 0 || limit > MaxBackorderLimit {
		return ErrStockInvalidBackorderLimit
	}
	if backorderable && i.QuantityOnHand < -limit {
		return ErrStockBackorderLimitExceeded.WithMessage(
			"quantity on hand %d is already below -%d", i.QuantityOnHand, limit)
	}
	i.Backorderable = backorderable
	i.BackorderLimit = limit
	i.touch()
	i.events.record(BackorderPolicyChanged{
		StockItemID:    i.ID,
		VariantID:      i.VariantID,
		Backorderable:  backorderable,
		BackorderLimit: limit,
	})
	return nil
}

// Delete soft-deletes the item, keeping its ledger. Deleting twice is a no-op.
func (i *StockItem) Delete() error {
	if i.IsDeleted() {
		return nil
	}
	now := timeNow()
	i.DeletedAt = &now
	i.UpdatedAt = now
	i.events.record(StockItemDeleted{StockItemID: i.ID, VariantID: i.VariantID})
	return nil
}

// Restore undoes Delete. Restoring a live item is a no-op.
func (i *StockItem) Restore() error {
	if !i.IsDeleted() {
		return nil
	}
	i.DeletedAt = nil
	i.touch()
	i.events.record(StockItemRestored{StockItemID: i.ID, VariantID: i.VariantID})
	return nil
}

// PullEvents drains the notifications of the item and of its units.
func (i *StockItem) PullEvents() []Event {
	events := i.events.drain()
	for _, u := range i.Units {
		events = append(events, u.PullEvents()...)
	}
	return events
}

// CheckInvariants verifies the structural rules every operation must keep.
// A failure here means the surrounding orchestration is broken.
func (i *StockItem) CheckInvariants() error {
	reserved := 0
	for _, u := range i.Units {
		if u.State.IsReserved() {
			reserved++
		}
	}
	if reserved != i.QuantityReserved {
		return fmt.Errorf("%w: stock item %s reserved=%d but %d units are reserved",
			ErrInvariantViolation, i.ID, i.QuantityReserved, reserved)
	}
	if i.QuantityOnHand < MinQuantity || i.QuantityOnHand > MaxQuantity {
		return fmt.Errorf("%w: stock item %s on hand %d out of range", ErrInvariantViolation, i.ID, i.QuantityOnHand)
	}
	if i.Backorderable && i.QuantityOnHand < -i.BackorderLimit {
		return fmt.Errorf("%w: stock item %s on hand %d below backorder limit %d",
			ErrInvariantViolation, i.ID, i.QuantityOnHand, i.BackorderLimit)
	}
	for idx, m := range i.Movements {
		if m.BalanceAfter != m.BalanceBefore+m.Quantity {
			return fmt.Errorf("%w: movement %s does not balance", ErrInvariantViolation, m.ID)
		}
		if idx > 0 && i.Movements[idx-1].BalanceAfter != m.BalanceBefore {
			return fmt.Errorf("%w: movement %s does not follow its predecessor", ErrInvariantViolation, m.ID)
		}
	}
	if n := len(i.Movements); n > 0 && i.Movements[n-1].BalanceAfter != i.QuantityOnHand {
		return fmt.Errorf("%w: ledger ends at %d, on hand is %d",
			ErrInvariantViolation, i.Movements[n-1].BalanceAfter, i.QuantityOnHand)
	}
	return nil
}

// ----- helpers -----

func (i *StockItem) ensureActive() error {
	if i.IsDeleted() {
		return ErrStockDeleted
	}
	return nil
}

func (i *StockItem) checkBalance(onHand int) error {
	if onHand < MinQuantity || onHand > MaxQuantity {
		return ErrStockQuantityOutOfRange
	}
	if i.Backorderable && onHand < -i.BackorderLimit {
		return ErrStockBackorderLimitExceeded.WithMessage(
			"quantity on hand would be %d, limit is -%d", onHand, i.BackorderLimit)
	}
	return nil
}

func (i *StockItem) newUnit(lineItemID *string) *InventoryUnit {
	u := NewInventoryUnit(i.VariantID, ptr(i.ID), nil, lineItemID)
	u.StockLocationID = ptr(i.StockLocationID)
	i.Units = append(i.Units, u)
	return u
}

func (i *StockItem) unitsInState(state UnitState) []*InventoryUnit {
	var out []*InventoryUnit
	for _, u := range i.Units {
		if u.State == state && !u.IsDeleted() {
			out = append(out, u)
		}
	}
	return out
}

func (i *StockItem) appendMovement(quantity int, typ MovementType, unitCost int64, reason, reference string) {
	m, err := NewStockMovement(i.ID, quantity, i.QuantityOnHand, typ, unitCost, reason, reference)
	must(err)
	i.Movements = append(i.Movements, m)
}

func (i *StockItem) touch() {
	i.UpdatedAt = timeNow()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
