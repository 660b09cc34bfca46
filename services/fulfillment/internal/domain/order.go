package domain

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderNumberPrefix starts every order number.
const OrderNumberPrefix = "R"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Address is a postal address captured on the order.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Zipcode   string `json:"zipcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone,omitempty"`
}

func (a Address) validate() error {
	if strings.TrimSpace(a.FirstName) == "" || strings.TrimSpace(a.Address1) == "" ||
		strings.TrimSpace(a.City) == "" || strings.TrimSpace(a.Zipcode) == "" ||
		strings.TrimSpace(a.Country) == "" {
		return ErrOrderAddressInvalid
	}
	return nil
}

// HistoryEntry records a state change or notable edit.
type HistoryEntry struct {
	FromState OrderState `json:"from_state,omitempty"`
	ToState   OrderState `json:"to_state"`
	Note      string     `json:"note"`
	CreatedAt time.Time  `json:"created_at"`
}

// Order is the checkout aggregate. All money is in minor units of Currency.
type Order struct {
	ID               string             `json:"id"`
	Number           string             `json:"number"`
	State            OrderState         `json:"state"`
	Currency         string             `json:"currency"`
	StoreID          string             `json:"store_id"`
	UserID           *string            `json:"user_id,omitempty"`
	SessionID        *string            `json:"session_id,omitempty"`
	ItemTotal        int64              `json:"item_total"`
	ShipmentTotal    int64              `json:"shipment_total"`
	AdjustmentTotal  int64              `json:"adjustment_total"`
	Total            int64              `json:"total"`
	ShipAddress      *Address           `json:"ship_address,omitempty"`
	BillAddress      *Address           `json:"bill_address,omitempty"`
	ShippingMethodID *string            `json:"shipping_method_id,omitempty"`
	PromotionID      *string            `json:"promotion_id,omitempty"`
	LineItems        []*LineItem        `json:"line_items"`
	Adjustments      []*OrderAdjustment `json:"adjustments"`
	Shipments        []*Shipment        `json:"shipments"`
	Payments         []*Payment         `json:"payments"`
	Histories        []HistoryEntry     `json:"histories"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
	CanceledAt       *time.Time         `json:"canceled_at,omitempty"`
	Version          int64              `json:"version"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`

	events       eventRecorder
	removedUnits []*InventoryUnit
}

// NewOrder starts an order in the Cart state. Exactly one of userID and
// sessionID identifies the customer.
func NewOrder(storeID, currency, userID, sessionID string) (*Order, error) {
	if strings.TrimSpace(storeID) == "" {
		return nil, ErrOrderStoreRequired
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !currencyPattern.MatchString(currency) {
		return nil, ErrOrderInvalidCurrency
	}
	if (userID == "") == (sessionID == "") {
		return nil, ErrOrderInvalidCustomer
	}

	now := timeNow()
	o := &Order{
		ID:          uuid.New().String(),
		Number:      fmt.Sprintf("%s%s%04d", OrderNumberPrefix, now.Format("20060102"), 1000+rand.IntN(9000)), // #nosec G404 -- display number, not a secret
		State:       OrderStateCart,
		Currency:    currency,
		StoreID:     storeID,
		LineItems:   []*LineItem{},
		Adjustments: []*OrderAdjustment{},
		Shipments:   []*Shipment{},
		Payments:    []*Payment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if userID != "" {
		o.UserID = &userID
	} else {
		o.SessionID = &sessionID
	}
	o.addHistory("", OrderStateCart, "Order created")
	o.events.record(OrderCreated{OrderID: o.ID, Number: o.Number, StoreID: storeID})
	return o, nil
}

// ----- State machine -----

// Next advances the order one step. From Confirm it completes the order.
func (o *Order) Next() error {
	return o.fire(OrderEventNext)
}

// Complete checks payment and inventory allocation, then finalizes every unit.
func (o *Order) Complete() error {
	return o.fire(OrderEventComplete)
}

// Cancel cancels the order and its outstanding units. Canceling twice is a
// no-op; a completed order cannot be canceled.
func (o *Order) Cancel() error {
	switch o.State {
	case OrderStateCanceled:
		return nil
	case OrderStateComplete:
		return ErrOrderCannotCancelCompleted
	}
	return o.fire(OrderEventCancel)
}

func (o *Order) fire(event OrderEvent) error {
	t, ok := orderTransitions[o.State][event]
	if !ok {
		return ErrOrderInvalidStateTransition.WithMessage("cannot %s an order in state %s", event, o.State)
	}
	if t.guard != nil {
		if err := t.guard(o); err != nil {
			return err
		}
	}

	from := o.State
	o.State = t.to
	o.touch()
	o.addHistory(from, t.to, fmt.Sprintf("Transitioned from %s to %s", from, t.to))
	o.events.record(OrderStateChanged{OrderID: o.ID, From: from, To: t.to})

	switch t.to {
	case OrderStateComplete:
		o.onComplete()
	case OrderStateCanceled:
		o.onCancel()
	}
	return nil
}

func (o *Order) onComplete() {
	for _, l := range o.LineItems {
		for _, u := range l.Units {
			u.Finalize()
		}
	}
	o.CompletedAt = ptr(o.UpdatedAt)
	o.events.record(OrderCompleted{OrderID: o.ID, Number: o.Number, Total: o.Total, Currency: o.Currency})
}

func (o *Order) onCancel() {
	for _, l := range o.LineItems {
		for _, u := range l.Units {
			if u.State == UnitStatePending || u.State.IsReserved() {
				must(u.Cancel())
			}
		}
	}
	for _, s := range o.Shipments {
		if s.State != ShipmentStateShipped && s.State != ShipmentStateDelivered && s.State != ShipmentStateCanceled {
			must(s.Cancel())
		}
	}
	o.CanceledAt = ptr(o.UpdatedAt)
	o.events.record(OrderCanceled{OrderID: o.ID, Number: o.Number})
}

func (o *Order) requireLineItems() error {
	if len(o.LineItems) == 0 {
		return ErrOrderEmptyCart
	}
	return nil
}

func (o *Order) requireAddresses() error {
	if o.ShipAddress == nil || o.BillAddress == nil {
		return ErrOrderAddressMissing
	}
	return nil
}

func (o *Order) requireShippingMethod() error {
	if o.ShippingMethodID == nil {
		return ErrOrderShippingMethodMissing
	}
	return nil
}

func (o *Order) requireCompletable() error {
	if paid := o.PaymentTotal(); paid < o.Total {
		return ErrOrderInsufficientPayment.WithMessage("paid %d of %d", paid, o.Total)
	}
	for _, l := range o.LineItems {
		if n := l.AllocatedCount(); n < l.Quantity {
			return ErrOrderIncompleteInventoryAllocation.WithMessage(
				"line item %s has %d of %d units allocated", l.SKU, n, l.Quantity)
		}
	}
	return nil
}

// PaymentTotal sums the net captured amount of completed payments.
func (o *Order) PaymentTotal() int64 {
	var paid int64
	for _, p := range o.Payments {
		paid += p.NetCaptured()
	}
	return paid
}

// ----- Line items -----

// AddVariant adds quantity units of a variant, merging into an existing line
// for the same variant. overridePrice replaces the snapshot price of a new
// line and is ignored when merging.
func (o *Order) AddVariant(variant VariantSnapshot, quantity int, overridePrice *int64) (*LineItem, error) {
	if o.State != OrderStateCart {
		return nil, ErrOrderInvalidStateTransition.WithMessage("line items can only be added in the cart state")
	}
	if quantity < 1 || quantity > MaxQuantity {
		return nil, ErrOrderInvalidQuantity
	}
	if strings.TrimSpace(variant.VariantID) == "" || strings.TrimSpace(variant.Name) == "" ||
		strings.TrimSpace(variant.SKU) == "" {
		return nil, ErrOrderVariantRequired
	}
	if !validPrice(variant.PriceCents) || (overridePrice != nil && !validPrice(*overridePrice)) {
		return nil, ErrOrderInvalidPrice
	}

	now := timeNow()
	line := o.findLineByVariant(variant.VariantID)
	if line != nil && line.Quantity+quantity > MaxQuantity {
		return nil, ErrOrderInvalidQuantity.WithMessage("line quantity would exceed %d", MaxQuantity)
	}
	created := line == nil
	if created {
		line = &LineItem{
			ID:          uuid.New().String(),
			OrderID:     o.ID,
			VariantID:   variant.VariantID,
			ProductID:   variant.ProductID,
			Name:        variant.Name,
			SKU:         variant.SKU,
			PriceCents:  variant.PriceCents,
			Currency:    o.Currency,
			Adjustments: []*LineItemAdjustment{},
			Units:       []*InventoryUnit{},
			CreatedAt:   now,
		}
		o.LineItems = append(o.LineItems, line)
	}
	line.Quantity += quantity
	line.UpdatedAt = now

	// Units already on the line keep the price they were added at.
	if created && overridePrice != nil && *overridePrice != line.PriceCents {
		o.addHistory(o.State, o.State, fmt.Sprintf("Price of %s overridden from %d to %d", line.SKU, line.PriceCents, *overridePrice))
		line.PriceCents = *overridePrice
		line.IsPriceOverridden = true
	}

	for range quantity {
		line.Units = append(line.Units, NewInventoryUnit(line.VariantID, nil, ptr(o.ID), ptr(line.ID)))
	}

	o.RecalculateTotals()
	o.events.record(OrderUpdated{OrderID: o.ID, Change: "line_item_added", Total: o.Total})
	return line, nil
}

// RemoveLineItem drops a line and cancels its units.
func (o *Order) RemoveLineItem(lineItemID string) error {
	if o.State != OrderStateCart {
		return ErrOrderInvalidStateTransition.WithMessage("line items can only be removed in the cart state")
	}
	idx := -1
	for i, l := range o.LineItems {
		if l.ID == lineItemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrOrderLineItemNotFound
	}

	for _, u := range o.LineItems[idx].Units {
		if u.State != UnitStateShipped {
			must(u.Cancel())
		}
	}
	o.removedUnits = append(o.removedUnits, o.LineItems[idx].Units...)
	o.LineItems = append(o.LineItems[:idx], o.LineItems[idx+1:]...)

	o.RecalculateTotals()
	o.events.record(OrderUpdated{OrderID: o.ID, Change: "line_item_removed", Total: o.Total})
	return nil
}

// LineItem returns the line with the given id.
func (o *Order) LineItem(id string) (*LineItem, error) {
	for _, l := range o.LineItems {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, ErrOrderLineItemNotFound
}

// ApplyAllocation mirrors a stock reservation onto the line's placeholder
// units: onHand of them become OnHand and backordered become Backordered.
func (o *Order) ApplyAllocation(lineItemID, stockItemID string, onHand, backordered int) error {
	if o.State.IsTerminal() {
		return ErrOrderInvalidStateTransition.WithMessage("cannot allocate inventory for a %s order", o.State)
	}
	line, err := o.LineItem(lineItemID)
	if err != nil {
		return err
	}
	if onHand < 0 || backordered < 0 || onHand+backordered > line.UnallocatedCount() {
		return ErrOrderAllocationExceedsQuantity
	}

	for _, u := range line.Units {
		if onHand+backordered == 0 {
			break
		}
		if u.State != UnitStatePending {
			continue
		}
		u.StockItemID = ptr(stockItemID)
		if onHand > 0 {
			must(u.Reserve(o.ID))
			onHand--
		} else {
			must(u.Backorder(o.ID))
			backordered--
		}
	}
	o.touch()
	o.events.record(OrderUpdated{OrderID: o.ID, Change: "inventory_allocated", Total: o.Total})
	return nil
}

// PromoteAllocation marks backordered units of a line as OnHand once the
// stock item reports that many of the line's units earmarked there.
// It returns the number of units promoted.
func (o *Order) PromoteAllocation(lineItemID, stockItemID string, earmarked int) (int, error) {
	line, err := o.LineItem(lineItemID)
	if err != nil {
		return 0, err
	}
	onHand := 0
	var backordered []*InventoryUnit
	for _, u := range line.Units {
		if deref(u.StockItemID) != stockItemID {
			continue
		}
		switch u.State {
		case UnitStateOnHand:
			onHand++
		case UnitStateBackordered:
			backordered = append(backordered, u)
		}
	}
	n := min(max(0, earmarked-onHand), len(backordered))
	for _, u := range backordered[:n] {
		must(u.Reserve(o.ID))
	}
	if n > 0 {
		o.touch()
		o.events.record(OrderUpdated{OrderID: o.ID, Change: "allocation_promoted", Total: o.Total})
	}
	return n, nil
}

// ----- Addresses and shipping -----

// SetAddresses records both addresses. Allowed until the order leaves the
// Address state.
func (o *Order) SetAddresses(ship, bill Address) error {
	if !o.State.NotAfter(OrderStateAddress) {
		return ErrOrderInvalidStateTransition.WithMessage("addresses cannot change in state %s", o.State)
	}
	if err := ship.validate(); err != nil {
		return err
	}
	if err := bill.validate(); err != nil {
		return err
	}
	o.ShipAddress = &ship
	o.BillAddress = &bill
	o.touch()
	o.events.record(OrderUpdated{OrderID: o.ID, Change: "addresses_set", Total: o.Total})
	return nil
}

// SetShippingMethod selects a shipping method and its cost. Allowed until
// the order leaves the Delivery state.
func (o *Order) SetShippingMethod(shippingMethodID string, costCents int64) error {
	if !o.State.NotAfter(OrderStateDelivery) {
		return ErrOrderInvalidStateTransition.WithMessage("shipping method cannot change in state %s", o.State)
	}
	if strings.TrimSpace(shippingMethodID) == "" {
		return ErrOrderShippingMethodRequired
	}
	if costCents < 0 {
		return ErrOrderInvalidShippingCost
	}
	o.ShippingMethodID = &shippingMethodID
	o.ShipmentTotal = costCents
	o.RecalculateTotals()
	o.events.record(OrderUpdated{OrderID: o.ID, Change: "shipping_method_set", Total: o.Total})
	return nil
}

// AddShipment opens a shipment and assigns every allocated unit that is not
// yet on a shipment to it.
func (o *Order) AddShipment(stockLocationID string) (*Shipment, error) {
	if o.State.IsTerminal() && o.State != OrderStateComplete {
		return nil, ErrOrderInvalidStateTransition.WithMessage("cannot add a shipment to a %s order", o.State)
	}
	s, err := NewShipment(o.ID, stockLocationID)
	if err != nil {
		return nil, err
	}
	for _, l := range o.LineItems {
		for _, u := range l.Units {
			if u.ShipmentID == nil && u.State.IsReserved() {
				u.ShipmentID = ptr(s.ID)
			}
		}
	}
	o.Shipments = append(o.Shipments, s)
	o.touch()
	return s, nil
}

// Shipment returns the shipment with the given id.
func (o *Order) Shipment(id string) (*Shipment, error) {
	for _, s := range o.Shipments {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, ErrOrderShipmentNotFound
}

// ShipShipment hands a shipment to the carrier and ships its on-hand units.
// Backordered units stay behind for a later shipment.
func (o *Order) ShipShipment(shipmentID, trackingNumber string) error {
	s, err := o.Shipment(shipmentID)
	if err != nil {
		return err
	}
	if err := s.Ship(trackingNumber); err != nil {
		return err
	}
	for _, l := range o.LineItems {
		for _, u := range l.Units {
			if u.ShipmentID == nil || *u.ShipmentID != shipmentID {
				continue
			}
			if u.State == UnitStateOnHand {
				must(u.Ship(shipmentID))
			} else {
				u.ShipmentID = nil
			}
		}
	}
	o.touch()
	o.events.record(OrderUpdated{OrderID: o.ID, Change: "shipment_shipped", Total: o.Total})
	return nil
}

// ----- Payments -----

// AddPayment records a pending payment in the order currency.
func (o *Order) AddPayment(amountCents int64, method string) (*Payment, error) {
	if o.State.IsTerminal() {
		return nil, ErrOrderInvalidStateTransition.WithMessage("cannot add a payment to a %s order", o.State)
	}
	p, err := NewPayment(o.ID, amountCents, o.Currency, method)
	if err != nil {
		return nil, err
	}
	o.Payments = append(o.Payments, p)
	o.touch()
	return p, nil
}

// Payment returns the payment with the given id.
func (o *Order) Payment(id string) (*Payment, error) {
	for _, p := range o.Payments {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrOrderPaymentNotFound
}

// OpenPaymentFor returns the first capturable payment of exactly amountCents.
func (o *Order) OpenPaymentFor(amountCents int64) *Payment {
	for _, p := range o.Payments {
		if p.State.IsOpen() && p.AmountCents == amountCents {
			return p
		}
	}
	return nil
}

// ----- Adjustments and promotions -----

// AddAdjustment adds a manual order adjustment such as tax.
func (o *Order) AddAdjustment(scope AdjustmentScope, amountCents int64, description string, mandatory bool) (*OrderAdjustment, error) {
	if o.State.IsTerminal() {
		return nil, ErrOrderInvalidStateTransition.WithMessage("cannot adjust a %s order", o.State)
	}
	adj, err := NewOrderAdjustment(o.ID, scope, amountCents, description, nil, mandatory)
	if err != nil {
		return nil, err
	}
	o.Adjustments = append(o.Adjustments, adj)
	o.RecalculateTotals()
	o.events.record(OrderUpdated{OrderID: o.ID, Change: "adjustment_added", Total: o.Total})
	return adj, nil
}

// ApplyPromotion replaces any previously applied promotion with the
// adjustments calc proposes for promo.
func (o *Order) ApplyPromotion(promo *Promotion, calc PromotionCalculator) error {
	if o.State.IsTerminal() {
		return ErrOrderInvalidStateTransition.WithMessage("cannot apply a promotion to a %s order", o.State)
	}
	if promo == nil {
		return ErrOrderPromotionRequired
	}
	if calc == nil {
		return ErrOrderCalculatorRequired
	}
	proposals, err := calc.Calculate(promo, o)
	if err != nil {
		return err
	}

	promoID := promo.ID
	var orderAdjs []*OrderAdjustment
	lineAdjs := make(map[*LineItem][]*LineItemAdjustment)
	for _, p := range proposals {
		if p.LineItemID != "" {
			line, err := o.LineItem(p.LineItemID)
			if err != nil {
				return err
			}
			adj, err := NewLineItemAdjustment(line.ID, p.AmountCents, p.Description, ptr(promoID))
			if err != nil {
				return err
			}
			lineAdjs[line] = append(lineAdjs[line], adj)
			continue
		}
		scope := p.Scope
		if scope == "" {
			scope = AdjustmentScopeOrder
		}
		adj, err := NewOrderAdjustment(o.ID, scope, p.AmountCents, p.Description, ptr(promoID), false)
		if err != nil {
			return err
		}
		orderAdjs = append(orderAdjs, adj)
	}

	o.clearPromotionAdjustments()
	o.Adjustments = append(o.Adjustments, orderAdjs...)
	for line, adjs := range lineAdjs {
		line.Adjustments = append(line.Adjustments, adjs...)
	}
	o.PromotionID = ptr(promoID)
	o.addHistory(o.State, o.State, fmt.Sprintf("Promotion %s applied", promo.Code))
	o.RecalculateTotals()
	o.events.record(OrderUpdated{OrderID: o.ID, Change: "promotion_applied", Total: o.Total})
	return nil
}

// RemovePromotion clears every promotion adjustment.
func (o *Order) RemovePromotion() error {
	if o.State.IsTerminal() {
		return ErrOrderInvalidStateTransition.WithMessage("cannot remove a promotion from a %s order", o.State)
	}
	if o.PromotionID == nil {
		return nil
	}
	o.clearPromotionAdjustments()
	o.PromotionID = nil
	o.addHistory(o.State, o.State, "Promotion removed")
	o.RecalculateTotals()
	o.events.record(OrderUpdated{OrderID: o.ID, Change: "promotion_removed", Total: o.Total})
	return nil
}

func (o *Order) clearPromotionAdjustments() {
	kept := o.Adjustments[:0]
	for _, a := range o.Adjustments {
		if !a.IsPromotion() {
			kept = append(kept, a)
		}
	}
	o.Adjustments = kept
	for _, l := range o.LineItems {
		l.clearPromotionAdjustments()
	}
}

// RecalculateTotals recomputes every money total from its components. Every
// mutation that touches lines, adjustments or shipping calls it.
func (o *Order) RecalculateTotals() {
	var items, adjustments int64
	for _, l := range o.LineItems {
		items += l.Total()
	}
	for _, a := range o.Adjustments {
		if a.Eligible {
			adjustments += a.AmountCents
		}
	}
	o.ItemTotal = items
	o.AdjustmentTotal = adjustments
	o.Total = max(0, items+adjustments+o.ShipmentTotal)
	o.touch()
}

// Units returns every unit on every line.
func (o *Order) Units() []*InventoryUnit {
	var out []*InventoryUnit
	for _, l := range o.LineItems {
		out = append(out, l.Units...)
	}
	return out
}

// PullEvents drains the notifications of the order and its units.
func (o *Order) PullEvents() []Event {
	events := o.events.drain()
	for _, u := range o.Units() {
		events = append(events, u.PullEvents()...)
	}
	for _, u := range o.removedUnits {
		events = append(events, u.PullEvents()...)
	}
	o.removedUnits = nil
	return events
}

func (o *Order) findLineByVariant(variantID string) *LineItem {
	for _, l := range o.LineItems {
		if l.VariantID == variantID {
			return l
		}
	}
	return nil
}

func (o *Order) addHistory(from, to OrderState, note string) {
	o.Histories = append(o.Histories, HistoryEntry{
		FromState: from,
		ToState:   to,
		Note:      note,
		CreatedAt: timeNow(),
	})
}

func (o *Order) touch() {
	o.UpdatedAt = timeNow()
}
