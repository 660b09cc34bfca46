package domain

import "time"

// MaxPriceCents caps a unit price so that a full line of MaxQuantity units
// stays well inside int64.
const MaxPriceCents = 1_000_000_000_000

func validPrice(cents int64) bool { return cents >= 0 && cents <= MaxPriceCents }

// VariantSnapshot is the catalog data copied onto a line item when it is
// added. Later catalog edits never reach existing orders.
type VariantSnapshot struct {
	VariantID  string `json:"variant_id"`
	ProductID  string `json:"product_id,omitempty"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	PriceCents int64  `json:"price_cents"`
}

// LineItem is one variant on an order with its allocated units.
type LineItem struct {
	ID                string                `json:"id"`
	OrderID           string                `json:"order_id"`
	VariantID         string                `json:"variant_id"`
	ProductID         string                `json:"product_id,omitempty"`
	Name              string                `json:"name"`
	SKU               string                `json:"sku"`
	PriceCents        int64                 `json:"price_cents"`
	Currency          string                `json:"currency"`
	Quantity          int                   `json:"quantity"`
	IsPriceOverridden bool                  `json:"is_price_overridden"`
	Adjustments       []*LineItemAdjustment `json:"adjustments"`
	Units             []*InventoryUnit      `json:"units"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// Subtotal is price times quantity before adjustments.
func (l *LineItem) Subtotal() int64 {
	return l.PriceCents * int64(l.Quantity)
}

// AdjustmentTotal sums the eligible adjustments of the line.
func (l *LineItem) AdjustmentTotal() int64 {
	var total int64
	for _, a := range l.Adjustments {
		if a.Eligible {
			total += a.AmountCents
		}
	}
	return total
}

// Total is the subtotal plus eligible adjustments.
func (l *LineItem) Total() int64 {
	return l.Subtotal() + l.AdjustmentTotal()
}

// AllocatedCount counts units that are earmarked, backordered or shipped.
func (l *LineItem) AllocatedCount() int {
	n := 0
	for _, u := range l.Units {
		if u.State.IsAllocated() {
			n++
		}
	}
	return n
}

// UnallocatedCount counts units still waiting for a stock item.
func (l *LineItem) UnallocatedCount() int {
	n := 0
	for _, u := range l.Units {
		if u.State == UnitStatePending {
			n++
		}
	}
	return n
}

// StockHolds counts a line's reserved units per stock item.
func (l *LineItem) StockHolds() map[string]int {
	holds := make(map[string]int)
	for _, u := range l.Units {
		if u.State.IsReserved() && u.StockItemID != nil {
			holds[*u.StockItemID]++
		}
	}
	return holds
}

func (l *LineItem) clearPromotionAdjustments() {
	kept := l.Adjustments[:0]
	for _, a := range l.Adjustments {
		if !a.IsPromotion() {
			kept = append(kept, a)
		}
	}
	l.Adjustments = kept
}
