package domain

import "time"

// StockSummary is the per-variant availability projection. It is derived from
// stock items and never written to directly.
type StockSummary struct {
	VariantID      string    `json:"variant_id"`
	TotalOnHand    int       `json:"total_on_hand"`
	TotalReserved  int       `json:"total_reserved"`
	TotalAvailable int       `json:"total_available"`
	Backorderable  bool      `json:"backorderable"`
	IsBuyable      bool      `json:"is_buyable"`
	LocationCount  int       `json:"location_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BuildStockSummary aggregates the live stock items of a variant.
// TotalAvailable is the raw difference across locations and may be negative;
// IsBuyable applies the backorder policy on top of it.
func BuildStockSummary(variantID string, items []*StockItem) *StockSummary {
	s := &StockSummary{VariantID: variantID, UpdatedAt: timeNow()}
	for _, item := range items {
		if item.VariantID != variantID || item.IsDeleted() {
			continue
		}
		s.TotalOnHand += item.QuantityOnHand
		s.TotalReserved += item.QuantityReserved
		s.Backorderable = s.Backorderable || item.Backorderable
		s.LocationCount++
	}
	s.TotalAvailable = s.TotalOnHand - s.TotalReserved
	s.IsBuyable = s.TotalAvailable > 0 || s.Backorderable
	return s
}
