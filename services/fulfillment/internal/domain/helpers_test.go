package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTickingClock makes every timeNow call one second later than the last.
func useTickingClock(t *testing.T) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var n int
	orig := timeNow
	timeNow = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	t.Cleanup(func() { timeNow = orig })
}

func newTestStockItem(t *testing.T, onHand int, backorderable bool, limit int) *StockItem {
	t.Helper()
	item, err := NewStockItem(NewStockItemParams{
		VariantID:       "variant-1",
		StockLocationID: "location-1",
		SKU:             "SKU-001",
		InitialQuantity: onHand,
		UnitCost:        500,
		Backorderable:   backorderable,
		BackorderLimit:  limit,
	})
	require.NoError(t, err)
	item.PullEvents()
	return item
}

func countUnits(item *StockItem, state UnitState) int {
	n := 0
	for _, u := range item.Units {
		if u.State == state {
			n++
		}
	}
	return n
}

// assertStockInvariants checks the reservation count and availability rules.
func assertStockInvariants(t *testing.T, item *StockItem) {
	t.Helper()
	reserved := countUnits(item, UnitStateOnHand) + countUnits(item, UnitStateBackordered)
	assert.Equal(t, reserved, item.QuantityReserved, "reserved count must match reserved units")

	raw := item.QuantityOnHand - item.QuantityReserved
	if item.Backorderable {
		assert.Equal(t, raw, item.CountAvailable())
	} else {
		assert.Equal(t, max(0, raw), item.CountAvailable())
	}
	assert.NoError(t, item.CheckInvariants())
}

func testVariant(id string, price int64) VariantSnapshot {
	return VariantSnapshot{
		VariantID:  id,
		ProductID:  "product-" + id,
		Name:       "Variant " + id,
		SKU:        "SKU-" + id,
		PriceCents: price,
	}
}

func testAddress() Address {
	return Address{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Address1:  "1 Main St",
		City:      "London",
		Zipcode:   "N1 9GU",
		Country:   "GB",
	}
}

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	o, err := NewOrder("store-1", "usd", "user-1", "")
	require.NoError(t, err)
	return o
}

// walkToConfirm moves an order with at least one line item to Confirm.
func walkToConfirm(t *testing.T, o *Order) {
	t.Helper()
	require.NoError(t, o.Next())
	require.NoError(t, o.SetAddresses(testAddress(), testAddress()))
	require.NoError(t, o.Next())
	require.NoError(t, o.SetShippingMethod("ups-ground", 0))
	require.NoError(t, o.Next())
	require.NoError(t, o.Next())
	require.Equal(t, OrderStateConfirm, o.State)
}

func eventNames(events []Event) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.EventName())
	}
	return names
}
