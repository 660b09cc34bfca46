package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStockSummary_AggregatesLiveItems(t *testing.T) {
	a := newTestStockItem(t, 10, false, 0)
	require.NoError(t, a.Reserve(4, "order-1", "line-1"))
	b := newTestStockItem(t, 3, false, 0)
	deleted := newTestStockItem(t, 100, false, 0)
	require.NoError(t, deleted.Delete())
	other := newTestStockItem(t, 7, false, 0)
	other.VariantID = "variant-2"

	s := BuildStockSummary("variant-1", []*StockItem{a, b, deleted, other})

	assert.Equal(t, 13, s.TotalOnHand)
	assert.Equal(t, 4, s.TotalReserved)
	assert.Equal(t, 9, s.TotalAvailable)
	assert.Equal(t, 2, s.LocationCount)
	assert.False(t, s.Backorderable)
	assert.True(t, s.IsBuyable)
}

func TestBuildStockSummary_BackorderDebtIsBuyable(t *testing.T) {
	item := newTestStockItem(t, 0, true, 10)
	require.NoError(t, item.Reserve(3, "order-1", "line-1"))

	s := BuildStockSummary("variant-1", []*StockItem{item})

	assert.Equal(t, -3, s.TotalAvailable)
	assert.True(t, s.Backorderable)
	assert.True(t, s.IsBuyable)
}

func TestBuildStockSummary_SoldOut(t *testing.T) {
	item := newTestStockItem(t, 2, false, 0)
	require.NoError(t, item.Reserve(2, "order-1", "line-1"))

	s := BuildStockSummary("variant-1", []*StockItem{item})

	assert.Equal(t, 0, s.TotalAvailable)
	assert.False(t, s.IsBuyable)
}

func TestBuildStockSummary_NoItems(t *testing.T) {
	s := BuildStockSummary("variant-1", nil)
	assert.Equal(t, "variant-1", s.VariantID)
	assert.Zero(t, s.LocationCount)
	assert.False(t, s.IsBuyable)
}
