package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

func TestAllocateOrder_ReservesEveryLine(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	order := newCartOrder(t, map[string]int{"var-1": 2})
	item := newStockItem(t, "stock-1", "var-1", 1, true)

	f.orderRepo.On("GetByID", ctx, order.ID).Return(order, nil)
	f.orderRepo.On("Save", ctx, order).Return(nil)
	f.stockRepo.On("GetByVariantLocation", ctx, "var-1", "loc-1").Return(item, nil)
	f.stockRepo.On("Save", ctx, item).Return(nil)

	got, err := f.orders.Allocate(ctx, order.ID, "loc-1")
	require.NoError(t, err)

	assert.Equal(t, 2, item.QuantityReserved)
	assert.Equal(t, 2, item.ReservedFor(order.ID))
	assert.Equal(t, map[domain.UnitState]int{
		domain.UnitStateOnHand:      1,
		domain.UnitStateBackordered: 1,
	}, unitStates(got))
	for _, u := range got.Units() {
		require.NotNil(t, u.StockItemID)
		assert.Equal(t, "stock-1", *u.StockItemID)
	}
	f.orderRepo.AssertNumberOfCalls(t, "Save", 1)
}

func TestAllocateOrder_NothingToAllocate(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	order := newCartOrder(t, nil)
	f.orderRepo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := f.orders.Allocate(ctx, order.ID, "loc-1")
	require.NoError(t, err)
	f.orderRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.stockRepo.AssertNotCalled(t, "GetByVariantLocation", mock.Anything, mock.Anything, mock.Anything)
}

func TestAllocateOrder_RequiresLocation(t *testing.T) {
	f := newFixture(nil)

	_, err := f.orders.Allocate(context.Background(), "order-1", " ")
	assert.ErrorIs(t, err, domain.ErrStockLocationRequired)
}

func TestAllocateOrder_FailedLineReleasesEarlierReservations(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	order := newCartOrder(t, map[string]int{"var-1": 2})
	_, err := order.AddVariant(*variant("var-2", 500), 3, nil)
	require.NoError(t, err)
	order.PullEvents()

	stocked := newStockItem(t, "stock-1", "var-1", 5, false)
	empty := newStockItem(t, "stock-2", "var-2", 1, false)

	f.orderRepo.On("GetByID", ctx, order.ID).Return(order, nil)
	f.stockRepo.On("GetByVariantLocation", ctx, "var-1", "loc-1").Return(stocked, nil)
	f.stockRepo.On("GetByVariantLocation", ctx, "var-2", "loc-1").Return(empty, nil)
	f.stockRepo.On("GetByID", ctx, "stock-1").Return(stocked, nil)
	f.stockRepo.On("Save", ctx, stocked).Return(nil)

	_, err = f.orders.Allocate(ctx, order.ID, "loc-1")
	assert.ErrorIs(t, err, domain.ErrStockInsufficientStock)
	assert.Contains(t, err.Error(), "allocate line")

	assert.Equal(t, 0, stocked.QuantityReserved)
	assert.Equal(t, 0, stocked.ReservedFor(order.ID))
	assert.Equal(t, 0, empty.QuantityReserved)
	f.stockRepo.AssertNumberOfCalls(t, "Save", 2)
	f.orderRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	assert.Equal(t, map[domain.UnitState]int{domain.UnitStatePending: 5}, unitStates(order))
}

func TestAllocateOrder_CanceledOrder(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	order := newCartOrder(t, map[string]int{"var-1": 1})
	require.NoError(t, order.Cancel())
	f.orderRepo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := f.orders.Allocate(ctx, order.ID, "loc-1")
	assert.ErrorIs(t, err, domain.ErrOrderInvalidStateTransition)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestReleaseOrder_ReleasesAcrossStockItems(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	a := newStockItem(t, "stock-a", "var-1", 5, false)
	require.NoError(t, a.Reserve(2, "order-1", "line-1"))
	require.NoError(t, a.Reserve(1, "order-2", "line-9"))
	b := newStockItem(t, "stock-b", "var-2", 0, true)
	require.NoError(t, b.Reserve(1, "order-1", "line-2"))

	f.stockRepo.On("ListIDsByOrder", ctx, "order-1").Return([]string{"stock-a", "stock-b"}, nil)
	f.stockRepo.On("GetByID", ctx, "stock-a").Return(a, nil)
	f.stockRepo.On("GetByID", ctx, "stock-b").Return(b, nil)
	f.stockRepo.On("Save", ctx, mock.Anything).Return(nil)

	require.NoError(t, f.reservations.ReleaseOrder(ctx, "order-1"))

	assert.Equal(t, 1, a.QuantityReserved)
	assert.Equal(t, 1, a.ReservedFor("order-2"))
	assert.Equal(t, 0, b.QuantityReserved)
}

func TestReleaseOrder_NothingReservedIsNoop(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	a := newStockItem(t, "stock-a", "var-1", 5, false)
	f.stockRepo.On("ListIDsByOrder", ctx, "order-1").Return([]string{"stock-a"}, nil)
	f.stockRepo.On("GetByID", ctx, "stock-a").Return(a, nil)

	require.NoError(t, f.reservations.ReleaseOrder(ctx, "order-1"))
	f.stockRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestReleaseOrder_ReportsFailures(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	f.stockRepo.On("ListIDsByOrder", ctx, "order-1").Return([]string{"gone"}, nil)
	f.stockRepo.On("GetByID", ctx, "gone").Return(nil, apperrors.NotFound("stock item", "gone"))

	err := f.reservations.ReleaseOrder(ctx, "order-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "release order order-1")
}
