package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

func eventNames(events []domain.Event) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.EventName())
	}
	return names
}

func TestCreateStockItem_Success(t *testing.T) {
	repo := new(mockStockRepo)
	pub := new(mockStockPublisher)
	svc := NewInventoryService(repo, pub, newTestLogger(), 3)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.StockItem")).Return(nil)
	pub.On("PublishStockEvents", ctx, mock.AnythingOfType("*domain.StockItem"),
		mock.MatchedBy(func(events []domain.Event) bool {
			return len(events) == 1 && events[0].EventName() == domain.EventStockItemCreated
		})).Return(nil)

	item, err := svc.CreateStockItem(ctx, domain.NewStockItemParams{
		VariantID:       "var-1",
		StockLocationID: "loc-1",
		SKU:             "SKU-1",
		InitialQuantity: 10,
		UnitCost:        250,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, item.QuantityOnHand)
	require.Len(t, item.Movements, 1)
	assert.Equal(t, domain.MovementReceipt, item.Movements[0].Type)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestCreateStockItem_InvalidInput(t *testing.T) {
	repo := new(mockStockRepo)
	svc := NewInventoryService(repo, new(mockStockPublisher), newTestLogger(), 3)

	item, err := svc.CreateStockItem(context.Background(), domain.NewStockItemParams{
		VariantID:       "var-1",
		StockLocationID: "loc-1",
	})
	assert.Nil(t, item)
	assert.ErrorIs(t, err, domain.ErrStockSKURequired)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateStockItem_RepositoryError(t *testing.T) {
	repo := new(mockStockRepo)
	pub := new(mockStockPublisher)
	svc := NewInventoryService(repo, pub, newTestLogger(), 3)
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return(apperrors.Conflict("StockItem.AlreadyExists", "exists"))

	_, err := svc.CreateStockItem(ctx, domain.NewStockItemParams{VariantID: "v", StockLocationID: "l", SKU: "S"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	pub.AssertNotCalled(t, "PublishStockEvents", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdjustStock_PromotesBackordersAndPublishes(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	item := newStockItem(t, "stock-1", "var-1", 0, true)
	require.NoError(t, item.Reserve(2, "order-1", "line-1"))
	item.PullEvents()

	f.stockRepo.On("GetByID", ctx, "stock-1").Return(item, nil)
	f.stockRepo.On("Save", ctx, item).Return(nil)

	got, err := f.inventory.AdjustStock(ctx, "stock-1", AdjustStockInput{
		Quantity:     1,
		MovementType: domain.MovementReceipt,
		UnitCost:     100,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.QuantityOnHand)
	assert.Equal(t, 2, got.QuantityReserved)
	assert.Equal(t, -1, got.CountAvailable())

	f.stockPublisher.AssertCalled(t, "PublishStockEvents", ctx, item,
		mock.MatchedBy(func(events []domain.Event) bool {
			names := eventNames(events)
			return slices.Contains(names, domain.EventStockAdjusted) &&
				slices.Contains(names, domain.EventInventoryUnitStateChanged)
		}))
}

func TestReserve_RetriesOnVersionConflict(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	first := newStockItem(t, "stock-1", "var-1", 5, false)
	second := newStockItem(t, "stock-1", "var-1", 4, false)

	f.stockRepo.On("GetByID", ctx, "stock-1").Return(first, nil).Once()
	f.stockRepo.On("GetByID", ctx, "stock-1").Return(second, nil).Once()
	f.stockRepo.On("Save", ctx, first).Return(apperrors.ErrVersionConflict).Once()
	f.stockRepo.On("Save", ctx, second).Return(nil).Once()

	item, err := f.inventory.Reserve(ctx, "stock-1", 2, "order-1", "line-1")
	require.NoError(t, err)
	assert.Same(t, second, item)
	assert.Equal(t, 2, item.QuantityReserved)
	assert.Equal(t, 2, item.CountAvailable())
	f.stockRepo.AssertNumberOfCalls(t, "Save", 2)
	f.stockPublisher.AssertNumberOfCalls(t, "PublishStockEvents", 1)
}

func TestReserve_GivesUpAfterMaxAttempts(t *testing.T) {
	repo := new(mockStockRepo)
	svc := NewInventoryService(repo, new(mockStockPublisher), newTestLogger(), 2)
	ctx := context.Background()

	repo.On("GetByID", ctx, "stock-1").Return(newStockItem(t, "stock-1", "var-1", 5, false), nil).Once()
	repo.On("GetByID", ctx, "stock-1").Return(newStockItem(t, "stock-1", "var-1", 5, false), nil).Once()
	repo.On("Save", ctx, mock.Anything).Return(apperrors.ErrVersionConflict)

	item, err := svc.Reserve(ctx, "stock-1", 1, "order-1", "line-1")
	assert.Nil(t, item)
	assert.ErrorIs(t, err, apperrors.ErrVersionConflict)
	assert.Contains(t, err.Error(), "after 2 attempts")
	repo.AssertNumberOfCalls(t, "Save", 2)
}

func TestReserve_InsufficientStock_NothingSaved(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	item := newStockItem(t, "stock-1", "var-1", 10, false)
	f.stockRepo.On("GetByID", ctx, "stock-1").Return(item, nil)

	_, err := f.inventory.Reserve(ctx, "stock-1", 12, "order-1", "line-1")
	assert.ErrorIs(t, err, domain.ErrStockInsufficientStock)
	assert.Equal(t, 10, item.QuantityOnHand)
	assert.Equal(t, 0, item.QuantityReserved)
	f.stockRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestFulfill_ReferenceRequired(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	f.stockRepo.On("GetByID", ctx, "stock-1").Return(newStockItem(t, "stock-1", "var-1", 3, false), nil)

	_, err := f.inventory.Fulfill(ctx, "stock-1", 1, "ship-1", " ", 0)
	assert.ErrorIs(t, err, domain.ErrStockReferenceRequired)
	f.stockRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestGetStockItem_NotFound(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	f.stockRepo.On("GetByID", ctx, "missing").Return(nil, apperrors.NotFound("stock item", "missing"))

	_, err := f.inventory.GetStockItem(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteStockItem_Twice_SavesOnce(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	item := newStockItem(t, "stock-1", "var-1", 1, false)
	f.stockRepo.On("GetByID", ctx, "stock-1").Return(item, nil)
	f.stockRepo.On("Save", ctx, item).Return(nil).Once()

	_, err := f.inventory.DeleteStockItem(ctx, "stock-1")
	require.NoError(t, err)
	assert.True(t, item.IsDeleted())

	_, err = f.inventory.DeleteStockItem(ctx, "stock-1")
	require.NoError(t, err)
	f.stockRepo.AssertNumberOfCalls(t, "Save", 1)
}

func TestRestoreStockItem_LiveItemIsNoop(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	f.stockRepo.On("GetByID", ctx, "stock-1").Return(newStockItem(t, "stock-1", "var-1", 1, false), nil)

	_, err := f.inventory.RestoreStockItem(ctx, "stock-1")
	require.NoError(t, err)
	f.stockRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestMutate_PublishFailureDoesNotFailOperation(t *testing.T) {
	repo := new(mockStockRepo)
	pub := new(mockStockPublisher)
	svc := NewInventoryService(repo, pub, newTestLogger(), 3)
	ctx := context.Background()

	item := newStockItem(t, "stock-1", "var-1", 1, false)
	repo.On("GetByID", ctx, "stock-1").Return(item, nil)
	repo.On("Save", ctx, item).Return(nil)
	pub.On("PublishStockEvents", ctx, item, mock.Anything).Return(errors.New("broker down"))

	_, err := svc.SetBackorderPolicy(ctx, "stock-1", true, 5)
	require.NoError(t, err)
	assert.True(t, item.Backorderable)
	pub.AssertExpectations(t)
}

func TestListMovements_UnknownItem(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	f.stockRepo.On("GetByID", ctx, "missing").Return(nil, apperrors.NotFound("stock item", "missing"))

	_, _, err := f.inventory.ListMovements(ctx, "missing", 1, 20)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.stockRepo.AssertNotCalled(t, "ListMovements", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListMovements_Success(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	f.stockRepo.On("GetByID", ctx, "stock-1").Return(newStockItem(t, "stock-1", "var-1", 0, false), nil)
	f.stockRepo.On("ListMovements", ctx, "stock-1", 2, 10).
		Return([]domain.StockMovement{{ID: "m-1", Quantity: 3, BalanceAfter: 3}}, 11, nil)

	movements, total, err := f.inventory.ListMovements(ctx, "stock-1", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	assert.Len(t, movements, 1)
}
