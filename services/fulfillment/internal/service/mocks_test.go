package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository"
)

// --- Mock Repositories ---

type mockStockRepo struct {
	mock.Mock
}

func (m *mockStockRepo) Create(ctx context.Context, item *domain.StockItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *mockStockRepo) GetByID(ctx context.Context, id string) (*domain.StockItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StockItem), args.Error(1)
}

func (m *mockStockRepo) GetByVariantLocation(ctx context.Context, variantID, stockLocationID string) (*domain.StockItem, error) {
	args := m.Called(ctx, variantID, stockLocationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StockItem), args.Error(1)
}

func (m *mockStockRepo) ListByVariant(ctx context.Context, variantID string) ([]*domain.StockItem, error) {
	args := m.Called(ctx, variantID)
	return args.Get(0).([]*domain.StockItem), args.Error(1)
}

func (m *mockStockRepo) ListIDsByOrder(ctx context.Context, orderID string) ([]string, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStockRepo) Save(ctx context.Context, item *domain.StockItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *mockStockRepo) ListMovements(ctx context.Context, stockItemID string, page, perPage int) ([]domain.StockMovement, int, error) {
	args := m.Called(ctx, stockItemID, page, perPage)
	return args.Get(0).([]domain.StockMovement), args.Int(1), args.Error(2)
}

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepo) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepo) List(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

type mockPromotionRepo struct {
	mock.Mock
}

func (m *mockPromotionRepo) Create(ctx context.Context, p *domain.Promotion) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockPromotionRepo) GetByID(ctx context.Context, id string) (*domain.Promotion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Promotion), args.Error(1)
}

func (m *mockPromotionRepo) GetByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Promotion), args.Error(1)
}

func (m *mockPromotionRepo) List(ctx context.Context, page, perPage int) ([]*domain.Promotion, int, error) {
	args := m.Called(ctx, page, perPage)
	return args.Get(0).([]*domain.Promotion), args.Int(1), args.Error(2)
}

func (m *mockPromotionRepo) IncrementUsage(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockSummaryRepo struct {
	mock.Mock
}

func (m *mockSummaryRepo) Upsert(ctx context.Context, s *domain.StockSummary) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockSummaryRepo) Get(ctx context.Context, variantID string) (*domain.StockSummary, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StockSummary), args.Error(1)
}

type mockSummaryCache struct {
	mock.Mock
}

func (m *mockSummaryCache) Get(ctx context.Context, variantID string) (*domain.StockSummary, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StockSummary), args.Error(1)
}

func (m *mockSummaryCache) Set(ctx context.Context, s *domain.StockSummary) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockSummaryCache) Delete(ctx context.Context, variantID string) error {
	args := m.Called(ctx, variantID)
	return args.Error(0)
}

// --- Mock Collaborators ---

type mockStockPublisher struct {
	mock.Mock
}

func (m *mockStockPublisher) PublishStockEvents(ctx context.Context, item *domain.StockItem, events []domain.Event) error {
	args := m.Called(ctx, item, events)
	return args.Error(0)
}

type mockOrderPublisher struct {
	mock.Mock
}

func (m *mockOrderPublisher) PublishOrderEvents(ctx context.Context, order *domain.Order, events []domain.Event) error {
	args := m.Called(ctx, order, events)
	return args.Error(0)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetVariant(ctx context.Context, variantID string) (*domain.VariantSnapshot, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VariantSnapshot), args.Error(1)
}

// calculatorFunc adapts a function to domain.PromotionCalculator.
type calculatorFunc func(*domain.Promotion, *domain.Order) ([]domain.ProposedAdjustment, error)

func (f calculatorFunc) Calculate(p *domain.Promotion, o *domain.Order) ([]domain.ProposedAdjustment, error) {
	return f(p, o)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fixture wires every service against mocks.
type fixture struct {
	stockRepo      *mockStockRepo
	orderRepo      *mockOrderRepo
	promoRepo      *mockPromotionRepo
	catalog        *mockCatalog
	stockPublisher *mockStockPublisher
	orderPublisher *mockOrderPublisher

	inventory    *InventoryService
	orders       *OrderService
	reservations *ReservationService
}

func newFixture(calc domain.PromotionCalculator) *fixture {
	f := &fixture{
		stockRepo:      new(mockStockRepo),
		orderRepo:      new(mockOrderRepo),
		promoRepo:      new(mockPromotionRepo),
		catalog:        new(mockCatalog),
		stockPublisher: new(mockStockPublisher),
		orderPublisher: new(mockOrderPublisher),
	}
	logger := newTestLogger()
	f.inventory = NewInventoryService(f.stockRepo, f.stockPublisher, logger, 3)
	f.orders = NewOrderService(f.orderRepo, f.promoRepo, f.catalog, calc, f.orderPublisher, logger, 3, "USD")
	f.reservations = NewReservationService(f.inventory, f.stockRepo, f.orders, logger)

	f.stockPublisher.On("PublishStockEvents", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.orderPublisher.On("PublishOrderEvents", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

// newStockItem builds a stock item with a fixed id so several loads of the
// "same" row can be handed out across retries.
func newStockItem(t *testing.T, id, variantID string, onHand int, backorderable bool) *domain.StockItem {
	t.Helper()
	item, err := domain.NewStockItem(domain.NewStockItemParams{
		VariantID:       variantID,
		StockLocationID: "loc-1",
		SKU:             "SKU-" + variantID,
		InitialQuantity: onHand,
		Backorderable:   backorderable,
		BackorderLimit:  10,
	})
	require.NoError(t, err)
	item.ID = id
	item.Version = 1
	item.Movements = nil
	item.PullEvents()
	return item
}

func variant(id string, price int64) *domain.VariantSnapshot {
	return &domain.VariantSnapshot{VariantID: id, Name: "Variant " + id, SKU: "SKU-" + id, PriceCents: price}
}

func newCartOrder(t *testing.T, lines map[string]int) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("store-1", "USD", "user-1", "")
	require.NoError(t, err)
	for id, qty := range lines {
		_, err := o.AddVariant(*variant(id, 1000), qty, nil)
		require.NoError(t, err)
	}
	o.PullEvents()
	return o
}

func unitStates(o *domain.Order) map[domain.UnitState]int {
	counts := make(map[domain.UnitState]int)
	for _, u := range o.Units() {
		counts[u.State]++
	}
	return counts
}
