package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/commerce-fulfillment/pkg/health"
	"github.com/utafrali/commerce-fulfillment/pkg/httputil"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/promotion"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/service"
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

// --- Test Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testServer wires the real services against mocked storage and serves the
// full router.
type testServer struct {
	stockRepo *mockStockRepo
	orderRepo *mockOrderRepo
	promoRepo *mockPromotionRepo
	summaries *mockSummaryRepo
	cache     *mockSummaryCache
	catalog   *mockCatalog
	handler   http.Handler
}

func newTestServer() *testServer {
	s := &testServer{
		stockRepo: new(mockStockRepo),
		orderRepo: new(mockOrderRepo),
		promoRepo: new(mockPromotionRepo),
		summaries: new(mockSummaryRepo),
		cache:     new(mockSummaryCache),
		catalog:   new(mockCatalog),
	}
	stockPublisher := new(mockStockPublisher)
	stockPublisher.On("PublishStockEvents", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	orderPublisher := new(mockOrderPublisher)
	orderPublisher.On("PublishOrderEvents", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	logger := testLogger()
	inventory := service.NewInventoryService(s.stockRepo, stockPublisher, logger, 3)
	orders := service.NewOrderService(s.orderRepo, s.promoRepo, s.catalog, promotion.NewCalculator(), orderPublisher, logger, 3, "USD")
	service.NewReservationService(inventory, s.stockRepo, orders, logger)

	s.handler = NewRouter(Services{
		Inventory:   inventory,
		Projections: service.NewProjectionService(s.stockRepo, s.summaries, s.cache, logger),
		Orders:      orders,
		Promotions:  service.NewPromotionService(s.promoRepo, logger),
	}, health.NewHandler(), logger, RouterOptions{})
	return s
}

type requestOption func(*http.Request)

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// do sends a JSON request through the router.
func (s *testServer) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the data member of a success envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// decodeError returns the error member of a failure envelope.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	var env httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	return env.Error
}

func newStockItem(t *testing.T, onHand int) *domain.StockItem {
	t.Helper()
	item, err := domain.NewStockItem(domain.NewStockItemParams{
		VariantID:       "var-1",
		StockLocationID: "loc-1",
		SKU:             "SKU-1",
		InitialQuantity: onHand,
	})
	require.NoError(t, err)
	item.Version = 1
	item.Movements = nil
	item.PullEvents()
	return item
}

func newCartOrder(t *testing.T) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("store-1", "USD", "user-1", "")
	require.NoError(t, err)
	o.Version = 1
	o.PullEvents()
	return o
}
