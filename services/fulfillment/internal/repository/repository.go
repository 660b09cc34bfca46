package repository

import (
	"context"

	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

// StockItemRepository persists stock items together with their reserved
// units and ledger entries.
type StockItemRepository interface {
	// Create inserts a new stock item, its opening movements and any units.
	Create(ctx context.Context, item *domain.StockItem) error

	// GetByID loads a stock item with every unit it currently holds reserved,
	// oldest first. Deleted items are returned; callers decide what to do.
	GetByID(ctx context.Context, id string) (*domain.StockItem, error)

	// GetByVariantLocation loads the stock item of a variant at a location.
	GetByVariantLocation(ctx context.Context, variantID, stockLocationID string) (*domain.StockItem, error)

	// ListByVariant returns every stock item of a variant without units.
	ListByVariant(ctx context.Context, variantID string) ([]*domain.StockItem, error)

	// ListIDsByOrder returns the ids of stock items holding units reserved
	// for the order.
	ListIDsByOrder(ctx context.Context, orderID string) ([]string, error)

	// Save writes back a loaded item. It fails with ErrVersionConflict when
	// the stored version no longer matches item.Version.
	Save(ctx context.Context, item *domain.StockItem) error

	// ListMovements pages through the ledger of a stock item, newest first.
	ListMovements(ctx context.Context, stockItemID string, page, perPage int) ([]domain.StockMovement, int, error)
}

// OrderRepository persists orders as a single aggregate.
type OrderRepository interface {
	// Create inserts a new order.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByNumber retrieves an order by its display number.
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)

	// List returns a page of orders filtered by state, newest first.
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, int, error)

	// Save writes back a loaded order with a version check.
	Save(ctx context.Context, order *domain.Order) error
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	State   *string
	UserID  *string
	Page    int
	PerPage int
}

// SummaryRepository persists the per-variant availability projection.
type SummaryRepository interface {
	// Upsert creates or replaces the summary of a variant.
	Upsert(ctx context.Context, summary *domain.StockSummary) error

	// Get retrieves the summary of a variant.
	Get(ctx context.Context, variantID string) (*domain.StockSummary, error)
}

// PromotionRepository persists promotion definitions.
type PromotionRepository interface {
	// Create inserts a new promotion.
	Create(ctx context.Context, promotion *domain.Promotion) error

	// GetByID retrieves a promotion by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Promotion, error)

	// GetByCode retrieves a promotion by its customer-facing code.
	GetByCode(ctx context.Context, code string) (*domain.Promotion, error)

	// List returns a page of promotions, newest first.
	List(ctx context.Context, page, perPage int) ([]*domain.Promotion, int, error)

	// IncrementUsage bumps the usage counter, failing with ErrConflict once
	// the usage limit is reached.
	IncrementUsage(ctx context.Context, id string) error
}

// SummaryCache is a read-through cache in front of SummaryRepository.
type SummaryCache interface {
	// Get returns ErrNotFound on a cache miss.
	Get(ctx context.Context, variantID string) (*domain.StockSummary, error)
	Set(ctx context.Context, summary *domain.StockSummary) error
	Delete(ctx context.Context, variantID string) error
}
