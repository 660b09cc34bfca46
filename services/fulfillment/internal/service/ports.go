package service

import (
	"context"

	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

// StockEventPublisher publishes the notifications drained from a stock item
// after it has been saved.
type StockEventPublisher interface {
	PublishStockEvents(ctx context.Context, item *domain.StockItem, events []domain.Event) error
}

// OrderEventPublisher publishes the notifications drained from an order
// after it has been saved.
type OrderEventPublisher interface {
	PublishOrderEvents(ctx context.Context, order *domain.Order, events []domain.Event) error
}

// VariantCatalog resolves the catalog data copied onto new line items.
type VariantCatalog interface {
	GetVariant(ctx context.Context, variantID string) (*domain.VariantSnapshot, error)
}
