package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository"
)

// DefaultOCCAttempts is used when the configured attempt count is not positive.
const DefaultOCCAttempts = 3

// errNoChange lets a mutation report that there was nothing to do, so the
// item is neither saved nor published.
var errNoChange = errors.New("no change")

// stockLoader loads the current version of a stock item.
type stockLoader func(ctx context.Context) (*domain.StockItem, error)

// InventoryService implements the stock item operations. Every mutation runs
// load, apply, save with a version check and is retried on a version conflict.
type InventoryService struct {
	stockRepo   repository.StockItemRepository
	publisher   StockEventPublisher
	logger      *slog.Logger
	maxAttempts int
}

// NewInventoryService creates a new inventory service.
func NewInventoryService(
	stockRepo repository.StockItemRepository,
	publisher StockEventPublisher,
	logger *slog.Logger,
	maxAttempts int,
) *InventoryService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultOCCAttempts
	}
	return &InventoryService{
		stockRepo:   stockRepo,
		publisher:   publisher,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// AdjustStockInput holds the inputs of AdjustStock.
type AdjustStockInput struct {
	Quantity     int
	MovementType domain.MovementType
	UnitCost     int64
	Reason       string
	Reference    string
}

// CreateStockItem creates a stock item and books its opening balance.
func (s *InventoryService) CreateStockItem(ctx context.Context, params domain.NewStockItemParams) (*domain.StockItem, error) {
	item, err := domain.NewStockItem(params)
	if err != nil {
		StockOperations.WithLabelValues("create", resultRejected).Inc()
		return nil, err
	}
	s.checkInvariants(ctx, item)

	if err := s.stockRepo.Create(ctx, item); err != nil {
		StockOperations.WithLabelValues("create", resultError).Inc()
		return nil, fmt.Errorf("create stock item: %w", err)
	}
	StockOperations.WithLabelValues("create", resultSuccess).Inc()
	s.publish(ctx, item)

	s.logger.InfoContext(ctx, "stock item created",
		slog.String("stock_item_id", item.ID),
		slog.String("variant_id", item.VariantID),
		slog.String("stock_location_id", item.StockLocationID),
		slog.Int("quantity_on_hand", item.QuantityOnHand),
	)
	return item, nil
}

// GetStockItem retrieves a stock item by ID.
func (s *InventoryService) GetStockItem(ctx context.Context, id string) (*domain.StockItem, error) {
	item, err := s.stockRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get stock item: %w", err)
	}
	return item, nil
}

// ListMovements pages through the ledger of a stock item.
func (s *InventoryService) ListMovements(ctx context.Context, id string, page, perPage int) ([]domain.StockMovement, int, error) {
	if _, err := s.stockRepo.GetByID(ctx, id); err != nil {
		return nil, 0, fmt.Errorf("get stock item: %w", err)
	}
	movements, total, err := s.stockRepo.ListMovements(ctx, id, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list stock movements: %w", err)
	}
	return movements, total, nil
}

// AdjustStock changes the physical balance of a stock item.
func (s *InventoryService) AdjustStock(ctx context.Context, id string, in AdjustStockInput) (*domain.StockItem, error) {
	return s.mutate(ctx, "adjust", s.byID(id), func(item *domain.StockItem) error {
		return item.AdjustStock(in.Quantity, in.MovementType, in.UnitCost, in.Reason, in.Reference)
	})
}

// Audit records a stocktake.
func (s *InventoryService) Audit(ctx context.Context, id string, physicalCount int, reason, reference string) (*domain.StockItem, error) {
	return s.mutate(ctx, "audit", s.byID(id), func(item *domain.StockItem) error {
		return item.Audit(physicalCount, reason, reference)
	})
}

// Reserve promises units of a stock item to an order line.
func (s *InventoryService) Reserve(ctx context.Context, id string, quantity int, orderID, lineItemID string) (*domain.StockItem, error) {
	return s.mutate(ctx, "reserve", s.byID(id), func(item *domain.StockItem) error {
		return item.Reserve(quantity, orderID, lineItemID)
	})
}

// Release gives back units reserved for an order.
func (s *InventoryService) Release(ctx context.Context, id string, quantity int, orderID string) (*domain.StockItem, error) {
	return s.mutate(ctx, "release", s.byID(id), func(item *domain.StockItem) error {
		return item.Release(quantity, orderID)
	})
}

// Fulfill ships units of a stock item.
func (s *InventoryService) Fulfill(ctx context.Context, id string, quantity int, shipmentID, reference string, unitCost int64) (*domain.StockItem, error) {
	return s.mutate(ctx, "fulfill", s.byID(id), func(item *domain.StockItem) error {
		return item.Fulfill(quantity, shipmentID, reference, unitCost)
	})
}

// SetBackorderPolicy changes whether and how far a stock item may oversell.
func (s *InventoryService) SetBackorderPolicy(ctx context.Context, id string, backorderable bool, limit int) (*domain.StockItem, error) {
	return s.mutate(ctx, "set_backorder_policy", s.byID(id), func(item *domain.StockItem) error {
		return item.SetBackorderPolicy(backorderable, limit)
	})
}

// DeleteStockItem soft-deletes a stock item.
func (s *InventoryService) DeleteStockItem(ctx context.Context, id string) (*domain.StockItem, error) {
	return s.mutate(ctx, "delete", s.byID(id), func(item *domain.StockItem) error {
		if item.IsDeleted() {
			return errNoChange
		}
		return item.Delete()
	})
}

// RestoreStockItem undoes a soft delete.
func (s *InventoryService) RestoreStockItem(ctx context.Context, id string) (*domain.StockItem, error) {
	return s.mutate(ctx, "restore", s.byID(id), func(item *domain.StockItem) error {
		if !item.IsDeleted() {
			return errNoChange
		}
		return item.Restore()
	})
}

// ---------------------------------------------------------------------------
// load, apply, save
// ---------------------------------------------------------------------------

func (s *InventoryService) byID(id string) stockLoader {
	return func(ctx context.Context) (*domain.StockItem, error) {
		return s.stockRepo.GetByID(ctx, id)
	}
}

func (s *InventoryService) byVariantLocation(variantID, stockLocationID string) stockLoader {
	return func(ctx context.Context) (*domain.StockItem, error) {
		return s.stockRepo.GetByVariantLocation(ctx, variantID, stockLocationID)
	}
}

// mutate loads a fresh copy of the item, applies fn and saves it. A version
// conflict reloads and reapplies fn, up to maxAttempts times. fn must be
// safe to run more than once.
func (s *InventoryService) mutate(ctx context.Context, operation string, load stockLoader, fn func(*domain.StockItem) error) (*domain.StockItem, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		item, err := load(ctx)
		if err != nil {
			StockOperations.WithLabelValues(operation, resultError).Inc()
			return nil, fmt.Errorf("%s stock item: %w", operation, err)
		}

		if err := fn(item); err != nil {
			if errors.Is(err, errNoChange) {
				StockOperations.WithLabelValues(operation, resultSuccess).Inc()
				return item, nil
			}
			StockOperations.WithLabelValues(operation, resultRejected).Inc()
			return nil, fmt.Errorf("%s stock item: %w", operation, err)
		}
		s.checkInvariants(ctx, item)

		err = s.stockRepo.Save(ctx, item)
		if errors.Is(err, apperrors.ErrVersionConflict) {
			OCCRetries.WithLabelValues("stock_item").Inc()
			s.logger.WarnContext(ctx, "stock item version conflict, retrying",
				slog.String("operation", operation),
				slog.String("stock_item_id", item.ID),
				slog.Int("attempt", attempt),
			)
			lastErr = err
			continue
		}
		if err != nil {
			StockOperations.WithLabelValues(operation, resultError).Inc()
			return nil, fmt.Errorf("save stock item: %w", err)
		}

		StockOperations.WithLabelValues(operation, resultSuccess).Inc()
		s.publish(ctx, item)

		s.logger.InfoContext(ctx, "stock item updated",
			slog.String("operation", operation),
			slog.String("stock_item_id", item.ID),
			slog.Int("quantity_on_hand", item.QuantityOnHand),
			slog.Int("quantity_reserved", item.QuantityReserved),
			slog.Int64("version", item.Version),
		)
		return item, nil
	}

	StockOperations.WithLabelValues(operation, resultConflict).Inc()
	return nil, fmt.Errorf("%s stock item after %d attempts: %w", operation, s.maxAttempts, lastErr)
}

// checkInvariants raises an alert when the item is structurally
// inconsistent. The operation itself is not failed.
func (s *InventoryService) checkInvariants(ctx context.Context, item *domain.StockItem) {
	if err := item.CheckInvariants(); err != nil {
		InvariantViolations.WithLabelValues("stock_item").Inc()
		s.logger.ErrorContext(ctx, "stock item invariant violated",
			slog.Bool("alert", true),
			slog.String("stock_item_id", item.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *InventoryService) publish(ctx context.Context, item *domain.StockItem) {
	events := item.PullEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.PublishStockEvents(ctx, item, events); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish stock events",
			slog.String("stock_item_id", item.ID),
			slog.Int("events", len(events)),
			slog.String("error", err.Error()),
		)
	}
}
