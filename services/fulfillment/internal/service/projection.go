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

// ProjectionService maintains the per-variant stock summaries.
type ProjectionService struct {
	stockRepo   repository.StockItemRepository
	summaryRepo repository.SummaryRepository
	cache       repository.SummaryCache
	logger      *slog.Logger
}

// NewProjectionService creates a new projection service.
func NewProjectionService(
	stockRepo repository.StockItemRepository,
	summaryRepo repository.SummaryRepository,
	cache repository.SummaryCache,
	logger *slog.Logger,
) *ProjectionService {
	return &ProjectionService{
		stockRepo:   stockRepo,
		summaryRepo: summaryRepo,
		cache:       cache,
		logger:      logger,
	}
}

// Rebuild recomputes the summary of a variant from its stock items, stores
// it and refreshes the cache.
func (s *ProjectionService) Rebuild(ctx context.Context, variantID string) (*domain.StockSummary, error) {
	items, err := s.stockRepo.ListByVariant(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("list stock items for variant: %w", err)
	}
	if len(items) == 0 {
		return nil, apperrors.NotFound("stock summary", variantID)
	}

	summary := domain.BuildStockSummary(variantID, items)
	if err := s.summaryRepo.Upsert(ctx, summary); err != nil {
		return nil, fmt.Errorf("store stock summary: %w", err)
	}
	s.fillCache(ctx, summary)

	s.logger.DebugContext(ctx, "stock summary rebuilt",
		slog.String("variant_id", variantID),
		slog.Int("total_on_hand", summary.TotalOnHand),
		slog.Int("total_reserved", summary.TotalReserved),
		slog.Bool("is_buyable", summary.IsBuyable),
	)
	return summary, nil
}

// GetSummary reads the summary of a variant from the cache, then Postgres.
// A variant that has stock items but no stored summary yet is rebuilt.
func (s *ProjectionService) GetSummary(ctx context.Context, variantID string) (*domain.StockSummary, error) {
	summary, err := s.cache.Get(ctx, variantID)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.WarnContext(ctx, "summary cache read failed",
			slog.String("variant_id", variantID),
			slog.String("error", err.Error()),
		)
	}

	summary, err = s.summaryRepo.Get(ctx, variantID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return s.Rebuild(ctx, variantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get stock summary: %w", err)
	}
	s.fillCache(ctx, summary)
	return summary, nil
}

func (s *ProjectionService) fillCache(ctx context.Context, summary *domain.StockSummary) {
	if err := s.cache.Set(ctx, summary); err != nil {
		s.logger.WarnContext(ctx, "failed to cache stock summary",
			slog.String("variant_id", summary.VariantID),
			slog.String("error", err.Error()),
		)
	}
}
