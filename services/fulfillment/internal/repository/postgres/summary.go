package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/commerce-fulfillment/pkg/database"
	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

// SummaryRepository implements repository.SummaryRepository using PostgreSQL.
type SummaryRepository struct {
	pool database.DBTX
}

// NewSummaryRepository creates a new PostgreSQL-backed summary repository.
func NewSummaryRepository(pool database.DBTX) *SummaryRepository {
	return &SummaryRepository{pool: pool}
}

// Upsert replaces the stored projection of a variant.
func (r *SummaryRepository) Upsert(ctx context.Context, s *domain.StockSummary) (err error) {
	query := `
		INSERT INTO stock_summaries (variant_id, total_on_hand, total_reserved, total_available,
			backorderable, is_buyable, location_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (variant_id) DO UPDATE SET
			total_on_hand = EXCLUDED.total_on_hand,
			total_reserved = EXCLUDED.total_reserved,
			total_available = EXCLUDED.total_available,
			backorderable = EXCLUDED.backorderable,
			is_buyable = EXCLUDED.is_buyable,
			location_count = EXCLUDED.location_count,
			updated_at = EXCLUDED.updated_at`

	ctx, end := database.TraceQuery(ctx, "UpsertStockSummary", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		s.VariantID,
		s.TotalOnHand,
		s.TotalReserved,
		s.TotalAvailable,
		s.Backorderable,
		s.IsBuyable,
		s.LocationCount,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert stock summary: %w", err)
	}
	return nil
}

// Get retrieves the projection of a variant.
func (r *SummaryRepository) Get(ctx context.Context, variantID string) (s *domain.StockSummary, err error) {
	query := `
		SELECT variant_id, total_on_hand, total_reserved, total_available,
			backorderable, is_buyable, location_count, updated_at
		FROM stock_summaries
		WHERE variant_id = $1`

	ctx, end := database.TraceQuery(ctx, "GetStockSummary", query)
	defer func() { end(err) }()

	var summary domain.StockSummary
	err = r.pool.QueryRow(ctx, query, variantID).Scan(
		&summary.VariantID,
		&summary.TotalOnHand,
		&summary.TotalReserved,
		&summary.TotalAvailable,
		&summary.Backorderable,
		&summary.IsBuyable,
		&summary.LocationCount,
		&summary.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("stock summary", variantID)
		}
		return nil, fmt.Errorf("get stock summary: %w", err)
	}
	return &summary, nil
}
