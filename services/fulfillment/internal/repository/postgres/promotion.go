package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/commerce-fulfillment/pkg/database"
	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/pkg/pagination"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

const promotionColumns = `id, name, code, action, discount_type, discount_value, max_discount_amount,
		min_order_amount, usage_limit, usage_count, active, starts_at, expires_at, rules,
		created_at, updated_at`

// PromotionRepository implements repository.PromotionRepository using PostgreSQL.
type PromotionRepository struct {
	pool database.DBTX
}

// NewPromotionRepository creates a new PostgreSQL-backed promotion repository.
func NewPromotionRepository(pool database.DBTX) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// Create inserts a new promotion into the database.
func (r *PromotionRepository) Create(ctx context.Context, p *domain.Promotion) (err error) {
	query := `
		INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	ctx, end := database.TraceQuery(ctx, "CreatePromotion", query)
	defer func() { end(err) }()

	rulesJSON, err := marshalJSON("rules", p.Rules)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Code,
		p.Action,
		p.DiscountType,
		p.DiscountValue,
		p.MaxDiscountAmount,
		p.MinOrderAmount,
		p.UsageLimit,
		p.UsageCount,
		p.Active,
		p.StartsAt,
		p.ExpiresAt,
		rulesJSON,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("promotion", "code", p.Code)
		}
		return fmt.Errorf("insert promotion: %w", err)
	}
	return nil
}

// GetByID retrieves a promotion by its ID.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`
	return r.getOne(ctx, "GetPromotion", query, id)
}

// GetByCode retrieves a promotion by its code.
func (r *PromotionRepository) GetByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE code = $1`
	return r.getOne(ctx, "GetPromotionByCode", query, code)
}

// List returns promotions with the total count.
func (r *PromotionRepository) List(ctx context.Context, page, perPage int) (promotions []*domain.Promotion, total int, err error) {
	query := `
		SELECT ` + promotionColumns + `, count(*) OVER() AS total_count
		FROM promotions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	ctx, end := database.TraceQuery(ctx, "ListPromotions", query)
	defer func() { end(err) }()

	p := pagination.New(page, perPage)
	rows, err := r.pool.Query(ctx, query, p.Limit(), p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPromotion(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan promotion row: %w", err)
		}
		promotions = append(promotions, p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate promotion rows: %w", err)
	}
	if promotions == nil {
		promotions = []*domain.Promotion{}
	}
	return promotions, total, nil
}

// IncrementUsage atomically bumps usage_count while it is below usage_limit.
// A zero limit means unlimited.
func (r *PromotionRepository) IncrementUsage(ctx context.Context, id string) (err error) {
	query := `
		UPDATE promotions
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`

	ctx, end := database.TraceQuery(ctx, "IncrementPromotionUsage", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment promotion usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return apperrors.Conflict("Promotion.UsageLimitReached", "promotion usage limit reached")
	}
	return nil
}

func (r *PromotionRepository) getOne(ctx context.Context, op, query string, arg string) (p *domain.Promotion, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	p, err = scanPromotion(r.pool.QueryRow(ctx, query, arg), nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("promotion", arg)
		}
		return nil, fmt.Errorf("get promotion: %w", err)
	}
	return p, nil
}

// scanPromotion reads one promotion row. When total is non-nil the row is
// expected to carry a trailing window count.
func scanPromotion(row rowScanner, total *int) (*domain.Promotion, error) {
	var (
		p         domain.Promotion
		rulesJSON []byte
	)
	dest := []any{
		&p.ID,
		&p.Name,
		&p.Code,
		&p.Action,
		&p.DiscountType,
		&p.DiscountValue,
		&p.MaxDiscountAmount,
		&p.MinOrderAmount,
		&p.UsageLimit,
		&p.UsageCount,
		&p.Active,
		&p.StartsAt,
		&p.ExpiresAt,
		&rulesJSON,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if total != nil {
		dest = append(dest, total)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("rules", rulesJSON, &p.Rules); err != nil {
		return nil, err
	}
	if p.Rules == nil {
		p.Rules = []domain.PromotionRule{}
	}
	return &p, nil
}
