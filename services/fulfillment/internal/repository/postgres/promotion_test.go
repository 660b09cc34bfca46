package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/commerce-fulfillment/pkg/database"
	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

var promotionCols = []string{
	"id", "name", "code", "action", "discount_type", "discount_value", "max_discount_amount",
	"min_order_amount", "usage_limit", "usage_count", "active", "starts_at", "expires_at", "rules",
	"created_at", "updated_at",
}

func setupPromotionRepo(t *testing.T) (*PromotionRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewPromotionRepository(mock), mock
}

func promotionRow(rows *pgxmock.Rows, id, code string, usageLimit, usageCount int, extra ...any) *pgxmock.Rows {
	values := []any{
		id, "Spring sale", code, domain.PromotionActionOrderDiscount, domain.DiscountTypePercentage,
		int64(1000), int64(0), int64(0), usageLimit, usageCount, true,
		(*time.Time)(nil), (*time.Time)(nil),
		[]byte(`[{"type":"minimum_quantity","value":2}]`),
		testTime, testTime,
	}
	return rows.AddRow(append(values, extra...)...)
}

func TestPromotionRepository_Create_Success(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	p, err := domain.NewPromotion(domain.Promotion{
		Name:          "Spring sale",
		Code:          "spring10",
		Action:        domain.PromotionActionOrderDiscount,
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 1000,
		Active:        true,
	})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO promotions").
		WithArgs(p.ID, "Spring sale", "SPRING10", p.Action, p.DiscountType, int64(1000), int64(0), int64(0),
			0, 0, true, (*time.Time)(nil), (*time.Time)(nil), []byte("[]"), p.CreatedAt, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_Create_DuplicateCode(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO promotions").
		WithArgs(anyArgs(16)...).
		WillReturnError(errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))

	err := repo.Create(context.Background(), &domain.Promotion{ID: "promo-1", Code: "SPRING10"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_GetByCode_DecodesRules(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM promotions WHERE code").
		WithArgs("SPRING10").
		WillReturnRows(promotionRow(pgxmock.NewRows(promotionCols), "promo-1", "SPRING10", 0, 0))

	p, err := repo.GetByCode(context.Background(), "SPRING10")
	require.NoError(t, err)
	assert.Equal(t, "promo-1", p.ID)
	require.Len(t, p.Rules, 1)
	assert.Equal(t, domain.RuleMinimumQuantity, p.Rules[0].Type)
	assert.Equal(t, 2, p.Rules[0].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM promotions WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	p, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_List(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	rows := pgxmock.NewRows(append(promotionCols, "total_count"))
	promotionRow(rows, "promo-1", "A", 0, 0, 2)
	promotionRow(rows, "promo-2", "B", 0, 0, 2)
	mock.ExpectQuery("SELECT .+ FROM promotions").
		WithArgs(20, 20).
		WillReturnRows(rows)

	promotions, total, err := repo.List(context.Background(), 2, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, promotions, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_IncrementUsage_Success(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE promotions SET usage_count").
		WithArgs("promo-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.IncrementUsage(context.Background(), "promo-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_IncrementUsage_LimitReached(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE promotions SET usage_count").
		WithArgs("promo-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT .+ FROM promotions WHERE id").
		WithArgs("promo-1").
		WillReturnRows(promotionRow(pgxmock.NewRows(promotionCols), "promo-1", "SPRING10", 5, 5))

	err := repo.IncrementUsage(context.Background(), "promo-1")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, "Promotion.UsageLimitReached", apperrors.Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepository_IncrementUsage_Missing(t *testing.T) {
	repo, mock := setupPromotionRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE promotions SET usage_count").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT .+ FROM promotions WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	err := repo.IncrementUsage(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
