package postgres

import (
	"context"
	"encoding/json"
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
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository"
)

var orderCols = []string{
	"id", "number", "state", "currency", "store_id", "user_id", "session_id",
	"item_total", "shipment_total", "adjustment_total", "total", "ship_address", "bill_address",
	"shipping_method_id", "promotion_id", "line_items", "adjustments", "shipments", "payments",
	"histories", "completed_at", "canceled_at", "version", "created_at", "updated_at",
}

func setupOrderRepo(t *testing.T) (*OrderRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewOrderRepository(mock), mock
}

func sampleOrder(t *testing.T) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("store-1", "USD", "user-1", "")
	require.NoError(t, err)
	_, err = o.AddVariant(domain.VariantSnapshot{
		VariantID:  "var-1",
		Name:       "Mug",
		SKU:        "MUG-1",
		PriceCents: 1250,
	}, 2, nil)
	require.NoError(t, err)
	return o
}

func orderRow(t *testing.T, rows *pgxmock.Rows, o *domain.Order, extra ...any) *pgxmock.Rows {
	t.Helper()
	lineItems, err := json.Marshal(o.LineItems)
	require.NoError(t, err)
	histories, err := json.Marshal(o.Histories)
	require.NoError(t, err)
	values := []any{
		o.ID, o.Number, string(o.State), o.Currency, o.StoreID, o.UserID, o.SessionID,
		o.ItemTotal, o.ShipmentTotal, o.AdjustmentTotal, o.Total, []byte(nil), []byte(nil),
		(*string)(nil), (*string)(nil), lineItems, []byte("[]"), []byte("[]"), []byte("[]"),
		histories, (*time.Time)(nil), (*time.Time)(nil), int64(2), o.CreatedAt, o.UpdatedAt,
	}
	return rows.AddRow(append(values, extra...)...)
}

func TestOrderRepository_Create_Success(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder(t)
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(anyArgs(25)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Create_DuplicateNumber(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO orders").
		WithArgs(anyArgs(25)...).
		WillReturnError(errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))

	err := repo.Create(context.Background(), sampleOrder(t))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_DecodesCollections(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder(t)
	mock.ExpectQuery("SELECT .+ FROM orders WHERE id").
		WithArgs(o.ID).
		WillReturnRows(orderRow(t, pgxmock.NewRows(orderCols), o))

	got, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateCart, got.State)
	assert.Equal(t, int64(2), got.Version)
	assert.Nil(t, got.ShipAddress)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, "MUG-1", got.LineItems[0].SKU)
	assert.Len(t, got.LineItems[0].Units, 2)
	assert.NotNil(t, got.Payments)
	assert.Len(t, got.Histories, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByNumber_NotFound(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM orders WHERE number").
		WithArgs("R202601011234").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByNumber(context.Background(), "R202601011234")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Save_Success(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder(t)
	o.Version = 5
	mock.ExpectExec("UPDATE orders").
		WithArgs(append([]any{o.ID, int64(5)}, anyArgs(17)...)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Save(context.Background(), o))
	assert.Equal(t, int64(6), o.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Save_VersionConflict(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder(t)
	o.Version = 5
	mock.ExpectExec("UPDATE orders").
		WithArgs(anyArgs(19)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Save(context.Background(), o)
	assert.ErrorIs(t, err, apperrors.ErrVersionConflict)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, int64(5), o.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_List_WithStateFilter(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder(t)
	state := "cart"
	mock.ExpectQuery("SELECT .+ FROM orders WHERE state").
		WithArgs(state, 10, 0).
		WillReturnRows(orderRow(t, pgxmock.NewRows(append(orderCols, "total_count")), o, 1))

	orders, total, err := repo.List(context.Background(), repository.OrderFilter{State: &state, Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	assert.Equal(t, o.Number, orders[0].Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_List_Empty(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM orders").
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(append(orderCols, "total_count")))

	orders, total, err := repo.List(context.Background(), repository.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}
