package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/commerce-fulfillment/pkg/database"
	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/pkg/pagination"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository"
)

const orderColumns = `id, number, state, currency, store_id, user_id, session_id,
		item_total, shipment_total, adjustment_total, total, ship_address, bill_address,
		shipping_method_id, promotion_id, line_items, adjustments, shipments, payments,
		histories, completed_at, canceled_at, version, created_at, updated_at`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
// Child collections are stored as JSONB columns of the order row.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// orderDocuments holds the JSONB encodings of an order's collections.
type orderDocuments struct {
	shipAddress, billAddress                           []byte
	lineItems, adjustments, shipments, payments, hists []byte
}

func encodeOrder(o *domain.Order) (*orderDocuments, error) {
	var (
		d   orderDocuments
		err error
	)
	if o.ShipAddress != nil {
		if d.shipAddress, err = marshalJSON("ship_address", o.ShipAddress); err != nil {
			return nil, err
		}
	}
	if o.BillAddress != nil {
		if d.billAddress, err = marshalJSON("bill_address", o.BillAddress); err != nil {
			return nil, err
		}
	}
	if d.lineItems, err = marshalJSON("line_items", nonNil(o.LineItems)); err != nil {
		return nil, err
	}
	if d.adjustments, err = marshalJSON("adjustments", nonNil(o.Adjustments)); err != nil {
		return nil, err
	}
	if d.shipments, err = marshalJSON("shipments", nonNil(o.Shipments)); err != nil {
		return nil, err
	}
	if d.payments, err = marshalJSON("payments", nonNil(o.Payments)); err != nil {
		return nil, err
	}
	if d.hists, err = marshalJSON("histories", nonNil(o.Histories)); err != nil {
		return nil, err
	}
	return &d, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25)`

	ctx, end := database.TraceQuery(ctx, "CreateOrder", query)
	defer func() { end(err) }()

	docs, err := encodeOrder(o)
	if err != nil {
		return err
	}
	if o.Version == 0 {
		o.Version = 1
	}

	_, err = r.pool.Exec(ctx, query,
		o.ID,
		o.Number,
		string(o.State),
		o.Currency,
		o.StoreID,
		o.UserID,
		o.SessionID,
		o.ItemTotal,
		o.ShipmentTotal,
		o.AdjustmentTotal,
		o.Total,
		docs.shipAddress,
		docs.billAddress,
		o.ShippingMethodID,
		o.PromotionID,
		docs.lineItems,
		docs.adjustments,
		docs.shipments,
		docs.payments,
		docs.hists,
		o.CompletedAt,
		o.CanceledAt,
		o.Version,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("order", "number", o.Number)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Save writes the whole aggregate back if nobody else saved it in between.
func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) (err error) {
	query := `
		UPDATE orders
		SET state = $3, item_total = $4, shipment_total = $5, adjustment_total = $6, total = $7,
			ship_address = $8, bill_address = $9, shipping_method_id = $10, promotion_id = $11,
			line_items = $12, adjustments = $13, shipments = $14, payments = $15, histories = $16,
			completed_at = $17, canceled_at = $18, updated_at = $19, version = version + 1
		WHERE id = $1 AND version = $2`

	ctx, end := database.TraceQuery(ctx, "SaveOrder", query)
	defer func() { end(err) }()

	docs, err := encodeOrder(o)
	if err != nil {
		return err
	}

	ct, err := r.pool.Exec(ctx, query,
		o.ID,
		o.Version,
		string(o.State),
		o.ItemTotal,
		o.ShipmentTotal,
		o.AdjustmentTotal,
		o.Total,
		docs.shipAddress,
		docs.billAddress,
		o.ShippingMethodID,
		o.PromotionID,
		docs.lineItems,
		docs.adjustments,
		docs.shipments,
		docs.payments,
		docs.hists,
		o.CompletedAt,
		o.CanceledAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrVersionConflict
	}
	o.Version++
	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, "GetOrder", query, id)
}

// GetByNumber retrieves an order by its number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`
	return r.getOne(ctx, "GetOrderByNumber", query, number)
}

// List returns orders matching the filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) (orders []*domain.Order, total int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.State != nil {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argIndex))
		args = append(args, *filter.State)
		argIndex++
	}
	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argIndex, argIndex+1,
	)

	ctx, end := database.TraceQuery(ctx, "ListOrders", query)
	defer func() { end(err) }()

	p := pagination.New(filter.Page, filter.PerPage)
	args = append(args, p.Limit(), p.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return orders, total, nil
}

func (r *OrderRepository) getOne(ctx context.Context, op, query, arg string) (o *domain.Order, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	o, err = scanOrder(r.pool.QueryRow(ctx, query, arg), nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", arg)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func scanOrder(row rowScanner, total *int) (*domain.Order, error) {
	var (
		o     domain.Order
		state string
		d     orderDocuments
	)
	dest := []any{
		&o.ID,
		&o.Number,
		&state,
		&o.Currency,
		&o.StoreID,
		&o.UserID,
		&o.SessionID,
		&o.ItemTotal,
		&o.ShipmentTotal,
		&o.AdjustmentTotal,
		&o.Total,
		&d.shipAddress,
		&d.billAddress,
		&o.ShippingMethodID,
		&o.PromotionID,
		&d.lineItems,
		&d.adjustments,
		&d.shipments,
		&d.payments,
		&d.hists,
		&o.CompletedAt,
		&o.CanceledAt,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	}
	if total != nil {
		dest = append(dest, total)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	o.State = domain.OrderState(state)

	if err := unmarshalJSON("ship_address", d.shipAddress, &o.ShipAddress); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("bill_address", d.billAddress, &o.BillAddress); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("line_items", d.lineItems, &o.LineItems); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("adjustments", d.adjustments, &o.Adjustments); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("shipments", d.shipments, &o.Shipments); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("payments", d.payments, &o.Payments); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("histories", d.hists, &o.Histories); err != nil {
		return nil, err
	}
	o.LineItems = nonNil(o.LineItems)
	o.Adjustments = nonNil(o.Adjustments)
	o.Shipments = nonNil(o.Shipments)
	o.Payments = nonNil(o.Payments)
	return &o, nil
}
