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

const stockItemColumns = `id, variant_id, stock_location_id, sku, quantity_on_hand, quantity_reserved,
		backorderable, backorder_limit, deleted_at, version, created_at, updated_at`

const unitColumns = `id, variant_id, stock_item_id, stock_location_id, order_id, line_item_id, shipment_id,
		state, pending, serial_number, lot_number, deleted_at, created_at, updated_at`

// StockItemRepository implements repository.StockItemRepository using PostgreSQL.
type StockItemRepository struct {
	pool database.DBTX
}

// NewStockItemRepository creates a new PostgreSQL-backed stock item repository.
func NewStockItemRepository(pool database.DBTX) *StockItemRepository {
	return &StockItemRepository{pool: pool}
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Create inserts the item, the movements it has appended and its units in one
// transaction.
func (r *StockItemRepository) Create(ctx context.Context, item *domain.StockItem) (err error) {
	query := `
		INSERT INTO stock_items (` + stockItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	ctx, end := database.TraceQuery(ctx, "CreateStockItem", query)
	defer func() { end(err) }()

	if item.Version == 0 {
		item.Version = 1
	}
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			item.ID,
			item.VariantID,
			item.StockLocationID,
			item.SKU,
			item.QuantityOnHand,
			item.QuantityReserved,
			item.Backorderable,
			item.BackorderLimit,
			item.DeletedAt,
			item.Version,
			item.CreatedAt,
			item.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperrors.Conflict("StockItem.AlreadyExists",
					fmt.Sprintf("a stock item for variant %s at location %s already exists", item.VariantID, item.StockLocationID))
			}
			return fmt.Errorf("insert stock item: %w", err)
		}
		return writeChildren(ctx, tx, item)
	})
}

// Save performs a compare-and-swap on the version column and writes the new
// movements and touched units. On success item.Version holds the new version.
func (r *StockItemRepository) Save(ctx context.Context, item *domain.StockItem) (err error) {
	query := `
		UPDATE stock_items
		SET quantity_on_hand = $3, quantity_reserved = $4, backorderable = $5,
			backorder_limit = $6, deleted_at = $7, updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $2`

	ctx, end := database.TraceQuery(ctx, "SaveStockItem", query)
	defer func() { end(err) }()

	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query,
			item.ID,
			item.Version,
			item.QuantityOnHand,
			item.QuantityReserved,
			item.Backorderable,
			item.BackorderLimit,
			item.DeletedAt,
			item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update stock item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrVersionConflict
		}
		return writeChildren(ctx, tx, item)
	})
	if err != nil {
		return err
	}
	item.Version++
	return nil
}

func writeChildren(ctx context.Context, tx pgx.Tx, item *domain.StockItem) error {
	movementQuery := `
		INSERT INTO stock_movements (id, stock_item_id, quantity, balance_before, balance_after,
			type, unit_cost, reason, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	for _, m := range item.Movements {
		_, err := tx.Exec(ctx, movementQuery,
			m.ID,
			m.StockItemID,
			m.Quantity,
			m.BalanceBefore,
			m.BalanceAfter,
			string(m.Type),
			m.UnitCost,
			m.Reason,
			m.Reference,
			m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert stock movement: %w", err)
		}
	}

	unitQuery := `
		INSERT INTO inventory_units (` + unitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			order_id = EXCLUDED.order_id,
			line_item_id = EXCLUDED.line_item_id,
			shipment_id = EXCLUDED.shipment_id,
			state = EXCLUDED.state,
			pending = EXCLUDED.pending,
			serial_number = EXCLUDED.serial_number,
			lot_number = EXCLUDED.lot_number,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = EXCLUDED.updated_at`

	for _, u := range item.Units {
		_, err := tx.Exec(ctx, unitQuery,
			u.ID,
			u.VariantID,
			u.StockItemID,
			u.StockLocationID,
			u.OrderID,
			u.LineItemID,
			u.ShipmentID,
			string(u.State),
			u.Pending,
			u.SerialNumber,
			u.LotNumber,
			u.DeletedAt,
			u.CreatedAt,
			u.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert inventory unit: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// GetByID loads a stock item and its reserved units.
func (r *StockItemRepository) GetByID(ctx context.Context, id string) (item *domain.StockItem, err error) {
	query := `SELECT ` + stockItemColumns + ` FROM stock_items WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetStockItem", query)
	defer func() { end(err) }()

	item, err = scanStockItem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("stock item", id)
		}
		return nil, fmt.Errorf("get stock item by id: %w", err)
	}
	if item.Units, err = r.reservedUnits(ctx, item.ID); err != nil {
		return nil, err
	}
	return item, nil
}

// GetByVariantLocation loads the stock item of a variant at a location.
func (r *StockItemRepository) GetByVariantLocation(ctx context.Context, variantID, stockLocationID string) (item *domain.StockItem, err error) {
	query := `SELECT ` + stockItemColumns + ` FROM stock_items WHERE variant_id = $1 AND stock_location_id = $2`

	ctx, end := database.TraceQuery(ctx, "GetStockItemByVariantLocation", query)
	defer func() { end(err) }()

	item, err = scanStockItem(r.pool.QueryRow(ctx, query, variantID, stockLocationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("stock item", variantID+"@"+stockLocationID)
		}
		return nil, fmt.Errorf("get stock item by variant location: %w", err)
	}
	if item.Units, err = r.reservedUnits(ctx, item.ID); err != nil {
		return nil, err
	}
	return item, nil
}

// ListByVariant returns every stock item of a variant, including deleted ones.
func (r *StockItemRepository) ListByVariant(ctx context.Context, variantID string) (items []*domain.StockItem, err error) {
	query := `SELECT ` + stockItemColumns + ` FROM stock_items WHERE variant_id = $1 ORDER BY created_at`

	ctx, end := database.TraceQuery(ctx, "ListStockItemsByVariant", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, variantID)
	if err != nil {
		return nil, fmt.Errorf("list stock items by variant: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock item row: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock item rows: %w", err)
	}
	return items, nil
}

// ListIDsByOrder returns the stock items holding reserved units of an order.
func (r *StockItemRepository) ListIDsByOrder(ctx context.Context, orderID string) (ids []string, err error) {
	query := `
		SELECT DISTINCT stock_item_id
		FROM inventory_units
		WHERE order_id = $1 AND stock_item_id IS NOT NULL
			AND state IN ('on_hand', 'backordered') AND deleted_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "ListStockItemIDsByOrder", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list stock items by order: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stock item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock item ids: %w", err)
	}
	return ids, nil
}

// ListMovements returns a page of ledger entries and the total count.
func (r *StockItemRepository) ListMovements(ctx context.Context, stockItemID string, page, perPage int) (movements []domain.StockMovement, total int, err error) {
	query := `
		SELECT id, stock_item_id, quantity, balance_before, balance_after, type,
			unit_cost, reason, reference, created_at
		FROM stock_movements
		WHERE stock_item_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	ctx, end := database.TraceQuery(ctx, "ListStockMovements", query)
	defer func() { end(err) }()

	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE stock_item_id = $1`, stockItemID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count stock movements: %w", err)
	}

	p := pagination.New(page, perPage)
	rows, err := r.pool.Query(ctx, query, stockItemID, p.Limit(), p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.StockMovement
		var typ string
		if err := rows.Scan(
			&m.ID,
			&m.StockItemID,
			&m.Quantity,
			&m.BalanceBefore,
			&m.BalanceAfter,
			&typ,
			&m.UnitCost,
			&m.Reason,
			&m.Reference,
			&m.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan stock movement row: %w", err)
		}
		m.Type = domain.MovementType(typ)
		movements = append(movements, m)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate stock movement rows: %w", err)
	}
	return movements, total, nil
}

func (r *StockItemRepository) reservedUnits(ctx context.Context, stockItemID string) ([]*domain.InventoryUnit, error) {
	query := `
		SELECT ` + unitColumns + `
		FROM inventory_units
		WHERE stock_item_id = $1 AND state IN ('on_hand', 'backordered') AND deleted_at IS NULL
		ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, stockItemID)
	if err != nil {
		return nil, fmt.Errorf("list reserved units: %w", err)
	}
	defer rows.Close()

	var units []*domain.InventoryUnit
	for rows.Next() {
		var u domain.InventoryUnit
		var state string
		if err := rows.Scan(
			&u.ID,
			&u.VariantID,
			&u.StockItemID,
			&u.StockLocationID,
			&u.OrderID,
			&u.LineItemID,
			&u.ShipmentID,
			&state,
			&u.Pending,
			&u.SerialNumber,
			&u.LotNumber,
			&u.DeletedAt,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan inventory unit row: %w", err)
		}
		u.State = domain.UnitState(state)
		units = append(units, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory unit rows: %w", err)
	}
	return units, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStockItem(row rowScanner) (*domain.StockItem, error) {
	var item domain.StockItem
	err := row.Scan(
		&item.ID,
		&item.VariantID,
		&item.StockLocationID,
		&item.SKU,
		&item.QuantityOnHand,
		&item.QuantityReserved,
		&item.Backorderable,
		&item.BackorderLimit,
		&item.DeletedAt,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
