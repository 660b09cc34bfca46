package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository"
)

// ReservationService coordinates stock items and orders: it reserves stock
// for whole orders, gives it back and books shipped units as sales.
type ReservationService struct {
	inventory *InventoryService
	stockRepo repository.StockItemRepository
	orders    *OrderService
	logger    *slog.Logger
}

// NewReservationService creates a new reservation service.
func NewReservationService(
	inventory *InventoryService,
	stockRepo repository.StockItemRepository,
	orders *OrderService,
	logger *slog.Logger,
) *ReservationService {
	r := &ReservationService{
		inventory: inventory,
		stockRepo: stockRepo,
		orders:    orders,
		logger:    logger,
	}
	orders.reservations = r
	return r
}

// reservation is one successful Reserve call, kept for compensation.
type reservation struct {
	stockItemID string
	lineItemID  string
	onHand      int
	backordered int
}

// AllocateOrder reserves every unallocated unit of the order at the given
// location. If any line cannot be reserved, the reservations already made
// are released and the error is returned.
func (s *ReservationService) AllocateOrder(ctx context.Context, orderID, stockLocationID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.State.IsTerminal() {
		return nil, domain.ErrOrderInvalidStateTransition.WithMessage("cannot allocate inventory for a %s order", order.State)
	}

	var made []reservation
	for _, line := range order.LineItems {
		need := line.UnallocatedCount()
		if need == 0 {
			continue
		}

		var res reservation
		item, err := s.inventory.mutate(ctx, "reserve", s.inventory.byVariantLocation(line.VariantID, stockLocationID),
			func(item *domain.StockItem) error {
				onHand0, back0 := lineUnits(item, line.ID)
				if err := item.Reserve(need, order.ID, line.ID); err != nil {
					return err
				}
				onHand1, back1 := lineUnits(item, line.ID)
				res = reservation{
					stockItemID: item.ID,
					lineItemID:  line.ID,
					onHand:      onHand1 - onHand0,
					backordered: back1 - back0,
				}
				return nil
			})
		if err != nil {
			s.compensate(ctx, order.ID, made)
			return nil, fmt.Errorf("allocate line %s: %w", line.ID, err)
		}
		res.stockItemID = item.ID
		made = append(made, res)
	}

	if len(made) == 0 {
		return order, nil
	}

	order, err = s.orders.mutate(ctx, orderID, "allocate", func(o *domain.Order) error {
		for _, res := range made {
			if err := o.ApplyAllocation(res.lineItemID, res.stockItemID, res.onHand, res.backordered); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.compensate(ctx, orderID, made)
		return nil, err
	}

	s.logger.InfoContext(ctx, "order inventory allocated",
		slog.String("order_id", orderID),
		slog.String("stock_location_id", stockLocationID),
		slog.Int("stock_items", len(made)),
	)
	return order, nil
}

// ReleaseOrder gives back every unit still reserved for the order across all
// stock items. Releasing an order with nothing reserved is a no-op.
func (s *ReservationService) ReleaseOrder(ctx context.Context, orderID string) error {
	ids, err := s.stockRepo.ListIDsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list stock items for order: %w", err)
	}

	var errs []error
	for _, id := range ids {
		_, err := s.inventory.mutate(ctx, "release", s.inventory.byID(id), func(item *domain.StockItem) error {
			n := item.ReservedFor(orderID)
			if n == 0 {
				return errNoChange
			}
			return item.Release(n, orderID)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("release order %s: %w", orderID, err)
	}

	s.logger.InfoContext(ctx, "order reservations released",
		slog.String("order_id", orderID),
		slog.Int("stock_items", len(ids)),
	)
	return nil
}

// ReleaseLine gives back every unit one order line still holds on the given
// stock items. Stock items holding nothing for the line are skipped.
func (s *ReservationService) ReleaseLine(ctx context.Context, orderID, lineItemID string, stockItemIDs []string) error {
	var errs []error
	for _, id := range stockItemIDs {
		_, err := s.inventory.mutate(ctx, "release", s.inventory.byID(id), func(item *domain.StockItem) error {
			n := item.ReservedForLine(orderID, lineItemID)
			if n == 0 {
				return errNoChange
			}
			return item.ReleaseLine(n, orderID, lineItemID)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "line item reservations released",
		slog.String("order_id", orderID),
		slog.String("line_item_id", lineItemID),
		slog.Int("stock_items", len(stockItemIDs)),
	)
	return nil
}

// lineStock identifies a line's units on one stock item.
type lineStock struct {
	lineItemID  string
	stockItemID string
}

// earmarkedForShipment reads, for every line with backordered units on the
// shipment, how many of that line's units the stock item now holds OnHand.
// Stock items are the source of truth for backorder promotion; the order's
// copies only catch up here.
func (s *ReservationService) earmarkedForShipment(ctx context.Context, order *domain.Order, shipmentID string) (map[lineStock]int, error) {
	byItem := make(map[string][]string)
	for _, line := range order.LineItems {
		for _, u := range line.Units {
			if u.State != domain.UnitStateBackordered || u.StockItemID == nil ||
				u.ShipmentID == nil || *u.ShipmentID != shipmentID {
				continue
			}
			if !slices.Contains(byItem[*u.StockItemID], line.ID) {
				byItem[*u.StockItemID] = append(byItem[*u.StockItemID], line.ID)
			}
		}
	}

	earmarked := make(map[lineStock]int)
	for stockItemID, lines := range byItem {
		item, err := s.stockRepo.GetByID(ctx, stockItemID)
		if err != nil {
			return nil, fmt.Errorf("get stock item %s: %w", stockItemID, err)
		}
		for _, lineID := range lines {
			earmarked[lineStock{lineItemID: lineID, stockItemID: stockItemID}] = item.EarmarkedForLine(order.ID, lineID)
		}
	}
	return earmarked, nil
}

// FulfillShipment books a sale on each stock item for the units a shipment
// took. counts maps stock item id to the number of shipped units.
func (s *ReservationService) FulfillShipment(ctx context.Context, order *domain.Order, shipmentID string, counts map[string]int) error {
	var errs []error
	for stockItemID, n := range counts {
		_, err := s.inventory.mutate(ctx, "fulfill", s.inventory.byID(stockItemID), func(item *domain.StockItem) error {
			return item.FulfillOrder(order.ID, n, shipmentID, order.Number)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// compensate releases reservations made by a failed allocation. Failures
// are logged; the original error is what the caller sees.
func (s *ReservationService) compensate(ctx context.Context, orderID string, made []reservation) {
	for _, res := range made {
		qty := res.onHand + res.backordered
		_, err := s.inventory.mutate(ctx, "release", s.inventory.byID(res.stockItemID), func(item *domain.StockItem) error {
			n := min(qty, item.ReservedFor(orderID))
			if n == 0 {
				return errNoChange
			}
			return item.Release(n, orderID)
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to compensate reservation",
				slog.Bool("alert", true),
				slog.String("order_id", orderID),
				slog.String("stock_item_id", res.stockItemID),
				slog.Int("quantity", qty),
				slog.String("error", err.Error()),
			)
		}
	}
}

// lineUnits counts a line's reserved units on a stock item by state.
func lineUnits(item *domain.StockItem, lineItemID string) (onHand, backordered int) {
	for _, u := range item.Units {
		if u.LineItemID == nil || *u.LineItemID != lineItemID || u.IsDeleted() {
			continue
		}
		switch u.State {
		case domain.UnitStateOnHand:
			onHand++
		case domain.UnitStateBackordered:
			backordered++
		}
	}
	return onHand, backordered
}
