package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository"
)

// Payment actions accepted by PaymentAction.
const (
	PaymentActionAuthorize     = "authorize"
	PaymentActionCapture       = "capture"
	PaymentActionVoid          = "void"
	PaymentActionFail          = "fail"
	PaymentActionRefund        = "refund"
	PaymentActionRequireAction = "require_action"
)

// Shipment actions accepted by ShipmentAction. Shipping has its own method
// because it also moves stock.
const (
	ShipmentActionReady   = "ready"
	ShipmentActionPick    = "pick"
	ShipmentActionPack    = "pack"
	ShipmentActionDeliver = "deliver"
	ShipmentActionCancel  = "cancel"
)

// CreateOrderInput holds the inputs of CreateOrder.
type CreateOrderInput struct {
	StoreID   string
	Currency  string
	UserID    string
	SessionID string
}

// PaymentActionInput carries the optional arguments of a payment action.
type PaymentActionInput struct {
	TransactionID string
	AmountCents   int64
	Reason        string
}

// OrderService implements the order lifecycle.
type OrderService struct {
	orderRepo       repository.OrderRepository
	promoRepo       repository.PromotionRepository
	catalog         VariantCatalog
	calculator      domain.PromotionCalculator
	publisher       OrderEventPublisher
	reservations    *ReservationService
	logger          *slog.Logger
	maxAttempts     int
	defaultCurrency string
}

// NewOrderService creates a new order service. The reservation service is
// attached by NewReservationService.
func NewOrderService(
	orderRepo repository.OrderRepository,
	promoRepo repository.PromotionRepository,
	catalog VariantCatalog,
	calculator domain.PromotionCalculator,
	publisher OrderEventPublisher,
	logger *slog.Logger,
	maxAttempts int,
	defaultCurrency string,
) *OrderService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultOCCAttempts
	}
	return &OrderService{
		orderRepo:       orderRepo,
		promoRepo:       promoRepo,
		catalog:         catalog,
		calculator:      calculator,
		publisher:       publisher,
		logger:          logger,
		maxAttempts:     maxAttempts,
		defaultCurrency: defaultCurrency,
	}
}

// CreateOrder starts a new order in the cart state.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	currency := in.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	order, err := domain.NewOrder(in.StoreID, currency, in.UserID, in.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.publish(ctx, order)

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("number", order.Number),
		slog.String("store_id", order.StoreID),
	)
	return order, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// GetOrderByNumber retrieves an order by its number.
func (s *OrderService) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	order, err := s.orderRepo.GetByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return nil, fmt.Errorf("get order by number: %w", err)
	}
	return order, nil
}

// ListOrders returns a page of orders.
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, int, error) {
	if filter.State != nil && !domain.IsValidOrderState(*filter.State) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid order state %q", *filter.State))
	}
	orders, total, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// ---------------------------------------------------------------------------
// Cart
// ---------------------------------------------------------------------------

// AddLineItem looks the variant up in the catalog and adds it to the order.
// A nil overridePrice uses the catalog price.
func (s *OrderService) AddLineItem(ctx context.Context, orderID, variantID string, quantity int, overridePrice *int64) (*domain.Order, error) {
	variant, err := s.catalog.GetVariant(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("look up variant %s: %w", variantID, err)
	}
	return s.mutate(ctx, orderID, "add_line_item", func(o *domain.Order) error {
		_, err := o.AddVariant(*variant, quantity, overridePrice)
		return err
	})
}

// RemoveLineItem removes a line and its units from the order, then gives
// back whatever the line held on stock items.
func (s *OrderService) RemoveLineItem(ctx context.Context, orderID, lineItemID string) (*domain.Order, error) {
	var holds map[string]int
	order, err := s.mutate(ctx, orderID, "remove_line_item", func(o *domain.Order) error {
		line, err := o.LineItem(lineItemID)
		if err != nil {
			return err
		}
		holds = line.StockHolds()
		return o.RemoveLineItem(lineItemID)
	})
	if err != nil {
		return nil, err
	}
	if len(holds) == 0 {
		return order, nil
	}

	if err := s.reservations.ReleaseLine(ctx, orderID, lineItemID, slices.Sorted(maps.Keys(holds))); err != nil {
		s.logger.ErrorContext(ctx, "line item removed but its stock was not released",
			slog.Bool("alert", true),
			slog.String("order_id", orderID),
			slog.String("line_item_id", lineItemID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("release line item %s: %w", lineItemID, err)
	}
	return order, nil
}

// SetAddresses records the ship and bill addresses.
func (s *OrderService) SetAddresses(ctx context.Context, orderID string, ship, bill domain.Address) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "set_addresses", func(o *domain.Order) error {
		return o.SetAddresses(ship, bill)
	})
}

// SetShippingMethod selects the shipping method and its cost.
func (s *OrderService) SetShippingMethod(ctx context.Context, orderID, shippingMethodID string, costCents int64) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "set_shipping_method", func(o *domain.Order) error {
		return o.SetShippingMethod(shippingMethodID, costCents)
	})
}

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

// Next advances the order one step.
func (s *OrderService) Next(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "next", func(o *domain.Order) error { return o.Next() })
}

// Complete completes the order.
func (s *OrderService) Complete(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "complete", func(o *domain.Order) error { return o.Complete() })
}

// Cancel cancels the order. Stock reservations are released by the
// order.canceled consumer.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "cancel", func(o *domain.Order) error {
		if o.State == domain.OrderStateCanceled {
			return errNoChange
		}
		return o.Cancel()
	})
}

// Allocate reserves stock for every unallocated unit of the order.
func (s *OrderService) Allocate(ctx context.Context, orderID, stockLocationID string) (*domain.Order, error) {
	if strings.TrimSpace(stockLocationID) == "" {
		return nil, domain.ErrStockLocationRequired
	}
	return s.reservations.AllocateOrder(ctx, orderID, stockLocationID)
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

// AddPayment records a pending payment.
func (s *OrderService) AddPayment(ctx context.Context, orderID string, amountCents int64, method string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "add_payment", func(o *domain.Order) error {
		_, err := o.AddPayment(amountCents, method)
		return err
	})
}

// PaymentAction moves a payment through its state machine.
func (s *OrderService) PaymentAction(ctx context.Context, orderID, paymentID, action string, in PaymentActionInput) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "payment_"+action, func(o *domain.Order) error {
		p, err := o.Payment(paymentID)
		if err != nil {
			return err
		}
		switch action {
		case PaymentActionAuthorize:
			return p.Authorize(in.TransactionID)
		case PaymentActionCapture:
			return p.Capture(in.TransactionID)
		case PaymentActionVoid:
			return p.Void()
		case PaymentActionFail:
			return p.Fail(in.Reason)
		case PaymentActionRefund:
			return p.Refund(in.AmountCents)
		case PaymentActionRequireAction:
			return p.RequireAction()
		}
		return apperrors.InvalidInput(fmt.Sprintf("unknown payment action %q", action))
	})
}

// RecordPaymentSucceeded captures the first open payment of the given amount
// or, when there is none, records a new payment and captures it.
func (s *OrderService) RecordPaymentSucceeded(ctx context.Context, orderID string, amountCents int64, method, transactionID string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "payment_succeeded", func(o *domain.Order) error {
		p := o.OpenPaymentFor(amountCents)
		if p == nil {
			var err error
			if p, err = o.AddPayment(amountCents, method); err != nil {
				return err
			}
		}
		return p.Capture(transactionID)
	})
}

// ---------------------------------------------------------------------------
// Shipments
// ---------------------------------------------------------------------------

// AddShipment opens a shipment for the allocated units not yet on one.
func (s *OrderService) AddShipment(ctx context.Context, orderID, stockLocationID string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "add_shipment", func(o *domain.Order) error {
		_, err := o.AddShipment(stockLocationID)
		return err
	})
}

// ShipmentAction moves a shipment through its state machine.
func (s *OrderService) ShipmentAction(ctx context.Context, orderID, shipmentID, action string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "shipment_"+action, func(o *domain.Order) error {
		sh, err := o.Shipment(shipmentID)
		if err != nil {
			return err
		}
		switch action {
		case ShipmentActionReady:
			return sh.Ready()
		case ShipmentActionPick:
			return sh.Pick()
		case ShipmentActionPack:
			return sh.Pack()
		case ShipmentActionDeliver:
			return sh.Deliver()
		case ShipmentActionCancel:
			return sh.Cancel()
		}
		return apperrors.InvalidInput(fmt.Sprintf("unknown shipment action %q", action))
	})
}

// ShipShipment ships a shipment and books the matching sales on the stock
// items its units were reserved from.
//
// Backordered units on the shipment whose stock has since arrived are
// promoted first, so they ship with the rest.
func (s *OrderService) ShipShipment(ctx context.Context, orderID, shipmentID, trackingNumber string) (*domain.Order, error) {
	current, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	earmarked, err := s.reservations.earmarkedForShipment(ctx, current, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("check backordered units: %w", err)
	}

	var counts map[string]int
	order, err := s.mutate(ctx, orderID, "ship_shipment", func(o *domain.Order) error {
		for key, n := range earmarked {
			if _, err := o.PromoteAllocation(key.lineItemID, key.stockItemID, n); err != nil {
				return err
			}
		}
		counts = shippableUnits(o, shipmentID)
		return o.ShipShipment(shipmentID, trackingNumber)
	})
	if err != nil {
		return nil, err
	}

	if err := s.reservations.FulfillShipment(ctx, order, shipmentID, counts); err != nil {
		s.logger.ErrorContext(ctx, "shipment shipped but stock was not fulfilled",
			slog.Bool("alert", true),
			slog.String("order_id", orderID),
			slog.String("shipment_id", shipmentID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("fulfill shipment %s: %w", shipmentID, err)
	}
	return order, nil
}

func shippableUnits(o *domain.Order, shipmentID string) map[string]int {
	counts := make(map[string]int)
	for _, u := range o.Units() {
		if u.ShipmentID == nil || *u.ShipmentID != shipmentID || u.State != domain.UnitStateOnHand || u.StockItemID == nil {
			continue
		}
		counts[*u.StockItemID]++
	}
	return counts
}

// ---------------------------------------------------------------------------
// Promotions
// ---------------------------------------------------------------------------

// ApplyPromotion applies the promotion with the given code, replacing any
// promotion already on the order.
func (s *OrderService) ApplyPromotion(ctx context.Context, orderID, code string) (*domain.Order, error) {
	promo, err := s.promoRepo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("get promotion: %w", err)
	}
	return s.mutate(ctx, orderID, "apply_promotion", func(o *domain.Order) error {
		return o.ApplyPromotion(promo, s.calculator)
	})
}

// RemovePromotion removes the promotion from the order.
func (s *OrderService) RemovePromotion(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.mutate(ctx, orderID, "remove_promotion", func(o *domain.Order) error {
		return o.RemovePromotion()
	})
}

// ---------------------------------------------------------------------------
// load, apply, save
// ---------------------------------------------------------------------------

// mutate loads the order, applies fn and saves it with a version check,
// retrying on conflict. Transitions are counted and events published after
// a successful save.
func (s *OrderService) mutate(ctx context.Context, orderID, operation string, fn func(*domain.Order) error) (*domain.Order, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		order, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		from := order.State

		if err := fn(order); err != nil {
			if errors.Is(err, errNoChange) {
				return order, nil
			}
			return nil, err
		}

		err = s.orderRepo.Save(ctx, order)
		if errors.Is(err, apperrors.ErrVersionConflict) {
			OCCRetries.WithLabelValues("order").Inc()
			s.logger.WarnContext(ctx, "order version conflict, retrying",
				slog.String("operation", operation),
				slog.String("order_id", orderID),
				slog.Int("attempt", attempt),
			)
			lastErr = err
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save order: %w", err)
		}

		if order.State != from {
			OrderTransitions.WithLabelValues(string(from), string(order.State)).Inc()
			s.logger.InfoContext(ctx, "order state changed",
				slog.String("order_id", order.ID),
				slog.String("from", string(from)),
				slog.String("to", string(order.State)),
			)
			if order.State == domain.OrderStateComplete {
				s.recordPromotionUsage(ctx, order)
			}
		}
		s.publish(ctx, order)
		return order, nil
	}
	return nil, fmt.Errorf("%s order after %d attempts: %w", operation, s.maxAttempts, lastErr)
}

func (s *OrderService) recordPromotionUsage(ctx context.Context, order *domain.Order) {
	if order.PromotionID == nil {
		return
	}
	if err := s.promoRepo.IncrementUsage(ctx, *order.PromotionID); err != nil {
		s.logger.WarnContext(ctx, "failed to record promotion usage",
			slog.String("order_id", order.ID),
			slog.String("promotion_id", *order.PromotionID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) publish(ctx context.Context, order *domain.Order) {
	events := order.PullEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.PublishOrderEvents(ctx, order, events); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order events",
			slog.String("order_id", order.ID),
			slog.Int("events", len(events)),
			slog.String("error", err.Error()),
		)
	}
}
