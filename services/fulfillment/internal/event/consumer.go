package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	pkgkafka "github.com/utafrali/commerce-fulfillment/pkg/kafka"
	"github.com/utafrali/commerce-fulfillment/pkg/logger"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

// Kafka topics consumed from other services.
const (
	TopicPaymentSucceeded = "ecommerce.payment.succeeded"
)

// SummaryRebuilder recomputes the stock summary of a variant.
type SummaryRebuilder interface {
	Rebuild(ctx context.Context, variantID string) (*domain.StockSummary, error)
}

// OrderReleaser gives back the stock reserved by an order.
type OrderReleaser interface {
	ReleaseOrder(ctx context.Context, orderID string) error
}

// PaymentRecorder settles an order payment reported by the payment service.
type PaymentRecorder interface {
	RecordPaymentSucceeded(ctx context.Context, orderID string, amountCents int64, method, transactionID string) (*domain.Order, error)
}

// PaymentSucceededData is the expected payload of a payment.succeeded event.
type PaymentSucceededData struct {
	ID            string `json:"id"`
	CheckoutID    string `json:"checkout_id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Method        string `json:"method"`
	ProviderPayID string `json:"provider_payment_id"`
}

// Consumer processes incoming Kafka events for the fulfillment service.
type Consumer struct {
	summaries SummaryRebuilder
	releaser  OrderReleaser
	payments  PaymentRecorder
	logger    *slog.Logger
}

// NewConsumer creates a new event consumer for the fulfillment service.
func NewConsumer(summaries SummaryRebuilder, releaser OrderReleaser, payments PaymentRecorder, logger *slog.Logger) *Consumer {
	return &Consumer{
		summaries: summaries,
		releaser:  releaser,
		payments:  payments,
		logger:    logger,
	}
}

// HandleStockChanged rebuilds the summary of the variant a stock item belongs to.
func (c *Consumer) HandleStockChanged(ctx context.Context, event *pkgkafka.Event) error {
	ctx = withEvent(ctx, event)

	var data StockChangedData
	if err := event.DecodeData(&data); err != nil {
		return fmt.Errorf("unmarshal stock.changed data: %w", err)
	}
	if data.VariantID == "" {
		c.log(ctx).WarnContext(ctx, "stock.changed event without variant, skipping")
		return nil
	}

	if _, err := c.summaries.Rebuild(ctx, data.VariantID); err != nil {
		return fmt.Errorf("rebuild summary for variant %s: %w", data.VariantID, err)
	}
	return nil
}

// HandleOrderCanceled releases every reservation held by a canceled order.
func (c *Consumer) HandleOrderCanceled(ctx context.Context, event *pkgkafka.Event) error {
	ctx = withEvent(ctx, event)

	var data OrderCanceledData
	if err := event.DecodeData(&data); err != nil {
		return fmt.Errorf("unmarshal order.canceled data: %w", err)
	}

	c.log(ctx).InfoContext(ctx, "processing order.canceled event",
		slog.String("order_id", data.OrderID),
		slog.String("number", data.Number),
	)

	if err := c.releaser.ReleaseOrder(ctx, data.OrderID); err != nil {
		return fmt.Errorf("release reservations for order %s: %w", data.OrderID, err)
	}
	return nil
}

// HandlePaymentSucceeded captures the matching payment on the order.
func (c *Consumer) HandlePaymentSucceeded(ctx context.Context, event *pkgkafka.Event) error {
	ctx = withEvent(ctx, event)

	var data PaymentSucceededData
	if err := event.DecodeData(&data); err != nil {
		return fmt.Errorf("unmarshal payment.succeeded data: %w", err)
	}
	if data.OrderID == "" {
		c.log(ctx).WarnContext(ctx, "payment.succeeded event without order, skipping",
			slog.String("payment_id", data.ID),
			slog.String("checkout_id", data.CheckoutID),
		)
		return nil
	}

	transactionID := data.ProviderPayID
	if transactionID == "" {
		transactionID = data.ID
	}

	c.log(ctx).InfoContext(ctx, "processing payment.succeeded event",
		slog.String("order_id", data.OrderID),
		slog.String("payment_id", data.ID),
		slog.Int64("amount", data.Amount),
	)

	_, err := c.payments.RecordPaymentSucceeded(ctx, data.OrderID, data.Amount, data.Method, transactionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		c.log(ctx).WarnContext(ctx, "payment.succeeded for unknown order, skipping",
			slog.String("order_id", data.OrderID),
			slog.String("payment_id", data.ID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("record payment for order %s: %w", data.OrderID, err)
	}
	return nil
}

// withEvent tags ctx with the event id and the correlation id it carries.
func withEvent(ctx context.Context, event *pkgkafka.Event) context.Context {
	ctx = logger.WithEventID(ctx, event.EventID)
	if event.CorrelationID == "" {
		return ctx
	}
	return logger.WithCorrelationID(ctx, event.CorrelationID)
}

func (c *Consumer) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, c.logger)
}
