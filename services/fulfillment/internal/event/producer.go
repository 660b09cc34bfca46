package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/commerce-fulfillment/pkg/kafka"
	"github.com/utafrali/commerce-fulfillment/pkg/logger"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

// Kafka topic constants for fulfillment domain events.
const (
	TopicStockChanged   = "ecommerce.stock.changed"
	TopicOrderUpdated   = "ecommerce.order.updated"
	TopicOrderCompleted = "ecommerce.order.completed"
	TopicOrderCanceled  = "ecommerce.order.canceled"
)

// Aggregate type constants.
const (
	AggregateTypeStockItem = "stock_item"
	AggregateTypeOrder     = "order"
)

// Source identifier for events originating from the fulfillment service.
const SourceFulfillmentService = "fulfillment-service"

// Record is one domain event carried inside a Kafka message.
type Record struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// StockChangedData is the payload of a stock.changed event: the balances of
// the stock item after the save plus every event the save produced.
type StockChangedData struct {
	StockItemID      string   `json:"stock_item_id"`
	VariantID        string   `json:"variant_id"`
	StockLocationID  string   `json:"stock_location_id"`
	QuantityOnHand   int      `json:"quantity_on_hand"`
	QuantityReserved int      `json:"quantity_reserved"`
	CountAvailable   int      `json:"count_available"`
	Backorderable    bool     `json:"backorderable"`
	Deleted          bool     `json:"deleted"`
	Version          int64    `json:"version"`
	Events           []Record `json:"events"`
}

// OrderUpdatedData is the payload of an order.updated event.
type OrderUpdatedData struct {
	OrderID  string   `json:"order_id"`
	Number   string   `json:"number"`
	State    string   `json:"state"`
	UserID   string   `json:"user_id,omitempty"`
	Total    int64    `json:"total"`
	Currency string   `json:"currency"`
	Version  int64    `json:"version"`
	Events   []Record `json:"events"`
}

// OrderCompletedData is the payload of an order.completed event.
type OrderCompletedData struct {
	OrderID  string `json:"order_id"`
	Number   string `json:"number"`
	UserID   string `json:"user_id,omitempty"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

// OrderCanceledData is the payload of an order.canceled event.
type OrderCanceledData struct {
	OrderID string `json:"order_id"`
	Number  string `json:"number"`
	UserID  string `json:"user_id,omitempty"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes fulfillment domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the fulfillment service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishStockEvents publishes one stock.changed event for a saved stock item.
func (p *Producer) PublishStockEvents(ctx context.Context, item *domain.StockItem, events []domain.Event) error {
	data := StockChangedData{
		StockItemID:      item.ID,
		VariantID:        item.VariantID,
		StockLocationID:  item.StockLocationID,
		QuantityOnHand:   item.QuantityOnHand,
		QuantityReserved: item.QuantityReserved,
		CountAvailable:   item.CountAvailable(),
		Backorderable:    item.Backorderable,
		Deleted:          item.IsDeleted(),
		Version:          item.Version,
		Events:           records(events),
	}
	if err := p.publish(ctx, TopicStockChanged, item.ID, AggregateTypeStockItem, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published stock.changed event",
		slog.String("stock_item_id", item.ID),
		slog.String("variant_id", item.VariantID),
		slog.Int("events", len(events)),
	)
	return nil
}

// PublishOrderEvents publishes order.updated for every saved order, plus
// order.completed or order.canceled when the save finished the order.
func (p *Producer) PublishOrderEvents(ctx context.Context, order *domain.Order, events []domain.Event) error {
	userID := ""
	if order.UserID != nil {
		userID = *order.UserID
	}

	var errs []error
	updated := OrderUpdatedData{
		OrderID:  order.ID,
		Number:   order.Number,
		State:    string(order.State),
		UserID:   userID,
		Total:    order.Total,
		Currency: order.Currency,
		Version:  order.Version,
		Events:   records(events),
	}
	if err := p.publish(ctx, TopicOrderUpdated, order.ID, AggregateTypeOrder, updated); err != nil {
		errs = append(errs, err)
	}

	for _, e := range events {
		switch e := e.(type) {
		case domain.OrderCompleted:
			data := OrderCompletedData{OrderID: e.OrderID, Number: e.Number, UserID: userID, Total: e.Total, Currency: e.Currency}
			if err := p.publish(ctx, TopicOrderCompleted, order.ID, AggregateTypeOrder, data); err != nil {
				errs = append(errs, err)
			}
		case domain.OrderCanceled:
			data := OrderCanceledData{OrderID: e.OrderID, Number: e.Number, UserID: userID}
			if err := p.publish(ctx, TopicOrderCanceled, order.ID, AggregateTypeOrder, data); err != nil {
				errs = append(errs, err)
			}
		}
	}

	p.logger.DebugContext(ctx, "published order events",
		slog.String("order_id", order.ID),
		slog.String("state", string(order.State)),
		slog.Int("events", len(events)),
	)
	return errors.Join(errs...)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceFulfillmentService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

func records(events []domain.Event) []Record {
	out := make([]Record, 0, len(events))
	for _, e := range events {
		out = append(out, Record{Name: e.EventName(), Payload: e})
	}
	return out
}
