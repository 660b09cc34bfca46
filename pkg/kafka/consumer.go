package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxHandlerRetries bounds the handler attempts per message before it is
// dead-lettered.
const maxHandlerRetries = 3

// handlerBackoff is multiplied by the attempt number between retries.
var handlerBackoff = 100 * time.Millisecond

// Handler processes one event. A non-nil error triggers a retry.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// EnableDLQ routes messages that exhaust their retries to
	// DLQTopic(Topic) instead of dropping them.
	EnableDLQ bool
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

// Consumer reads one topic as a member of a consumer group. Offsets are
// committed after each message is handled or dead-lettered, so delivery is
// at least once.
type Consumer struct {
	reader    messageReader
	dlq       *DLQProducer
	logger    *slog.Logger
	handler   Handler
	closeOnce sync.Once
}

func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	c := &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		}),
		logger:  logger.With(slog.String("topic", cfg.Topic), slog.String("consumer_group", cfg.GroupID)),
		handler: handler,
	}
	if cfg.EnableDLQ {
		c.dlq = NewDLQProducer(cfg.Brokers, logger)
	}
	return c
}

// Start consumes until ctx is canceled, then closes the consumer.
func (c *Consumer) Start(ctx context.Context) error {
	rc := c.reader.Config()
	c.logger.Info("consumer started", slog.Bool("dlq", c.dlq != nil))

	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error("fetch message failed", slog.String("error", err.Error()))
			}
			continue
		}
		consumerMessages.WithLabelValues(rc.Topic, rc.GroupID, outcomeReceived).Inc()
		c.process(ctx, msg, rc.GroupID)
	}

	c.logger.Info("consumer stopping")
	return c.Close()
}

// process runs the handler with retries and commits msg. A message that
// cannot be decoded, or whose handler keeps failing, is dead-lettered and
// committed. Cancellation mid-retry leaves msg uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, group string) {
	log := c.logger.With(slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		log.Error("undecodable message", slog.String("error", err.Error()))
		c.deadLetter(ctx, msg, err, group)
		c.commit(ctx, msg)
		return
	}
	log = log.With(slog.String("event_id", event.EventID), slog.String("event_type", event.EventType))

	ctx, span := otel.Tracer(tracerName).Start(extractTraceContext(ctx, msg.Headers), "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.source.name", msg.Topic),
			attribute.String("messaging.consumer.group.name", group),
			attribute.String("messaging.message.id", event.EventID),
		),
	)
	defer span.End()

	start := time.Now()
	err = c.handle(ctx, event, log)
	consumerDuration.WithLabelValues(msg.Topic, group).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		consumerMessages.WithLabelValues(msg.Topic, group, outcomeProcessed).Inc()
	case ctx.Err() != nil:
		return
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		consumerMessages.WithLabelValues(msg.Topic, group, outcomeFailed).Inc()
		log.ErrorContext(ctx, "handler failed after retries",
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", err.Error()),
		)
		c.deadLetter(ctx, msg, err, group)
	}
	c.commit(ctx, msg)
}

// handle calls the handler up to maxHandlerRetries times with linear backoff.
func (c *Consumer) handle(ctx context.Context, event *Event, log *slog.Logger) error {
	var err error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		if err = c.handler(ctx, event); err == nil {
			return nil
		}
		log.WarnContext(ctx, "handler failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt == maxHandlerRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * handlerBackoff):
		}
	}
	return err
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error, group string) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, group); err == nil {
		consumerMessages.WithLabelValues(msg.Topic, group, outcomeDeadLettered).Inc()
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("commit failed",
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the reader and the DLQ writer. Later calls are no-ops.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
		if c.dlq != nil {
			if dlqErr := c.dlq.Close(); err == nil {
				err = dlqErr
			}
		}
	})
	return err
}
