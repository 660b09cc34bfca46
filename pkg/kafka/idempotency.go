package kafka

import (
	"context"
	"log/slog"
)

// IdempotencyStore remembers processed event ids. Implementations must be safe
// for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// IdempotentHandler skips events whose id is already in store and records the
// id once inner succeeds. Events without an id, and lookups that fail, go
// straight to inner.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}
		log := logger.With(
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.EventType),
		)

		seen, err := store.Contains(ctx, event.EventID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "idempotency lookup failed, processing anyway", slog.String("error", err.Error()))
		case seen:
			consumerDuplicates.WithLabelValues(event.EventType).Inc()
			log.DebugContext(ctx, "skipping duplicate event", slog.String("aggregate_id", event.AggregateID))
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}
		if err := store.Add(ctx, event.EventID); err != nil {
			log.WarnContext(ctx, "failed to record processed event", slog.String("error", err.Error()))
		}
		return nil
	}
}
