package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/commerce-fulfillment/pkg/logger"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func spanAttrs(s tracetest.SpanStub) map[string]string {
	attrs := make(map[string]string, len(s.Attributes))
	for _, a := range s.Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	return attrs
}

func TestTraceQuery(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus codes.Code
		wantEvents int
	}{
		{"success", nil, codes.Unset, 0},
		{"failure", errors.New("connection refused"), codes.Error, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := setupTestTracer(t)

			_, end := TraceQuery(context.Background(), "GetStockItem", "SELECT * FROM stock_items WHERE id = $1")
			end(tt.err)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			span := spans[0]
			assert.Equal(t, "db.GetStockItem", span.Name)
			assert.Equal(t, trace.SpanKindClient, span.SpanKind)
			assert.Equal(t, tt.wantStatus, span.Status.Code)
			assert.Len(t, span.Events, tt.wantEvents)

			attrs := spanAttrs(span)
			assert.Equal(t, "postgresql", attrs["db.system"])
			assert.Equal(t, "GetStockItem", attrs["db.operation"])
			assert.Equal(t, "SELECT * FROM stock_items WHERE id = $1", attrs["db.statement"])
		})
	}
}

func TestTraceQuery_ChildOfCallerSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, parent := otel.Tracer("test").Start(context.Background(), "ReserveStock")
	_, end := TraceQuery(ctx, "SaveStockItem", "UPDATE stock_items SET version = version + 1")
	end(nil)
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestSlowQueryLogging(t *testing.T) {
	setupTestTracer(t)
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	tests := []struct {
		name      string
		threshold time.Duration
		err       error
		want      []string
		wantEmpty bool
	}{
		{name: "slow", threshold: time.Nanosecond, want: []string{`"msg":"slow query"`, "ListOrders", "SELECT * FROM orders", `"correlation_id":"corr-1"`}},
		{name: "slow with error", threshold: time.Nanosecond, err: errors.New("unique violation"), want: []string{"unique violation"}},
		{name: "fast", threshold: time.Hour, wantEmpty: true},
		{name: "disabled", threshold: 0, wantEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetSlowQueryLogging(tt.threshold, slog.New(slog.NewJSONHandler(&buf, nil)))

			ctx := logger.WithCorrelationID(context.Background(), "corr-1")
			_, end := TraceQuery(ctx, "ListOrders", "SELECT * FROM orders")
			end(tt.err)

			if tt.wantEmpty {
				assert.Empty(t, buf.String())
				return
			}
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestSetSlowQueryLogging_Concurrent(t *testing.T) {
	setupTestTracer(t)
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
	log := slog.New(slog.DiscardHandler)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 100 {
			SetSlowQueryLogging(time.Duration(i)*time.Millisecond, log)
		}
	}()
	for range 100 {
		_, end := TraceQuery(context.Background(), "Ping", "SELECT 1")
		end(nil)
	}
	<-done
}
