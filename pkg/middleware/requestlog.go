package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/commerce-fulfillment/pkg/logger"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderUserID        = "X-User-ID"
)

// Correlation assigns every request a correlation id, taken from the
// X-Correlation-ID header or generated, and echoes it in the response. The
// customer id forwarded by the gateway in X-User-ID is stored for logging.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderCorrelationID, id)

		ctx := logger.WithCorrelationID(r.Context(), id)
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			ctx = logger.WithUserID(ctx, userID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger stores a request-scoped logger in the context, retrievable
// with logger.FromContext, and writes one access log line per request.
// Mount it after Correlation and Tracing so the ids they set are attached.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := logger.WithContext(r.Context(), base)
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r.WithContext(logger.NewContext(r.Context(), l)))

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			l.Log(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			)
		})
	}
}
