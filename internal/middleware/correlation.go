package middleware

import (
	"context"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// CorrelationIDHeader is the HTTP header for correlation ID
const CorrelationIDHeader = "X-Correlation-ID"

// maxCorrelationIDLen matches the messages.correlation_id column
const maxCorrelationIDLen = 128

// Correlation returns a middleware that tags each request with a correlation ID.
// A well-formed X-Correlation-ID header is kept; otherwise chi's request ID is
// reused when present, and a fresh UUID is minted as a last resort. The ID is
// echoed on the response and carried into queued items and dispatch history.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID, ok := sanitizeCorrelationID(r.Header.Get(CorrelationIDHeader))
		if !ok {
			correlationID, ok = sanitizeCorrelationID(chimiddleware.GetReqID(r.Context()))
		}
		if !ok {
			correlationID = uuid.NewString()
		}

		w.Header().Set(CorrelationIDHeader, correlationID)
		next.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), correlationID)))
	})
}

// WithCorrelationID returns a copy of ctx carrying id
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID retrieves the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// sanitizeCorrelationID rejects values that would be unsafe to log or store:
// empty, oversized, or containing anything outside printable ASCII.
func sanitizeCorrelationID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxCorrelationIDLen {
		return "", false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return "", false
		}
	}
	return id, true
}
