package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Headers carrying a caller supplied request ID, in order of preference.
const (
	RequestIDHeader     = "X-Request-ID"
	CorrelationIDHeader = "X-Correlation-ID"
)

const maxRequestIDLen = 128

type requestIDKey struct{}

// RequestIDFromContext returns the request ID set by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID tags every request with an ID echoed in the X-Request-ID
// response header. A well-formed caller ID is reused so storefront and
// admin console logs can be joined with ours; otherwise a UUID is issued.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := incomingRequestID(r.Header)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

func incomingRequestID(h http.Header) string {
	for _, name := range []string{RequestIDHeader, CorrelationIDHeader} {
		if id := h.Get(name); printable(id) {
			return id
		}
	}
	return ""
}

// printable rejects empty, oversized and non-ASCII IDs so they are safe to
// log and echo.
func printable(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range []byte(id) {
		if c < ' ' || c > '~' {
			return false
		}
	}
	return true
}
