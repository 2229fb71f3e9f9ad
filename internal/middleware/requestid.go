package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"genstudio/internal/infra"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
)

// RequestID reuses an inbound X-Request-ID when it is a short plain token,
// so a caller can correlate its own logs, and otherwise assigns a uuid. The
// id is echoed on the response and travels in the context down to SQL logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(infra.WithRequestID(r.Context(), rid)))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	return infra.RequestIDFrom(ctx)
}

// validRequestID keeps caller ids out of log lines unless they are made of
// letters, digits and the separators - _ . :
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
