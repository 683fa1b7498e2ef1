package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sunet/inmor-go/internal/apierr"
)

type requestIDKey struct{}

// requestIDMiddleware injects a unique X-Request-ID into every request
// context and response header, reusing a client-supplied one if present,
// then wraps the chain with slog access logging and panic recovery — every
// handler in this package can otherwise panic straight through to the
// client (a malformed federation payload is untrusted input, not a
// programming invariant) with no record of what request caused it.
// Request-ID plumbing adapted from
// _examples/Mindburn-Labs-helm/core/pkg/auth/requestid.go.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic handling request",
					"request_id", requestID, "method", r.Method, "path", r.URL.Path, "panic", rec)
				apierr.Internal(w, panicError{rec})
				return
			}
			slog.Info("request",
				"request_id", requestID, "method", r.Method, "path", r.URL.Path,
				"status", sw.status, "duration", time.Since(start))
		}()
		next.ServeHTTP(sw, r)
	})
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// statusWriter records the status code a handler wrote, for access logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// panicError adapts an arbitrary recover() value to an error so it can
// flow through apierr.Internal's logging without exposing it to the client.
type panicError struct{ v interface{} }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.v) }
