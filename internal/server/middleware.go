package server

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	flog "flightclaim/internal/log"
	"flightclaim/internal/metrics"
)

const headerRequestID = "X-Request-ID"

// requestID adds a unique ID to every request and its logger context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(flog.ContextWithRequestID(r.Context(), id)))
	})
}

// accessLog writes one line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metrics.StatusWriter{ResponseWriter: w, Status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		logger := flog.FromContext(r.Context(), "http")
		evt := logger.Info()
		if sw.Status >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.Str("method", r.Method).
			Str(flog.FieldPath, route).
			Int(flog.FieldStatus, sw.Status).
			Int64(flog.FieldDuration, time.Since(start).Milliseconds()).
			Msg("request")
	})
}

// recoverer turns handler panics into a 500 envelope.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 8192)
				n := runtime.Stack(buf, false)
				lg := flog.FromContext(r.Context(), "http")
				lg.Error().
					Str("method", r.Method).
					Str(flog.FieldPath, r.URL.Path).
					Interface("panic", rec).
					Str("stack", string(buf[:n])).
					Msg("panic recovered in HTTP handler")
				respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal error",
					map[string]any{"request_id": flog.RequestIDFromContext(r.Context())}))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimit limits requests per client IP over a one-minute sliding window.
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Minute.Seconds())))
			respondStatusError(w, newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests",
				map[string]any{"limit_per_minute": perMinute}))
		}),
	)
}
