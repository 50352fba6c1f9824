package middleware

import (
	"net/http"
	"time"

	"github.com/kestrel-ai/relay/observability"
)

// Metrics returns middleware recording request count, duration and in-flight
// gauge. Health-check paths are skipped to keep the series low-cardinality.
func Metrics(m *observability.HTTPMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil || isHealthEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			m.RecordRequestStart(ctx)
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)
			m.RecordRequestEnd(ctx, r.Method, r.URL.Path, sw.status, time.Since(start))
		})
	}
}
