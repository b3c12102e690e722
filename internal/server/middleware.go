package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zsiec/vp8inspector/internal/logger"
	"github.com/zsiec/vp8inspector/internal/metrics"
)

// metricsMiddleware records request counts and latency by route template,
// so stream IDs do not explode label cardinality.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := logger.NewResponseWriter(w)

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		duration := time.Since(start)
		metrics.RecordHTTPRequest(r.Method, route, rw.StatusCode(), duration.Seconds())

		logger.FromContext(r.Context()).WithFields(map[string]interface{}{
			"status":      rw.StatusCode(),
			"duration_ms": float64(duration.Microseconds()) / 1000,
		}).Debug("Request completed")
	})
}
