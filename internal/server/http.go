package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheck reports whether one dependency is reachable.
type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// newRouter serves the operational endpoints: /metrics from reg and
// /healthz, which runs every check.
func newRouter(reg *prometheus.Registry, checks ...healthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", healthHandler(checks))
	return r
}

func healthHandler(checks []healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		body := map[string]string{"status": "ok"}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				body["status"] = "error"
				body[c.name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			body[c.name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}
