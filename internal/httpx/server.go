package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthCheck is a dependency reported by /readyz. A failing check makes the
// service unready unless it is Optional, in which case it is only listed.
type HealthCheck struct {
	Name     string
	Optional bool
	Ping     func(ctx context.Context) error
}

type readiness struct {
	Status   string            `json:"status"`
	Failures map[string]string `json:"failures,omitempty"`
}

// NewRouter mounts the shared middleware, /healthz (process is up) and
// /readyz (checks pass).
func NewRouter(checks ...HealthCheck) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", readyHandler(checks))
	return r
}

func readyHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := readiness{Status: "ready"}
		code := http.StatusOK
		for _, c := range checks {
			err := c.Ping(ctx)
			if err == nil {
				continue
			}
			if body.Failures == nil {
				body.Failures = map[string]string{}
			}
			body.Failures[c.Name] = err.Error()
			if c.Optional {
				if code == http.StatusOK {
					body.Status = "degraded"
				}
				continue
			}
			body.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, body)
	}
}
