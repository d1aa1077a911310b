package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ping(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestReadyz(t *testing.T) {
	down := errors.New("connection refused")
	tests := []struct {
		name     string
		checks   []HealthCheck
		code     int
		status   string
		failures map[string]string
	}{
		{
			name:   "all up",
			checks: []HealthCheck{{Name: "postgres", Ping: ping(nil)}, {Name: "redis", Optional: true, Ping: ping(nil)}},
			code:   http.StatusOK,
			status: "ready",
		},
		{
			name:     "database down",
			checks:   []HealthCheck{{Name: "postgres", Ping: ping(down)}, {Name: "redis", Optional: true, Ping: ping(nil)}},
			code:     http.StatusServiceUnavailable,
			status:   "unavailable",
			failures: map[string]string{"postgres": "connection refused"},
		},
		{
			name:     "optional cache down",
			checks:   []HealthCheck{{Name: "postgres", Ping: ping(nil)}, {Name: "redis", Optional: true, Ping: ping(down)}},
			code:     http.StatusOK,
			status:   "degraded",
			failures: map[string]string{"redis": "connection refused"},
		},
		{
			name:     "both down",
			checks:   []HealthCheck{{Name: "redis", Optional: true, Ping: ping(down)}, {Name: "postgres", Ping: ping(down)}},
			code:     http.StatusServiceUnavailable,
			status:   "unavailable",
			failures: map[string]string{"postgres": "connection refused", "redis": "connection refused"},
		},
		{name: "no checks", code: http.StatusOK, status: "ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewRouter(tt.checks...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			require.Equal(t, tt.code, rec.Code)
			got := decode[readiness](t, rec)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.failures, got.Failures)
		})
	}
}

func TestReadyzBoundsSlowChecks(t *testing.T) {
	var deadline bool
	check := HealthCheck{Name: "postgres", Ping: func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	}}
	rec := httptest.NewRecorder()
	NewRouter(check).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, deadline)
}
