package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/appointment-watch/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/v1/health-check/{action}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(metrics.RequestCount.WithLabelValues("/v1/health-check/{action}", http.MethodGet, "418"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	after := testutil.ToFloat64(metrics.RequestCount.WithLabelValues("/v1/health-check/{action}", http.MethodGet, "418"))

	assert.Equal(t, before+1, after)
}
