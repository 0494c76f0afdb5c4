package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tahfidz-api/internal/service"
)

type pingerStub struct{ err error }

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func serveMetrics(h *MetricsHandler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", h.Prometheus)
	r.GET("/ready", h.Ready)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestMetricsHandlerExposesLadderCounters(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.WarningIssued(2)

	w := serveMetrics(NewMetricsHandler(metrics, nil), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `warnings_issued_total{level="2"} 1`)
}

func TestMetricsHandlerReady(t *testing.T) {
	assert.Equal(t, http.StatusOK, serveMetrics(NewMetricsHandler(nil, pingerStub{}), "/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serveMetrics(NewMetricsHandler(nil, pingerStub{err: errors.New("down")}), "/ready").Code)
}
