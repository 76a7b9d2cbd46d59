package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xpads/curvewatch/internal/metrics"
)

func TestHealthzReportsComponents(t *testing.T) {
	s := NewServer(0, "test", func(ctx context.Context) map[string]bool {
		return map[string]bool{"cache": true, "chain": true, "backend": true}
	}, prometheus.NewRegistry())

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Components["chain"])
}

func TestHealthzDegradedWhenAnyComponentDown(t *testing.T) {
	s := NewServer(0, "test", func(ctx context.Context) map[string]bool {
		return map[string]bool{"cache": true, "chain": false}
	}, prometheus.NewRegistry())

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	met.TradesProcessed.Inc()

	s := NewServer(0, "test", nil, reg)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "curvewatch_trades_processed_total 1")
}
