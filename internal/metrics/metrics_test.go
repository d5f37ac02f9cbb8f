package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func valueOf(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var pb dto.Metric
	if err := (<-ch).Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveOrder("BUY", "filled", 2*time.Millisecond)
	m.ObserveOrder("BUY", "filled", time.Millisecond)
	m.ObserveOrder("SELL", "rejected", time.Millisecond)

	if got := valueOf(t, m.OrdersTotal.WithLabelValues("BUY", "filled")); got != 2 {
		t.Errorf("filled buys: got %v, want 2", got)
	}
	if got := valueOf(t, m.OrdersTotal.WithLabelValues("SELL", "rejected")); got != 1 {
		t.Errorf("rejected sells: got %v, want 1", got)
	}

	// A second registry must accept a second instance.
	NewMetrics(prometheus.NewRegistry())
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOrder("BUY", "filled", time.Millisecond)
	m.ObserveSignal("HOLD", time.Millisecond)
	m.IncFallback("longterm")
	m.IncMarketDataError("quote")
	m.SetBreakerState(1)
	m.SetWSClients(3)
	m.IncNotifyFailure()
}

func TestMetrics_BreakerTripCountsOpenTransitions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetBreakerState(1)
	m.SetBreakerState(2)
	m.SetBreakerState(0)
	m.SetBreakerState(1)

	if got := valueOf(t, m.RedisCircuitBreakerTrips); got != 2 {
		t.Errorf("trips: got %v, want 2", got)
	}
	if got := valueOf(t, m.RedisCircuitBreakerState); got != 1 {
		t.Errorf("state: got %v, want 1", got)
	}
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	tests := []struct {
		name     string
		redis    bool
		sqlite   bool
		wantCode int
		want     string
	}{
		{"all up", true, true, http.StatusOK, "healthy"},
		{"redis down", false, true, http.StatusOK, "degraded"},
		{"sqlite down", true, false, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthStatus()
			h.RedisConnected = tc.redis
			h.SQLiteOK = tc.sqlite

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tc.wantCode {
				t.Errorf("code: got %d, want %d", rec.Code, tc.wantCode)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body.Status != tc.want {
				t.Errorf("status: got %q, want %q", body.Status, tc.want)
			}
		})
	}
}
