package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading service.
// All recording methods are safe on a nil *Metrics.
type Metrics struct {
	// Order flow
	OrdersTotal *prometheus.CounterVec // labels: side, outcome
	OrderDur    prometheus.Histogram

	// Signal engine
	SignalsTotal     *prometheus.CounterVec // labels: direction
	SignalComputeDur prometheus.Histogram
	SignalFallbacks  *prometheus.CounterVec // labels: horizon

	// Market data collaborator
	MarketDataErrors         *prometheus.CounterVec // labels: op
	RedisCircuitBreakerState prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Fan-out
	WSClients      prometheus.Gauge
	NotifyFailures prometheus.Counter
}

// NewMetrics creates all metrics and registers them on reg.
// Pass prometheus.DefaultRegisterer in main and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrade_orders_total",
			Help: "Orders processed by side and outcome (filled, rejected, error)",
		}, []string{"side", "outcome"}),
		OrderDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrade_order_duration_seconds",
			Help:    "Order execution latency including quote lookup and ledger commit",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrade_signals_total",
			Help: "Consolidated recommendations issued by direction",
		}, []string{"direction"}),
		SignalComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrade_signal_compute_duration_seconds",
			Help:    "Time to evaluate three horizons and consolidate",
			Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		SignalFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrade_signal_fallbacks_total",
			Help: "Horizon evaluations replaced by the HOLD fallback for lack of history",
		}, []string{"horizon"}),

		MarketDataErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrade_market_data_errors_total",
			Help: "Market data lookups that failed (quote, history)",
		}, []string{"op"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrade_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrade_ws_clients",
			Help: "Connected websocket clients",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_notify_failures_total",
			Help: "Fill notifications that could not be delivered",
		}),
	}

	reg.MustRegister(
		m.OrdersTotal,
		m.OrderDur,
		m.SignalsTotal,
		m.SignalComputeDur,
		m.SignalFallbacks,
		m.MarketDataErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
		m.NotifyFailures,
	)

	return m
}

// ObserveOrder records one order outcome and its latency.
func (m *Metrics) ObserveOrder(side, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(side, outcome).Inc()
	m.OrderDur.Observe(d.Seconds())
}

// ObserveSignal records one consolidated recommendation.
func (m *Metrics) ObserveSignal(direction string, d time.Duration) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(direction).Inc()
	m.SignalComputeDur.Observe(d.Seconds())
}

// IncFallback counts a horizon that fell back to HOLD.
func (m *Metrics) IncFallback(horizon string) {
	if m == nil {
		return
	}
	m.SignalFallbacks.WithLabelValues(horizon).Inc()
}

// IncMarketDataError counts a failed market data lookup.
func (m *Metrics) IncMarketDataError(op string) {
	if m == nil {
		return
	}
	m.MarketDataErrors.WithLabelValues(op).Inc()
}

// SetBreakerState mirrors the circuit breaker state; a transition to open counts as a trip.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// SetWSClients sets the connected websocket client gauge.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// IncNotifyFailure counts an undelivered notification.
func (m *Metrics) IncNotifyFailure() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}

// HealthStatus represents the health of the service's dependencies.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool `json:"redis_connected"`
	SQLiteOK       bool `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is cancelled.
// Either dependency may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}

	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
// SQLite down means the ledger is down: unhealthy. Redis down only degrades
// signals and market orders.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected {
		overallStatus = "degraded"
	}
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
	log    *slog.Logger
}

// NewServer creates a metrics and health server for the given gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		log:    log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("metrics server error", slog.Any("error", err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
