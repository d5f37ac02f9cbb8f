// Package api exposes the signal engine, the executor and the ledger over HTTP.
//
// Callers are authenticated upstream: every account-scoped route reads the
// resolved account id from the X-Account-ID header and never verifies it.
package api

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"papertrade/internal/execution"
	"papertrade/internal/gateway"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/model"
	"papertrade/internal/signal"
	"papertrade/internal/store/sqlite"
)

// SignalHistory reads back the signal journal for display.
type SignalHistory interface {
	RecentSignals(ctx context.Context, symbol string, limit int) ([]sqlite.SignalEntry, error)
}

// Deps are the collaborators behind the routes. Journal, Hub, Health and
// Gatherer are optional.
type Deps struct {
	Engine   *signal.Engine
	Executor *execution.Executor
	Ledger   *ledger.Ledger
	Market   model.MarketData
	Journal  SignalHistory
	Hub      *gateway.Hub
	Health   http.Handler
	Gatherer prometheus.Gatherer

	// InitialBalance funds accounts opened through the API.
	InitialBalance decimal.Decimal
	// Universe is the symbol list searched by /api/v1/market/search.
	Universe []string

	Log *slog.Logger
}

type server struct {
	Deps
	log *slog.Logger
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	s := &server{Deps: d, log: d.Log.With("component", "api")}
	mux := http.NewServeMux()

	if d.Health != nil {
		mux.Handle("GET /api/v1/health", d.Health)
	} else {
		mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}

	mux.HandleFunc("GET /api/v1/market/price/{symbol}", s.handlePrice)
	mux.HandleFunc("GET /api/v1/market/history/{symbol}", s.handleHistory)
	mux.HandleFunc("GET /api/v1/market/search", s.handleSearch)

	mux.HandleFunc("POST /api/v1/signals/{symbol}", s.handleSignals)
	mux.HandleFunc("POST /api/v1/trade/plan", s.handleTradePlan)
	if d.Journal != nil {
		mux.HandleFunc("GET /api/v1/signals/{symbol}/history", s.handleSignalHistory)
	}
	mux.Handle("POST /api/v1/accounts", s.account(s.handleOpenAccount))
	mux.Handle("POST /api/v1/trading/buy", s.account(s.handleOrder(model.TradeBuy)))
	mux.Handle("POST /api/v1/trading/sell", s.account(s.handleOrder(model.TradeSell)))
	mux.Handle("GET /api/v1/portfolio", s.account(s.handlePortfolio))
	mux.Handle("GET /api/v1/portfolio/trades", s.account(s.handleTrades))

	if d.Hub != nil {
		mux.Handle("GET /ws", d.Hub)
	}
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	return s.withRequestID(mux)
}

// withRequestID propagates X-Request-ID, generating one when absent, and
// logs each request.
func (s *server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logger.GenerateRequestID("req", start)
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logger.WithRequestID(r.Context(), id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.log.Debug("http request", append(logger.Attrs(ctx),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
		)...)
	})
}

// account rejects requests without a resolved account id.
func (s *server) account(next func(http.ResponseWriter, *http.Request, string)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(gateway.AccountHeader)
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing "+gateway.AccountHeader+" header", nil)
			return
		}
		next(w, r, id)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack lets the websocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer does not support hijacking")
	}
	return h.Hijack()
}
