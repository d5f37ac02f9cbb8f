package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"papertrade/internal/execution"
	"papertrade/internal/gateway"
	"papertrade/internal/logger"
	"papertrade/internal/model"
	"papertrade/internal/store/sqlite"
)

const (
	maxBodyBytes = 1 << 16

	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

func (s *server) handleSignals(w http.ResponseWriter, r *http.Request) {
	s.analyze(w, r, strings.ToUpper(strings.TrimSpace(r.PathValue("symbol"))))
}

// analyze runs the signal engine for symbol and broadcasts the result.
func (s *server) analyze(w http.ResponseWriter, r *http.Request, symbol string) {
	rec, err := s.Engine.Analyze(r.Context(), symbol)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.Hub != nil {
		s.Hub.Publish(gateway.ChannelSignals, "", rec)
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleSignalHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	limit, ok := queryLimit(w, r, defaultHistoryLimit)
	if !ok {
		return
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	entries, err := s.Journal.RecentSignals(r.Context(), symbol, min(limit, maxHistoryLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []sqlite.SignalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) handleOpenAccount(w http.ResponseWriter, r *http.Request, accountID string) {
	acct, err := s.Ledger.OpenAccount(r.Context(), accountID, s.InitialBalance)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *server) handleOrder(side model.TradeType) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, accountID string) {
		var req execution.OrderRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error(), nil)
			return
		}
		req.AccountID = accountID
		req.Side = side
		req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

		rec, err := s.Executor.Execute(r.Context(), req)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// handlePortfolio values the account at current quotes. A holding whose
// quote cannot be read is reported in the valuation's unpriced list and the
// reason is logged; the rest of the account is still valued.
func (s *server) handlePortfolio(w http.ResponseWriter, r *http.Request, accountID string) {
	ctx := r.Context()
	_, holdings, err := s.Ledger.Holdings(ctx, accountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		prices = make(map[string]decimal.Decimal, len(holdings))
	)
	for _, h := range holdings {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			q, err := s.Market.CurrentPrice(ctx, symbol)
			if err != nil {
				s.log.Warn("holding left unpriced", append(logger.Attrs(ctx), "symbol", symbol, "error", err)...)
				return
			}
			mu.Lock()
			prices[symbol] = decimal.NewFromFloat(q.Price)
			mu.Unlock()
		}(h.Symbol)
	}
	wg.Wait()

	v, err := s.Ledger.Valuation(ctx, accountID, prices)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) handleTrades(w http.ResponseWriter, r *http.Request, accountID string) {
	limit, ok := queryLimit(w, r, 0)
	if !ok {
		return
	}
	hist, err := s.Ledger.History(r.Context(), accountID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// queryLimit parses the limit query parameter. On a bad value it writes the
// 400 and reports false.
func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", nil)
		return 0, false
	}
	return n, true
}

// fail maps err to a status and writes it. Server-side failures are logged.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", append(logger.Attrs(r.Context()), "path", r.URL.Path, "error", err)...)
	}
	var verr *execution.OrderValidationError
	if errors.As(err, &verr) {
		writeError(w, code, err.Error(), verr.Fields)
		return
	}
	writeError(w, code, err.Error(), nil)
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidOrder),
		errors.Is(err, model.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAccountNotFound),
		errors.Is(err, model.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, model.ErrInsufficientFunds),
		errors.Is(err, model.ErrInsufficientHolding),
		errors.Is(err, model.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrMarketDataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error  string                 `json:"error"`
	Fields []execution.FieldError `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg string, fields []execution.FieldError) {
	writeJSON(w, code, errorBody{Error: msg, Fields: fields})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
