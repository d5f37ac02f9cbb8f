// Package signal turns price history into trade recommendations.
//
// Three generators each judge one horizon (intraday, short-term, long-term)
// from its own series. The Engine runs them concurrently, applies the
// fallback policy to horizons without enough history and merges the three
// opinions through the consolidator.
package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"papertrade/internal/metrics"
	"papertrade/internal/model"
)

// FallbackPolicy decides what happens when a horizon lacks history.
type FallbackPolicy string

const (
	// FallbackHold replaces the horizon with a zero-confidence HOLD.
	FallbackHold FallbackPolicy = "hold"
	// FallbackFail returns the InsufficientDataError to the caller.
	FallbackFail FallbackPolicy = "fail"
)

// ParseFallbackPolicy accepts "hold" or "fail"; empty means hold.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(s) {
	case "", FallbackHold:
		return FallbackHold, nil
	case FallbackFail:
		return FallbackFail, nil
	}
	return "", fmt.Errorf("signal: unknown fallback policy %q", s)
}

// Recommendation is the per-horizon detail plus the consolidated verdict.
type Recommendation struct {
	Symbol       string                   `json:"symbol"`
	Intraday     model.HorizonSignal      `json:"intraday"`
	ShortTerm    model.HorizonSignal      `json:"shortterm"`
	LongTerm     model.HorizonSignal      `json:"longterm"`
	Consolidated model.ConsolidatedSignal `json:"consolidated"`
}

// Signals returns the horizon signals in canonical order.
func (r Recommendation) Signals() []model.HorizonSignal {
	return []model.HorizonSignal{r.Intraday, r.ShortTerm, r.LongTerm}
}

// EngineConfig configures an Engine. Zero values take the defaults.
type EngineConfig struct {
	Params   Params
	Weights  Weights
	Fallback FallbackPolicy
}

// Engine is stateless between calls and safe for concurrent use.
type Engine struct {
	generators map[model.Horizon]Generator
	weights    Weights
	fallback   FallbackPolicy

	market  model.MarketData    // optional, used by Analyze
	journal model.SignalJournal // optional
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMarketData sets the history source used by Analyze.
func WithMarketData(md model.MarketData) Option {
	return func(e *Engine) { e.market = md }
}

// WithJournal records every recommendation Analyze issues.
func WithJournal(j model.SignalJournal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine validates cfg and builds the three generators.
func NewEngine(cfg EngineConfig, log *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg.Params == (Params{}) {
		cfg.Params = DefaultParams()
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackHold
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseFallbackPolicy(string(cfg.Fallback)); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		generators: make(map[model.Horizon]Generator, len(model.Horizons)),
		weights:    cfg.Weights,
		fallback:   cfg.Fallback,
		log:        log.With("component", "signal"),
	}
	for _, h := range model.Horizons {
		g, err := NewGenerator(h, cfg.Params)
		if err != nil {
			return nil, err
		}
		e.generators[h] = g
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Recommend evaluates the three horizons over the given histories and
// consolidates them. A missing history counts as an empty series.
func (e *Engine) Recommend(symbol string, histories map[model.Horizon][]model.PricePoint) (Recommendation, error) {
	start := time.Now()

	var (
		wg      sync.WaitGroup
		results [3]model.HorizonSignal
		errs    [3]error
	)
	for i, h := range model.Horizons {
		wg.Add(1)
		go func(i int, h model.Horizon) {
			defer wg.Done()
			results[i], errs[i] = e.evaluate(symbol, h, histories[h])
		}(i, h)
	}
	wg.Wait()

	if err := errors.Join(errs[:]...); err != nil {
		return Recommendation{}, err
	}

	rec := Recommendation{
		Symbol:    symbol,
		Intraday:  results[0],
		ShortTerm: results[1],
		LongTerm:  results[2],
	}
	rec.Consolidated = ConsolidateWeighted(e.weights, rec.Signals()...)

	e.metrics.ObserveSignal(string(rec.Consolidated.Direction), time.Since(start))
	e.log.Debug("recommendation",
		"symbol", symbol,
		"direction", rec.Consolidated.Direction,
		"confidence", rec.Consolidated.Confidence,
		"contributing", rec.Consolidated.Contributing,
	)
	return rec, nil
}

// evaluate runs one generator and applies the fallback policy.
func (e *Engine) evaluate(symbol string, h model.Horizon, series []model.PricePoint) (model.HorizonSignal, error) {
	s, err := e.generators[h].Generate(series)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, model.ErrInsufficientData) || e.fallback == FallbackFail {
		return model.HorizonSignal{}, fmt.Errorf("%s %s: %w", symbol, h, err)
	}

	var entry float64
	var asOf time.Time
	if n := len(series); n > 0 {
		entry, asOf = series[n-1].Close, series[n-1].TS
	}
	hold := model.HoldSignal(h, entry, 0, asOf)
	hold.Fallback = true
	hold.Reason = err.Error()

	e.metrics.IncFallback(string(h))
	e.log.Warn("horizon fell back to HOLD",
		"symbol", symbol,
		"horizon", h,
		"error", err,
	)
	return hold, nil
}

// Analyze fetches the three histories from market data, recommends and
// journals the result. Journal failures are logged, not returned.
func (e *Engine) Analyze(ctx context.Context, symbol string) (Recommendation, error) {
	if e.market == nil {
		return Recommendation{}, fmt.Errorf("signal: no market data source configured")
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		histories = make(map[model.Horizon][]model.PricePoint, len(model.Horizons))
		errs      [3]error
	)
	for i, h := range model.Horizons {
		wg.Add(1)
		go func(i int, h model.Horizon) {
			defer wg.Done()
			series, err := e.market.History(ctx, symbol, h)
			if err != nil {
				errs[i] = err
				return
			}
			mu.Lock()
			histories[h] = series
			mu.Unlock()
		}(i, h)
	}
	wg.Wait()

	// A horizon with no history at all is left to the fallback policy; the
	// symbol is unknown only when every horizon is missing. Other failures
	// are reported in horizon order so the error is stable.
	missing := 0
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, model.ErrSymbolNotFound):
			missing++
		default:
			return Recommendation{}, err
		}
	}
	if missing == len(errs) {
		return Recommendation{}, errs[0]
	}

	rec, err := e.Recommend(symbol, histories)
	if err != nil {
		return Recommendation{}, err
	}

	if e.journal != nil {
		if err := e.journal.RecordSignals(ctx, symbol, rec.Signals(), rec.Consolidated); err != nil {
			e.log.Error("journal signals failed", "symbol", symbol, "error", err)
		}
	}
	return rec, nil
}
