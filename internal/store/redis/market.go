// Package redis is the market data collaborator: it reads quotes and price
// history that an upstream feed keeps in Redis, behind a circuit breaker.
//
// Key layout:
//
//	quote:{SYMBOL}             hash   price, ts (unix millis)
//	history:{horizon}:{SYMBOL} stream one bar per entry, field "data" = PricePoint JSON
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrade/internal/metrics"
	"papertrade/internal/model"
)

// Config configures the Redis market data reader.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	// Lookback is the number of bars History returns per horizon.
	Lookback map[model.Horizon]int64

	Breaker BreakerConfig
	Timeout time.Duration // per-call deadline, default 2s
}

// DefaultLookback covers each generator's minimum history with headroom and
// lets the long-term SMA reach its full 200-bar window.
func DefaultLookback() map[model.Horizon]int64 {
	return map[model.Horizon]int64{
		model.HorizonIntraday:  100,
		model.HorizonShortTerm: 90,
		model.HorizonLongTerm:  260,
	}
}

// QuoteKey is the hash holding a symbol's latest quote.
func QuoteKey(symbol string) string { return "quote:" + symbol }

// HistoryKey is the stream holding a symbol's bars for one horizon.
func HistoryKey(h model.Horizon, symbol string) string {
	return "history:" + string(h) + ":" + symbol
}

// MarketData implements model.MarketData over Redis.
type MarketData struct {
	client   *goredis.Client
	cb       *CircuitBreaker
	lookback map[model.Horizon]int64
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// Client returns the underlying Redis client for health checks.
func (m *MarketData) Client() *goredis.Client { return m.client }

// Breaker returns the circuit breaker guarding lookups.
func (m *MarketData) Breaker() *CircuitBreaker { return m.cb }

// NewMarketData creates the reader. It does not ping: Redis may come up
// after the service, and the breaker reports outages per call.
func NewMarketData(cfg Config, m *metrics.Metrics, log *slog.Logger) *MarketData {
	if log == nil {
		log = slog.Default()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newMarketData(client, cfg, m, log)
}

func newMarketData(client *goredis.Client, cfg Config, m *metrics.Metrics, log *slog.Logger) *MarketData {
	lookback := DefaultLookback()
	for h, n := range cfg.Lookback {
		if n > 0 {
			lookback[h] = n
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	md := &MarketData{
		client:   client,
		cb:       NewCircuitBreaker(cfg.Breaker),
		lookback: lookback,
		timeout:  timeout,
		metrics:  m,
		log:      log.With("component", "marketdata"),
	}
	md.cb.IsFailure = func(err error) bool { return !errors.Is(err, goredis.Nil) }
	md.cb.IsAbandoned = func(err error) bool {
		var ce *callerDone
		return errors.As(err, &ce)
	}
	md.cb.OnStateChange = func(from, to State) {
		md.metrics.SetBreakerState(int(to))
		md.log.Warn("redis circuit breaker transition", "from", from.String(), "to", to.String())
	}
	return md
}

// Ping checks connectivity.
func (m *MarketData) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// CurrentPrice returns the latest quote for symbol.
func (m *MarketData) CurrentPrice(ctx context.Context, symbol string) (model.Quote, error) {
	var fields map[string]string
	err := m.call(ctx, func(ctx context.Context) error {
		var err error
		fields, err = m.client.HGetAll(ctx, QuoteKey(symbol)).Result()
		if err == nil && len(fields) == 0 {
			return goredis.Nil
		}
		return err
	})
	if err != nil {
		return model.Quote{}, m.mapError("quote", symbol, err)
	}
	q, err := parseQuote(symbol, fields)
	if err != nil {
		return model.Quote{}, m.mapError("quote", symbol, err)
	}
	return q, nil
}

// parseQuote reads a quote hash. A missing or unparsable ts leaves TS zero.
func parseQuote(symbol string, fields map[string]string) (model.Quote, error) {
	price, err := strconv.ParseFloat(fields["price"], 64)
	if err != nil || price <= 0 {
		return model.Quote{}, fmt.Errorf("bad price %q", fields["price"])
	}
	q := model.Quote{Symbol: symbol, Price: price}
	if ms, err := strconv.ParseInt(fields["ts"], 10, 64); err == nil {
		q.TS = time.UnixMilli(ms).UTC()
	}
	return q, nil
}

// History returns up to the horizon's lookback of bars, oldest first.
func (m *MarketData) History(ctx context.Context, symbol string, h model.Horizon) ([]model.PricePoint, error) {
	n, ok := m.lookback[h]
	if !ok {
		return nil, fmt.Errorf("marketdata: unknown horizon %q", h)
	}

	var msgs []goredis.XMessage
	err := m.call(ctx, func(ctx context.Context) error {
		var err error
		msgs, err = m.client.XRevRangeN(ctx, HistoryKey(h, symbol), "+", "-", n).Result()
		if err == nil && len(msgs) == 0 {
			return goredis.Nil
		}
		return err
	})
	if err != nil {
		return nil, m.mapError("history", symbol, err)
	}
	return decodeBars(msgs, m.log), nil
}

// decodeBars turns newest-first stream entries into an oldest-first series.
// Malformed entries are skipped.
func decodeBars(msgs []goredis.XMessage, log *slog.Logger) []model.PricePoint {
	out := make([]model.PricePoint, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var p model.PricePoint
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			log.Warn("skip malformed bar", "id", msgs[i].ID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out
}

// callerDone marks a call that failed because the caller's own context
// ended, not because Redis did.
type callerDone struct{ err error }

func (e *callerDone) Error() string { return e.err.Error() }

// call runs fn through the breaker with the per-call deadline. Only that
// deadline counts against Redis: when the caller's context is cancelled or
// expires the breaker is left as it was and mapError hands the caller's
// context error back.
func (m *MarketData) call(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &callerDone{err: err}
	}
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.cb.Execute(func() error {
		err := fn(callCtx)
		if err != nil && callerEnded(ctx) {
			if ctx.Err() == nil {
				return &callerDone{err: context.DeadlineExceeded}
			}
			return &callerDone{err: ctx.Err()}
		}
		return err
	})
}

// callerEnded reports whether ctx is done or past its deadline. Redis
// socket deadlines can fire just before the context's own timer does.
func callerEnded(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	d, ok := ctx.Deadline()
	return ok && !time.Now().Before(d)
}

// mapError converts a Redis error to the market data error taxonomy.
// Caller context errors pass through unchanged and are not counted.
func (m *MarketData) mapError(op, symbol string, err error) error {
	var ce *callerDone
	if errors.As(err, &ce) {
		return ce.err
	}
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("%w: %s", model.ErrSymbolNotFound, symbol)
	}
	m.metrics.IncMarketDataError(op)
	return &model.MarketDataUnavailableError{Symbol: symbol, Err: err}
}

// Close closes the Redis client.
func (m *MarketData) Close() error {
	return m.client.Close()
}
