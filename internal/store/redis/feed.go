package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrade/internal/model"
)

// historyMaxLen bounds each history stream; trimming is approximate.
const historyMaxLen = 1000

// Feed writes quotes and bars in the layout MarketData reads. It is the
// upstream side of the store, used by the seeder and by tests against a
// live Redis.
type Feed struct {
	client *goredis.Client
	log    *slog.Logger
}

// NewFeed wraps a client. The client is shared, not owned.
func NewFeed(client *goredis.Client, log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{client: client, log: log.With("component", "feed")}
}

// quoteFields is the hash layout parseQuote reads.
func quoteFields(price float64, ts time.Time) []interface{} {
	return []interface{}{
		"price", strconv.FormatFloat(price, 'f', -1, 64),
		"ts", strconv.FormatInt(ts.UnixMilli(), 10),
	}
}

// barValues is the stream entry layout decodeBars reads.
func barValues(p model.PricePoint) map[string]interface{} {
	return map[string]interface{}{"data": string(p.JSON())}
}

// symbolKeys lists every key holding data of symbol.
func symbolKeys(symbol string) []string {
	keys := []string{QuoteKey(symbol)}
	for _, h := range model.Horizons {
		keys = append(keys, HistoryKey(h, symbol))
	}
	return keys
}

// PutQuote sets the latest quote of a symbol.
func (f *Feed) PutQuote(ctx context.Context, q model.Quote) error {
	err := f.client.HSet(ctx, QuoteKey(q.Symbol), quoteFields(q.Price, q.TS)...).Err()
	if err != nil {
		return fmt.Errorf("redis HSET %s: %w", QuoteKey(q.Symbol), err)
	}
	return nil
}

// AppendBar adds one bar to a horizon stream. When the bar belongs to the
// intraday horizon its close also becomes the symbol's quote, in the same
// pipeline.
func (f *Feed) AppendBar(ctx context.Context, symbol string, h model.Horizon, p model.PricePoint) error {
	pipe := f.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: HistoryKey(h, symbol),
		MaxLen: historyMaxLen,
		Approx: true,
		Values: barValues(p),
	})
	if h == model.HorizonIntraday {
		pipe.HSet(ctx, QuoteKey(symbol), quoteFields(p.Close, p.TS)...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		f.log.Error("bar pipeline failed", "symbol", symbol, "horizon", h, "error", err)
		return fmt.Errorf("redis append %s: %w", HistoryKey(h, symbol), err)
	}
	return nil
}

// Reset removes a symbol's quote and history streams.
func (f *Feed) Reset(ctx context.Context, symbol string) error {
	if err := f.client.Del(ctx, symbolKeys(symbol)...).Err(); err != nil {
		return fmt.Errorf("redis reset %s: %w", symbol, err)
	}
	return nil
}
