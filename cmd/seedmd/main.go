// cmd/seedmd fills Redis with simulated market data for local runs: a quote
// and three horizon histories per universe symbol, produced by a random walk
// over the NSE calendar (5-minute session bars, daily and weekly closes).
// With SEED_TICK_MS set it keeps streaming ticks afterwards, updating quotes
// and folding them into intraday bars.
//
// Config (env vars, on top of config.Load):
//
//	SEED_BARS       bars per horizon (default: 300)
//	SEED_TICK_MS    live tick interval in milliseconds, 0 for a one-shot seed (default: 0)
//	SEED_BAR_WIDTH  live intraday bar width (default: 5m)
//	SEED_RESET      "1" deletes existing keys before seeding
package main

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrade/config"
	"papertrade/internal/logger"
	"papertrade/internal/marketdata/bars"
	"papertrade/internal/markethours"
	"papertrade/internal/model"
	"papertrade/internal/store/redis"
)

// basePrices are rough INR starting points; other symbols start at 1000.
var basePrices = map[string]float64{
	"RELIANCE":  2850,
	"INFY":      1500,
	"TCS":       3900,
	"HDFCBANK":  1650,
	"ICICIBANK": 1100,
	"SBIN":      780,
	"ITC":       440,
	"MARUTI":    12300,
}

// intradayStep is the width of seeded intraday bars.
const intradayStep = 5 * time.Minute

// walker produces a random walk of OHLC bars for one symbol.
type walker struct {
	rng   *rand.Rand
	price float64
	// maxMove is the largest relative close-to-close move of one bar.
	maxMove float64
}

func (w *walker) next(ts time.Time) model.PricePoint {
	open := w.price
	pct := (w.rng.Float64()*2 - 1) * w.maxMove
	closePrice := open * (1 + pct)
	if closePrice < 1 {
		closePrice = 1
	}
	high := max(open, closePrice) * (1 + w.rng.Float64()*w.maxMove/2)
	low := min(open, closePrice) * (1 - w.rng.Float64()*w.maxMove/2)
	w.price = closePrice
	return model.PricePoint{
		TS:     ts,
		Open:   round2(open),
		High:   round2(high),
		Low:    round2(low),
		Close:  round2(closePrice),
		Volume: int64(w.rng.Intn(10000) + 100),
	}
}

func round2(f float64) float64 { return float64(int64(f*100+0.5)) / 100 }

// series generates one bar per timestamp.
func series(w *walker, times []time.Time) []model.PricePoint {
	out := make([]model.PricePoint, len(times))
	for i, ts := range times {
		out[i] = w.next(ts)
	}
	return out
}

// barTimes returns the n most recent bar timestamps of a horizon before end.
func barTimes(h model.Horizon, end time.Time, n int) []time.Time {
	switch h {
	case model.HorizonIntraday:
		return markethours.IntradaySlots(end, n, intradayStep)
	case model.HorizonShortTerm:
		return markethours.DailyCloses(end, n)
	default:
		return markethours.WeeklyCloses(end, n)
	}
}

func basePrice(symbol string) float64 {
	if p, ok := basePrices[symbol]; ok {
		return p
	}
	return 1000
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logger.Init("seedmd", logger.ParseLevel(cfg.LogLevel))

	n := envInt("SEED_BARS", 300)
	tickMs := envInt("SEED_TICK_MS", 0)
	width := intradayStep
	if v := os.Getenv("SEED_BAR_WIDTH"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			width = d
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Error("redis connection failed", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	feed := redis.NewFeed(client, log)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now()
	intraday := make(map[string]*walker, len(cfg.Universe))

	for _, symbol := range cfg.Universe {
		if os.Getenv("SEED_RESET") == "1" {
			if err := feed.Reset(ctx, symbol); err != nil {
				log.Error("reset failed", "symbol", symbol, "error", err)
				os.Exit(1)
			}
		}
		// Longer horizons walk with wider bars; intraday is written last so
		// its final close becomes the quote.
		for _, h := range []model.Horizon{model.HorizonLongTerm, model.HorizonShortTerm, model.HorizonIntraday} {
			w := &walker{rng: rng, price: basePrice(symbol), maxMove: moveFor(h)}
			for _, p := range series(w, barTimes(h, now, n)) {
				if err := feed.AppendBar(ctx, symbol, h, p); err != nil {
					log.Error("seed failed", "symbol", symbol, "horizon", h, "error", err)
					os.Exit(1)
				}
			}
			if h == model.HorizonIntraday {
				intraday[symbol] = w
			}
		}
		log.Info("seeded", "symbol", symbol, "bars", n)
	}

	if tickMs <= 0 {
		return
	}
	stream(ctx, feed, intraday, time.Duration(tickMs)*time.Millisecond, width, rng, log)
}

// stream emits one tick per symbol per interval until ctx is done. Each tick
// updates the quote; finished bars are appended to the intraday history.
func stream(ctx context.Context, feed *redis.Feed, walkers map[string]*walker, interval, width time.Duration, rng *rand.Rand, log *slog.Logger) {
	log.Info("streaming live ticks", "interval", interval, "bar_width", width, "market_open", markethours.IsMarketOpen(time.Now()))

	builder := bars.New(width, log)
	builder.OnLateTick = func(symbol string) { log.Debug("late tick dropped", "symbol", symbol) }
	ticks := make(chan bars.Tick, 4*len(walkers))
	finished := make(chan bars.Bar, 4*len(walkers))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for bar := range finished {
			// Background context: bars flushed on shutdown still land.
			if err := feed.AppendBar(context.Background(), bar.Symbol, model.HorizonIntraday, bar.PricePoint); err != nil {
				log.Warn("live bar failed", "symbol", bar.Symbol, "error", err)
			}
		}
	}()
	go func() {
		builder.Run(ctx, ticks, finished)
		close(finished)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-done
			return
		case now := <-ticker.C:
			for symbol, w := range walkers {
				p := w.next(now)
				if err := feed.PutQuote(ctx, model.Quote{Symbol: symbol, Price: p.Close, TS: now}); err != nil {
					log.Warn("quote update failed", "symbol", symbol, "error", err)
				}
				select {
				case ticks <- bars.Tick{Symbol: symbol, Price: p.Close, Qty: int64(rng.Intn(100) + 1), TS: now}:
				default:
					log.Warn("tick channel full", "symbol", symbol)
				}
			}
		}
	}
}

func moveFor(h model.Horizon) float64 {
	switch h {
	case model.HorizonIntraday:
		return 0.002
	case model.HorizonShortTerm:
		return 0.015
	default:
		return 0.04
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
