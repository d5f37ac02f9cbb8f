// Package bars folds price ticks into fixed-width OHLCV bars.
package bars

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"papertrade/internal/model"
)

// Tick is one traded price.
type Tick struct {
	Symbol string
	Price  float64
	Qty    int64
	TS     time.Time
}

// Bar is a finished bar for one symbol.
type Bar struct {
	Symbol string
	Ticks  int
	model.PricePoint
}

type barState struct {
	bucket time.Time
	bar    Bar
}

// Builder keeps one open bar per symbol and finalizes it when a tick from a
// later bucket arrives or the bucket's end has passed.
type Builder struct {
	mu     sync.Mutex
	width  time.Duration
	states map[string]*barState
	now    func() time.Time
	log    *slog.Logger

	// OnLateTick is called for ticks older than the open bar. Optional.
	OnLateTick func(symbol string)
}

// New creates a builder for bars of the given width.
func New(width time.Duration, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		width:  width,
		states: make(map[string]*barState),
		now:    time.Now,
		log:    log.With("component", "bars"),
	}
}

// Add folds a tick into its symbol's open bar. It returns the bar the tick
// closed, if any.
func (b *Builder) Add(t Tick) (Bar, bool) {
	bucket := t.TS.Truncate(b.width)

	b.mu.Lock()
	state, ok := b.states[t.Symbol]
	if ok && bucket.Before(state.bucket) {
		late := b.OnLateTick
		b.mu.Unlock()
		if late != nil {
			late(t.Symbol)
		}
		return Bar{}, false
	}
	defer b.mu.Unlock()

	var closed Bar
	emitted := false
	if ok && bucket.After(state.bucket) {
		closed, emitted = state.bar, true
		ok = false
	}
	if !ok {
		b.states[t.Symbol] = &barState{
			bucket: bucket,
			bar: Bar{
				Symbol: t.Symbol,
				Ticks:  1,
				PricePoint: model.PricePoint{
					TS:     bucket,
					Open:   t.Price,
					High:   t.Price,
					Low:    t.Price,
					Close:  t.Price,
					Volume: t.Qty,
				},
			},
		}
		return closed, emitted
	}

	p := &state.bar.PricePoint
	p.High = max(p.High, t.Price)
	p.Low = min(p.Low, t.Price)
	p.Close = t.Price
	p.Volume += t.Qty
	state.bar.Ticks++
	return Bar{}, false
}

// Expired removes and returns the bars whose bucket ended at or before now.
func (b *Builder) Expired() []Bar {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Bar
	for sym, state := range b.states {
		if !state.bucket.Add(b.width).After(now) {
			out = append(out, state.bar)
			delete(b.states, sym)
		}
	}
	return out
}

// Drain removes and returns every open bar.
func (b *Builder) Drain() []Bar {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Bar, 0, len(b.states))
	for sym, state := range b.states {
		out = append(out, state.bar)
		delete(b.states, sym)
	}
	return out
}

// Run consumes ticks until ctx is done or ticks is closed, sending finished
// bars to out. Open bars are flushed on exit. A full out drops the bar.
func (b *Builder) Run(ctx context.Context, ticks <-chan Tick, out chan<- Bar) {
	check := time.NewTicker(min(b.width/4, time.Second))
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			b.emit(out, b.Drain()...)
			return
		case t, ok := <-ticks:
			if !ok {
				b.emit(out, b.Drain()...)
				return
			}
			if bar, closed := b.Add(t); closed {
				b.emit(out, bar)
			}
		case <-check.C:
			b.emit(out, b.Expired()...)
		}
	}
}

func (b *Builder) emit(out chan<- Bar, bars ...Bar) {
	for _, bar := range bars {
		select {
		case out <- bar:
		default:
			b.log.Warn("bar channel full, dropping bar", "symbol", bar.Symbol, "ts", bar.TS)
		}
	}
}
