package signal

import (
	"fmt"
	"math"

	"papertrade/internal/indicator"
	"papertrade/internal/model"
)

// Params holds the indicator windows, bands and confidence constants of the
// three horizon generators.
type Params struct {
	// Intraday: RSI mean reversion
	RSIWindow         int     `yaml:"rsi_window"`
	Oversold          float64 `yaml:"oversold"`
	Overbought        float64 `yaml:"overbought"`
	IntradayStopPct   float64 `yaml:"intraday_stop_pct"`
	IntradayTargetPct float64 `yaml:"intraday_target_pct"`
	IntradayConfFloor float64 `yaml:"intraday_conf_floor"`
	IntradayConfCeil  float64 `yaml:"intraday_conf_ceil"`
	IntradayConfSlope float64 `yaml:"intraday_conf_slope"` // points per RSI unit past the band
	IntradayHoldConf  float64 `yaml:"intraday_hold_conf"`

	// Short-term: fast/slow SMA
	FastWindow     int     `yaml:"fast_window"`
	SlowWindow     int     `yaml:"slow_window"`
	ShortStopPct   float64 `yaml:"short_stop_pct"`
	ShortTargetPct float64 `yaml:"short_target_pct"`
	ShortBaseConf  float64 `yaml:"short_base_conf"`
	ShortConfSwing float64 `yaml:"short_conf_swing"` // ± applied by SMA gap
	ShortGapPivot  float64 `yaml:"short_gap_pivot"`  // gap % that leaves confidence at base
	ShortHoldConf  float64 `yaml:"short_hold_conf"`

	// Long-term: SMA trend, degrading to the longest window available
	LongWindow        int     `yaml:"long_window"`
	LongMinWindow     int     `yaml:"long_min_window"`
	LongSlopeLookback int     `yaml:"long_slope_lookback"`
	LongStopPct       float64 `yaml:"long_stop_pct"`
	LongTargetPct     float64 `yaml:"long_target_pct"`
	LongBaseConf      float64 `yaml:"long_base_conf"`
	LongHoldConf      float64 `yaml:"long_hold_conf"`
}

// DefaultParams returns the standard generator settings.
func DefaultParams() Params {
	return Params{
		RSIWindow:         indicator.DefaultRSIWindow,
		Oversold:          30,
		Overbought:        70,
		IntradayStopPct:   0.025,
		IntradayTargetPct: 0.02,
		IntradayConfFloor: 60,
		IntradayConfCeil:  85,
		IntradayConfSlope: 1.25,
		IntradayHoldConf:  60,

		FastWindow:     10,
		SlowWindow:     30,
		ShortStopPct:   0.035,
		ShortTargetPct: 0.08,
		ShortBaseConf:  82,
		ShortConfSwing: 3,
		ShortGapPivot:  1.0,
		ShortHoldConf:  65,

		LongWindow:        200,
		LongMinWindow:     50,
		LongSlopeLookback: 10,
		LongStopPct:       0.07,
		LongTargetPct:     0.14,
		LongBaseConf:      81,
		LongHoldConf:      70,
	}
}

// Validate rejects parameter sets the generators cannot evaluate.
func (p Params) Validate() error {
	switch {
	case p.RSIWindow <= 0 || p.FastWindow <= 0 || p.SlowWindow <= 0:
		return fmt.Errorf("signal params: windows must be positive")
	case p.FastWindow >= p.SlowWindow:
		return fmt.Errorf("signal params: fast window %d must be shorter than slow window %d", p.FastWindow, p.SlowWindow)
	case p.LongMinWindow <= 0 || p.LongMinWindow > p.LongWindow:
		return fmt.Errorf("signal params: long min window %d outside (0,%d]", p.LongMinWindow, p.LongWindow)
	case p.LongSlopeLookback <= 0:
		return fmt.Errorf("signal params: long slope lookback must be positive")
	case p.Oversold <= 0 || p.Overbought >= 100 || p.Oversold >= p.Overbought:
		return fmt.Errorf("signal params: RSI band (%.1f, %.1f) invalid", p.Oversold, p.Overbought)
	case p.IntradayConfFloor > p.IntradayConfCeil:
		return fmt.Errorf("signal params: intraday confidence floor above ceiling")
	}
	return nil
}

// Generator evaluates one horizon over a timestamp-ordered series.
// Implementations are pure: no state survives between calls.
type Generator interface {
	Horizon() model.Horizon

	// MinHistory is the shortest series Generate accepts.
	MinHistory() int

	// Generate returns the horizon's opinion on the last bar, or a
	// *model.InsufficientDataError when the series is shorter than MinHistory.
	Generate(series []model.PricePoint) (model.HorizonSignal, error)
}

// NewGenerator returns the generator for a horizon.
func NewGenerator(h model.Horizon, p Params) (Generator, error) {
	switch h {
	case model.HorizonIntraday:
		return &Intraday{p: p}, nil
	case model.HorizonShortTerm:
		return &ShortTerm{p: p}, nil
	case model.HorizonLongTerm:
		return &LongTerm{p: p}, nil
	}
	return nil, fmt.Errorf("signal: unknown horizon %q", h)
}

// GenerateHorizonSignal evaluates one horizon with the default parameters.
func GenerateHorizonSignal(symbol string, h model.Horizon, history []model.PricePoint) (model.HorizonSignal, error) {
	g, err := NewGenerator(h, DefaultParams())
	if err != nil {
		return model.HorizonSignal{}, err
	}
	sig, err := g.Generate(history)
	if err != nil {
		return model.HorizonSignal{}, fmt.Errorf("%s %s: %w", symbol, h, err)
	}
	return sig, nil
}

func checkHistory(g Generator, series []model.PricePoint) error {
	if len(series) < g.MinHistory() {
		return &model.InsufficientDataError{
			Indicator: string(g.Horizon()),
			Need:      g.MinHistory(),
			Have:      len(series),
		}
	}
	return nil
}

// bands places stop and target around entry: below/above for BUY, mirrored for SELL.
func bands(d model.Direction, entry, stopPct, targetPct float64) (stop, target float64) {
	if d == model.DirectionSell {
		return entry * (1 + stopPct), entry * (1 - targetPct)
	}
	return entry * (1 - stopPct), entry * (1 + targetPct)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ────────────────────────────────────────────────────────────
// Intraday
// ────────────────────────────────────────────────────────────

// Intraday is an RSI mean-reversion generator.
//
// Buy signal: RSI below the oversold line.
// Sell signal: RSI above the overbought line.
type Intraday struct {
	p Params
}

func (g *Intraday) Horizon() model.Horizon { return model.HorizonIntraday }
func (g *Intraday) MinHistory() int        { return g.p.RSIWindow + 1 }

func (g *Intraday) Generate(series []model.PricePoint) (model.HorizonSignal, error) {
	if err := checkHistory(g, series); err != nil {
		return model.HorizonSignal{}, err
	}
	rsi, err := indicator.RSI(indicator.Closes(series), g.p.RSIWindow)
	if err != nil {
		return model.HorizonSignal{}, err
	}

	last := series[len(series)-1]
	entry := last.Close

	var d model.Direction
	switch {
	case rsi < g.p.Oversold:
		d = model.DirectionBuy
	case rsi > g.p.Overbought:
		d = model.DirectionSell
	default:
		s := model.HoldSignal(model.HorizonIntraday, entry, g.p.IntradayHoldConf, last.TS)
		s.Reason = fmt.Sprintf("RSI %.1f inside neutral band", rsi)
		return s, nil
	}

	stop, target := bands(d, entry, g.p.IntradayStopPct, g.p.IntradayTargetPct)
	s, err := model.NewHorizonSignal(model.HorizonIntraday, d, entry, stop, target, g.confidence(rsi), last.TS)
	if err != nil {
		return model.HorizonSignal{}, err
	}
	s.Reason = fmt.Sprintf("RSI %.1f", rsi)
	return s, nil
}

// confidence grows linearly with the distance past the band edge,
// clamped to [floor, ceiling].
func (g *Intraday) confidence(rsi float64) float64 {
	excess := g.p.Oversold - rsi
	if rsi > g.p.Overbought {
		excess = rsi - g.p.Overbought
	}
	lo, hi := g.p.IntradayConfFloor, g.p.IntradayConfCeil
	return clamp(lo+excess*g.p.IntradayConfSlope, lo, hi)
}

// ────────────────────────────────────────────────────────────
// Short-term
// ────────────────────────────────────────────────────────────

// ShortTerm compares a fast and a slow SMA on the last bar.
//
// Buy signal: fast SMA above slow SMA (golden cross side)
// Sell signal: fast SMA below slow SMA (death cross side)
type ShortTerm struct {
	p Params
}

func (g *ShortTerm) Horizon() model.Horizon { return model.HorizonShortTerm }
func (g *ShortTerm) MinHistory() int        { return g.p.SlowWindow }

func (g *ShortTerm) Generate(series []model.PricePoint) (model.HorizonSignal, error) {
	if err := checkHistory(g, series); err != nil {
		return model.HorizonSignal{}, err
	}
	closes := indicator.Closes(series)
	fast, err := indicator.SMA(closes, g.p.FastWindow)
	if err != nil {
		return model.HorizonSignal{}, err
	}
	slow, err := indicator.SMA(closes, g.p.SlowWindow)
	if err != nil {
		return model.HorizonSignal{}, err
	}

	last := series[len(series)-1]
	entry := last.Close

	var d model.Direction
	switch {
	case fast > slow:
		d = model.DirectionBuy
	case fast < slow:
		d = model.DirectionSell
	default:
		s := model.HoldSignal(model.HorizonShortTerm, entry, g.p.ShortHoldConf, last.TS)
		s.Reason = "fast SMA equals slow SMA"
		return s, nil
	}

	gapPct := math.Abs(fast-slow) / entry * 100
	conf := g.p.ShortBaseConf + g.p.ShortConfSwing*clamp(gapPct-g.p.ShortGapPivot, -1, 1)

	stop, target := bands(d, entry, g.p.ShortStopPct, g.p.ShortTargetPct)
	s, err := model.NewHorizonSignal(model.HorizonShortTerm, d, entry, stop, target, conf, last.TS)
	if err != nil {
		return model.HorizonSignal{}, err
	}
	s.Reason = g.describe(closes, d, gapPct)
	return s, nil
}

// describe notes whether the cross happened on the last bar.
func (g *ShortTerm) describe(closes []float64, d model.Direction, gapPct float64) string {
	side := "above"
	if d == model.DirectionSell {
		side = "below"
	}
	prevFast, errF := indicator.SMAAt(closes, g.p.FastWindow, 1)
	prevSlow, errS := indicator.SMAAt(closes, g.p.SlowWindow, 1)
	if errF == nil && errS == nil {
		crossed := (d == model.DirectionBuy && prevFast <= prevSlow) ||
			(d == model.DirectionSell && prevFast >= prevSlow)
		if crossed {
			return fmt.Sprintf("SMA_%d crossed %s SMA_%d (gap %.2f%%)", g.p.FastWindow, side, g.p.SlowWindow, gapPct)
		}
	}
	return fmt.Sprintf("SMA_%d %s SMA_%d (gap %.2f%%)", g.p.FastWindow, side, g.p.SlowWindow, gapPct)
}

// ────────────────────────────────────────────────────────────
// Long-term
// ────────────────────────────────────────────────────────────

// LongTerm follows the long SMA trend. With less than LongWindow+lookback bars
// it uses the longest window the series allows, down to LongMinWindow.
//
// Buy signal: close above the SMA and the SMA rising over the lookback.
// Sell signal: close below the SMA and the SMA falling.
type LongTerm struct {
	p Params
}

func (g *LongTerm) Horizon() model.Horizon { return model.HorizonLongTerm }
func (g *LongTerm) MinHistory() int        { return g.p.LongMinWindow + g.p.LongSlopeLookback }

func (g *LongTerm) Generate(series []model.PricePoint) (model.HorizonSignal, error) {
	if err := checkHistory(g, series); err != nil {
		return model.HorizonSignal{}, err
	}
	closes := indicator.Closes(series)
	window := min(g.p.LongWindow, len(closes)-g.p.LongSlopeLookback)

	now, err := indicator.SMA(closes, window)
	if err != nil {
		return model.HorizonSignal{}, err
	}
	prev, err := indicator.SMAAt(closes, window, g.p.LongSlopeLookback)
	if err != nil {
		return model.HorizonSignal{}, err
	}

	last := series[len(series)-1]
	entry := last.Close

	var d model.Direction
	switch {
	case entry > now && now > prev:
		d = model.DirectionBuy
	case entry < now && now < prev:
		d = model.DirectionSell
	default:
		s := model.HoldSignal(model.HorizonLongTerm, entry, g.p.LongHoldConf, last.TS)
		s.Reason = fmt.Sprintf("no trend against SMA_%d", window)
		return s, nil
	}

	stop, target := bands(d, entry, g.p.LongStopPct, g.p.LongTargetPct)
	s, err := model.NewHorizonSignal(model.HorizonLongTerm, d, entry, stop, target, g.p.LongBaseConf, last.TS)
	if err != nil {
		return model.HorizonSignal{}, err
	}
	trend := "rising"
	if d == model.DirectionSell {
		trend = "falling"
	}
	s.Reason = fmt.Sprintf("close vs %s SMA_%d", trend, window)
	return s, nil
}
