package signal

import (
	"fmt"
	"math"
	"time"

	"papertrade/internal/model"
)

const voteEpsilon = 1e-9

// Weights is the vote share of each horizon.
type Weights struct {
	Intraday  float64 `yaml:"intraday"`
	ShortTerm float64 `yaml:"shortterm"`
	LongTerm  float64 `yaml:"longterm"`
}

// DefaultWeights returns 0.3 / 0.4 / 0.3.
func DefaultWeights() Weights {
	return Weights{Intraday: 0.3, ShortTerm: 0.4, LongTerm: 0.3}
}

// Of returns the weight of a horizon, 0 for an unknown one.
func (w Weights) Of(h model.Horizon) float64 {
	switch h {
	case model.HorizonIntraday:
		return w.Intraday
	case model.HorizonShortTerm:
		return w.ShortTerm
	case model.HorizonLongTerm:
		return w.LongTerm
	}
	return 0
}

// Validate rejects negative weights and an all-zero set.
func (w Weights) Validate() error {
	if w.Intraday < 0 || w.ShortTerm < 0 || w.LongTerm < 0 {
		return fmt.Errorf("signal weights: negative weight %+v", w)
	}
	if w.Intraday+w.ShortTerm+w.LongTerm <= 0 {
		return fmt.Errorf("signal weights: all zero")
	}
	return nil
}

// Consolidate merges the three horizon opinions with the default weights.
func Consolidate(intraday, shortTerm, longTerm model.HorizonSignal) model.ConsolidatedSignal {
	return ConsolidateWeighted(DefaultWeights(), intraday, shortTerm, longTerm)
}

// tieOrder ranks directions when both the weighted vote and the summed
// confidence are tied.
var tieOrder = []model.Direction{model.DirectionHold, model.DirectionBuy, model.DirectionSell}

type tally struct {
	vote       float64
	confidence float64
}

// ConsolidateWeighted is a pure function of its inputs: the same signals and
// weights always produce the same recommendation.
//
// Each signal votes its horizon weight for its direction. The heaviest
// direction wins; a tie goes to the larger summed confidence and then to
// HOLD, BUY, SELL in that order. For BUY and SELL the levels and confidence
// are the weight-renormalized averages over the agreeing horizons.
func ConsolidateWeighted(w Weights, signals ...model.HorizonSignal) model.ConsolidatedSignal {
	tallies := make(map[model.Direction]*tally, len(tieOrder))
	for _, d := range tieOrder {
		tallies[d] = &tally{}
	}

	var ts time.Time
	for _, s := range signals {
		t, ok := tallies[s.Direction]
		if !ok {
			continue
		}
		t.vote += w.Of(s.Horizon)
		t.confidence += s.Confidence
		if s.AsOf.After(ts) {
			ts = s.AsOf
		}
	}

	winner := tieOrder[0]
	for _, d := range tieOrder[1:] {
		if beats(tallies[d], tallies[winner]) {
			winner = d
		}
	}

	out := model.ConsolidatedSignal{
		Direction:    winner,
		Contributing: []model.Horizon{},
		Timestamp:    ts,
	}

	var agreeing []model.HorizonSignal
	for _, s := range signals {
		if s.Direction == winner {
			agreeing = append(agreeing, s)
			out.Contributing = append(out.Contributing, s.Horizon)
		}
	}
	if len(agreeing) == 0 {
		// Empty input: HOLD with nothing behind it.
		return out
	}

	weightOf := func(s model.HorizonSignal) float64 { return w.Of(s.Horizon) }
	var total float64
	for _, s := range agreeing {
		total += weightOf(s)
	}
	if total <= 0 {
		weightOf = func(model.HorizonSignal) float64 { return 1 }
		total = float64(len(agreeing))
	}

	var entry, stop, target, conf float64
	for _, s := range agreeing {
		share := weightOf(s) / total
		entry += s.Entry * share
		stop += s.StopLoss * share
		target += s.Target * share
		conf += s.Confidence * share
	}
	out.Confidence = math.Min(100, math.Max(0, conf))

	if winner == model.DirectionHold {
		return out
	}
	out.Entry = entry
	out.StopLoss = stop
	out.Target = target
	out.RiskReward = model.RiskReward(entry, stop, target)
	return out
}

// beats reports whether a strictly outranks b on vote, then confidence.
// Equal tallies keep the earlier direction in tieOrder.
func beats(a, b *tally) bool {
	if diff := a.vote - b.vote; math.Abs(diff) > voteEpsilon {
		return diff > 0
	}
	if diff := a.confidence - b.confidence; math.Abs(diff) > voteEpsilon {
		return diff > 0
	}
	return false
}
