package model

import (
	"fmt"
	"time"
)

// Horizon is a trading timeframe with its own indicator logic.
type Horizon string

const (
	HorizonIntraday  Horizon = "intraday"
	HorizonShortTerm Horizon = "shortterm"
	HorizonLongTerm  Horizon = "longterm"
)

// Horizons lists every horizon in canonical order.
var Horizons = []Horizon{HorizonIntraday, HorizonShortTerm, HorizonLongTerm}

// Valid reports whether h is one of the three known horizons.
func (h Horizon) Valid() bool {
	switch h {
	case HorizonIntraday, HorizonShortTerm, HorizonLongTerm:
		return true
	}
	return false
}

// Direction is a recommended action.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Valid reports whether d is BUY, SELL or HOLD.
func (d Direction) Valid() bool {
	switch d {
	case DirectionBuy, DirectionSell, DirectionHold:
		return true
	}
	return false
}

// HorizonSignal is the opinion of a single horizon generator.
// Ephemeral: produced per request and never stored as authoritative state.
type HorizonSignal struct {
	Horizon    Horizon   `json:"horizon"`
	Direction  Direction `json:"direction"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	Target     float64   `json:"target"`
	Confidence float64   `json:"confidence"` // 0..100
	RiskReward float64   `json:"risk_reward"`
	AsOf       time.Time `json:"as_of"`              // timestamp of the last bar evaluated
	Fallback   bool      `json:"fallback,omitempty"` // true when produced by the HOLD fallback
	Reason     string    `json:"reason,omitempty"`
}

// NewHorizonSignal builds a signal and checks its field set.
// Risk:reward is derived from the prices, never passed in.
func NewHorizonSignal(h Horizon, d Direction, entry, stop, target, confidence float64, asOf time.Time) (HorizonSignal, error) {
	s := HorizonSignal{
		Horizon:    h,
		Direction:  d,
		Entry:      entry,
		StopLoss:   stop,
		Target:     target,
		Confidence: confidence,
		AsOf:       asOf,
	}
	if err := s.Validate(); err != nil {
		return HorizonSignal{}, err
	}
	s.RiskReward = RiskReward(entry, stop, target)
	return s, nil
}

// Validate checks the invariants of a horizon signal.
func (s HorizonSignal) Validate() error {
	if !s.Horizon.Valid() {
		return fmt.Errorf("signal: unknown horizon %q", s.Horizon)
	}
	if !s.Direction.Valid() {
		return fmt.Errorf("signal: unknown direction %q", s.Direction)
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("signal: confidence %.2f outside [0,100]", s.Confidence)
	}
	if s.Entry < 0 || s.StopLoss < 0 || s.Target < 0 {
		return fmt.Errorf("signal: negative price level")
	}
	if s.Direction != DirectionHold && (s.Entry == 0 || s.StopLoss == 0 || s.Target == 0) {
		return fmt.Errorf("signal: %s requires entry, stop_loss and target", s.Direction)
	}
	return nil
}

// HoldSignal is a HOLD opinion with no stop or target.
func HoldSignal(h Horizon, entry, confidence float64, asOf time.Time) HorizonSignal {
	return HorizonSignal{
		Horizon:    h,
		Direction:  DirectionHold,
		Entry:      entry,
		Confidence: confidence,
		AsOf:       asOf,
	}
}

// ConsolidatedSignal is the single recommendation merged from three horizons.
type ConsolidatedSignal struct {
	Direction    Direction `json:"direction"`
	Entry        float64   `json:"entry,omitempty"`
	StopLoss     float64   `json:"stop_loss,omitempty"`
	Target       float64   `json:"target,omitempty"`
	Confidence   float64   `json:"confidence"`
	RiskReward   float64   `json:"risk_reward,omitempty"`
	Contributing []Horizon `json:"contributing"`
	Timestamp    time.Time `json:"timestamp"`
}

// RiskReward returns |target-entry| / |entry-stop|, or 0 when the stop equals the entry.
func RiskReward(entry, stop, target float64) float64 {
	risk := entry - stop
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0
	}
	reward := target - entry
	if reward < 0 {
		reward = -reward
	}
	return reward / risk
}
