package model

import (
	"encoding/json"
	"time"
)

// PricePoint is one OHLCV bar supplied by the market data collaborator.
// Series are ordered by TS ascending and never mutated.
type PricePoint struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// JSON returns the JSON-encoded point (ignoring errors, the struct is flat).
func (p *PricePoint) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

// Quote is the latest traded price of a symbol.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	TS     time.Time `json:"ts"`
}
