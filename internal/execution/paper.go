package execution

import (
	"github.com/shopspring/decimal"

	"papertrade/internal/model"
)

var bpsDivisor = decimal.NewFromInt(10000)

// fillPrice prices an order. An explicit limit price fills as given; a
// market order fills at the quote moved against the trader by slippageBps
// basis points (buys higher, sells lower), rounded to the paisa.
func fillPrice(side model.TradeType, limit *decimal.Decimal, quote float64, slippageBps int64) decimal.Decimal {
	if limit != nil {
		return *limit
	}
	price := decimal.NewFromFloat(quote)
	if slippageBps <= 0 {
		return price.Round(2)
	}
	slip := price.Mul(decimal.NewFromInt(slippageBps)).Div(bpsDivisor)
	if side == model.TradeBuy {
		return price.Add(slip).Round(2)
	}
	return price.Sub(slip).Round(2)
}
