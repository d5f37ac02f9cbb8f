package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/model"
)

// findHolding returns the index of symbol in holdings, or -1.
func findHolding(holdings []model.Holding, symbol string) int {
	for i := range holdings {
		if holdings[i].Symbol == symbol {
			return i
		}
	}
	return -1
}

// applyBuy adds qty shares at price to the holding set and returns the new set.
// A new position takes the fill price as its average; an existing one moves to
// the weighted average of old and new cost.
func applyBuy(holdings []model.Holding, accountID, symbol string, qty int64, price decimal.Decimal, at time.Time) []model.Holding {
	i := findHolding(holdings, symbol)
	if i < 0 {
		return append(holdings, model.Holding{
			AccountID: accountID,
			Symbol:    symbol,
			Quantity:  qty,
			AvgPrice:  price,
			UpdatedAt: at,
		})
	}

	h := &holdings[i]
	totalCost := h.CostBasis().Add(price.Mul(decimal.NewFromInt(qty)))
	h.Quantity += qty
	h.AvgPrice = totalCost.Div(decimal.NewFromInt(h.Quantity))
	h.UpdatedAt = at
	return holdings
}

// applySell removes qty shares of holdings[i] and returns the new set and the
// realized P&L. The average price of the remaining shares does not change; an
// emptied holding is dropped.
func applySell(holdings []model.Holding, i int, qty int64, price decimal.Decimal, at time.Time) ([]model.Holding, decimal.Decimal) {
	h := &holdings[i]
	realized := price.Sub(h.AvgPrice).Mul(decimal.NewFromInt(qty))

	h.Quantity -= qty
	h.UpdatedAt = at
	if h.Quantity == 0 {
		holdings = append(holdings[:i], holdings[i+1:]...)
	}
	return holdings, realized
}

// percentOf returns part/whole × 100 rounded to 2 places, 0 when whole is 0.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2)
}
