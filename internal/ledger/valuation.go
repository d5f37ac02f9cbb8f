package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"papertrade/internal/model"
)

// Valuation marks the account's holdings to the given prices.
// Holdings without a price are listed in Unpriced and left out of every
// total, including the cost basis behind the P&L percentage.
func (l *Ledger) Valuation(ctx context.Context, accountID string, prices map[string]decimal.Decimal) (model.Valuation, error) {
	acct, holdings, err := l.Holdings(ctx, accountID)
	if err != nil {
		return model.Valuation{}, err
	}
	return Value(acct, holdings, prices), nil
}

// Value computes a valuation from already loaded state.
func Value(acct model.Account, holdings []model.Holding, prices map[string]decimal.Decimal) model.Valuation {
	v := model.Valuation{
		AccountID: acct.ID,
		Cash:      acct.Cash,
		Holdings:  make([]model.HoldingValuation, 0, len(holdings)),
		Unpriced:  []string{},
	}

	costBasis := decimal.Zero
	for i := range holdings {
		h := &holdings[i]
		price, ok := prices[h.Symbol]
		if !ok {
			v.Unpriced = append(v.Unpriced, h.Symbol)
			continue
		}
		qty := decimal.NewFromInt(h.Quantity)
		value := price.Mul(qty)
		cost := h.CostBasis()
		pnl := value.Sub(cost)

		v.Holdings = append(v.Holdings, model.HoldingValuation{
			Symbol:        h.Symbol,
			Quantity:      h.Quantity,
			AvgPrice:      h.AvgPrice,
			CurrentPrice:  price,
			Value:         value,
			PnL:           pnl,
			PnLPercentage: percentOf(pnl, cost),
		})
		v.PortfolioValue = v.PortfolioValue.Add(value)
		v.TotalPnL = v.TotalPnL.Add(pnl)
		costBasis = costBasis.Add(cost)
	}

	sort.Slice(v.Holdings, func(i, j int) bool { return v.Holdings[i].Symbol < v.Holdings[j].Symbol })
	sort.Strings(v.Unpriced)
	v.TotalBalance = v.Cash.Add(v.PortfolioValue)
	v.PnLPercentage = percentOf(v.TotalPnL, costBasis)
	return v
}

// Trades returns up to limit trade records, newest first. limit <= 0 means all.
func (l *Ledger) Trades(ctx context.Context, accountID string, limit int) ([]model.TradeRecord, error) {
	return l.store.ListTrades(ctx, accountID, limit)
}

// History returns the trade list with winning and losing sells counted by
// the sign of their realized P&L. Break-even sells count as neither.
func (l *Ledger) History(ctx context.Context, accountID string, limit int) (model.TradeHistory, error) {
	trades, err := l.store.ListTrades(ctx, accountID, limit)
	if err != nil {
		return model.TradeHistory{}, err
	}
	hist := model.TradeHistory{
		TotalTrades: len(trades),
		Trades:      trades,
	}
	if hist.Trades == nil {
		hist.Trades = []model.TradeRecord{}
	}
	for _, t := range trades {
		if t.Type != model.TradeSell || t.RealizedPnL == nil {
			continue
		}
		switch t.RealizedPnL.Sign() {
		case 1:
			hist.WinningTrades++
		case -1:
			hist.LosingTrades++
		}
	}
	return hist, nil
}
