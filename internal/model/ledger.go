package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a trading account's cash position. Created at registration,
// mutated only by the ledger.
type Account struct {
	ID        string          `json:"id"`
	Cash      decimal.Decimal `json:"cash_balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// Holding is an account's current position in one symbol.
// A holding with zero quantity is removed, never stored.
type Holding struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	AvgPrice  decimal.Decimal `json:"average_price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CostBasis returns quantity × average price.
func (h *Holding) CostBasis() decimal.Decimal {
	return h.AvgPrice.Mul(decimal.NewFromInt(h.Quantity))
}

// TradeType is the side of a trade record.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// TradeStatus is OPEN until the position it opened is fully sold.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// TradePlan carries the optional entry/stop/target a buyer attaches to an order.
type TradePlan struct {
	EntryPrice *decimal.Decimal `json:"entry_price,omitempty"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	Target     *decimal.Decimal `json:"target,omitempty"`
}

// TradeRecord explains exactly one cash balance change. Append-only, except for
// the OPEN→CLOSED transition of BUY records.
type TradeRecord struct {
	ID          int64            `json:"id"`
	AccountID   string           `json:"account_id"`
	Symbol      string           `json:"symbol"`
	Type        TradeType        `json:"type"`
	Quantity    int64            `json:"quantity"`
	Price       decimal.Decimal  `json:"price"`
	TotalValue  decimal.Decimal  `json:"total_value"`
	EntryPrice  *decimal.Decimal `json:"entry_price,omitempty"`
	StopLoss    *decimal.Decimal `json:"stop_loss,omitempty"`
	Target      *decimal.Decimal `json:"target,omitempty"`
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
	Status      TradeStatus      `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	ClosedAt    *time.Time       `json:"closed_at,omitempty"`
}

// HoldingValuation is one line of a portfolio valuation.
type HoldingValuation struct {
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"average_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	Value         decimal.Decimal `json:"total_value"`
	PnL           decimal.Decimal `json:"pnl"`
	PnLPercentage decimal.Decimal `json:"pnl_percentage"`
}

// Valuation is an account's mark-to-market summary.
type Valuation struct {
	AccountID      string             `json:"account_id"`
	Cash           decimal.Decimal    `json:"cash_balance"`
	PortfolioValue decimal.Decimal    `json:"portfolio_value"`
	TotalBalance   decimal.Decimal    `json:"total_balance"`
	TotalPnL       decimal.Decimal    `json:"total_pnl"`
	PnLPercentage  decimal.Decimal    `json:"pnl_percentage"`
	Holdings       []HoldingValuation `json:"holdings"`
	// Unpriced lists held symbols with no current price; they are not
	// included in any of the totals above.
	Unpriced []string `json:"unpriced"`
}

// TradeHistory is the newest-first trade list with win/loss counts over sells.
type TradeHistory struct {
	TotalTrades   int           `json:"total_trades"`
	WinningTrades int           `json:"winning_trades"`
	LosingTrades  int           `json:"losing_trades"`
	Trades        []TradeRecord `json:"trades"`
}
