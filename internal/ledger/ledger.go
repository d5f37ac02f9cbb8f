// Package ledger keeps the books of every paper-trading account: cash,
// holdings and the append-only trade record that explains each cash change.
//
// Mutations of one account are serialized by a per-account mutex wrapped
// around a store transaction. Every business check runs on the loaded state
// before anything is written, so a rejected order leaves no trace.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/logger"
	"papertrade/internal/model"
)

// Ledger applies buys and sells to accounts held in a LedgerStore.
type Ledger struct {
	store model.LedgerStore
	locks sync.Map // account ID → *sync.Mutex
	now   func() time.Time
	log   *slog.Logger
}

// New creates a Ledger over store.
func New(store model.LedgerStore, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.With("component", "ledger"),
	}
}

// lock acquires the account's mutex and returns its release.
func (l *Ledger) lock(accountID string) func() {
	v, _ := l.locks.LoadOrStore(accountID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// OpenAccount creates an account with the given starting cash.
func (l *Ledger) OpenAccount(ctx context.Context, accountID string, initial decimal.Decimal) (model.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return model.Account{}, fmt.Errorf("%w: empty account id", model.ErrInvalidOrder)
	}
	if initial.IsNegative() {
		return model.Account{}, fmt.Errorf("%w: negative initial balance %s", model.ErrInvalidOrder, initial)
	}
	acct := model.Account{ID: accountID, Cash: initial, CreatedAt: l.now()}
	if err := l.store.CreateAccount(ctx, acct); err != nil {
		return model.Account{}, err
	}
	l.log.Info("account opened", append(logger.Attrs(ctx),
		"account", accountID,
		"cash", initial.StringFixed(2),
	)...)
	return acct, nil
}

func checkOrder(symbol string, qty int64, price decimal.Decimal) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", model.ErrInvalidOrder)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", model.ErrInvalidOrder, qty)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", model.ErrInvalidOrder, price)
	}
	return nil
}

// Buy debits qty×price from cash, adds the shares to the holding and appends
// an OPEN BUY record carrying the optional plan.
func (l *Ledger) Buy(ctx context.Context, accountID, symbol string, qty int64, price decimal.Decimal, plan *model.TradePlan) (model.TradeRecord, error) {
	if err := checkOrder(symbol, qty, price); err != nil {
		return model.TradeRecord{}, err
	}
	unlock := l.lock(accountID)
	defer unlock()

	var rec model.TradeRecord
	err := l.store.WithinTx(ctx, accountID, func(tx model.LedgerTx) error {
		acct, holdings, err := tx.Load(accountID)
		if err != nil {
			return err
		}

		cost := price.Mul(decimal.NewFromInt(qty))
		if cost.GreaterThan(acct.Cash) {
			return &model.InsufficientFundsError{Required: cost, Available: acct.Cash}
		}

		now := l.now()
		acct.Cash = acct.Cash.Sub(cost)
		holdings = applyBuy(holdings, accountID, symbol, qty, price, now)

		rec = model.TradeRecord{
			AccountID:  accountID,
			Symbol:     symbol,
			Type:       model.TradeBuy,
			Quantity:   qty,
			Price:      price,
			TotalValue: cost,
			Status:     model.StatusOpen,
			CreatedAt:  now,
		}
		if plan != nil {
			rec.EntryPrice = plan.EntryPrice
			rec.StopLoss = plan.StopLoss
			rec.Target = plan.Target
		}

		if err := tx.Save(acct, holdings); err != nil {
			return err
		}
		return tx.Append(&rec)
	})
	if err != nil {
		return model.TradeRecord{}, err
	}
	return rec, nil
}

// Sell credits qty×price to cash, reduces the holding and appends a CLOSED
// SELL record with the realized P&L. Selling the whole holding also closes
// the symbol's OPEN BUY records.
func (l *Ledger) Sell(ctx context.Context, accountID, symbol string, qty int64, price decimal.Decimal) (model.TradeRecord, error) {
	if err := checkOrder(symbol, qty, price); err != nil {
		return model.TradeRecord{}, err
	}
	unlock := l.lock(accountID)
	defer unlock()

	var rec model.TradeRecord
	err := l.store.WithinTx(ctx, accountID, func(tx model.LedgerTx) error {
		acct, holdings, err := tx.Load(accountID)
		if err != nil {
			return err
		}

		i := findHolding(holdings, symbol)
		if i < 0 {
			return &model.InvalidSymbolError{Symbol: symbol, Reason: "no holding"}
		}
		if held := holdings[i].Quantity; qty > held {
			return &model.InsufficientHoldingError{Symbol: symbol, Requested: qty, Available: held}
		}

		now := l.now()
		proceeds := price.Mul(decimal.NewFromInt(qty))
		acct.Cash = acct.Cash.Add(proceeds)

		var realized decimal.Decimal
		holdings, realized = applySell(holdings, i, qty, price, now)
		emptied := findHolding(holdings, symbol) < 0

		rec = model.TradeRecord{
			AccountID:   accountID,
			Symbol:      symbol,
			Type:        model.TradeSell,
			Quantity:    qty,
			Price:       price,
			TotalValue:  proceeds,
			RealizedPnL: &realized,
			Status:      model.StatusClosed,
			CreatedAt:   now,
			ClosedAt:    &now,
		}

		if err := tx.Save(acct, holdings); err != nil {
			return err
		}
		if emptied {
			if err := tx.CloseOpenBuys(accountID, symbol, now); err != nil {
				return err
			}
		}
		return tx.Append(&rec)
	})
	if err != nil {
		return model.TradeRecord{}, err
	}
	return rec, nil
}

// Holdings returns the account's cash and holdings.
func (l *Ledger) Holdings(ctx context.Context, accountID string) (model.Account, []model.Holding, error) {
	var (
		acct     model.Account
		holdings []model.Holding
	)
	err := l.store.WithinTx(ctx, accountID, func(tx model.LedgerTx) error {
		var err error
		acct, holdings, err = tx.Load(accountID)
		return err
	})
	return acct, holdings, err
}
