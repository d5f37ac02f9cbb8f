package model

import (
	"context"
	"time"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the engines from concrete market data and storage
// implementations (Redis, SQLite, in-memory). The engines only see the ports.

// MarketData supplies quotes and price history.
// Implementations own any blocking, retry or backoff behavior.
type MarketData interface {
	// CurrentPrice returns the latest quote for a symbol.
	// Fails with ErrSymbolNotFound or a MarketDataUnavailableError.
	CurrentPrice(ctx context.Context, symbol string) (Quote, error)

	// History returns a timestamp-ordered series at the resolution and
	// lookback appropriate for the horizon.
	History(ctx context.Context, symbol string, h Horizon) ([]PricePoint, error)
}

// LedgerTx is the view of the store inside one account transaction.
// Writes become visible only if the enclosing WithinTx callback returns nil.
type LedgerTx interface {
	// Load returns the account and all of its holdings.
	// Returns ErrAccountNotFound for an unknown account.
	Load(accountID string) (Account, []Holding, error)

	// Save replaces the account row and its full set of holdings.
	Save(acct Account, holdings []Holding) error

	// Append inserts a trade record and assigns rec.ID.
	Append(rec *TradeRecord) error

	// CloseOpenBuys marks every OPEN BUY record of the symbol CLOSED.
	CloseOpenBuys(accountID, symbol string, at time.Time) error
}

// LedgerStore persists accounts, holdings and trade records.
type LedgerStore interface {
	// WithinTx runs fn in a transaction scoped to one account.
	// The store commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, accountID string, fn func(tx LedgerTx) error) error

	// CreateAccount inserts a new account. Returns ErrAccountExists on conflict.
	CreateAccount(ctx context.Context, acct Account) error

	// ListTrades returns up to limit records, newest first. limit <= 0 means all.
	ListTrades(ctx context.Context, accountID string, limit int) ([]TradeRecord, error)
}

// SignalJournal records issued recommendations for audit.
// Entries are never read back as authoritative state.
type SignalJournal interface {
	RecordSignals(ctx context.Context, symbol string, signals []HorizonSignal, consolidated ConsolidatedSignal) error
}
