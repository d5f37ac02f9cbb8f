// Package memory is an in-process LedgerStore. Transactions buffer their
// writes and apply them on commit, so a failed callback leaves the store
// untouched. Nothing is persisted; the server always runs on the sqlite
// store and this one backs tests and embedders that need no durability.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"papertrade/internal/model"
)

// Store keeps accounts, holdings and trades in maps.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	holdings map[string][]model.Holding
	trades   map[string][]model.TradeRecord // per account, oldest first

	nextID atomic.Int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]model.Account),
		holdings: make(map[string][]model.Holding),
		trades:   make(map[string][]model.TradeRecord),
	}
}

// CreateAccount inserts acct. Returns model.ErrAccountExists on conflict.
func (s *Store) CreateAccount(_ context.Context, acct model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.ID]; ok {
		return model.ErrAccountExists
	}
	s.accounts[acct.ID] = acct
	return nil
}

// WithinTx runs fn against a buffered view of one account.
// Callers serialize transactions of the same account; transactions of
// different accounts only contend on the short commit.
func (s *Store) WithinTx(ctx context.Context, accountID string, fn func(model.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &tx{s: s, closeAt: make(map[string]time.Time)}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.saved {
		s.accounts[tx.acct.ID] = tx.acct
		s.holdings[tx.acct.ID] = tx.holdings
	}
	for i, rec := range s.trades[tx.accountID] {
		at, ok := tx.closeAt[rec.Symbol]
		if !ok || rec.Type != model.TradeBuy || rec.Status != model.StatusOpen {
			continue
		}
		closed := at
		s.trades[tx.accountID][i].Status = model.StatusClosed
		s.trades[tx.accountID][i].ClosedAt = &closed
	}
	for _, rec := range tx.appended {
		s.trades[rec.AccountID] = append(s.trades[rec.AccountID], rec)
	}
}

// ListTrades returns up to limit records of the account, newest first.
func (s *Store) ListTrades(_ context.Context, accountID string, limit int) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.trades[accountID]
	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.TradeRecord, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

type tx struct {
	s *Store

	accountID string
	saved     bool
	acct      model.Account
	holdings  []model.Holding
	appended  []model.TradeRecord
	closeAt   map[string]time.Time // symbol → close time
}

func (t *tx) Load(accountID string) (model.Account, []model.Holding, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	acct, ok := t.s.accounts[accountID]
	if !ok {
		return model.Account{}, nil, model.ErrAccountNotFound
	}
	t.accountID = accountID
	held := t.s.holdings[accountID]
	out := make([]model.Holding, len(held))
	copy(out, held)
	return acct, out, nil
}

func (t *tx) Save(acct model.Account, holdings []model.Holding) error {
	t.accountID = acct.ID
	t.saved = true
	t.acct = acct
	t.holdings = make([]model.Holding, 0, len(holdings))
	for _, h := range holdings {
		if h.Quantity > 0 {
			t.holdings = append(t.holdings, h)
		}
	}
	return nil
}

func (t *tx) Append(rec *model.TradeRecord) error {
	rec.ID = t.s.nextID.Add(1)
	t.appended = append(t.appended, *rec)
	return nil
}

func (t *tx) CloseOpenBuys(accountID, symbol string, at time.Time) error {
	t.accountID = accountID
	t.closeAt[symbol] = at
	return nil
}
