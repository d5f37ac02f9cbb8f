package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/model"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.CreateAccount(context.Background(), model.Account{ID: "a", Cash: decimal.NewFromInt(1000)}); err != nil {
		t.Fatal(err)
	}
	return s
}

func load(t *testing.T, s *Store, id string) (model.Account, []model.Holding) {
	t.Helper()
	var (
		acct     model.Account
		holdings []model.Holding
	)
	err := s.WithinTx(context.Background(), id, func(tx model.LedgerTx) error {
		var err error
		acct, holdings, err = tx.Load(id)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return acct, holdings
}

func TestStore_CreateAccountTwice(t *testing.T) {
	s := seeded(t)
	if err := s.CreateAccount(context.Background(), model.Account{ID: "a"}); !errors.Is(err, model.ErrAccountExists) {
		t.Errorf("expected ErrAccountExists, got %v", err)
	}
}

func TestStore_FailedTxLeavesStateUntouched(t *testing.T) {
	s := seeded(t)
	errAbort := errors.New("abort")

	err := s.WithinTx(context.Background(), "a", func(tx model.LedgerTx) error {
		acct, _, err := tx.Load("a")
		if err != nil {
			return err
		}
		acct.Cash = decimal.Zero
		tx.Save(acct, []model.Holding{{AccountID: "a", Symbol: "ITC", Quantity: 2, AvgPrice: decimal.NewFromInt(450)}})
		tx.Append(&model.TradeRecord{AccountID: "a", Symbol: "ITC", Type: model.TradeBuy, Status: model.StatusOpen})
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected the callback error, got %v", err)
	}

	acct, holdings := load(t, s, "a")
	if !acct.Cash.Equal(decimal.NewFromInt(1000)) || len(holdings) != 0 {
		t.Errorf("rolled back state changed: %+v %+v", acct, holdings)
	}
	if trades, _ := s.ListTrades(context.Background(), "a", 0); len(trades) != 0 {
		t.Errorf("rolled back trades visible: %+v", trades)
	}
}

func TestStore_CommitAndCloseOpenBuys(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	closedAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	err := s.WithinTx(ctx, "a", func(tx model.LedgerTx) error {
		acct, _, _ := tx.Load("a")
		tx.Save(acct, []model.Holding{
			{AccountID: "a", Symbol: "ITC", Quantity: 2},
			{AccountID: "a", Symbol: "SBIN", Quantity: 0},
		})
		return tx.Append(&model.TradeRecord{AccountID: "a", Symbol: "ITC", Type: model.TradeBuy, Status: model.StatusOpen})
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, holdings := load(t, s, "a"); len(holdings) != 1 || holdings[0].Symbol != "ITC" {
		t.Errorf("zero-quantity holdings must be dropped: %+v", holdings)
	}

	err = s.WithinTx(ctx, "a", func(tx model.LedgerTx) error {
		if err := tx.CloseOpenBuys("a", "ITC", closedAt); err != nil {
			return err
		}
		return tx.Append(&model.TradeRecord{AccountID: "a", Symbol: "ITC", Type: model.TradeSell, Status: model.StatusClosed})
	})
	if err != nil {
		t.Fatal(err)
	}

	trades, _ := s.ListTrades(ctx, "a", 0)
	if len(trades) != 2 || trades[0].Type != model.TradeSell || trades[0].ID <= trades[1].ID {
		t.Fatalf("trades newest first: %+v", trades)
	}
	buy := trades[1]
	if buy.Status != model.StatusClosed || buy.ClosedAt == nil || !buy.ClosedAt.Equal(closedAt) {
		t.Errorf("open buy not closed: %+v", buy)
	}
	if limited, _ := s.ListTrades(ctx, "a", 1); len(limited) != 1 {
		t.Errorf("limit: %d", len(limited))
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.WithinTx(ctx, "a", func(model.LedgerTx) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("err %v, called %v", err, called)
	}
}

func TestStore_UnknownAccount(t *testing.T) {
	s := New()
	err := s.WithinTx(context.Background(), "ghost", func(tx model.LedgerTx) error {
		_, _, err := tx.Load("ghost")
		return err
	})
	if !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}
