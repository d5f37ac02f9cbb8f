package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"papertrade/internal/model"
)

// tx is the LedgerTx view over one sql.Tx.
type tx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *tx) Load(accountID string) (model.Account, []model.Holding, error) {
	var (
		acct      model.Account
		createdAt int64
	)
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id, cash, created_at FROM accounts WHERE id = ?`, accountID,
	).Scan(&acct.ID, &acct.Cash, &createdAt)
	if err == sql.ErrNoRows {
		return model.Account{}, nil, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, nil, fmt.Errorf("sqlite load account: %w", err)
	}
	acct.CreatedAt = time.Unix(0, createdAt).UTC()

	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT account_id, symbol, quantity, avg_price, updated_at
		 FROM holdings WHERE account_id = ? ORDER BY symbol`, accountID)
	if err != nil {
		return model.Account{}, nil, fmt.Errorf("sqlite query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var (
			h         model.Holding
			updatedAt int64
		)
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.AvgPrice, &updatedAt); err != nil {
			return model.Account{}, nil, fmt.Errorf("sqlite scan holding: %w", err)
		}
		h.UpdatedAt = time.Unix(0, updatedAt).UTC()
		holdings = append(holdings, h)
	}
	return acct, holdings, rows.Err()
}

// Save rewrites the account row and replaces its holdings.
func (t *tx) Save(acct model.Account, holdings []model.Holding) error {
	res, err := t.tx.ExecContext(t.ctx, `UPDATE accounts SET cash = ? WHERE id = ?`, acct.Cash, acct.ID)
	if err != nil {
		return fmt.Errorf("sqlite update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrAccountNotFound
	}

	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM holdings WHERE account_id = ?`, acct.ID); err != nil {
		return fmt.Errorf("sqlite clear holdings: %w", err)
	}
	if len(holdings) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(t.ctx, `
		INSERT INTO holdings (account_id, symbol, quantity, avg_price, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, h := range holdings {
		if h.Quantity == 0 {
			continue
		}
		if _, err := stmt.ExecContext(t.ctx, acct.ID, h.Symbol, h.Quantity, h.AvgPrice, h.UpdatedAt.UnixNano()); err != nil {
			return fmt.Errorf("sqlite insert holding %s: %w", h.Symbol, err)
		}
	}
	return nil
}

// Append inserts rec and sets rec.ID.
func (t *tx) Append(rec *model.TradeRecord) error {
	var closedAt sql.NullInt64
	if rec.ClosedAt != nil {
		closedAt = sql.NullInt64{Int64: rec.ClosedAt.UnixNano(), Valid: true}
	}
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO trades (account_id, symbol, type, quantity, price, total_value,
			entry_price, stop_loss, target, realized_pnl, status, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AccountID, rec.Symbol, string(rec.Type), rec.Quantity, rec.Price, rec.TotalValue,
		nullDecimal(rec.EntryPrice), nullDecimal(rec.StopLoss), nullDecimal(rec.Target), nullDecimal(rec.RealizedPnL),
		string(rec.Status), rec.CreatedAt.UnixNano(), closedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite insert trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite trade id: %w", err)
	}
	rec.ID = id
	return nil
}

func (t *tx) CloseOpenBuys(accountID, symbol string, at time.Time) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE trades SET status = ?, closed_at = ?
		WHERE account_id = ? AND symbol = ? AND type = ? AND status = ?`,
		string(model.StatusClosed), at.UnixNano(),
		accountID, symbol, string(model.TradeBuy), string(model.StatusOpen),
	)
	if err != nil {
		return fmt.Errorf("sqlite close open buys: %w", err)
	}
	return nil
}
