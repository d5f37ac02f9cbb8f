package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"papertrade/internal/model"
)

// consolidatedHorizon labels the consolidated row of a journal entry.
const consolidatedHorizon = "consolidated"

// RecordSignals appends the three horizon signals and the consolidated
// verdict of one recommendation to signal_history in a single transaction.
func (s *Store) RecordSignals(ctx context.Context, symbol string, signals []model.HorizonSignal, c model.ConsolidatedSignal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signal_history (symbol, horizon, direction, entry, stop_loss, target,
			confidence, risk_reward, fallback, as_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, sig := range signals {
		_, err := stmt.ExecContext(ctx, symbol, string(sig.Horizon), string(sig.Direction),
			sig.Entry, sig.StopLoss, sig.Target, sig.Confidence, sig.RiskReward,
			sig.Fallback, unixOrNull(sig.AsOf), now)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert signal: %w", err)
		}
	}
	_, err = stmt.ExecContext(ctx, symbol, consolidatedHorizon, string(c.Direction),
		c.Entry, c.StopLoss, c.Target, c.Confidence, c.RiskReward,
		false, unixOrNull(c.Timestamp), now)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite insert consolidated signal: %w", err)
	}

	return tx.Commit()
}

// SignalEntry is one row of signal_history.
type SignalEntry struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Horizon    string    `json:"horizon"`
	Direction  string    `json:"direction"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	Target     float64   `json:"target"`
	Confidence float64   `json:"confidence"`
	RiskReward float64   `json:"risk_reward"`
	Fallback   bool      `json:"fallback"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecentSignals returns the last limit journal rows for a symbol, newest first.
func (s *Store) RecentSignals(ctx context.Context, symbol string, limit int) ([]SignalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, horizon, direction, entry, stop_loss, target,
			confidence, risk_reward, fallback, created_at
		FROM signal_history WHERE symbol = ? ORDER BY id DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signal_history: %w", err)
	}
	defer rows.Close()

	var out []SignalEntry
	for rows.Next() {
		var (
			e         SignalEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Horizon, &e.Direction, &e.Entry, &e.StopLoss,
			&e.Target, &e.Confidence, &e.RiskReward, &e.Fallback, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite scan signal_history: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func unixOrNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
