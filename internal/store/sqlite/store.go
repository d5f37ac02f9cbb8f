// Package sqlite persists the ledger and the signal journal in a single
// SQLite database opened in WAL mode with one writer connection.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"papertrade/internal/model"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/papertrade.db"
}

// Store implements model.LedgerStore and model.SignalJournal.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the database with WAL mode and applies the schema.
func Open(cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn := cfg.DBPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer: every ledger transaction holds the only connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("sqlite opened", "path", cfg.DBPath)
	return &Store{db: db, log: log.With("component", "sqlite")}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id         TEXT    PRIMARY KEY,
			cash       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS holdings (
			account_id TEXT    NOT NULL REFERENCES accounts(id),
			symbol     TEXT    NOT NULL,
			quantity   INTEGER NOT NULL CHECK (quantity > 0),
			avg_price  TEXT    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (account_id, symbol)
		);

		CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id   TEXT    NOT NULL REFERENCES accounts(id),
			symbol       TEXT    NOT NULL,
			type         TEXT    NOT NULL,
			quantity     INTEGER NOT NULL,
			price        TEXT    NOT NULL,
			total_value  TEXT    NOT NULL,
			entry_price  TEXT,
			stop_loss    TEXT,
			target       TEXT,
			realized_pnl TEXT,
			status       TEXT    NOT NULL,
			created_at   INTEGER NOT NULL,
			closed_at    INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id, id);
		CREATE INDEX IF NOT EXISTS idx_trades_open ON trades(account_id, symbol, status);

		CREATE TABLE IF NOT EXISTS signal_history (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol       TEXT    NOT NULL,
			horizon      TEXT    NOT NULL,
			direction    TEXT    NOT NULL,
			entry        REAL,
			stop_loss    REAL,
			target       REAL,
			confidence   REAL    NOT NULL,
			risk_reward  REAL,
			fallback     INTEGER NOT NULL DEFAULT 0,
			as_of        INTEGER,
			created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_signal_history_symbol ON signal_history(symbol, id);
	`)
	return err
}

// CreateAccount inserts acct. Returns model.ErrAccountExists on conflict.
func (s *Store) CreateAccount(ctx context.Context, acct model.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, cash, created_at) VALUES (?, ?, ?)`,
		acct.ID, acct.Cash, acct.CreatedAt.UnixNano(),
	)
	if isConstraint(err) {
		return model.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("sqlite insert account: %w", err)
	}
	return nil
}

// WithinTx runs fn inside BEGIN IMMEDIATE … COMMIT.
// Any error from fn rolls the transaction back.
func (s *Store) WithinTx(ctx context.Context, accountID string, fn func(model.LedgerTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if err := fn(&tx{ctx: ctx, tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.log.Error("rollback failed", "account", accountID, "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

const tradeColumns = `id, account_id, symbol, type, quantity, price, total_value,
	entry_price, stop_loss, target, realized_pnl, status, created_at, closed_at`

// ListTrades returns up to limit records of the account, newest first.
func (s *Store) ListTrades(ctx context.Context, accountID string, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	trades := []model.TradeRecord{}
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		trades = append(trades, rec)
	}
	return trades, rows.Err()
}

func scanTrade(rows *sql.Rows) (model.TradeRecord, error) {
	var (
		rec                           model.TradeRecord
		typ, status                   string
		entry, stop, target, realized decimal.NullDecimal
		createdAt                     int64
		closedAt                      sql.NullInt64
	)
	if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Symbol, &typ, &rec.Quantity, &rec.Price, &rec.TotalValue,
		&entry, &stop, &target, &realized, &status, &createdAt, &closedAt); err != nil {
		return model.TradeRecord{}, err
	}
	rec.Type = model.TradeType(typ)
	rec.Status = model.TradeStatus(status)
	rec.EntryPrice = decimalPtr(entry)
	rec.StopLoss = decimalPtr(stop)
	rec.Target = decimalPtr(target)
	rec.RealizedPnL = decimalPtr(realized)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	if closedAt.Valid {
		at := time.Unix(0, closedAt.Int64).UTC()
		rec.ClosedAt = &at
	}
	return rec, nil
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
