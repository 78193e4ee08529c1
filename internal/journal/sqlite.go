package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS journal_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	symbol TEXT NOT NULL,
	order_id TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	side TEXT NOT NULL DEFAULT '',
	qty TEXT NOT NULL,
	price TEXT NOT NULL,
	fee TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	available TEXT NOT NULL,
	reserved TEXT NOT NULL,
	total TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_journal_events_time ON journal_events(time);
CREATE INDEX IF NOT EXISTS idx_journal_events_symbol ON journal_events(symbol, kind);
`

// SQLiteSink stores events in a local SQLite file. Decimals are kept as text.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Record(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_events
		(time, kind, symbol, order_id, state, side, qty, price, fee, realized_pnl, available, reserved, total, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), string(e.Kind), e.Symbol, e.OrderID, e.State, e.Side,
		e.Qty.String(), e.Price.String(), e.Fee.String(), e.RealizedPnL.String(),
		e.Available.String(), e.Reserved.String(), e.Total.String(), e.Reason,
	)
	return err
}

// Fills returns filled order events for symbol (all symbols when empty) since t, oldest first.
func (s *SQLiteSink) Fills(ctx context.Context, symbol string, since time.Time) ([]Event, error) {
	q := `SELECT time, kind, symbol, order_id, state, side, qty, price, fee, realized_pnl, available, reserved, total, reason
		FROM journal_events WHERE kind = ? AND state = 'FILLED' AND time >= ?`
	args := []any{string(KindOrder), since.UTC()}
	if symbol != "" {
		q += ` AND symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                                                Event
			kind                                             string
			qty, price, fee, pnl, available, reserved, total string
		)
		if err := rows.Scan(&e.Time, &kind, &e.Symbol, &e.OrderID, &e.State, &e.Side,
			&qty, &price, &fee, &pnl, &available, &reserved, &total, &e.Reason); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&e.Qty, qty}, {&e.Price, price}, {&e.Fee, fee}, {&e.RealizedPnL, pnl},
			{&e.Available, available}, {&e.Reserved, reserved}, {&e.Total, total},
		} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("decode journal decimal %q: %w", f.src, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
