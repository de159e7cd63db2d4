package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"limit-venue/src/engine"
)

// Ledger journals executed trades in sqlite for settlement.
type Ledger struct {
	db *sql.DB
}

// TradeRecord is one journaled trade.
type TradeRecord struct {
	ID          string
	BuyOrderID  string
	SellOrderID string
	Price       decimal.Decimal
	Quantity    int64
	ExecutedAt  time.Time
}

// New opens (or creates) the journal at path. ":memory:" gives a private
// in-memory journal.
func New(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		buy_order_id TEXT NOT NULL,
		sell_order_id TEXT NOT NULL,
		price TEXT NOT NULL,  -- decimal string, exact
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		executed_at INTEGER NOT NULL  -- unix nanoseconds
	);

	CREATE INDEX IF NOT EXISTS idx_trades_buy_order ON trades(buy_order_id);
	CREATE INDEX IF NOT EXISTS idx_trades_sell_order ON trades(sell_order_id);
	`
	_, err := l.db.Exec(schema)
	return err
}

// ConsumeTrades journals the trades of one matching pass atomically.
func (l *Ledger) ConsumeTrades(ctx context.Context, trades []engine.Trade) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (id, buy_order_id, sell_order_id, price, quantity, executed_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			t.TradeID, t.BuyOrder.ID, t.SellOrder.ID,
			t.Price.String(), t.Quantity, t.Timestamp.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
		}
	}

	return tx.Commit()
}

// TradesForOrder returns the trades an order took part in, oldest first.
func (l *Ledger) TradesForOrder(ctx context.Context, orderID string) ([]TradeRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, buy_order_id, sell_order_id, price, quantity, executed_at
		FROM trades
		WHERE buy_order_id = ? OR sell_order_id = ?
		ORDER BY executed_at, rowid`, orderID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TradeRecord
	for rows.Next() {
		var (
			r     TradeRecord
			price string
			at    int64
		)
		if err := rows.Scan(&r.ID, &r.BuyOrderID, &r.SellOrderID, &price, &r.Quantity, &at); err != nil {
			return nil, err
		}
		if r.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s price %q: %w", r.ID, price, err)
		}
		r.ExecutedAt = time.Unix(0, at)
		records = append(records, r)
	}
	return records, rows.Err()
}

// FilledQuantity sums the journaled quantity for an order.
func (l *Ledger) FilledQuantity(ctx context.Context, orderID string) (int64, error) {
	var total int64
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM trades
		WHERE buy_order_id = ? OR sell_order_id = ?`, orderID, orderID).Scan(&total)
	return total, err
}

func (l *Ledger) Count(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades").Scan(&n)
	return n, err
}
