package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for unknown investment IDs.
var ErrNotFound = errors.New("investment not found")

const schema = `
CREATE TABLE IF NOT EXISTS investments (
	id            TEXT PRIMARY KEY,
	symbol        TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	quantity      REAL NOT NULL CHECK (quantity >= 0),
	avg_price     REAL NOT NULL CHECK (avg_price > 0),
	current_price REAL NOT NULL CHECK (current_price > 0),
	category      TEXT NOT NULL DEFAULT 'stock',
	purchase_date TEXT NOT NULL,
	owner_split   REAL NOT NULL DEFAULT 0.5
);
CREATE INDEX IF NOT EXISTS idx_investments_symbol ON investments(symbol);

CREATE TABLE IF NOT EXISTS transactions (
	id            TEXT PRIMARY KEY,
	investment_id TEXT NOT NULL,
	kind          TEXT NOT NULL CHECK (kind IN ('buy','sell','price_update')),
	symbol        TEXT NOT NULL,
	quantity      REAL NOT NULL,
	price         REAL NOT NULL,
	at            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_at ON transactions(at);
`

// SQLiteStore implements Store on a single SQLite file. Pass ":memory:"
// for tests.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func OpenSQLite(path string, log zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = "portfolio.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, log: log.With().Str("component", "portfolio").Logger()}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Add inserts a new investment and its opening buy transaction.
func (s *SQLiteStore) Add(ctx context.Context, inv Investment) (Investment, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.Symbol = strings.ToUpper(strings.TrimSpace(inv.Symbol))
	if err := validate(inv); err != nil {
		return Investment{}, err
	}
	if inv.PurchaseDate.IsZero() {
		inv.PurchaseDate = time.Now().UTC()
	}
	if inv.CurrentPrice <= 0 {
		inv.CurrentPrice = inv.AvgPrice
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Investment{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO investments (id, symbol, name, quantity, avg_price, current_price, category, purchase_date, owner_split)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Symbol, inv.Name, inv.Quantity, inv.AvgPrice, inv.CurrentPrice,
		inv.Category, inv.PurchaseDate.Format(time.RFC3339), inv.OwnerSplit)
	if err != nil {
		return Investment{}, fmt.Errorf("insert investment: %w", err)
	}
	if err := appendTx(ctx, tx, Transaction{
		InvestmentID: inv.ID, Kind: TxBuy, Symbol: inv.Symbol,
		Quantity: inv.Quantity, Price: inv.AvgPrice,
	}); err != nil {
		return Investment{}, err
	}
	if err := tx.Commit(); err != nil {
		return Investment{}, err
	}
	s.log.Info().Str("id", inv.ID).Str("symbol", inv.Symbol).Float64("quantity", inv.Quantity).Msg("investment added")
	return inv, nil
}

// Update rewrites the mutable fields of an existing investment.
func (s *SQLiteStore) Update(ctx context.Context, inv Investment) error {
	inv.Symbol = strings.ToUpper(strings.TrimSpace(inv.Symbol))
	if err := validate(inv); err != nil {
		return err
	}
	if inv.CurrentPrice <= 0 {
		inv.CurrentPrice = inv.AvgPrice
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE investments SET symbol=?, name=?, quantity=?, avg_price=?, current_price=?, category=?, owner_split=?
		 WHERE id=?`,
		inv.Symbol, inv.Name, inv.Quantity, inv.AvgPrice, inv.CurrentPrice, inv.Category, inv.OwnerSplit, inv.ID)
	if err != nil {
		return fmt.Errorf("update investment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Sell reduces the position by quantity at the given price, removing the
// row entirely when the whole position is sold, and appends a sell entry.
func (s *SQLiteStore) Sell(ctx context.Context, id string, quantity, price float64) error {
	if quantity <= 0 {
		return fmt.Errorf("sell quantity must be positive")
	}
	if price <= 0 {
		return fmt.Errorf("sell price must be positive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var inv Investment
	err = tx.QueryRowContext(ctx, `SELECT id, symbol, quantity FROM investments WHERE id=?`, id).
		Scan(&inv.ID, &inv.Symbol, &inv.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if quantity > inv.Quantity {
		return fmt.Errorf("cannot sell %v, only %v held", quantity, inv.Quantity)
	}

	remaining := inv.Quantity - quantity
	if remaining == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM investments WHERE id=?`, id)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE investments SET quantity=? WHERE id=?`, remaining, id)
	}
	if err != nil {
		return fmt.Errorf("apply sell: %w", err)
	}
	if err := appendTx(ctx, tx, Transaction{
		InvestmentID: id, Kind: TxSell, Symbol: inv.Symbol, Quantity: quantity, Price: price,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info().Str("id", id).Float64("quantity", quantity).Float64("remaining", remaining).Msg("position sold")
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Investment, error) {
	row := s.db.QueryRowContext(ctx, selectInvestments+` WHERE id=?`, id)
	inv, err := scanInvestment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Investment{}, ErrNotFound
	}
	return inv, err
}

func (s *SQLiteStore) List(ctx context.Context) ([]Investment, error) {
	rows, err := s.db.QueryContext(ctx, selectInvestments+` ORDER BY symbol, purchase_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Symbols returns the distinct symbols currently held.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM investments ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// ApplyPrice sets the current price on every position holding symbol and
// logs one price_update transaction per affected position.
func (s *SQLiteStore) ApplyPrice(ctx context.Context, symbol string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	symbol = strings.ToUpper(symbol)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM investments WHERE symbol=?`, symbol)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE investments SET current_price=? WHERE symbol=?`, price, symbol); err != nil {
		return fmt.Errorf("apply price: %w", err)
	}
	for _, id := range ids {
		if err := appendTx(ctx, tx, Transaction{
			InvestmentID: id, Kind: TxPriceUpdate, Symbol: symbol, Price: price,
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Transactions(ctx context.Context) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, investment_id, kind, symbol, quantity, price, at FROM transactions ORDER BY at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var at string
		if err := rows.Scan(&t.ID, &t.InvestmentID, &t.Kind, &t.Symbol, &t.Quantity, &t.Price, &at); err != nil {
			return nil, err
		}
		t.At, _ = time.Parse(time.RFC3339, at)
		out = append(out, t)
	}
	return out, rows.Err()
}

const selectInvestments = `SELECT id, symbol, name, quantity, avg_price, current_price, category, purchase_date, owner_split FROM investments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvestment(r rowScanner) (Investment, error) {
	var inv Investment
	var date string
	err := r.Scan(&inv.ID, &inv.Symbol, &inv.Name, &inv.Quantity, &inv.AvgPrice,
		&inv.CurrentPrice, &inv.Category, &date, &inv.OwnerSplit)
	if err != nil {
		return Investment{}, err
	}
	inv.PurchaseDate, _ = time.Parse(time.RFC3339, date)
	return inv, nil
}

func appendTx(ctx context.Context, tx *sql.Tx, t Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, investment_id, kind, symbol, quantity, price, at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.InvestmentID, t.Kind, t.Symbol, t.Quantity, t.Price, t.At.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func validate(inv Investment) error {
	if inv.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if inv.Quantity < 0 {
		return fmt.Errorf("quantity cannot be negative")
	}
	if inv.AvgPrice <= 0 {
		return fmt.Errorf("avg price must be positive")
	}
	if inv.OwnerSplit < 0 || inv.OwnerSplit > 1 {
		return fmt.Errorf("owner split must be within [0,1]")
	}
	return nil
}
