package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	pf "github.com/sboulay/portefeuille"
)

// SQLite is the file-backed LedgerStore. Amounts are stored as decimal text
// so no value ever goes through a float.
type SQLite struct {
	db *sql.DB
}

var _ pf.LedgerStore = (*SQLite)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS portfolios (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	code TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	currency TEXT NOT NULL,
	fees_percent TEXT NOT NULL DEFAULT '0',
	fees_min TEXT NOT NULL DEFAULT '0',
	tff_percent TEXT NOT NULL DEFAULT '0',
	cash TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	date TEXT NOT NULL,
	code TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	quantity TEXT NOT NULL,
	unit_price TEXT NOT NULL,
	fees TEXT NOT NULL DEFAULT '0',
	tff TEXT NOT NULL DEFAULT '0',
	currency TEXT NOT NULL DEFAULT '',
	conv_rate TEXT NOT NULL DEFAULT '1',
	tax TEXT NOT NULL DEFAULT '0',
	sector TEXT NOT NULL DEFAULT '',
	FOREIGN KEY(portfolio_id) REFERENCES portfolios(id)
);

CREATE TABLE IF NOT EXISTS positions (
	portfolio_id TEXT NOT NULL,
	code TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	quantity TEXT NOT NULL,
	total_cost TEXT NOT NULL,
	pru TEXT NOT NULL,
	currency TEXT NOT NULL DEFAULT '',
	stop_loss TEXT NOT NULL DEFAULT '0',
	manual_price TEXT NOT NULL DEFAULT '0',
	sector TEXT NOT NULL DEFAULT '',
	PRIMARY KEY(portfolio_id, code),
	FOREIGN KEY(portfolio_id) REFERENCES portfolios(id)
);

CREATE TABLE IF NOT EXISTS closed_positions (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	code TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	purchase_date TEXT NOT NULL,
	sale_date TEXT NOT NULL,
	quantity TEXT NOT NULL,
	pru TEXT NOT NULL,
	avg_sale_price TEXT NOT NULL,
	total_purchase TEXT NOT NULL,
	total_sale TEXT NOT NULL,
	gain_loss TEXT NOT NULL,
	gain_loss_percent REAL,
	dividends TEXT NOT NULL DEFAULT '0',
	sector TEXT NOT NULL DEFAULT '',
	FOREIGN KEY(portfolio_id) REFERENCES portfolios(id)
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions(portfolio_id, date);
CREATE INDEX IF NOT EXISTS idx_closed_portfolio ON closed_positions(portfolio_id, sale_date);
`

// OpenSQLite opens (and creates if needed) the database at 'path'.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cannot open database at %s: %w", path, err)
	}
	// The sqlite driver is single-writer; serializing connections avoids
	// SQLITE_BUSY under concurrent command runs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create tables: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}
	}
	return d
}

func day(s string) pf.Date {
	d, err := pf.ParseDate(s)
	if err != nil {
		return pf.Date{}
	}
	return d
}

func (s *SQLite) Portfolios(ctx context.Context) ([]pf.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, code, category, currency,
		fees_percent, fees_min, tff_percent, cash FROM portfolios ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pf.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanPortfolio(r rowScanner) (pf.Portfolio, error) {
	var p pf.Portfolio
	var feesPercent, feesMin, tffPercent, cash string
	err := r.Scan(&p.ID, &p.Name, &p.Code, &p.Category, &p.Currency,
		&feesPercent, &feesMin, &tffPercent, &cash)
	if err != nil {
		return pf.Portfolio{}, err
	}
	p.Fees = pf.FeeSchedule{
		FeesPercent: dec(feesPercent),
		FeesMin:     dec(feesMin),
		TFFPercent:  dec(tffPercent),
	}
	p.Cash = pf.M(dec(cash), p.Currency)
	return p, nil
}

func (s *SQLite) GetPortfolio(ctx context.Context, id string) (pf.Portfolio, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, code, category, currency,
		fees_percent, fees_min, tff_percent, cash FROM portfolios WHERE id = ?`, id)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pf.Portfolio{}, fmt.Errorf("portfolio %q: %w", id, pf.ErrNotFound)
	}
	return p, err
}

func (s *SQLite) CreatePortfolio(ctx context.Context, p pf.Portfolio) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO portfolios
		(id, name, code, category, currency, fees_percent, fees_min, tff_percent, cash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Code, string(p.Category), p.Currency,
		p.Fees.FeesPercent.String(), p.Fees.FeesMin.String(), p.Fees.TFFPercent.String(),
		p.Cash.Amount().String())
	return err
}

func (s *SQLite) UpdatePortfolio(ctx context.Context, p pf.Portfolio) error {
	res, err := s.db.ExecContext(ctx, `UPDATE portfolios SET
		name = ?, code = ?, category = ?, currency = ?,
		fees_percent = ?, fees_min = ?, tff_percent = ?, cash = ?
		WHERE id = ?`,
		p.Name, p.Code, string(p.Category), p.Currency,
		p.Fees.FeesPercent.String(), p.Fees.FeesMin.String(), p.Fees.TFFPercent.String(),
		p.Cash.Amount().String(), p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("portfolio %q: %w", p.ID, pf.ErrNotFound)
	}
	return err
}

func (s *SQLite) DeletePortfolio(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM portfolios WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("portfolio %q: %w", id, pf.ErrNotFound)
		}
		for _, table := range []string{"transactions", "positions", "closed_positions"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE portfolio_id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
}

const txColumns = `id, portfolio_id, date, code, name, type, quantity, unit_price,
	fees, tff, currency, conv_rate, tax, sector`

func scanTransaction(r rowScanner) (pf.Transaction, error) {
	var t pf.Transaction
	var date, typ, quantity, unitPrice, fees, tff, convRate, tax string
	err := r.Scan(&t.ID, &t.PortfolioID, &date, &t.Code, &t.Name, &typ,
		&quantity, &unitPrice, &fees, &tff, &t.Currency, &convRate, &tax, &t.Sector)
	if err != nil {
		return pf.Transaction{}, err
	}
	t.Date = day(date)
	t.Type = pf.TxType(typ)
	t.Quantity = pf.Q(dec(quantity))
	t.UnitPrice = dec(unitPrice)
	t.Fees = dec(fees)
	t.TFF = dec(tff)
	t.ConvRate = dec(convRate)
	t.Tax = dec(tax)
	return t, nil
}

func (s *SQLite) Transactions(ctx context.Context, portfolioID string) ([]pf.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions`
	var args []any
	if portfolioID != "" {
		query += ` WHERE portfolio_id = ?`
		args = append(args, portfolioID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pf.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pf.SortTransactions(out), nil
}

func insertTransaction(ctx context.Context, e interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, t pf.Transaction) error {
	_, err := e.ExecContext(ctx, `INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PortfolioID, t.Date.String(), t.Code, t.Name, string(t.Type),
		t.Quantity.String(), t.UnitPrice.String(), t.Fees.String(), t.TFF.String(),
		t.Currency, t.ConvRate.String(), t.Tax.String(), t.Sector)
	return err
}

func (s *SQLite) AddTransaction(ctx context.Context, t pf.Transaction) error {
	return insertTransaction(ctx, s.db, t)
}

func (s *SQLite) AddTransactions(ctx context.Context, txs []pf.Transaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range txs {
			if err := insertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) DeleteTransaction(ctx context.Context, portfolioID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND portfolio_id = ?`, id, portfolioID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %q: %w", id, pf.ErrNotFound)
	}
	return err
}

const positionColumns = `portfolio_id, code, name, quantity, total_cost, pru,
	currency, stop_loss, manual_price, sector`

func scanPosition(r rowScanner, currencies map[string]string) (pf.Position, error) {
	var p pf.Position
	var quantity, totalCost, pru, stopLoss, manualPrice string
	err := r.Scan(&p.PortfolioID, &p.Code, &p.Name, &quantity, &totalCost, &pru,
		&p.Currency, &stopLoss, &manualPrice, &p.Sector)
	if err != nil {
		return pf.Position{}, err
	}
	cur := currencies[p.PortfolioID]
	p.Quantity = pf.Q(dec(quantity))
	p.TotalCost = pf.M(dec(totalCost), cur)
	p.PRU = pf.M(dec(pru), cur)
	p.StopLoss = dec(stopLoss)
	p.ManualPrice = dec(manualPrice)
	return p, nil
}

// currencies preloads the base currency of every portfolio; stored amounts
// are bare numbers and the currency is re-attached on read. Preloading also
// keeps the single connection free while a rows cursor is open.
func (s *SQLite) currencies(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, currency FROM portfolios`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cur string
		if err := rows.Scan(&id, &cur); err != nil {
			return nil, err
		}
		out[id] = cur
	}
	return out, rows.Err()
}

func (s *SQLite) Positions(ctx context.Context, portfolioID string) ([]pf.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions`
	var args []any
	if portfolioID != "" {
		query += ` WHERE portfolio_id = ?`
		args = append(args, portfolioID)
	}
	query += ` ORDER BY portfolio_id, code`
	currencies, err := s.currencies(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pf.Position
	for rows.Next() {
		p, err := scanPosition(rows, currencies)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) UpsertPosition(ctx context.Context, p pf.Position) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, code) DO UPDATE SET
		name = excluded.name, quantity = excluded.quantity,
		total_cost = excluded.total_cost, pru = excluded.pru,
		currency = excluded.currency, stop_loss = excluded.stop_loss,
		manual_price = excluded.manual_price, sector = excluded.sector`,
		p.PortfolioID, p.Code, p.Name, p.Quantity.String(),
		p.TotalCost.Amount().String(), p.PRU.Amount().String(),
		p.Currency, p.StopLoss.String(), p.ManualPrice.String(), p.Sector)
	return err
}

func (s *SQLite) DeletePosition(ctx context.Context, portfolioID, code string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM positions WHERE portfolio_id = ? AND code = ?`,
		portfolioID, pf.NormalizeCode(code))
	return err
}

const closedColumns = `id, portfolio_id, code, name, purchase_date, sale_date,
	quantity, pru, avg_sale_price, total_purchase, total_sale, gain_loss,
	gain_loss_percent, dividends, sector`

func (s *SQLite) ClosedPositions(ctx context.Context, portfolioID string) ([]pf.ClosedPosition, error) {
	query := `SELECT ` + closedColumns + ` FROM closed_positions`
	var args []any
	if portfolioID != "" {
		query += ` WHERE portfolio_id = ?`
		args = append(args, portfolioID)
	}
	query += ` ORDER BY sale_date, id`
	currencies, err := s.currencies(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pf.ClosedPosition
	for rows.Next() {
		var c pf.ClosedPosition
		var purchaseDate, saleDate string
		var quantity, pru, avgSalePrice, totalPurchase, totalSale, gainLoss, dividends string
		var gainLossPercent sql.NullFloat64
		err := rows.Scan(&c.ID, &c.PortfolioID, &c.Code, &c.Name, &purchaseDate, &saleDate,
			&quantity, &pru, &avgSalePrice, &totalPurchase, &totalSale, &gainLoss,
			&gainLossPercent, &dividends, &c.Sector)
		if err != nil {
			return nil, err
		}
		cur := currencies[c.PortfolioID]
		c.PurchaseDate = day(purchaseDate)
		c.SaleDate = day(saleDate)
		c.Quantity = pf.Q(dec(quantity))
		c.PRU = pf.M(dec(pru), cur)
		c.AvgSalePrice = pf.M(dec(avgSalePrice), cur)
		c.TotalPurchase = pf.M(dec(totalPurchase), cur)
		c.TotalSale = pf.M(dec(totalSale), cur)
		c.GainLoss = pf.M(dec(gainLoss), cur)
		// NULL marks an undefined percentage (sale against a zero cost basis).
		if gainLossPercent.Valid {
			c.GainLossPercent = pf.Percent(gainLossPercent.Float64)
		} else {
			c.GainLossPercent = pf.Percent(math.NaN())
		}
		c.Dividends = pf.M(dec(dividends), cur)
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertClosedPosition(ctx context.Context, e interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, c pf.ClosedPosition) error {
	// An undefined percentage (NaN) is stored as NULL; a bound NaN has no
	// SQLite representation.
	var gainLossPercent any
	if !c.GainLossPercent.IsNaN() {
		gainLossPercent = float64(c.GainLossPercent)
	}
	_, err := e.ExecContext(ctx, `INSERT INTO closed_positions (`+closedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PortfolioID, c.Code, c.Name, c.PurchaseDate.String(), c.SaleDate.String(),
		c.Quantity.String(), c.PRU.Amount().String(), c.AvgSalePrice.Amount().String(),
		c.TotalPurchase.Amount().String(), c.TotalSale.Amount().String(),
		c.GainLoss.Amount().String(), gainLossPercent,
		c.Dividends.Amount().String(), c.Sector)
	return err
}

func (s *SQLite) AddClosedPosition(ctx context.Context, c pf.ClosedPosition) error {
	return insertClosedPosition(ctx, s.db, c)
}

func (s *SQLite) ReplaceDerived(ctx context.Context, portfolioID string, positions []pf.Position, closed []pf.ClosedPosition) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE portfolio_id = ?`, portfolioID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM closed_positions WHERE portfolio_id = ?`, portfolioID); err != nil {
			return err
		}
		for _, p := range positions {
			_, err := tx.ExecContext(ctx, `INSERT INTO positions (`+positionColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				portfolioID, p.Code, p.Name, p.Quantity.String(),
				p.TotalCost.Amount().String(), p.PRU.Amount().String(),
				p.Currency, p.StopLoss.String(), p.ManualPrice.String(), p.Sector)
			if err != nil {
				return err
			}
		}
		for _, c := range closed {
			c.PortfolioID = portfolioID
			if err := insertClosedPosition(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *SQLite) Replace(ctx context.Context, b *pf.Backup) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"portfolios", "transactions", "positions", "closed_positions", "settings"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return err
			}
		}
		for _, p := range b.Portfolios {
			_, err := tx.ExecContext(ctx, `INSERT INTO portfolios
				(id, name, code, category, currency, fees_percent, fees_min, tff_percent, cash)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.Name, p.Code, string(p.Category), p.Currency,
				p.Fees.FeesPercent.String(), p.Fees.FeesMin.String(), p.Fees.TFFPercent.String(),
				p.Cash.Amount().String())
			if err != nil {
				return err
			}
		}
		for _, t := range b.Transactions {
			if err := insertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		for _, p := range b.Positions {
			_, err := tx.ExecContext(ctx, `INSERT INTO positions (`+positionColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.PortfolioID, p.Code, p.Name, p.Quantity.String(),
				p.TotalCost.Amount().String(), p.PRU.Amount().String(),
				p.Currency, p.StopLoss.String(), p.ManualPrice.String(), p.Sector)
			if err != nil {
				return err
			}
		}
		for _, c := range b.ClosedPositions {
			if err := insertClosedPosition(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, st := range b.Settings {
			if _, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)`, st.Key, st.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
