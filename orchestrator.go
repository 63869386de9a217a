package portefeuille

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Orchestrator coordinates the position engine, the replay engine and the
// ledger store. It dispatches incremental application for new transactions
// and full replays for every historical mutation, and keeps the cash balance
// in step with both.
//
// Mutating operations against the same portfolio must be serialized by the
// caller; the orchestrator performs no locking of its own.
type Orchestrator struct {
	store LedgerStore
	log   *slog.Logger
}

// NewOrchestrator creates an orchestrator over a store. A nil logger
// defaults to slog.Default().
func NewOrchestrator(store LedgerStore, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{store: store, log: log}
}

// Result is the outcome of a mutating operation: the refreshed derived state
// of the portfolio. Presentation layers subscribe to it instead of patching
// their own copies.
type Result struct {
	Positions []Position
	Closed    []ClosedPosition
	CashDelta Money
	Cash      Money
	Warnings  []ReplayWarning // bulk operations only
}

// CreatePortfolio validates and persists a new portfolio, assigning an id
// when missing. Cash starts at zero in the base currency.
func (o *Orchestrator) CreatePortfolio(ctx context.Context, p Portfolio) (Portfolio, error) {
	if err := p.Validate(); err != nil {
		return Portfolio{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Cash = M(0, p.Currency).Add(p.Cash)
	if err := o.store.CreatePortfolio(ctx, p); err != nil {
		return Portfolio{}, fmt.Errorf("could not create portfolio: %w", err)
	}
	o.log.Info("portfolio created", "id", p.ID, "name", p.Name, "currency", p.Currency)
	return p, nil
}

// Portfolios lists every portfolio in the store.
func (o *Orchestrator) Portfolios(ctx context.Context) ([]Portfolio, error) {
	return o.store.Portfolios(ctx)
}

// DeletePortfolio removes a portfolio and everything it owns.
func (o *Orchestrator) DeletePortfolio(ctx context.Context, id string) error {
	if err := o.store.DeletePortfolio(ctx, id); err != nil {
		return fmt.Errorf("could not delete portfolio: %w", err)
	}
	o.log.Info("portfolio deleted", "id", id)
	return nil
}

// AddTransaction applies one new transaction incrementally: the position
// engine computes the store mutations, and only if it admits the transaction
// are the writes issued. On ErrInsufficientQuantity or ErrInsufficientCash
// nothing is persisted.
func (o *Orchestrator) AddTransaction(ctx context.Context, portfolioID string, tx Transaction) (*Result, error) {
	p, err := o.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	history, err := o.store.Transactions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	positions, err := o.store.Positions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	tx = tx.Normalize()
	tx.PortfolioID = p.ID
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	book := BookOf(p, positions)
	effect, err := book.Apply(tx, history)
	if err != nil {
		return nil, err
	}

	// The engine admitted the transaction; issue the writes. The caller must
	// still refresh from the store afterwards, the write sequence is not
	// transactional.
	if err := o.store.AddTransaction(ctx, tx); err != nil {
		return nil, err
	}
	if effect.Upsert != nil {
		if err := o.store.UpsertPosition(ctx, *effect.Upsert); err != nil {
			return nil, err
		}
	}
	if effect.Remove != "" {
		if err := o.store.DeletePosition(ctx, p.ID, effect.Remove); err != nil {
			return nil, err
		}
	}
	if effect.Closed != nil {
		if err := o.store.AddClosedPosition(ctx, *effect.Closed); err != nil {
			return nil, err
		}
	}
	p.Cash = book.Cash()
	if err := o.store.UpdatePortfolio(ctx, p); err != nil {
		return nil, err
	}

	o.log.Info("transaction applied",
		"portfolio", p.ID, "type", string(tx.Type), "code", tx.Code,
		"date", tx.Date.String(), "cashDelta", effect.CashDelta.String())

	closed, err := o.store.ClosedPositions(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &Result{
		Positions: book.Positions(),
		Closed:    closed,
		CashDelta: effect.CashDelta,
		Cash:      p.Cash,
	}, nil
}

// DeleteTransaction removes one transaction from history and rebuilds the
// portfolio's entire derived state by replay: positions, closed positions and
// cash are fully replaced, never patched.
func (o *Orchestrator) DeleteTransaction(ctx context.Context, portfolioID, txID string) (*Result, error) {
	p, err := o.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if err := o.store.DeleteTransaction(ctx, portfolioID, txID); err != nil {
		return nil, err
	}
	return o.replayAndReplace(ctx, p)
}

// ImportTransactions merges a batch into the existing history and rebuilds
// the portfolio by replay. The dry validation pass reports sells lacking
// prior buys within the batch; the warnings are non-fatal and the import
// proceeds regardless.
func (o *Orchestrator) ImportTransactions(ctx context.Context, portfolioID string, txs []Transaction) (*Result, error) {
	p, err := o.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	warnings := ValidateImport(txs)
	for _, w := range warnings {
		o.log.Warn("import: sell without matching buy in batch",
			"code", w.Tx.Code, "date", w.Tx.Date.String(), "reason", w.Err.Error())
	}

	batch := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		tx = tx.Normalize()
		tx.PortfolioID = p.ID
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("invalid transaction in import batch: %w", err)
		}
		batch = append(batch, tx)
	}
	if err := o.store.AddTransactions(ctx, batch); err != nil {
		return nil, err
	}

	res, err := o.replayAndReplace(ctx, p)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	return res, nil
}

// replayAndReplace rebuilds a portfolio's derived state from its stored
// history and atomically replaces it in the store.
func (o *Orchestrator) replayAndReplace(ctx context.Context, p Portfolio) (*Result, error) {
	history, err := o.store.Transactions(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	res := Replay(p, history)
	res.LogWarnings(o.log)

	if err := o.store.ReplaceDerived(ctx, p.ID, res.Positions, res.Closed); err != nil {
		return nil, err
	}
	delta := res.Cash.Sub(p.Cash)
	p.Cash = res.Cash
	if err := o.store.UpdatePortfolio(ctx, p); err != nil {
		return nil, err
	}

	o.log.Info("portfolio replayed",
		"portfolio", p.ID, "transactions", len(history),
		"positions", len(res.Positions), "closed", len(res.Closed),
		"cash", res.Cash.String())

	return &Result{
		Positions: res.Positions,
		Closed:    res.Closed,
		CashDelta: delta,
		Cash:      res.Cash,
		Warnings:  res.Warnings,
	}, nil
}

// Tagged records carry the code of their source portfolio so consolidated
// rows remain attributable.
type (
	TaggedTransaction struct {
		PortfolioCode string
		Transaction
	}
	TaggedPosition struct {
		PortfolioCode string
		Position
	}
	TaggedClosedPosition struct {
		PortfolioCode string
		ClosedPosition
	}
)

// Consolidated is the read-only aggregation over all portfolios. Positions of
// the same code in different portfolios stay distinct rows; cash sums per
// base currency.
type Consolidated struct {
	Cash         []Money // one entry per currency, sorted by currency code
	Transactions []TaggedTransaction
	Positions    []TaggedPosition
	Closed       []TaggedClosedPosition
}

// ConsolidatedView builds the aggregation across every portfolio in the
// store. It never merges positions across portfolios.
func (o *Orchestrator) ConsolidatedView(ctx context.Context) (*Consolidated, error) {
	portfolios, err := o.store.Portfolios(ctx)
	if err != nil {
		return nil, err
	}

	out := &Consolidated{}
	cashByCur := make(map[string]Money)
	for _, p := range portfolios {
		tag := p.Code
		if tag == "" {
			tag = p.Name
		}
		cashByCur[p.Currency] = cashByCur[p.Currency].Add(p.Cash)

		txs, err := o.store.Transactions(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, tx := range SortTransactions(txs) {
			out.Transactions = append(out.Transactions, TaggedTransaction{tag, tx})
		}
		positions, err := o.store.Positions(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, pos := range positions {
			out.Positions = append(out.Positions, TaggedPosition{tag, pos})
		}
		closed, err := o.store.ClosedPositions(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range closed {
			out.Closed = append(out.Closed, TaggedClosedPosition{tag, c})
		}
	}

	currencies := make([]string, 0, len(cashByCur))
	for cur := range cashByCur {
		currencies = append(currencies, cur)
	}
	slices.Sort(currencies)
	for _, cur := range currencies {
		out.Cash = append(out.Cash, cashByCur[cur])
	}
	return out, nil
}

// SetStopLoss updates the stop-loss metadata on a position. An empty
// portfolioID addresses the consolidated view: the update propagates to
// every portfolio holding the code.
func (o *Orchestrator) SetStopLoss(ctx context.Context, portfolioID, code string, value decimal.Decimal) error {
	return o.updatePositionMeta(ctx, portfolioID, code, func(p *Position) { p.StopLoss = value })
}

// SetManualPrice updates the user-entered current price on a position, which
// overrides any fetched quote in displayed valuations. Same propagation rule
// as SetStopLoss.
func (o *Orchestrator) SetManualPrice(ctx context.Context, portfolioID, code string, value decimal.Decimal) error {
	return o.updatePositionMeta(ctx, portfolioID, code, func(p *Position) { p.ManualPrice = value })
}

func (o *Orchestrator) updatePositionMeta(ctx context.Context, portfolioID, code string, mutate func(*Position)) error {
	code = NormalizeCode(code)
	positions, err := o.store.Positions(ctx, portfolioID)
	if err != nil {
		return err
	}
	found := false
	for _, pos := range positions {
		if NormalizeCode(pos.Code) != code {
			continue
		}
		mutate(&pos)
		if err := o.store.UpsertPosition(ctx, pos); err != nil {
			return err
		}
		found = true
	}
	if !found {
		return fmt.Errorf("no open position for %s: %w", code, ErrUnknownCode)
	}
	return nil
}

// CurrentPortfolio resolves the portfolio CLI commands default to, through
// the Setting record. The empty string means no pointer is set.
func (o *Orchestrator) CurrentPortfolio(ctx context.Context) (string, error) {
	return o.store.Setting(ctx, SettingCurrentPortfolio)
}

// SetCurrentPortfolio stores the current-portfolio pointer.
func (o *Orchestrator) SetCurrentPortfolio(ctx context.Context, portfolioID string) error {
	if _, err := o.store.GetPortfolio(ctx, portfolioID); err != nil {
		return err
	}
	return o.store.SetSetting(ctx, SettingCurrentPortfolio, portfolioID)
}

// FindPortfolio resolves a portfolio by id, code or name (case-insensitive).
func (o *Orchestrator) FindPortfolio(ctx context.Context, key string) (Portfolio, error) {
	if p, err := o.store.GetPortfolio(ctx, key); err == nil {
		return p, nil
	}
	portfolios, err := o.store.Portfolios(ctx)
	if err != nil {
		return Portfolio{}, err
	}
	for _, p := range portfolios {
		if strings.EqualFold(p.Code, key) || strings.EqualFold(p.Name, key) {
			return p, nil
		}
	}
	return Portfolio{}, fmt.Errorf("portfolio %q: %w", key, ErrNotFound)
}

// Export assembles a backup of the entire store.
func (o *Orchestrator) Export(ctx context.Context) (*Backup, error) {
	b := &Backup{ExportDate: Today(), AppVersion: Version}
	var err error
	if b.Portfolios, err = o.store.Portfolios(ctx); err != nil {
		return nil, err
	}
	if b.Transactions, err = o.store.Transactions(ctx, ""); err != nil {
		return nil, err
	}
	if b.Positions, err = o.store.Positions(ctx, ""); err != nil {
		return nil, err
	}
	if b.ClosedPositions, err = o.store.ClosedPositions(ctx, ""); err != nil {
		return nil, err
	}
	if b.Settings, err = o.settings(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (o *Orchestrator) settings(ctx context.Context) ([]Setting, error) {
	// Only the current-portfolio pointer is core state; cached provider data
	// regenerates itself.
	v, err := o.store.Setting(ctx, SettingCurrentPortfolio)
	if err != nil {
		return nil, err
	}
	if v == "" {
		return []Setting{}, nil
	}
	return []Setting{{Key: SettingCurrentPortfolio, Value: v}}, nil
}

// Restore validates a backup and atomically replaces the store content with
// it. On ErrInvalidBackup the store is left untouched.
func (o *Orchestrator) Restore(ctx context.Context, b *Backup) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := o.store.Replace(ctx, b); err != nil {
		return fmt.Errorf("could not restore backup: %w", err)
	}
	o.log.Info("backup restored",
		"portfolios", len(b.Portfolios), "transactions", len(b.Transactions))
	return nil
}
