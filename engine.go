package portefeuille

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Book is the set of open positions and the cash balance of a single
// portfolio. It is the working state of the position engine: Apply folds one
// transaction into it and reports the resulting store mutations.
//
// A Book has no locking; callers serialize mutations per portfolio.
type Book struct {
	portfolioID string
	currency    string // portfolio base currency
	cash        Money
	positions   map[string]Position // keyed by normalized code
}

// NewBook creates an empty book for a portfolio, with a zero cash balance.
func NewBook(p Portfolio) *Book {
	return &Book{
		portfolioID: p.ID,
		currency:    p.Currency,
		cash:        M(0, p.Currency),
		positions:   make(map[string]Position),
	}
}

// BookOf creates a book loaded with a portfolio's current positions and cash,
// ready for incremental application.
func BookOf(p Portfolio, positions []Position) *Book {
	b := NewBook(p)
	b.cash = b.cash.Add(p.Cash)
	for _, pos := range positions {
		b.positions[NormalizeCode(pos.Code)] = pos
	}
	return b
}

// Cash returns the book's cash balance.
func (b *Book) Cash() Money { return b.cash }

// Position returns the open position for a code, matching case-insensitively.
func (b *Book) Position(code string) (Position, bool) {
	pos, ok := b.positions[NormalizeCode(code)]
	return pos, ok
}

// Positions returns all open positions sorted by code.
func (b *Book) Positions() []Position {
	codes := make([]string, 0, len(b.positions))
	for code := range b.positions {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	out := make([]Position, 0, len(codes))
	for _, code := range codes {
		out = append(out, b.positions[code])
	}
	return out
}

// Effect describes the store mutations produced by applying one transaction.
type Effect struct {
	Upsert    *Position       // position created or updated, nil when none
	Remove    string          // code of a position sold down to zero, "" when none
	Closed    *ClosedPosition // realized close emitted by a sell, nil when none
	CashDelta Money           // signed cash movement in portfolio currency
}

// Apply folds one transaction into the book. 'history' is the portfolio's
// full chronological transaction list up to (and excluding) tx; sells use it
// to attribute the purchase date and the holding-period dividends.
//
// On error the book is left unchanged and nothing must be written to the
// store. Errors wrap the sentinel taxonomy: [ErrInsufficientQuantity],
// [ErrInsufficientCash], [ErrUnknownCode].
func (b *Book) Apply(tx Transaction, history []Transaction) (Effect, error) {
	return b.apply(tx, history, true)
}

// apply is Apply with admission control optionally relaxed: replay
// reconstructs history and must not refuse a withdrawal that once happened,
// even if an edit made the running balance negative.
func (b *Book) apply(tx Transaction, history []Transaction, strict bool) (Effect, error) {
	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return Effect{}, err
	}

	switch tx.Type {
	case TxBuy:
		return b.applyBuy(tx), nil
	case TxSell:
		return b.applySell(tx, history)
	case TxDividend:
		return b.applyDividend(tx)
	case TxDeposit:
		delta := tx.CashAmount(b.currency)
		b.cash = b.cash.Add(delta)
		return Effect{CashDelta: delta}, nil
	case TxWithdraw:
		amount := tx.CashAmount(b.currency)
		if strict && b.cash.LessThan(amount) {
			return Effect{}, fmt.Errorf("on %s, cannot withdraw %s, cash balance is %s: %w",
				tx.Date, amount, b.cash, ErrInsufficientCash)
		}
		b.cash = b.cash.Sub(amount)
		return Effect{CashDelta: amount.Neg()}, nil
	default:
		return Effect{}, fmt.Errorf("unhandled transaction type: %q", tx.Type)
	}
}

func (b *Book) applyBuy(tx Transaction) Effect {
	cost := tx.BuyCost(b.currency)

	pos, ok := b.positions[tx.Code]
	if !ok {
		pos = Position{
			PortfolioID: b.portfolioID,
			Code:        tx.Code,
			Name:        tx.Name,
			Quantity:    tx.Quantity,
			TotalCost:   cost,
			Currency:    tx.Currency,
			Sector:      tx.Sector,
		}
	} else {
		pos.TotalCost = pos.TotalCost.Add(cost)
		pos.Quantity = pos.Quantity.Add(tx.Quantity)
		if pos.Name == "" {
			pos.Name = tx.Name
		}
		if pos.Sector == "" {
			pos.Sector = tx.Sector
		}
	}
	// The single most important invariant: PRU is always cumulative cost over
	// cumulative quantity of the still-open units.
	pos.PRU = pos.TotalCost.Div(pos.Quantity)

	b.positions[tx.Code] = pos
	b.cash = b.cash.Sub(cost)
	return Effect{Upsert: &pos, CashDelta: cost.Neg()}
}

func (b *Book) applySell(tx Transaction, history []Transaction) (Effect, error) {
	pos, ok := b.positions[tx.Code]
	if !ok {
		return Effect{}, fmt.Errorf("on %s, cannot sell %s, no open position: %w",
			tx.Date, tx.Code, ErrUnknownCode)
	}
	if pos.Quantity.LessThan(tx.Quantity) {
		return Effect{}, fmt.Errorf("on %s, cannot sell %s of %s, position is only %s: %w",
			tx.Date, tx.Quantity, tx.Code, pos.Quantity, ErrInsufficientQuantity)
	}

	totalSale := tx.SaleProceeds(b.currency)
	// Sold units are costed at the position's blended average, not FIFO.
	totalPurchase := pos.PRU.Mul(tx.Quantity)
	gainLoss := GainLoss(totalSale, totalPurchase)

	purchaseDate, found := earliestBuyDate(history, tx.Code)
	if !found {
		purchaseDate = tx.Date
	}

	closed := ClosedPosition{
		ID:              uuid.NewString(),
		PortfolioID:     b.portfolioID,
		Code:            tx.Code,
		Name:            pos.Name,
		PurchaseDate:    purchaseDate,
		SaleDate:        tx.Date,
		Quantity:        tx.Quantity,
		PRU:             pos.PRU,
		AvgSalePrice:    totalSale.Div(tx.Quantity),
		TotalPurchase:   totalPurchase,
		TotalSale:       totalSale,
		GainLoss:        gainLoss,
		GainLossPercent: GainLossPercent(gainLoss, totalPurchase),
		Dividends:       HoldingPeriodDividends(history, tx.Code, purchaseDate, tx.Date, b.currency),
		Sector:          pos.Sector,
	}

	b.cash = b.cash.Add(totalSale)

	remaining := pos.Quantity.Sub(tx.Quantity)
	if remaining.IsZero() {
		// Never leave a zero-quantity position record.
		delete(b.positions, tx.Code)
		return Effect{Remove: tx.Code, Closed: &closed, CashDelta: totalSale}, nil
	}

	// Partial sell: reduce quantity and cost proportionally, PRU unchanged.
	pos.Quantity = remaining
	pos.TotalCost = pos.TotalCost.Sub(totalPurchase)
	b.positions[tx.Code] = pos
	return Effect{Upsert: &pos, Closed: &closed, CashDelta: totalSale}, nil
}

func (b *Book) applyDividend(tx Transaction) (Effect, error) {
	if _, ok := b.positions[tx.Code]; !ok {
		return Effect{}, fmt.Errorf("on %s, dividend for %s, no open position: %w",
			tx.Date, tx.Code, ErrUnknownCode)
	}
	delta := tx.DividendNet(b.currency)
	b.cash = b.cash.Add(delta)
	return Effect{CashDelta: delta}, nil
}
