package portefeuille

import (
	"log/slog"
)

// ReplayWarning reports a transaction the replay could not apply as recorded.
type ReplayWarning struct {
	Tx  Transaction
	Err error
}

// ReplayResult is the full derived state of one portfolio, rebuilt from its
// transaction history.
type ReplayResult struct {
	Positions []Position       // sorted by code
	Closed    []ClosedPosition // in emission order
	Cash      Money
	Warnings  []ReplayWarning
}

// Replay deterministically rebuilds a portfolio's positions, closed-position
// history and cash balance from its complete transaction list. It must be
// re-run in full (never incrementally patched) whenever a historical
// transaction is deleted or edited, or a batch is imported: removing or
// altering an early buy changes every subsequent PRU and every downstream
// close.
//
// Transactions are stably sorted by date, same-day buys before sells. Sells
// and dividends that cannot be applied at their point in the sequence (no
// position, or not enough inventory) are skipped and reported as warnings;
// withdrawals are always applied, even when the running balance goes
// negative, because replay reconstructs history rather than admitting new
// transactions.
func Replay(p Portfolio, txs []Transaction) *ReplayResult {
	sorted := SortTransactions(txs)

	book := NewBook(p)
	res := &ReplayResult{Cash: M(0, p.Currency)}

	for _, tx := range sorted {
		effect, err := book.apply(tx, sorted, false)
		if err != nil {
			res.Warnings = append(res.Warnings, ReplayWarning{Tx: tx, Err: err})
			continue
		}
		if effect.Closed != nil {
			res.Closed = append(res.Closed, *effect.Closed)
		}
	}

	res.Positions = book.Positions()
	res.Cash = book.Cash()
	return res
}

// LogWarnings writes the replay warnings to a logger, one entry each.
func (r *ReplayResult) LogWarnings(log *slog.Logger) {
	for _, w := range r.Warnings {
		log.Warn("transaction skipped during replay",
			"date", w.Tx.Date.String(),
			"type", string(w.Tx.Type),
			"code", w.Tx.Code,
			"reason", w.Err.Error(),
		)
	}
	if r.Cash.IsNegative() {
		log.Warn("replayed cash balance is negative", "cash", r.Cash.String())
	}
}

// ValidateImport runs the pre-import dry pass over a batch: it reports,
// without failing, the sells that lack sufficient prior buys within the batch
// itself. Import proceeds regardless; the warnings exist so the user can spot
// a truncated export.
func ValidateImport(txs []Transaction) []ReplayWarning {
	var warnings []ReplayWarning
	open := make(map[string]Quantity)
	for _, tx := range SortTransactions(txs) {
		tx = tx.Normalize()
		switch tx.Type {
		case TxBuy:
			open[tx.Code] = open[tx.Code].Add(tx.Quantity)
		case TxSell:
			have := open[tx.Code]
			if have.LessThan(tx.Quantity) {
				err := ErrInsufficientQuantity
				if have.IsZero() {
					err = ErrUnknownCode
				}
				warnings = append(warnings, ReplayWarning{Tx: tx, Err: err})
				continue
			}
			open[tx.Code] = have.Sub(tx.Quantity)
		}
	}
	return warnings
}

// replayEquivalent reports whether two replay results carry the same derived
// state (positions, closes, cash), ignoring generated close ids.
func replayEquivalent(a, b *ReplayResult) bool {
	if len(a.Positions) != len(b.Positions) || len(a.Closed) != len(b.Closed) {
		return false
	}
	if !a.Cash.Equal(b.Cash) {
		return false
	}
	for i := range a.Positions {
		p, q := a.Positions[i], b.Positions[i]
		if p.Code != q.Code || !p.Quantity.Equal(q.Quantity) ||
			!p.TotalCost.Equal(q.TotalCost) || !p.PRU.Equal(q.PRU) {
			return false
		}
	}
	for i := range a.Closed {
		c, d := a.Closed[i], b.Closed[i]
		if c.Code != d.Code || c.SaleDate != d.SaleDate || !c.Quantity.Equal(d.Quantity) ||
			!c.TotalPurchase.Equal(d.TotalPurchase) || !c.TotalSale.Equal(d.TotalSale) ||
			!c.Dividends.Equal(d.Dividends) {
			return false
		}
	}
	return true
}
