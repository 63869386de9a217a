// Package portefeuille implements a portfolio ledger and its
// position-derivation engine.
//
// The ledger records buy (achat), sell (vente), dividend (dividende),
// deposit (depot) and withdrawal (retrait) transactions for one or more
// portfolios, and derives from them the set of open positions (quantity and
// average cost basis, the PRU), the history of realized closes, and the cash
// balance.
//
// Two derivation paths exist. Applying a single new transaction goes through
// the incremental position engine ([Book.Apply]). Any mutation of history --
// deleting a transaction, editing one, importing a batch -- goes through
// [Replay], which rebuilds every position, closed position and the cash
// balance from scratch so that average-cost figures stay consistent.
//
// Persistence is delegated to a [LedgerStore] collaborator; quote fetching is
// delegated to the quote package and never influences stored cost figures.
package portefeuille
