package portefeuille

import "context"

// LedgerStore is the persistence collaborator of the core. The engine only
// requires CRUD plus bulk operations over the five record types; the storage
// technology behind it is not the core's concern.
//
// Reads taking a portfolioID accept "" to mean all portfolios. Bulk
// replacements of derived state (ReplaceDerived, Replace) must run as a
// single atomic unit: a failed replace leaves the previous state intact.
type LedgerStore interface {
	Portfolios(ctx context.Context) ([]Portfolio, error)
	GetPortfolio(ctx context.Context, id string) (Portfolio, error)
	CreatePortfolio(ctx context.Context, p Portfolio) error
	UpdatePortfolio(ctx context.Context, p Portfolio) error
	// DeletePortfolio cascades to the portfolio's transactions, positions and
	// closed positions.
	DeletePortfolio(ctx context.Context, id string) error

	Transactions(ctx context.Context, portfolioID string) ([]Transaction, error)
	AddTransaction(ctx context.Context, tx Transaction) error
	AddTransactions(ctx context.Context, txs []Transaction) error
	DeleteTransaction(ctx context.Context, portfolioID, id string) error

	Positions(ctx context.Context, portfolioID string) ([]Position, error)
	UpsertPosition(ctx context.Context, p Position) error
	DeletePosition(ctx context.Context, portfolioID, code string) error

	ClosedPositions(ctx context.Context, portfolioID string) ([]ClosedPosition, error)
	AddClosedPosition(ctx context.Context, c ClosedPosition) error

	// ReplaceDerived atomically replaces a portfolio's derived state
	// (positions and closed positions) with the given sets.
	ReplaceDerived(ctx context.Context, portfolioID string, positions []Position, closed []ClosedPosition) error

	// Setting returns "" without error when the key is absent.
	Setting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Replace atomically replaces the entire store content with a backup.
	Replace(ctx context.Context, b *Backup) error
}
