package portefeuille

import "errors"

// Sentinel errors of the ledger engine. Callers match them with [errors.Is];
// the engine wraps them with transaction context.
var (
	// ErrInsufficientQuantity reports a sell whose quantity exceeds the open
	// position. The transaction is rejected before any store write.
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrInsufficientCash reports a withdrawal that would drive the cash
	// balance negative.
	ErrInsufficientCash = errors.New("insufficient cash")

	// ErrUnknownCode reports a sell or dividend referencing a code with no
	// open position. Bulk contexts (import, replay) warn and skip instead of
	// failing.
	ErrUnknownCode = errors.New("unknown instrument code")

	// ErrInvalidBackup reports an import file missing one of the required
	// arrays or containing no portfolio.
	ErrInvalidBackup = errors.New("invalid backup structure")

	// ErrNotFound reports a record absent from the store.
	ErrNotFound = errors.New("not found")
)
