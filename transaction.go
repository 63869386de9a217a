package portefeuille

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// TxType identifies the kind of a transaction. The values are the French
// labels the ledger has always been stored with.
type TxType string

const (
	TxBuy      TxType = "achat"
	TxSell     TxType = "vente"
	TxDividend TxType = "dividende"
	TxDeposit  TxType = "depot"
	TxWithdraw TxType = "retrait"
)

// ParseTxType parses a stored transaction type.
func ParseTxType(s string) (TxType, error) {
	switch TxType(s) {
	case TxBuy, TxSell, TxDividend, TxDeposit, TxWithdraw:
		return TxType(s), nil
	default:
		return "", fmt.Errorf("unknown transaction type: %q", s)
	}
}

// NormalizeTxType maps common spellings (English, French, short forms) onto a
// TxType. CSV imports go through it.
func NormalizeTxType(s string) (TxType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "achat", "buy", "purchase", "b":
		return TxBuy, nil
	case "vente", "sell", "sale", "s":
		return TxSell, nil
	case "dividende", "dividend", "div", "d":
		return TxDividend, nil
	case "depot", "dépôt", "deposit", "cash-in":
		return TxDeposit, nil
	case "retrait", "withdrawal", "withdraw", "cash-out":
		return TxWithdraw, nil
	default:
		return "", fmt.Errorf("unknown transaction type: %q", s)
	}
}

// Transaction is one ledger entry of a portfolio. Monetary inputs are in the
// transaction currency except Fees and TFF, which are final portfolio-currency
// amounts and are never reconverted.
type Transaction struct {
	ID          string
	PortfolioID string
	Date        Date // ordering key
	Code        string
	Name        string
	Type        TxType
	Quantity    Quantity        // > 0; synthetic 1 for depot/retrait
	UnitPrice   decimal.Decimal // in transaction currency
	Fees        decimal.Decimal // in portfolio currency
	TFF         decimal.Decimal // in portfolio currency
	Currency    string
	ConvRate    decimal.Decimal // 1 transaction-currency unit = N portfolio-currency units
	Tax         decimal.Decimal // dividend withholding, in transaction currency
	Sector      string
}

// Normalize canonicalizes the mutable-by-convention fields: the instrument
// code and a missing conversion rate (defaulted to 1).
func (t Transaction) Normalize() Transaction {
	t.Code = NormalizeCode(t.Code)
	if t.ConvRate.IsZero() {
		t.ConvRate = decimal.NewFromInt(1)
	}
	return t
}

// Validate checks the transaction for correctness, independent of any
// portfolio state.
func (t Transaction) Validate() error {
	if _, err := ParseTxType(string(t.Type)); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%s transaction has no date", t.Type)
	}
	if !t.Quantity.IsPositive() {
		return fmt.Errorf("%s transaction quantity must be positive, got %s", t.Type, t.Quantity)
	}
	if t.UnitPrice.IsNegative() {
		return fmt.Errorf("%s transaction unit price must not be negative, got %s", t.Type, t.UnitPrice)
	}
	switch t.Type {
	case TxBuy, TxSell, TxDividend:
		if NormalizeCode(t.Code) == "" {
			return fmt.Errorf("%s transaction has no instrument code", t.Type)
		}
	}
	return nil
}

// ConvertedPrice is the unit price expressed in portfolio currency.
func (t Transaction) ConvertedPrice() decimal.Decimal {
	return ConvertedPrice(t.UnitPrice, t.ConvRate)
}

// BuyCost is the total cost of an achat in portfolio currency 'cur'.
func (t Transaction) BuyCost(cur string) Money {
	return BuyCost(t.Quantity, t.ConvertedPrice(), t.Fees, t.TFF, cur)
}

// SaleProceeds is the net proceeds of a vente in portfolio currency 'cur'.
func (t Transaction) SaleProceeds(cur string) Money {
	return SaleProceeds(t.Quantity, t.ConvertedPrice(), t.Fees, t.TFF, cur)
}

// DividendNet is the net cash received from a dividende in portfolio
// currency 'cur'.
func (t Transaction) DividendNet(cur string) Money {
	return DividendNet(t.UnitPrice, t.Quantity, t.ConvRate, t.Tax, cur)
}

// CashAmount is the amount moved by a depot or retrait, by convention
// quantity * unitPrice with a synthetic quantity of 1.
func (t Transaction) CashAmount(cur string) Money {
	return M(t.UnitPrice, cur).Mul(t.Quantity)
}

// typeRank fixes the same-day application order: deposits first so they can
// fund same-day buys, then buys before sells so a sell has inventory, then
// dividends, then withdrawals.
func typeRank(t TxType) int {
	switch t {
	case TxDeposit:
		return 0
	case TxBuy:
		return 1
	case TxSell:
		return 2
	case TxDividend:
		return 3
	case TxWithdraw:
		return 4
	default:
		return 5
	}
}

// SortTransactions sorts a copy of 'txs' chronologically. Same-day ties are
// broken by type rank (see typeRank), then stably, so the result is
// deterministic for any input order.
func SortTransactions(txs []Transaction) []Transaction {
	sorted := make([]Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Before(sorted[j].Date) && !sorted[j].Date.Before(sorted[i].Date) {
			return typeRank(sorted[i].Type) < typeRank(sorted[j].Type)
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}
