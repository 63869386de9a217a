package portefeuille

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Category classifies a portfolio.
type Category string

const (
	CategoryTrading Category = "Trading"
	CategoryCrypto  Category = "Crypto"
	CategoryLT      Category = "LT"
)

// ParseCategory parses a string into a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryTrading, CategoryCrypto, CategoryLT:
		return Category(s), nil
	default:
		return "", fmt.Errorf("unknown portfolio category: %q", s)
	}
}

// FeeSchedule is a portfolio's default transaction-cost schedule, used to
// prefill fees and tff when a transaction does not state them.
type FeeSchedule struct {
	FeesPercent decimal.Decimal `json:"feesPercent"`
	FeesMin     decimal.Decimal `json:"feesMin"`
	TFFPercent  decimal.Decimal `json:"tffPercent"`
}

// Fees computes the default fee for a gross amount in portfolio currency.
func (s FeeSchedule) Fees(gross decimal.Decimal) decimal.Decimal {
	fees := gross.Mul(s.FeesPercent).Div(newDecimal(100))
	if fees.LessThan(s.FeesMin) {
		fees = s.FeesMin
	}
	return fees
}

// TFF computes the default transaction-tax component for a gross amount.
func (s FeeSchedule) TFF(gross decimal.Decimal) decimal.Decimal {
	return gross.Mul(s.TFFPercent).Div(newDecimal(100))
}

// Portfolio is an account holding cash and positions, all valued in its base
// currency. It exclusively owns its transactions, positions and closed
// positions: deleting a portfolio cascades to all of them.
type Portfolio struct {
	ID       string
	Name     string
	Code     string // optional short label, used to tag consolidated rows
	Category Category
	Currency string // base currency
	Fees     FeeSchedule
	Cash     Money // current liquidity balance, in base currency
}

// Validate checks the portfolio fields for correctness.
func (p Portfolio) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("portfolio name is missing")
	}
	if _, err := ParseCategory(string(p.Category)); err != nil {
		return err
	}
	if err := ValidateCurrency(p.Currency); err != nil {
		return fmt.Errorf("invalid portfolio currency: %w", err)
	}
	return nil
}

// NormalizeCode returns the canonical form of an instrument code: trimmed and
// upper-cased. Two transactions with codes "aapl" and "AAPL " refer to the
// same position.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Position is the current open holding of one instrument within one
// portfolio, keyed by (PortfolioID, Code). A position only exists with a
// strictly positive quantity; selling down to zero removes the record.
type Position struct {
	PortfolioID string
	Code        string // normalized instrument code
	Name        string
	Quantity    Quantity
	TotalCost   Money // cumulative cost basis, in portfolio currency
	PRU         Money // average cost per unit: TotalCost / Quantity
	Currency    string          // instrument (transaction) currency
	StopLoss    decimal.Decimal // zero when unset
	ManualPrice decimal.Decimal // user-entered current price, zero when unset
	Sector      string
}

// MarketValue values the position at the given unit price, in portfolio
// currency terms. A zero price yields a zero value.
func (p Position) MarketValue(price decimal.Decimal) Money {
	return M(price, p.TotalCost.Currency()).Mul(p.Quantity)
}

// ClosedPosition is the immutable record of one sell event against a
// position's history. It is append-only and only ever removed as part of a
// full replay.
type ClosedPosition struct {
	ID              string
	PortfolioID     string
	Code            string
	Name            string
	PurchaseDate    Date // earliest buy of the code in the history at sale time
	SaleDate        Date
	Quantity        Quantity // quantity sold
	PRU             Money    // average cost at time of sale
	AvgSalePrice    Money    // per-unit net sale price, in portfolio currency
	TotalPurchase   Money
	TotalSale       Money
	GainLoss        Money
	GainLossPercent Percent
	Dividends       Money // net dividends received between purchase and sale
	Sector          string
}

// Setting is a simple key to string value record, used for the
// current-portfolio pointer and cached data such as exchange rates.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingCurrentPortfolio is the Setting key holding the id of the portfolio
// CLI commands default to.
const SettingCurrentPortfolio = "portefeuille.current"
