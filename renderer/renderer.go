// Package renderer turns ledger state into markdown reports.
package renderer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pf "github.com/sboulay/portefeuille"
)

// Transaction renders a transaction to a one-line summary.
func Transaction(tx pf.Transaction) string {
	switch tx.Type {
	case pf.TxBuy:
		return fmt.Sprintf("Bought %s of %s at %s", tx.Quantity, tx.Code, tx.UnitPrice)
	case pf.TxSell:
		return fmt.Sprintf("Sold %s of %s at %s", tx.Quantity, tx.Code, tx.UnitPrice)
	case pf.TxDividend:
		return fmt.Sprintf("Dividend of %s per unit for %s", tx.UnitPrice, tx.Code)
	case pf.TxDeposit:
		return fmt.Sprintf("Deposited %s %s", tx.UnitPrice, tx.Currency)
	case pf.TxWithdraw:
		return fmt.Sprintf("Withdrew %s %s", tx.UnitPrice, tx.Currency)
	default:
		return string(tx.Type)
	}
}

// HoldingsMarkdown renders the open positions of a portfolio. 'prices' maps
// instrument code to a current price; a position's manual price, when set,
// takes precedence over the fetched one. Positions without any price render
// without valuation.
func HoldingsMarkdown(p pf.Portfolio, positions []pf.Position, prices map[string]decimal.Decimal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Holdings of %s\n\n", p.Name)

	fmt.Fprintln(&b, "| Code | Name | Quantity | PRU | Cost | Price | Value | Gain |")
	fmt.Fprintln(&b, "|:---|:---|---:|---:|---:|---:|---:|---:|")

	totalCost := pf.M(0, p.Currency)
	totalValue := pf.M(0, p.Currency)
	valuedAll := true
	for _, pos := range positions {
		price, ok := currentPrice(pos, prices)
		totalCost = totalCost.Add(pos.TotalCost)

		if !ok {
			valuedAll = false
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | - | - | - |\n",
				pos.Code, pos.Name, pos.Quantity, pos.PRU, pos.TotalCost)
			continue
		}
		value := pos.MarketValue(price)
		gain := pf.GainLoss(value, pos.TotalCost)
		totalValue = totalValue.Add(value)
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			pos.Code, pos.Name, pos.Quantity, pos.PRU, pos.TotalCost,
			price, value, gain.SignedString())
	}
	if valuedAll {
		fmt.Fprintf(&b, "| **Total** | | | | **%s** | | **%s** | **%s** |\n",
			totalCost, totalValue, pf.GainLoss(totalValue, totalCost).SignedString())
	} else {
		fmt.Fprintf(&b, "| **Total** | | | | **%s** | | | |\n", totalCost)
	}

	fmt.Fprintf(&b, "\nCash: %s\n", p.Cash)
	return b.String()
}

func currentPrice(pos pf.Position, prices map[string]decimal.Decimal) (decimal.Decimal, bool) {
	if !pos.ManualPrice.IsZero() {
		return pos.ManualPrice, true
	}
	price, ok := prices[pos.Code]
	return price, ok && !price.IsZero()
}

// ClosedPositionsMarkdown renders the realized trade history of a portfolio.
func ClosedPositionsMarkdown(p pf.Portfolio, closed []pf.ClosedPosition) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Closed positions of %s\n\n", p.Name)

	fmt.Fprintln(&b, "| Code | Bought | Sold | Quantity | PRU | Sale Price | Gain | Gain % | Dividends |")
	fmt.Fprintln(&b, "|:---|:---|:---|---:|---:|---:|---:|---:|---:|")

	totalGain := pf.M(0, p.Currency)
	totalDividends := pf.M(0, p.Currency)
	for _, c := range closed {
		totalGain = totalGain.Add(c.GainLoss)
		totalDividends = totalDividends.Add(c.Dividends)
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			c.Code, c.PurchaseDate, c.SaleDate, c.Quantity, c.PRU, c.AvgSalePrice,
			c.GainLoss.SignedString(), c.GainLossPercent.SignedString(), c.Dividends)
	}
	fmt.Fprintf(&b, "| **Total** | | | | | | **%s** | | **%s** |\n",
		totalGain.SignedString(), totalDividends)

	return b.String()
}

// TransactionsMarkdown renders the transaction history of a portfolio in
// chronological order.
func TransactionsMarkdown(p pf.Portfolio, txs []pf.Transaction) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Transactions of %s\n\n", p.Name)

	fmt.Fprintln(&b, "| Date | Type | Code | Quantity | Price | Fees | TFF | Currency | Rate |")
	fmt.Fprintln(&b, "|:---|:---|:---|---:|---:|---:|---:|:---|---:|")

	for _, tx := range pf.SortTransactions(txs) {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			tx.Date, tx.Type, tx.Code, tx.Quantity, tx.UnitPrice,
			tx.Fees, tx.TFF, tx.Currency, tx.ConvRate)
	}
	return b.String()
}

// ConsolidatedMarkdown renders the aggregation over all portfolios. Rows stay
// attributed to their portfolio; only cash is summed, per currency.
func ConsolidatedMarkdown(c *pf.Consolidated, prices map[string]decimal.Decimal) string {
	var b strings.Builder

	fmt.Fprint(&b, "# Consolidated view\n\n")

	fmt.Fprint(&b, "## Open positions\n\n")
	fmt.Fprintln(&b, "| Portfolio | Code | Name | Quantity | PRU | Cost | Price | Value |")
	fmt.Fprintln(&b, "|:---|:---|:---|---:|---:|---:|---:|---:|")
	for _, pos := range c.Positions {
		price, ok := currentPrice(pos.Position, prices)
		if !ok {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | - | - |\n",
				pos.PortfolioCode, pos.Code, pos.Name, pos.Quantity, pos.PRU, pos.TotalCost)
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			pos.PortfolioCode, pos.Code, pos.Name, pos.Quantity, pos.PRU, pos.TotalCost,
			price, pos.MarketValue(price))
	}

	fmt.Fprint(&b, "\n## Closed positions\n\n")
	fmt.Fprintln(&b, "| Portfolio | Code | Sold | Quantity | Gain | Gain % |")
	fmt.Fprintln(&b, "|:---|:---|:---|---:|---:|---:|")
	for _, cp := range c.Closed {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			cp.PortfolioCode, cp.Code, cp.SaleDate, cp.Quantity,
			cp.GainLoss.SignedString(), cp.GainLossPercent.SignedString())
	}

	fmt.Fprint(&b, "\n## Cash\n\n")
	for _, cash := range c.Cash {
		fmt.Fprintf(&b, "- %s\n", cash)
	}
	return b.String()
}
