package portefeuille

import (
	"math"

	"github.com/shopspring/decimal"
)

// This file holds the pure valuation primitives. Everything here is
// side-effect free and exact: no floats except at the Percent boundary.

// ConvertedPrice expresses a unit price in portfolio currency.
func ConvertedPrice(unitPrice, conversionRate decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(conversionRate)
}

// BuyCost is the total cost of acquiring 'quantity' units at
// 'convertedPrice', plus fees and tff. Fees and tff are already expressed in
// portfolio currency and are not reconverted.
func BuyCost(quantity Quantity, convertedPrice, fees, tff decimal.Decimal, cur string) Money {
	return M(quantity.Decimal().Mul(convertedPrice).Add(fees).Add(tff), cur)
}

// SaleProceeds is the net cash received for selling 'quantity' units at
// 'convertedPrice', minus fees and tff (both in portfolio currency).
func SaleProceeds(quantity Quantity, convertedPrice, fees, tff decimal.Decimal, cur string) Money {
	return M(quantity.Decimal().Mul(convertedPrice).Sub(fees).Sub(tff), cur)
}

// WeightedAverageCost is the blended average cost per unit after adding
// 'addedCost' for 'addedQuantity' units to an existing position.
func WeightedAverageCost(existingCost Money, existingQuantity Quantity, addedCost Money, addedQuantity Quantity) Money {
	return existingCost.Add(addedCost).Div(existingQuantity.Add(addedQuantity))
}

// GainLoss is totalSale - totalPurchase.
func GainLoss(totalSale, totalPurchase Money) Money {
	return totalSale.Sub(totalPurchase)
}

// GainLossPercent is the relative gain. It is NaN (not an error) when
// totalPurchase is zero.
func GainLossPercent(gainLoss, totalPurchase Money) Percent {
	if totalPurchase.IsZero() {
		return Percent(math.NaN())
	}
	return Percent(gainLoss.Amount().Div(totalPurchase.Amount()).InexactFloat64() * 100)
}

// DividendNet is the net cash of a dividend of 'unitPrice' per share for
// 'quantity' shares, converted to portfolio currency, minus withholding tax.
// Like fees and tff, the tax is treated as a final portfolio-currency amount
// and is not reconverted.
func DividendNet(unitPrice decimal.Decimal, quantity Quantity, conversionRate, tax decimal.Decimal, cur string) Money {
	return M(unitPrice.Mul(quantity.Decimal()).Mul(conversionRate).Sub(tax), cur)
}

// HoldingPeriodDividends sums the net dividends received for 'code' between
// 'purchaseDate' and 'saleDate' inclusive, scanning the full transaction
// history (not a buy/sell filtered one).
func HoldingPeriodDividends(txs []Transaction, code string, purchaseDate, saleDate Date, cur string) Money {
	code = NormalizeCode(code)
	total := M(0, cur)
	for _, tx := range txs {
		if tx.Type != TxDividend || NormalizeCode(tx.Code) != code {
			continue
		}
		if tx.Date.Before(purchaseDate) || tx.Date.After(saleDate) {
			continue
		}
		total = total.Add(tx.DividendNet(cur))
	}
	return total
}

// earliestBuyDate returns the date of the oldest achat for 'code' in 'txs',
// or false when no buy exists.
func earliestBuyDate(txs []Transaction, code string) (Date, bool) {
	code = NormalizeCode(code)
	var best Date
	found := false
	for _, tx := range txs {
		if tx.Type != TxBuy || NormalizeCode(tx.Code) != code {
			continue
		}
		if !found || tx.Date.Before(best) {
			best = tx.Date
			found = true
		}
	}
	return best, found
}
