package portefeuille

import (
	"errors"
	"testing"
)

func testPortfolio() Portfolio {
	return Portfolio{
		ID:       "p1",
		Name:     "Main",
		Category: CategoryTrading,
		Currency: "EUR",
	}
}

func buy(day, code, qty, price, fees string) Transaction {
	return Transaction{
		Type: TxBuy, Date: MustParse(day), Code: code,
		Quantity: Q(d(qty)), UnitPrice: d(price), Fees: d(fees),
	}
}

func sell(day, code, qty, price, fees string) Transaction {
	return Transaction{
		Type: TxSell, Date: MustParse(day), Code: code,
		Quantity: Q(d(qty)), UnitPrice: d(price), Fees: d(fees),
	}
}

func dividend(day, code, qty, perUnit, tax string) Transaction {
	return Transaction{
		Type: TxDividend, Date: MustParse(day), Code: code,
		Quantity: Q(d(qty)), UnitPrice: d(perUnit), Tax: d(tax),
	}
}

func cashflow(typ TxType, day, amount string) Transaction {
	return Transaction{
		Type: typ, Date: MustParse(day), Quantity: Q(1), UnitPrice: d(amount),
	}
}

func TestApplyBuyAveragesCost(t *testing.T) {
	book := NewBook(testPortfolio())

	if _, err := book.Apply(buy("2025-01-10", "AAPL", "10", "100", "5"), nil); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}
	pos, ok := book.Position("AAPL")
	if !ok {
		t.Fatal("no position after buy")
	}
	if !pos.Quantity.Equal(Q(10)) || !pos.TotalCost.Equal(M(d("1005"), "EUR")) || !pos.PRU.Equal(M(d("100.5"), "EUR")) {
		t.Errorf("after first buy: qty=%s cost=%s pru=%s, want 10, 1005, 100.5",
			pos.Quantity, pos.TotalCost, pos.PRU)
	}

	if _, err := book.Apply(buy("2025-02-10", "AAPL", "10", "110", "5"), nil); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}
	pos, _ = book.Position("AAPL")
	if !pos.Quantity.Equal(Q(20)) || !pos.TotalCost.Equal(M(d("2110"), "EUR")) || !pos.PRU.Equal(M(d("105.5"), "EUR")) {
		t.Errorf("after second buy: qty=%s cost=%s pru=%s, want 20, 2110, 105.5",
			pos.Quantity, pos.TotalCost, pos.PRU)
	}
}

func TestApplyPartialSell(t *testing.T) {
	book := NewBook(testPortfolio())
	history := []Transaction{
		buy("2025-01-10", "AAPL", "10", "100", "5"),
		buy("2025-02-10", "AAPL", "10", "110", "5"),
	}
	for _, tx := range history {
		if _, err := book.Apply(tx, nil); err != nil {
			t.Fatal(err)
		}
	}

	effect, err := book.Apply(sell("2025-03-10", "AAPL", "15", "120", "3"), history)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	c := effect.Closed
	if c == nil {
		t.Fatal("sell produced no closed position")
	}
	if !c.TotalSale.Equal(M(d("1797"), "EUR")) {
		t.Errorf("TotalSale = %s, want 1797", c.TotalSale)
	}
	if !c.TotalPurchase.Equal(M(d("1582.5"), "EUR")) {
		t.Errorf("TotalPurchase = %s, want 1582.5", c.TotalPurchase)
	}
	if !c.GainLoss.Equal(M(d("214.5"), "EUR")) {
		t.Errorf("GainLoss = %s, want 214.5", c.GainLoss)
	}
	if c.PurchaseDate != MustParse("2025-01-10") {
		t.Errorf("PurchaseDate = %s, want 2025-01-10", c.PurchaseDate)
	}

	// The remainder keeps the PRU, quantity and cost shrink proportionally.
	pos, ok := book.Position("AAPL")
	if !ok {
		t.Fatal("position removed by partial sell")
	}
	if !pos.Quantity.Equal(Q(5)) || !pos.TotalCost.Equal(M(d("527.5"), "EUR")) || !pos.PRU.Equal(M(d("105.5"), "EUR")) {
		t.Errorf("remaining: qty=%s cost=%s pru=%s, want 5, 527.5, 105.5",
			pos.Quantity, pos.TotalCost, pos.PRU)
	}
}

func TestApplyFullSellRemovesPosition(t *testing.T) {
	book := NewBook(testPortfolio())
	history := []Transaction{buy("2025-01-10", "AAPL", "10", "100", "0")}
	if _, err := book.Apply(history[0], nil); err != nil {
		t.Fatal(err)
	}

	effect, err := book.Apply(sell("2025-02-10", "AAPL", "10", "120", "0"), history)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if effect.Remove != "AAPL" {
		t.Errorf("Remove = %q, want AAPL", effect.Remove)
	}
	if _, ok := book.Position("AAPL"); ok {
		t.Error("zero-quantity position still present")
	}
}

func TestApplySellThenRebuyStartsFresh(t *testing.T) {
	book := NewBook(testPortfolio())
	history := []Transaction{buy("2025-01-10", "AAPL", "10", "100", "5")}
	if _, err := book.Apply(history[0], nil); err != nil {
		t.Fatal(err)
	}
	if _, err := book.Apply(sell("2025-02-10", "AAPL", "10", "120", "0"), history); err != nil {
		t.Fatal(err)
	}

	// A rebuy after a full sell carries nothing over from the closed round.
	if _, err := book.Apply(buy("2025-03-10", "AAPL", "10", "100", "5"), nil); err != nil {
		t.Fatalf("rebuy failed: %v", err)
	}
	pos, ok := book.Position("AAPL")
	if !ok {
		t.Fatal("no position after rebuy")
	}
	if !pos.Quantity.Equal(Q(10)) || !pos.TotalCost.Equal(M(d("1005"), "EUR")) || !pos.PRU.Equal(M(d("100.5"), "EUR")) {
		t.Errorf("after rebuy: qty=%s cost=%s pru=%s, want 10, 1005, 100.5",
			pos.Quantity, pos.TotalCost, pos.PRU)
	}
}

func TestApplySellErrors(t *testing.T) {
	book := NewBook(testPortfolio())
	if _, err := book.Apply(buy("2025-01-10", "AAPL", "10", "100", "0"), nil); err != nil {
		t.Fatal(err)
	}

	_, err := book.Apply(sell("2025-02-10", "AAPL", "11", "120", "0"), nil)
	if !errors.Is(err, ErrInsufficientQuantity) {
		t.Errorf("overselling: got %v, want ErrInsufficientQuantity", err)
	}

	_, err = book.Apply(sell("2025-02-10", "MSFT", "1", "120", "0"), nil)
	if !errors.Is(err, ErrUnknownCode) {
		t.Errorf("unknown code: got %v, want ErrUnknownCode", err)
	}

	// The failed sells must not have touched the book.
	pos, _ := book.Position("AAPL")
	if !pos.Quantity.Equal(Q(10)) {
		t.Errorf("position changed by rejected sell: qty=%s", pos.Quantity)
	}
}

func TestApplyCodeNormalization(t *testing.T) {
	book := NewBook(testPortfolio())
	if _, err := book.Apply(buy("2025-01-10", "aapl", "10", "100", "0"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := book.Apply(buy("2025-02-10", " AAPL ", "10", "100", "0"), nil); err != nil {
		t.Fatal(err)
	}
	pos, ok := book.Position("AAPL")
	if !ok || !pos.Quantity.Equal(Q(20)) {
		t.Errorf("case variants did not merge: ok=%v qty=%s", ok, pos.Quantity)
	}
	if len(book.Positions()) != 1 {
		t.Errorf("got %d positions, want 1", len(book.Positions()))
	}
}

func TestApplyDividendRequiresPosition(t *testing.T) {
	book := NewBook(testPortfolio())
	_, err := book.Apply(dividend("2025-01-10", "AAPL", "10", "2", "0"), nil)
	if !errors.Is(err, ErrUnknownCode) {
		t.Errorf("dividend without position: got %v, want ErrUnknownCode", err)
	}

	if _, err := book.Apply(buy("2025-01-10", "AAPL", "10", "100", "0"), nil); err != nil {
		t.Fatal(err)
	}
	effect, err := book.Apply(dividend("2025-02-10", "AAPL", "10", "2", "3"), nil)
	if err != nil {
		t.Fatalf("dividend failed: %v", err)
	}
	if !effect.CashDelta.Equal(M(d("17"), "EUR")) {
		t.Errorf("CashDelta = %s, want 17", effect.CashDelta)
	}
}

func TestApplyCashFlow(t *testing.T) {
	book := NewBook(testPortfolio())

	if _, err := book.Apply(cashflow(TxDeposit, "2025-01-10", "1000"), nil); err != nil {
		t.Fatal(err)
	}
	if !book.Cash().Equal(M(d("1000"), "EUR")) {
		t.Errorf("cash after deposit = %s, want 1000", book.Cash())
	}

	_, err := book.Apply(cashflow(TxWithdraw, "2025-02-10", "1500"), nil)
	if !errors.Is(err, ErrInsufficientCash) {
		t.Errorf("overdraft: got %v, want ErrInsufficientCash", err)
	}

	if _, err := book.Apply(cashflow(TxWithdraw, "2025-02-10", "400"), nil); err != nil {
		t.Fatal(err)
	}
	if !book.Cash().Equal(M(d("600"), "EUR")) {
		t.Errorf("cash after withdrawal = %s, want 600", book.Cash())
	}
}

func TestBuyCostReducesCash(t *testing.T) {
	book := NewBook(testPortfolio())
	if _, err := book.Apply(cashflow(TxDeposit, "2025-01-01", "2000"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := book.Apply(buy("2025-01-10", "AAPL", "10", "100", "5"), nil); err != nil {
		t.Fatal(err)
	}
	if !book.Cash().Equal(M(d("995"), "EUR")) {
		t.Errorf("cash after buy = %s, want 995", book.Cash())
	}
}
