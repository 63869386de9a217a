package portefeuille

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuyCost(t *testing.T) {
	testCases := []struct {
		name     string
		quantity string
		price    string
		fees     string
		tff      string
		want     string
	}{
		{"no fees", "10", "100", "0", "0", "1000"},
		{"with fees", "10", "100", "5", "0", "1005"},
		{"fees and tff", "10", "100", "5", "3", "1008"},
		{"fractional quantity", "0.5", "100", "1", "0", "51"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuyCost(Q(d(tc.quantity)), d(tc.price), d(tc.fees), d(tc.tff), "EUR")
			if !got.Equal(M(d(tc.want), "EUR")) {
				t.Errorf("BuyCost() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSaleProceeds(t *testing.T) {
	got := SaleProceeds(Q(15), d("120"), d("3"), d("0"), "EUR")
	if !got.Equal(M(d("1797"), "EUR")) {
		t.Errorf("SaleProceeds() = %s, want 1797", got)
	}
}

func TestConvertedPrice(t *testing.T) {
	got := ConvertedPrice(d("150"), d("0.92"))
	if !got.Equal(d("138")) {
		t.Errorf("ConvertedPrice() = %s, want 138", got)
	}
}

func TestWeightedAverageCost(t *testing.T) {
	// 10 units at 100.5 blended with 10 more for 1105 total.
	got := WeightedAverageCost(M(d("1005"), "EUR"), Q(10), M(d("1105"), "EUR"), Q(10))
	if !got.Equal(M(d("105.5"), "EUR")) {
		t.Errorf("WeightedAverageCost() = %s, want 105.5", got)
	}
}

func TestGainLossPercent(t *testing.T) {
	gain := GainLoss(M(d("1797"), "EUR"), M(d("1582.5"), "EUR"))
	if !gain.Equal(M(d("214.5"), "EUR")) {
		t.Fatalf("GainLoss() = %s, want 214.5", gain)
	}
	pct := GainLossPercent(gain, M(d("1582.5"), "EUR"))
	if math.Abs(float64(pct)-13.5545) > 0.001 {
		t.Errorf("GainLossPercent() = %v, want about 13.55", pct)
	}
}

func TestGainLossPercentZeroBase(t *testing.T) {
	pct := GainLossPercent(M(d("10"), "EUR"), M(0, "EUR"))
	if !pct.IsNaN() {
		t.Errorf("GainLossPercent() on zero base = %v, want NaN", pct)
	}
	if got := pct.SignedString(); got != "-" {
		t.Errorf("SignedString() = %q, want %q", got, "-")
	}
}

func TestDividendNet(t *testing.T) {
	// 2 per share, 10 shares, 3 withheld.
	got := DividendNet(d("2"), Q(10), d("1"), d("3"), "EUR")
	if !got.Equal(M(d("17"), "EUR")) {
		t.Errorf("DividendNet() = %s, want 17", got)
	}
}

func TestHoldingPeriodDividends(t *testing.T) {
	txs := []Transaction{
		{Type: TxBuy, Code: "AAPL", Date: MustParse("2025-01-10"), Quantity: Q(10), UnitPrice: d("100"), ConvRate: d("1")},
		{Type: TxDividend, Code: "AAPL", Date: MustParse("2025-02-01"), Quantity: Q(10), UnitPrice: d("2"), ConvRate: d("1"), Tax: d("3")},
		// Different code, must be ignored.
		{Type: TxDividend, Code: "MSFT", Date: MustParse("2025-02-15"), Quantity: Q(5), UnitPrice: d("1"), ConvRate: d("1")},
		// Outside the window, must be ignored.
		{Type: TxDividend, Code: "AAPL", Date: MustParse("2025-06-01"), Quantity: Q(10), UnitPrice: d("2"), ConvRate: d("1")},
		{Type: TxDividend, Code: "aapl", Date: MustParse("2025-03-01"), Quantity: Q(10), UnitPrice: d("1"), ConvRate: d("1")},
	}
	got := HoldingPeriodDividends(txs, "AAPL", MustParse("2025-01-10"), MustParse("2025-03-01"), "EUR")
	// 17 from February plus 10 from the case-insensitive March entry.
	if !got.Equal(M(d("27"), "EUR")) {
		t.Errorf("HoldingPeriodDividends() = %s, want 27", got)
	}
}

func TestEarliestBuyDate(t *testing.T) {
	txs := []Transaction{
		{Type: TxBuy, Code: "AAPL", Date: MustParse("2025-03-01")},
		{Type: TxBuy, Code: "AAPL", Date: MustParse("2025-01-10")},
		{Type: TxSell, Code: "AAPL", Date: MustParse("2025-01-05")},
	}
	got, found := earliestBuyDate(txs, "aapl")
	if !found || got != MustParse("2025-01-10") {
		t.Errorf("earliestBuyDate() = %s, %v, want 2025-01-10, true", got, found)
	}
	if _, found := earliestBuyDate(txs, "MSFT"); found {
		t.Error("earliestBuyDate() found a buy for MSFT, want none")
	}
}

func TestFeeSchedule(t *testing.T) {
	s := FeeSchedule{FeesPercent: d("0.5"), FeesMin: d("2"), TFFPercent: d("0.3")}
	if got := s.Fees(d("1000")); !got.Equal(d("5")) {
		t.Errorf("Fees(1000) = %s, want 5", got)
	}
	// Below the minimum.
	if got := s.Fees(d("100")); !got.Equal(d("2")) {
		t.Errorf("Fees(100) = %s, want 2", got)
	}
	if got := s.TFF(d("1000")); !got.Equal(d("3")) {
		t.Errorf("TFF(1000) = %s, want 3", got)
	}
}
