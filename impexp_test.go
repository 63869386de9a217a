package portefeuille

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testBackup() *Backup {
	p := testPortfolio()
	p.Cash = M(d("2705"), "EUR")
	return &Backup{
		ExportDate: MustParse("2025-09-01"),
		AppVersion: Version,
		Portfolios: []Portfolio{p},
		Transactions: []Transaction{
			func() Transaction {
				t := buy("2025-01-10", "AAPL", "10", "100", "5")
				t.ID = "t1"
				t.PortfolioID = p.ID
				return t.Normalize()
			}(),
		},
		Positions: []Position{{
			PortfolioID: p.ID,
			Code:        "AAPL",
			Quantity:    Q(10),
			TotalCost:   M(d("1005"), "EUR"),
			PRU:         M(d("100.5"), "EUR"),
		}},
		ClosedPositions: []ClosedPosition{},
		Settings:        []Setting{{Key: SettingCurrentPortfolio, Value: p.ID}},
	}
}

func TestBackupRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeBackup(&buf, testBackup()); err != nil {
		t.Fatalf("EncodeBackup() failed: %v", err)
	}

	got, err := DecodeBackup(&buf)
	if err != nil {
		t.Fatalf("DecodeBackup() failed: %v", err)
	}

	if len(got.Portfolios) != 1 || got.Portfolios[0].Name != "Main" {
		t.Errorf("portfolios = %+v", got.Portfolios)
	}
	if !got.Portfolios[0].Cash.Equal(M(d("2705"), "EUR")) {
		t.Errorf("cash = %s, want 2705", got.Portfolios[0].Cash)
	}
	if len(got.Transactions) != 1 || got.Transactions[0].Type != TxBuy {
		t.Errorf("transactions = %+v", got.Transactions)
	}
	if !got.Transactions[0].Fees.Equal(d("5")) {
		t.Errorf("fees = %s, want 5", got.Transactions[0].Fees)
	}
	if len(got.Positions) != 1 {
		t.Fatalf("positions = %+v", got.Positions)
	}
	// Money currencies are re-attached from the owning portfolio.
	if got.Positions[0].PRU.Currency() != "EUR" {
		t.Errorf("position PRU currency = %q, want EUR", got.Positions[0].PRU.Currency())
	}
	if !got.Positions[0].PRU.Equal(M(d("100.5"), "EUR")) {
		t.Errorf("position PRU = %s, want 100.5", got.Positions[0].PRU)
	}
	if got.ExportDate != MustParse("2025-09-01") {
		t.Errorf("exportDate = %s", got.ExportDate)
	}
}

func TestEncodeBackupFieldOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeBackup(&buf, testBackup()); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	// Top-level keys keep a stable order so exports diff cleanly.
	order := []string{`"exportDate"`, `"appVersion"`, `"portfolios"`, `"transactions"`, `"positions"`, `"closedPositions"`, `"settings"`}
	last := -1
	for _, key := range order {
		i := strings.Index(s, key)
		if i < 0 {
			t.Fatalf("key %s missing from output", key)
		}
		if i < last {
			t.Errorf("key %s out of order", key)
		}
		last = i
	}
}

func TestDecodeBackupRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{]`},
		{"missing transactions array", `{"exportDate":"2025-09-01","appVersion":"1.0","portfolios":[],"positions":[],"closedPositions":[],"settings":[]}`},
		{"no portfolio", `{"exportDate":"2025-09-01","appVersion":"1.0","portfolios":[],"transactions":[],"positions":[],"closedPositions":[],"settings":[]}`},
		{"orphan transaction", `{"exportDate":"2025-09-01","appVersion":"1.0",
			"portfolios":[{"id":"p1","name":"Main","category":"Trading","currency":"EUR","fees":{"feesPercent":0,"feesMin":0,"tffPercent":0},"cash":0}],
			"transactions":[{"id":"t1","portfolioId":"ghost","date":"2025-01-10","code":"AAPL","type":"achat","quantity":1,"unitPrice":1,"fees":0,"tff":0,"convRate":1,"tax":0}],
			"positions":[],"closedPositions":[],"settings":[]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeBackup(strings.NewReader(tc.input))
			if !errors.Is(err, ErrInvalidBackup) {
				t.Errorf("got %v, want ErrInvalidBackup", err)
			}
		})
	}
}
