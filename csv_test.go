package portefeuille

import (
	"bytes"
	"strings"
	"testing"
)

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"date,type,code,name,quantity,unitPrice,fees,tff,currency,convRate,tax,sector",
		"2025-02-10,vente,AAPL,Apple,5,120,3,0,EUR,1,0,Tech",
		"2025-01-10,buy,aapl,Apple,10,100,5,0,EUR,1,0,Tech",
		"2025-01-01,depot,,,,1000,,,EUR,,,",
	}, "\n")

	txs, err := ReadCSV(strings.NewReader(input), DefaultColumnMap(), "p1")
	if err != nil {
		t.Fatalf("ReadCSV() failed: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txs))
	}

	// Output is chronologically sorted regardless of file order.
	if txs[0].Type != TxDeposit || txs[1].Type != TxBuy || txs[2].Type != TxSell {
		t.Errorf("order = %s, %s, %s, want depot, achat, vente", txs[0].Type, txs[1].Type, txs[2].Type)
	}
	// English type names and lowercase codes are normalized.
	if txs[1].Code != "AAPL" {
		t.Errorf("code = %q, want AAPL", txs[1].Code)
	}
	if !txs[1].Quantity.Equal(Q(10)) || !txs[1].Fees.Equal(d("5")) {
		t.Errorf("buy = %+v", txs[1])
	}
	// Cash movements get the synthetic quantity.
	if !txs[0].Quantity.Equal(Q(1)) || !txs[0].UnitPrice.Equal(d("1000")) {
		t.Errorf("deposit = %+v", txs[0])
	}
	for _, tx := range txs {
		if tx.PortfolioID != "p1" {
			t.Errorf("portfolioID = %q, want p1", tx.PortfolioID)
		}
	}
}

func TestReadCSVDecimalComma(t *testing.T) {
	in := "2025-01-10,achat,TTE,Total,2,\"58,3\",\"1,5\",0,EUR,1,0,Energy\n"
	txs, err := ReadCSV(strings.NewReader(in), DefaultColumnMap(), "p1")
	if err != nil {
		t.Fatalf("ReadCSV() failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if !txs[0].UnitPrice.Equal(d("58.3")) || !txs[0].Fees.Equal(d("1.5")) {
		t.Errorf("price=%s fees=%s, want 58.3 and 1.5", txs[0].UnitPrice, txs[0].Fees)
	}
}

func TestReadCSVBadRow(t *testing.T) {
	input := strings.Join([]string{
		"date,type,code,name,quantity,unitPrice,fees,tff,currency,convRate,tax,sector",
		"2025-01-10,achat,AAPL,Apple,ten,100,0,0,EUR,1,0,",
	}, "\n")
	if _, err := ReadCSV(strings.NewReader(input), DefaultColumnMap(), "p1"); err == nil {
		t.Error("expected an error for the unparseable quantity")
	}
}

func TestCSVRoundTrip(t *testing.T) {
	txs := []Transaction{
		buy("2025-01-10", "AAPL", "10", "100", "5"),
		sell("2025-02-10", "AAPL", "5", "120", "3"),
	}
	for i := range txs {
		txs[i].Currency = "EUR"
		txs[i] = txs[i].Normalize()
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, txs); err != nil {
		t.Fatalf("WriteCSV() failed: %v", err)
	}
	back, err := ReadCSV(&buf, DefaultColumnMap(), "p1")
	if err != nil {
		t.Fatalf("ReadCSV() failed: %v", err)
	}
	if len(back) != 2 {
		t.Fatalf("got %d transactions, want 2", len(back))
	}
	if back[0].Type != TxBuy || !back[0].Quantity.Equal(Q(10)) || !back[0].UnitPrice.Equal(d("100")) {
		t.Errorf("round trip buy = %+v", back[0])
	}
}
