package portefeuille

import (
	"errors"
	"math/rand"
	"testing"
)

// history builds the reference transaction set used by the replay tests.
func replayHistory() []Transaction {
	return []Transaction{
		cashflow(TxDeposit, "2025-01-01", "5000"),
		buy("2025-01-10", "AAPL", "10", "100", "5"),
		buy("2025-02-10", "AAPL", "10", "110", "5"),
		dividend("2025-02-20", "AAPL", "20", "1", "0"),
		sell("2025-03-10", "AAPL", "15", "120", "3"),
		buy("2025-03-15", "MSFT", "5", "300", "2"),
		cashflow(TxWithdraw, "2025-04-01", "500"),
	}
}

func TestReplayRebuildsState(t *testing.T) {
	res := Replay(testPortfolio(), replayHistory())

	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	if len(res.Positions) != 2 {
		t.Fatalf("got %d positions, want 2", len(res.Positions))
	}
	// Positions are sorted by code.
	aapl, msft := res.Positions[0], res.Positions[1]
	if aapl.Code != "AAPL" || !aapl.Quantity.Equal(Q(5)) || !aapl.PRU.Equal(M(d("105.5"), "EUR")) {
		t.Errorf("AAPL = %s qty=%s pru=%s, want 5 at 105.5", aapl.Code, aapl.Quantity, aapl.PRU)
	}
	if msft.Code != "MSFT" || !msft.Quantity.Equal(Q(5)) {
		t.Errorf("MSFT = %s qty=%s, want 5", msft.Code, msft.Quantity)
	}
	if len(res.Closed) != 1 {
		t.Fatalf("got %d closed positions, want 1", len(res.Closed))
	}
	if !res.Closed[0].GainLoss.Equal(M(d("214.5"), "EUR")) {
		t.Errorf("closed GainLoss = %s, want 214.5", res.Closed[0].GainLoss)
	}
	// The dividend falls inside the holding period.
	if !res.Closed[0].Dividends.Equal(M(d("20"), "EUR")) {
		t.Errorf("closed Dividends = %s, want 20", res.Closed[0].Dividends)
	}

	// 5000 - 1005 - 1105 + 20 + 1797 - 1502 - 500
	if !res.Cash.Equal(M(d("2705"), "EUR")) {
		t.Errorf("Cash = %s, want 2705", res.Cash)
	}
}

func TestReplayIsOrderIndependent(t *testing.T) {
	reference := Replay(testPortfolio(), replayHistory())

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := replayHistory()
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		res := Replay(testPortfolio(), shuffled)
		if !replayEquivalent(reference, res) {
			t.Fatalf("replay of shuffled history diverged on attempt %d", i)
		}
	}
}

func TestReplaySameDayBuyBeforeSell(t *testing.T) {
	// Recorded sell-first, the type rank must still apply the buy first.
	txs := []Transaction{
		sell("2025-01-10", "AAPL", "10", "120", "0"),
		buy("2025-01-10", "AAPL", "10", "100", "0"),
	}
	res := Replay(testPortfolio(), txs)
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	if len(res.Positions) != 0 {
		t.Errorf("got %d positions, want 0", len(res.Positions))
	}
	if len(res.Closed) != 1 {
		t.Errorf("got %d closed, want 1", len(res.Closed))
	}
}

func TestReplaySkipsUnapplyableSell(t *testing.T) {
	// Deleting the early buy leaves the sell without inventory: the sell is
	// skipped with a warning, the rest of the history still applies.
	txs := []Transaction{
		cashflow(TxDeposit, "2025-01-01", "1000"),
		sell("2025-03-10", "AAPL", "10", "120", "0"),
		buy("2025-04-01", "AAPL", "5", "100", "0"),
	}
	res := Replay(testPortfolio(), txs)

	if len(res.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(res.Warnings))
	}
	if !errors.Is(res.Warnings[0].Err, ErrUnknownCode) {
		t.Errorf("warning = %v, want ErrUnknownCode", res.Warnings[0].Err)
	}
	if len(res.Positions) != 1 || !res.Positions[0].Quantity.Equal(Q(5)) {
		t.Errorf("later buy not applied: %+v", res.Positions)
	}
	if !res.Cash.Equal(M(d("500"), "EUR")) {
		t.Errorf("Cash = %s, want 500", res.Cash)
	}
}

func TestReplayAppliesWithdrawalDespiteNegativeCash(t *testing.T) {
	txs := []Transaction{
		cashflow(TxDeposit, "2025-01-01", "100"),
		cashflow(TxWithdraw, "2025-02-01", "300"),
	}
	res := Replay(testPortfolio(), txs)
	if len(res.Warnings) != 0 {
		t.Fatalf("withdrawal was skipped: %v", res.Warnings)
	}
	if !res.Cash.Equal(M(d("-200"), "EUR")) {
		t.Errorf("Cash = %s, want -200", res.Cash)
	}
}

func TestReplayDeleteEquivalence(t *testing.T) {
	// Replaying history minus one transaction equals never having recorded it.
	full := replayHistory()
	without := append(append([]Transaction{}, full[:3]...), full[4:]...) // drop the dividend

	fromScratch := Replay(testPortfolio(), without)

	// Same set in a different recorded order.
	reordered := []Transaction{without[4], without[0], without[5], without[1], without[2], without[3]}
	res := Replay(testPortfolio(), reordered)
	if !replayEquivalent(fromScratch, res) {
		t.Error("replay after delete is not equivalent to never recording the transaction")
	}
}

func TestValidateImport(t *testing.T) {
	txs := []Transaction{
		buy("2025-01-10", "AAPL", "10", "100", "0"),
		sell("2025-02-10", "AAPL", "15", "120", "0"), // more than bought
		sell("2025-03-10", "MSFT", "5", "300", "0"),  // never bought
	}
	warnings := ValidateImport(txs)
	if len(warnings) != 2 {
		t.Fatalf("got %d warnings, want 2", len(warnings))
	}
	if !errors.Is(warnings[0].Err, ErrInsufficientQuantity) {
		t.Errorf("first warning = %v, want ErrInsufficientQuantity", warnings[0].Err)
	}
	if !errors.Is(warnings[1].Err, ErrUnknownCode) {
		t.Errorf("second warning = %v, want ErrUnknownCode", warnings[1].Err)
	}
}

func TestSortTransactionsIsStable(t *testing.T) {
	a := buy("2025-01-10", "AAPL", "1", "100", "0")
	a.ID = "first"
	b := buy("2025-01-10", "AAPL", "1", "101", "0")
	b.ID = "second"
	sorted := SortTransactions([]Transaction{a, b})
	if sorted[0].ID != "first" || sorted[1].ID != "second" {
		t.Errorf("equal-rank transactions reordered: %s, %s", sorted[0].ID, sorted[1].ID)
	}
}
