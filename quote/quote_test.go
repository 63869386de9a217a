package quote

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// fakeProvider serves canned quotes and counts the fetches it receives.
type fakeProvider struct {
	quotes  map[string]Quote
	fetches int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	f.fetches++
	q, ok := f.quotes[symbol]
	if !ok {
		return Quote{}, errors.New("no such symbol")
	}
	return q, nil
}

func priced(symbol, price string) Quote {
	d := decimal.RequireFromString(price)
	return Quote{Symbol: symbol, Price: &d, Currency: "EUR", Timestamp: time.Now(), Source: "fake"}
}

func TestServiceCachesQuotes(t *testing.T) {
	p := &fakeProvider{quotes: map[string]Quote{"AAPL": priced("AAPL", "187.5")}}
	s := NewService(p, time.Minute, 100, slog.Default())
	ctx := context.Background()

	q, err := s.Get(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if q.Price == nil || !q.Price.Equal(decimal.RequireFromString("187.5")) {
		t.Errorf("price = %v, want 187.5", q.Price)
	}

	// Second call is served from the cache.
	if _, err := s.Get(ctx, "AAPL"); err != nil {
		t.Fatalf("cached Get() failed: %v", err)
	}
	if p.fetches != 1 {
		t.Errorf("provider fetched %d times, want 1", p.fetches)
	}
}

func TestServiceDoesNotCacheEmptyQuotes(t *testing.T) {
	p := &fakeProvider{quotes: map[string]Quote{"GHOST": {Symbol: "GHOST"}}}
	s := NewService(p, time.Minute, 100, slog.Default())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		q, err := s.Get(ctx, "GHOST")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if q.Price != nil {
			t.Errorf("price = %v, want nil", q.Price)
		}
	}
	// A priceless quote must not be cached, so the provider is hit twice.
	if p.fetches != 2 {
		t.Errorf("provider fetched %d times, want 2", p.fetches)
	}
}

func TestServiceGetAllSkipsFailures(t *testing.T) {
	p := &fakeProvider{quotes: map[string]Quote{
		"AAPL": priced("AAPL", "187.5"),
		"TTE":  priced("TTE", "58.3"),
	}}
	s := NewService(p, time.Minute, 100, slog.Default())

	got := s.GetAll(context.Background(), []string{"AAPL", "MISSING", "TTE"})
	if len(got) != 2 {
		t.Fatalf("got %d quotes, want 2", len(got))
	}
	if _, ok := got["MISSING"]; ok {
		t.Error("failed symbol should be absent from the result")
	}
	if !got["TTE"].Price.Equal(decimal.RequireFromString("58.3")) {
		t.Errorf("TTE price = %v, want 58.3", got["TTE"].Price)
	}
}

func TestServicePropagatesProviderError(t *testing.T) {
	p := &fakeProvider{}
	s := NewService(p, time.Minute, 100, slog.Default())
	if _, err := s.Get(context.Background(), "NONE"); err == nil {
		t.Error("expected an error for an unknown symbol")
	}
}
