// Package quote fetches current market prices for the instruments held in
// the ledger. Prices are advisory display data: a fetch failure never blocks
// a ledger operation.
package quote

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Quote is one fetched price point. A nil Price means the provider had no
// quote for the symbol; callers fall back to a manual price or to showing
// the position without valuation.
type Quote struct {
	Symbol    string
	Price     *decimal.Decimal
	Currency  string
	Timestamp time.Time
	Source    string
}

// Provider fetches quotes from one market data source.
type Provider interface {
	// Name identifies the provider in logs and in Quote.Source.
	Name() string
	// Fetch returns the current quote for a symbol. It returns an error for
	// transport failures; an unknown symbol yields a Quote with a nil Price.
	Fetch(ctx context.Context, symbol string) (Quote, error)
}

// Service wraps a provider with a TTL cache and a rate limiter, so refresh
// commands over large portfolios neither hammer the provider nor refetch
// symbols shared across portfolios.
type Service struct {
	provider Provider
	cache    *cache.Cache
	limiter  *rate.Limiter
	log      *slog.Logger
}

// NewService creates a quote service over a provider. Quotes are cached for
// 'ttl' and fetches are throttled to 'rps' requests per second.
func NewService(p Provider, ttl time.Duration, rps float64, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		provider: p,
		cache:    cache.New(ttl, 2*ttl),
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		log:      log,
	}
}

// Get returns the quote for a symbol, from cache when fresh. Quotes without
// a price are not cached, so a transient provider miss retries on the next
// call.
func (s *Service) Get(ctx context.Context, symbol string) (Quote, error) {
	if q, ok := s.cache.Get(symbol); ok {
		return q.(Quote), nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}
	q, err := s.provider.Fetch(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	q.Source = s.provider.Name()
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now()
	}
	if q.Price != nil {
		s.cache.Set(symbol, q, cache.DefaultExpiration)
	} else {
		s.log.Warn("no price for symbol", "symbol", symbol, "provider", q.Source)
	}
	return q, nil
}

// GetAll fetches quotes for all symbols, skipping those that fail; the
// result maps symbol to quote for the symbols that yielded one.
func (s *Service) GetAll(ctx context.Context, symbols []string) map[string]Quote {
	out := make(map[string]Quote, len(symbols))
	for _, symbol := range symbols {
		q, err := s.Get(ctx, symbol)
		if err != nil {
			s.log.Warn("quote fetch failed", "symbol", symbol, "error", err)
			continue
		}
		if q.Price != nil {
			out[symbol] = q
		}
	}
	return out
}
