package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	pf "github.com/sboulay/portefeuille"
	"github.com/sboulay/portefeuille/quote"
	"github.com/sboulay/portefeuille/store"
)

// quoteService builds the shared quote service used by refresh and by the
// -refresh flag of the report commands.
func quoteService() (*quote.Service, error) {
	provider, err := quote.NewYahoo()
	if err != nil {
		return nil, err
	}
	return quote.NewService(provider, 15*time.Minute, 2, slog.Default()), nil
}

// fetchPrices fetches current prices for the given positions, best effort.
// Positions whose quote fails are simply absent from the result.
func fetchPrices(ctx context.Context, positions []pf.Position) map[string]decimal.Decimal {
	svc, err := quoteService()
	if err != nil {
		slog.Warn("quote service unavailable", "error", err)
		return nil
	}
	codes := make([]string, 0, len(positions))
	seen := make(map[string]bool)
	for _, pos := range positions {
		if !seen[pos.Code] {
			seen[pos.Code] = true
			codes = append(codes, pos.Code)
		}
	}
	prices := make(map[string]decimal.Decimal, len(codes))
	for code, q := range svc.GetAll(ctx, codes) {
		prices[code] = *q.Price
	}
	return prices
}

type refreshCmd struct {
	portfolio string
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "fetch current prices for the open positions" }
func (*refreshCmd) Usage() string {
	return `pfl refresh [-P <portfolio>]

  Fetches current prices for the open positions and prints them. Prices are
  display data only, the ledger is not modified.
`
}

func (c *refreshCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "P", "", "Portfolio (id, code or name). Empty means all portfolios.")
}

func (c *refreshCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, s *store.SQLite) error {
		portfolioID := ""
		if c.portfolio != "" {
			p, err := o.FindPortfolio(ctx, c.portfolio)
			if err != nil {
				return err
			}
			portfolioID = p.ID
		}
		positions, err := s.Positions(ctx, portfolioID)
		if err != nil {
			return err
		}
		if len(positions) == 0 {
			fmt.Println("No open positions.")
			return nil
		}
		prices := fetchPrices(ctx, positions)
		for _, pos := range positions {
			if price, ok := prices[pos.Code]; ok {
				fmt.Printf("%s: %s\n", pos.Code, price)
			} else {
				fmt.Printf("%s: no quote\n", pos.Code)
			}
		}
		return nil
	})
}
