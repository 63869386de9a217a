package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	pf "github.com/sboulay/portefeuille"
	"github.com/sboulay/portefeuille/renderer"
	"github.com/sboulay/portefeuille/store"
)

type holdingsCmd struct {
	portfolio string
	refresh   bool
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "show the open positions of a portfolio" }
func (*holdingsCmd) Usage() string {
	return `pfl holdings [-P <portfolio>] [-refresh]

  Shows the open positions with their average cost. With -refresh, current
  prices are fetched and the positions valued; manual prices take precedence
  over fetched ones.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "P", "", "Portfolio (id, code or name).")
	f.BoolVar(&c.refresh, "refresh", false, "Fetch current prices before rendering.")
}

func (c *holdingsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, s *store.SQLite) error {
		p, err := resolvePortfolio(ctx, o, c.portfolio)
		if err != nil {
			return err
		}
		positions, err := s.Positions(ctx, p.ID)
		if err != nil {
			return err
		}
		prices := map[string]decimal.Decimal{}
		if c.refresh {
			prices = fetchPrices(ctx, positions)
		}
		printMarkdown(renderer.HoldingsMarkdown(p, positions, prices))
		return nil
	})
}

type closedCmd struct {
	portfolio string
}

func (*closedCmd) Name() string     { return "closed" }
func (*closedCmd) Synopsis() string { return "show the realized trades of a portfolio" }
func (*closedCmd) Usage() string {
	return `pfl closed [-P <portfolio>]

  Shows the closed positions with realized gains and the dividends received
  over each holding period.
`
}

func (c *closedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "P", "", "Portfolio (id, code or name).")
}

func (c *closedCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, s *store.SQLite) error {
		p, err := resolvePortfolio(ctx, o, c.portfolio)
		if err != nil {
			return err
		}
		closed, err := s.ClosedPositions(ctx, p.ID)
		if err != nil {
			return err
		}
		printMarkdown(renderer.ClosedPositionsMarkdown(p, closed))
		return nil
	})
}

type consolidatedCmd struct {
	refresh bool
}

func (*consolidatedCmd) Name() string     { return "consolidated" }
func (*consolidatedCmd) Synopsis() string { return "show the aggregated view over all portfolios" }
func (*consolidatedCmd) Usage() string {
	return `pfl consolidated [-refresh]

  Shows positions, closed positions and cash across all portfolios. Rows stay
  attributed to their portfolio; cash is summed per currency.
`
}

func (c *consolidatedCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.refresh, "refresh", false, "Fetch current prices before rendering.")
}

func (c *consolidatedCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		view, err := o.ConsolidatedView(ctx)
		if err != nil {
			return err
		}
		prices := map[string]decimal.Decimal{}
		if c.refresh {
			positions := make([]pf.Position, 0, len(view.Positions))
			for _, pos := range view.Positions {
				positions = append(positions, pos.Position)
			}
			prices = fetchPrices(ctx, positions)
		}
		printMarkdown(renderer.ConsolidatedMarkdown(view, prices))
		return nil
	})
}

type stopLossCmd struct {
	portfolio string
	code      string
	value     string
}

func (*stopLossCmd) Name() string     { return "stoploss" }
func (*stopLossCmd) Synopsis() string { return "set the stop-loss level on a position" }
func (*stopLossCmd) Usage() string {
	return `pfl stoploss -c <code> -v <value> [-P <portfolio>]

  Sets the stop-loss on a position. With -P "" (or from the consolidated
  view) the value propagates to every portfolio holding the code.
`
}

func (c *stopLossCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "P", "", "Portfolio (id, code or name). Empty means all portfolios holding the code.")
	f.StringVar(&c.code, "c", "", "Instrument code.")
	f.StringVar(&c.value, "v", "0", "Stop-loss level, 0 to clear.")
}

func (c *stopLossCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		value, err := decimal.NewFromString(c.value)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", c.value, err)
		}
		portfolioID, err := metaTargetID(ctx, o, c.portfolio)
		if err != nil {
			return err
		}
		return o.SetStopLoss(ctx, portfolioID, c.code, value)
	})
}

type priceCmd struct {
	portfolio string
	code      string
	value     string
}

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "set a manual current price on a position" }
func (*priceCmd) Usage() string {
	return `pfl price -c <code> -v <value> [-P <portfolio>]

  Sets a manual price that overrides fetched quotes in valuations. With an
  empty -P the price propagates to every portfolio holding the code.
`
}

func (c *priceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "P", "", "Portfolio (id, code or name). Empty means all portfolios holding the code.")
	f.StringVar(&c.code, "c", "", "Instrument code.")
	f.StringVar(&c.value, "v", "0", "Manual price, 0 to clear.")
}

func (c *priceCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		value, err := decimal.NewFromString(c.value)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", c.value, err)
		}
		portfolioID, err := metaTargetID(ctx, o, c.portfolio)
		if err != nil {
			return err
		}
		return o.SetManualPrice(ctx, portfolioID, c.code, value)
	})
}

// metaTargetID resolves the -P flag for the position-metadata commands,
// where an empty flag legitimately addresses all portfolios.
func metaTargetID(ctx context.Context, o *pf.Orchestrator, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	p, err := o.FindPortfolio(ctx, key)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}
