package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	pf "github.com/sboulay/portefeuille"
	"github.com/sboulay/portefeuille/store"
)

type createCmd struct {
	name        string
	code        string
	category    string
	currency    string
	feesPercent string
	feesMin     string
	tffPercent  string
}

func (*createCmd) Name() string     { return "create" }
func (*createCmd) Synopsis() string { return "create a new portfolio" }
func (*createCmd) Usage() string {
	return `pfl create -name <name> [-code <code>] [-category <cat>] [-currency <cur>]

  Creates a portfolio. Category is one of Trading, Crypto, LT. The optional
  fee schedule prefills fees and tff on future transactions.
`
}

func (c *createCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Portfolio name.")
	f.StringVar(&c.code, "code", "", "Short code used to tag consolidated rows.")
	f.StringVar(&c.category, "category", "Trading", "Portfolio category (Trading, Crypto, LT).")
	f.StringVar(&c.currency, "currency", "EUR", "Base currency.")
	f.StringVar(&c.feesPercent, "fees-percent", "0", "Default fee rate in percent of the gross amount.")
	f.StringVar(&c.feesMin, "fees-min", "0", "Minimum fee per transaction.")
	f.StringVar(&c.tffPercent, "tff-percent", "0", "Default transaction-tax rate in percent.")
}

func (c *createCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		category, err := pf.ParseCategory(c.category)
		if err != nil {
			return err
		}
		fees, err := parseFeeSchedule(c.feesPercent, c.feesMin, c.tffPercent)
		if err != nil {
			return err
		}
		p, err := o.CreatePortfolio(ctx, pf.Portfolio{
			Name:     c.name,
			Code:     c.code,
			Category: category,
			Currency: strings.ToUpper(c.currency),
			Fees:     fees,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created portfolio %q (%s)\n", p.Name, p.ID)
		return nil
	})
}

func parseFeeSchedule(feesPercent, feesMin, tffPercent string) (pf.FeeSchedule, error) {
	var s pf.FeeSchedule
	var err error
	if s.FeesPercent, err = decimal.NewFromString(feesPercent); err != nil {
		return s, fmt.Errorf("invalid fees-percent %q: %w", feesPercent, err)
	}
	if s.FeesMin, err = decimal.NewFromString(feesMin); err != nil {
		return s, fmt.Errorf("invalid fees-min %q: %w", feesMin, err)
	}
	if s.TFFPercent, err = decimal.NewFromString(tffPercent); err != nil {
		return s, fmt.Errorf("invalid tff-percent %q: %w", tffPercent, err)
	}
	return s, nil
}

type listCmd struct{}

func (*listCmd) Name() string             { return "list" }
func (*listCmd) Synopsis() string         { return "list all portfolios" }
func (*listCmd) Usage() string            { return "pfl list\n\n  Lists all portfolios.\n" }
func (*listCmd) SetFlags(f *flag.FlagSet) {}

func (c *listCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		portfolios, err := o.Portfolios(ctx)
		if err != nil {
			return err
		}
		current, err := o.CurrentPortfolio(ctx)
		if err != nil {
			return err
		}
		var b strings.Builder
		fmt.Fprintln(&b, "| | Name | Code | Category | Currency | Cash |")
		fmt.Fprintln(&b, "|:---|:---|:---|:---|:---|---:|")
		for _, p := range portfolios {
			marker := ""
			if p.ID == current {
				marker = "*"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				marker, p.Name, p.Code, p.Category, p.Currency, p.Cash)
		}
		printMarkdown(b.String())
		return nil
	})
}

type deleteCmd struct {
	portfolio string
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete a portfolio and all its records" }
func (*deleteCmd) Usage() string {
	return `pfl delete -P <portfolio>

  Deletes a portfolio with its transactions, positions and closed positions.
`
}

func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "P", "", "Portfolio to delete (id, code or name).")
}

func (c *deleteCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		if c.portfolio == "" {
			return fmt.Errorf("delete requires an explicit -P")
		}
		p, err := o.FindPortfolio(ctx, c.portfolio)
		if err != nil {
			return err
		}
		if err := o.DeletePortfolio(ctx, p.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted portfolio %q\n", p.Name)
		return nil
	})
}

type useCmd struct{}

func (*useCmd) Name() string     { return "use" }
func (*useCmd) Synopsis() string { return "select the portfolio commands default to" }
func (*useCmd) Usage() string {
	return `pfl use <portfolio>

  Stores the given portfolio (id, code or name) as the default for
  subsequent commands.
`
}
func (*useCmd) SetFlags(f *flag.FlagSet) {}

func (c *useCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		if f.NArg() != 1 {
			return fmt.Errorf("use requires exactly one portfolio argument")
		}
		p, err := o.FindPortfolio(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		if err := o.SetCurrentPortfolio(ctx, p.ID); err != nil {
			return err
		}
		fmt.Printf("Now using portfolio %q\n", p.Name)
		return nil
	})
}
