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

// txFlags are the fields shared by the transaction-recording commands.
type txFlags struct {
	portfolio string
	date      string
	code      string
	name      string
	quantity  string
	price     string
	fees      string
	tff       string
	currency  string
	rate      string
	tax       string
	sector    string
}

func (t *txFlags) set(f *flag.FlagSet) {
	f.StringVar(&t.portfolio, "P", "", "Portfolio (id, code or name). Defaults to the one set with 'pfl use'.")
	f.StringVar(&t.date, "d", pf.Today().String(), "Transaction date.")
	f.StringVar(&t.code, "c", "", "Instrument code.")
	f.StringVar(&t.name, "n", "", "Instrument name.")
	f.StringVar(&t.quantity, "q", "", "Quantity.")
	f.StringVar(&t.price, "p", "", "Unit price in the transaction currency.")
	f.StringVar(&t.fees, "fees", "", "Fees in portfolio currency. Defaults to the portfolio fee schedule.")
	f.StringVar(&t.tff, "tff", "", "Transaction tax in portfolio currency. Defaults to the portfolio fee schedule.")
	f.StringVar(&t.currency, "cur", "", "Transaction currency. Defaults to the portfolio currency.")
	f.StringVar(&t.rate, "rate", "1", "Conversion rate to portfolio currency.")
	f.StringVar(&t.tax, "tax", "0", "Withholding tax (dividends).")
	f.StringVar(&t.sector, "sector", "", "Instrument sector.")
}

// transaction builds the transaction from the flags. Fees and tff left empty
// are prefilled from the portfolio's fee schedule on buys and sells.
func (t *txFlags) transaction(p pf.Portfolio, typ pf.TxType) (pf.Transaction, error) {
	number := func(label, s, dflt string) (decimal.Decimal, error) {
		if s == "" {
			s = dflt
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return d, fmt.Errorf("invalid %s %q: %w", label, s, err)
		}
		return d, nil
	}

	date, err := pf.ParseDate(t.date)
	if err != nil {
		return pf.Transaction{}, err
	}
	qty, err := number("quantity", t.quantity, "1")
	if err != nil {
		return pf.Transaction{}, err
	}
	price, err := number("price", t.price, "0")
	if err != nil {
		return pf.Transaction{}, err
	}
	rate, err := number("rate", t.rate, "1")
	if err != nil {
		return pf.Transaction{}, err
	}
	tax, err := number("tax", t.tax, "0")
	if err != nil {
		return pf.Transaction{}, err
	}

	var fees, tff decimal.Decimal
	switch typ {
	case pf.TxBuy, pf.TxSell:
		gross := qty.Mul(pf.ConvertedPrice(price, rate))
		fees, err = number("fees", t.fees, p.Fees.Fees(gross).String())
		if err != nil {
			return pf.Transaction{}, err
		}
		tff, err = number("tff", t.tff, p.Fees.TFF(gross).String())
		if err != nil {
			return pf.Transaction{}, err
		}
	default:
		fees, err = number("fees", t.fees, "0")
		if err != nil {
			return pf.Transaction{}, err
		}
		tff, err = number("tff", t.tff, "0")
		if err != nil {
			return pf.Transaction{}, err
		}
	}

	currency := t.currency
	if currency == "" {
		currency = p.Currency
	}

	return pf.Transaction{
		PortfolioID: p.ID,
		Date:        date,
		Code:        t.code,
		Name:        t.name,
		Type:        typ,
		Quantity:    pf.Q(qty),
		UnitPrice:   price,
		Fees:        fees,
		TFF:         tff,
		Currency:    currency,
		ConvRate:    rate,
		Tax:         tax,
		Sector:      t.sector,
	}, nil
}

// record applies the transaction and prints the outcome.
func (t *txFlags) record(typ pf.TxType) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		p, err := resolvePortfolio(ctx, o, t.portfolio)
		if err != nil {
			return err
		}
		tx, err := t.transaction(p, typ)
		if err != nil {
			return err
		}
		res, err := o.AddTransaction(ctx, p.ID, tx)
		if err != nil {
			return err
		}
		fmt.Println(renderer.Transaction(tx))
		fmt.Printf("Cash: %s (%s)\n", res.Cash, res.CashDelta.SignedString())
		return nil
	})
}

type buyCmd struct{ txFlags }

func (*buyCmd) Name() string     { return "buy" }
func (*buyCmd) Synopsis() string { return "record a purchase" }
func (*buyCmd) Usage() string {
	return `pfl buy -c <code> -q <quantity> -p <price> [-d <date>] [-fees <fees>]

  Records a purchase. The position's average cost is recomputed from the
  cumulative cost including fees.
`
}
func (c *buyCmd) SetFlags(f *flag.FlagSet) { c.set(f) }
func (c *buyCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.record(pf.TxBuy)
}

type sellCmd struct{ txFlags }

func (*sellCmd) Name() string     { return "sell" }
func (*sellCmd) Synopsis() string { return "record a sale" }
func (*sellCmd) Usage() string {
	return `pfl sell -c <code> -q <quantity> -p <price> [-d <date>] [-fees <fees>]

  Records a sale. The sale must not exceed the open position; a closed
  position record is emitted with the realized gain.
`
}
func (c *sellCmd) SetFlags(f *flag.FlagSet) { c.set(f) }
func (c *sellCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.record(pf.TxSell)
}

type dividendCmd struct{ txFlags }

func (*dividendCmd) Name() string     { return "dividend" }
func (*dividendCmd) Synopsis() string { return "record a dividend payment" }
func (*dividendCmd) Usage() string {
	return `pfl dividend -c <code> -q <quantity> -p <per-unit amount> [-tax <tax>]

  Records a dividend for an open position. The net amount after tax is added
  to cash.
`
}
func (c *dividendCmd) SetFlags(f *flag.FlagSet) { c.set(f) }
func (c *dividendCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.record(pf.TxDividend)
}

type depositCmd struct{ txFlags }

func (*depositCmd) Name() string     { return "deposit" }
func (*depositCmd) Synopsis() string { return "record a cash deposit" }
func (*depositCmd) Usage() string {
	return `pfl deposit -p <amount> [-d <date>]

  Adds cash to the portfolio.
`
}
func (c *depositCmd) SetFlags(f *flag.FlagSet) { c.set(f) }
func (c *depositCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.record(pf.TxDeposit)
}

type withdrawCmd struct{ txFlags }

func (*withdrawCmd) Name() string     { return "withdraw" }
func (*withdrawCmd) Synopsis() string { return "record a cash withdrawal" }
func (*withdrawCmd) Usage() string {
	return `pfl withdraw -p <amount> [-d <date>]

  Removes cash from the portfolio. The withdrawal must not exceed the cash
  balance.
`
}
func (c *withdrawCmd) SetFlags(f *flag.FlagSet) { c.set(f) }
func (c *withdrawCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.record(pf.TxWithdraw)
}

type txCmd struct {
	portfolio string
}

func (*txCmd) Name() string     { return "tx" }
func (*txCmd) Synopsis() string { return "list the transactions of a portfolio" }
func (*txCmd) Usage() string {
	return `pfl tx [-P <portfolio>]

  Lists the portfolio's transactions in chronological order.
`
}

func (c *txCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "P", "", "Portfolio (id, code or name).")
}

func (c *txCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, s *store.SQLite) error {
		p, err := resolvePortfolio(ctx, o, c.portfolio)
		if err != nil {
			return err
		}
		txs, err := s.Transactions(ctx, p.ID)
		if err != nil {
			return err
		}
		printMarkdown(renderer.TransactionsMarkdown(p, txs))
		return nil
	})
}

type deleteTxCmd struct {
	portfolio string
	id        string
}

func (*deleteTxCmd) Name() string     { return "delete-tx" }
func (*deleteTxCmd) Synopsis() string { return "delete a transaction and replay the portfolio" }
func (*deleteTxCmd) Usage() string {
	return `pfl delete-tx -id <transaction id> [-P <portfolio>]

  Deletes a transaction from the history and rebuilds positions, closed
  positions and cash from the remaining transactions.
`
}

func (c *deleteTxCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "P", "", "Portfolio (id, code or name).")
	f.StringVar(&c.id, "id", "", "Transaction id to delete.")
}

func (c *deleteTxCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		if c.id == "" {
			return fmt.Errorf("delete-tx requires -id")
		}
		p, err := resolvePortfolio(ctx, o, c.portfolio)
		if err != nil {
			return err
		}
		res, err := o.DeleteTransaction(ctx, p.ID, c.id)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted transaction, %d positions remain, cash %s\n",
			len(res.Positions), res.Cash)
		for _, w := range res.Warnings {
			fmt.Printf("Warning: skipped %s of %s on %s: %v\n",
				w.Tx.Type, w.Tx.Code, w.Tx.Date, w.Err)
		}
		return nil
	})
}
