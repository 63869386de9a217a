package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	pf "github.com/sboulay/portefeuille"
	"github.com/sboulay/portefeuille/store"
)

type exportCmd struct {
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export the full ledger to a backup file" }
func (*exportCmd) Usage() string {
	return `pfl export [-o <file>]

  Writes every portfolio with its transactions, positions, closed positions
  and settings to a single JSON backup. Without -o the backup goes to stdout.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "Output file. Defaults to stdout.")
}

func (c *exportCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		b, err := o.Export(ctx)
		if err != nil {
			return err
		}
		w := os.Stdout
		if c.output != "" {
			file, err := os.Create(c.output)
			if err != nil {
				return fmt.Errorf("cannot create backup file: %w", err)
			}
			defer file.Close()
			w = file
		}
		if err := pf.EncodeBackup(w, b); err != nil {
			return err
		}
		if c.output != "" {
			fmt.Fprintf(os.Stderr, "Exported %d portfolios and %d transactions to %s\n",
				len(b.Portfolios), len(b.Transactions), c.output)
		}
		return nil
	})
}

type restoreCmd struct {
	input string
}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "replace the ledger with a backup file" }
func (*restoreCmd) Usage() string {
	return `pfl restore -i <file>

  Validates the backup and atomically replaces the entire ledger with its
  content. An invalid backup leaves the ledger untouched.
`
}

func (c *restoreCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.input, "i", "", "Backup file to restore.")
}

func (c *restoreCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		if c.input == "" {
			return fmt.Errorf("restore requires -i")
		}
		file, err := os.Open(c.input)
		if err != nil {
			return fmt.Errorf("cannot open backup file: %w", err)
		}
		defer file.Close()
		b, err := pf.DecodeBackup(file)
		if err != nil {
			return err
		}
		if err := o.Restore(ctx, b); err != nil {
			return err
		}
		fmt.Printf("Restored %d portfolios and %d transactions\n",
			len(b.Portfolios), len(b.Transactions))
		return nil
	})
}

type importCSVCmd struct {
	portfolio string
	input     string
}

func (*importCSVCmd) Name() string     { return "import-csv" }
func (*importCSVCmd) Synopsis() string { return "import transactions from a CSV file" }
func (*importCSVCmd) Usage() string {
	return `pfl import-csv -i <file> [-P <portfolio>]

  Parses transactions from a CSV file, merges them into the portfolio's
  history and rebuilds positions, closed positions and cash by replay.
  Sells without matching buys in the batch are reported but do not block
  the import.
`
}

func (c *importCSVCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolio, "P", "", "Portfolio (id, code or name).")
	f.StringVar(&c.input, "i", "", "CSV file to import.")
}

func (c *importCSVCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(ctx context.Context, o *pf.Orchestrator, _ *store.SQLite) error {
		if c.input == "" {
			return fmt.Errorf("import-csv requires -i")
		}
		p, err := resolvePortfolio(ctx, o, c.portfolio)
		if err != nil {
			return err
		}
		file, err := os.Open(c.input)
		if err != nil {
			return fmt.Errorf("cannot open csv file: %w", err)
		}
		defer file.Close()

		txs, err := pf.ReadCSV(file, pf.DefaultColumnMap(), p.ID)
		if err != nil {
			return err
		}
		res, err := o.ImportTransactions(ctx, p.ID, txs)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d transactions, %d open positions, cash %s\n",
			len(txs), len(res.Positions), res.Cash)
		for _, w := range res.Warnings {
			fmt.Printf("Warning: %s of %s on %s: %v\n",
				w.Tx.Type, w.Tx.Code, w.Tx.Date, w.Err)
		}
		return nil
	})
}
