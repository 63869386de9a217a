// Package cmd implements the CLI application to manage the portfolio ledger.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	pf "github.com/sboulay/portefeuille"
	"github.com/sboulay/portefeuille/store"
)

// Commands is the full list of subcommands. A main package registers them
// with a commander and executes the user-selected one.
var Commands = []subcommands.Command{
	&createCmd{},
	&listCmd{},
	&deleteCmd{},
	&useCmd{},

	&buyCmd{},
	&sellCmd{},
	&dividendCmd{},
	&depositCmd{},
	&withdrawCmd{},
	&txCmd{},
	&deleteTxCmd{},

	&holdingsCmd{},
	&closedCmd{},
	&consolidatedCmd{},
	&stopLossCmd{},
	&priceCmd{},
	&refreshCmd{},

	&exportCmd{},
	&restoreCmd{},
	&importCSVCmd{},
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var dbFile = flag.String("db", "", "Path to the ledger database file. Defaults to $PFL_DB or 'portefeuille.db'.")

// Setup loads the .env configuration and installs the structured logger.
// Call it once, after flag.Parse.
func Setup() {
	// A missing .env file is the normal case.
	godotenv.Load()

	level := slog.LevelWarn
	switch strings.ToLower(os.Getenv("PFL_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func dbPath() string {
	if *dbFile != "" {
		return *dbFile
	}
	if path := os.Getenv("PFL_DB"); path != "" {
		return path
	}
	return "portefeuille.db"
}

// openStore opens the application database.
func openStore() (*store.SQLite, error) {
	return store.OpenSQLite(dbPath())
}

// resolvePortfolio resolves the portfolio a command operates on: the -P flag
// when given (by id, code or name), otherwise the current-portfolio pointer.
func resolvePortfolio(ctx context.Context, o *pf.Orchestrator, key string) (pf.Portfolio, error) {
	if key != "" {
		return o.FindPortfolio(ctx, key)
	}
	id, err := o.CurrentPortfolio(ctx)
	if err != nil {
		return pf.Portfolio{}, err
	}
	if id == "" {
		return pf.Portfolio{}, fmt.Errorf("no portfolio selected, use -P or 'pfl use'")
	}
	return o.FindPortfolio(ctx, id)
}

// run opens the store, builds the orchestrator and hands both to 'fn',
// translating the error into an exit status.
func run(fn func(ctx context.Context, o *pf.Orchestrator, s *store.SQLite) error) subcommands.ExitStatus {
	s, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	if err := fn(context.Background(), pf.NewOrchestrator(s, slog.Default()), s); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
