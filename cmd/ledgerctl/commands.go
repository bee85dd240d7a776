package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stocksim/internal/app"
	"stocksim/internal/config"
	"stocksim/internal/service"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

var stdout io.Writer = os.Stdout

var commands = []subcommands.Command{
	&migrateCmd{},
	&initUserCmd{},
	&balanceCmd{},
	&holdingsCmd{},
	&tradeCmd{side: "buy"},
	&tradeCmd{side: "sell"},
	&quoteCmd{},
	&resetCmd{},
	&seedPricesCmd{},
}

// withApp loads the configuration, builds the app and runs fn against it.
func withApp(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, a *app.App) error) subcommands.ExitStatus {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	logger := app.NewLogger(cfg)
	logger.SetOutput(os.Stderr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(ctx, cfg, a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply the database schema" }
func (*migrateCmd) Usage() string {
	return `ledgerctl migrate

  Applies the embedded schema for the configured driver. Safe to repeat.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, cfg *config.Config, a *app.App) error {
		// Build has already migrated.
		fmt.Fprintf(stdout, "schema up to date (%s)\n", cfg.DBDriver)
		return nil
	})
}

type initUserCmd struct{}

func (*initUserCmd) Name() string     { return "init-user" }
func (*initUserCmd) Synopsis() string { return "create the configured user if missing" }
func (*initUserCmd) Usage() string {
	return `ledgerctl init-user

  Creates the configured user with the starting balance. An existing user is left as is.
`
}
func (*initUserCmd) SetFlags(*flag.FlagSet) {}

func (*initUserCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, cfg *config.Config, a *app.App) error {
		created, err := a.Repo.InitUser(ctx, cfg.UserID, cfg.Username, cfg.StartingBalanceDecimal())
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(stdout, "User with ID %d already exists, no new user created.\n", cfg.UserID)
			return nil
		}
		fmt.Fprintf(stdout, "New user initialized with %s\n", service.FormatMoney(cfg.StartingBalanceDecimal(), cfg.Currency))
		return nil
	})
}

type balanceCmd struct{}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print the cash balance" }
func (*balanceCmd) Usage() string {
	return `ledgerctl balance
`
}
func (*balanceCmd) SetFlags(*flag.FlagSet) {}

func (*balanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, cfg *config.Config, a *app.App) error {
		bal, err := a.Repo.GetBalance(ctx, cfg.UserID)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, service.FormatMoney(bal, cfg.Currency))
		return nil
	})
}

type holdingsCmd struct{}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "list owned shares" }
func (*holdingsCmd) Usage() string {
	return `ledgerctl holdings
`
}
func (*holdingsCmd) SetFlags(*flag.FlagSet) {}

func (*holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, cfg *config.Config, a *app.App) error {
		items, err := a.Repo.ListHoldings(ctx, cfg.UserID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(stdout, "no holdings")
			return nil
		}
		for _, h := range items {
			fmt.Fprintf(stdout, "%-16s %d\n", h.Symbol, h.Quantity)
		}
		return nil
	})
}

// tradeCmd runs a market buy or sell for the configured user.
type tradeCmd struct {
	side   string
	symbol string
	qty    string
}

func (p *tradeCmd) Name() string     { return p.side }
func (p *tradeCmd) Synopsis() string { return p.side + " shares at the current price" }
func (p *tradeCmd) Usage() string {
	return fmt.Sprintf(`ledgerctl %s -symbol <ticker> -qty <n>
`, p.side)
}

func (p *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.symbol, "symbol", "", "Ticker symbol.")
	f.StringVar(&p.qty, "qty", "", "Number of whole shares.")
}

func (p *tradeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	qty, err := decimal.NewFromString(p.qty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid -qty %q\n", p.qty)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, cfg *config.Config, a *app.App) error {
		if p.side == "buy" {
			res, err := a.Engine.Buy(ctx, cfg.UserID, p.symbol, qty)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Bought %d shares of %s at %s for %s, remaining %s\n",
				res.Quantity, res.Symbol, service.FormatMoney(res.Price, cfg.Currency),
				service.FormatMoney(res.Cost, cfg.Currency), service.FormatMoney(res.RemainingBalance, cfg.Currency))
			return nil
		}
		res, err := a.Engine.Sell(ctx, cfg.UserID, p.symbol, qty)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Sold %d shares of %s at %s for %s, remaining %s\n",
			res.Quantity, res.Symbol, service.FormatMoney(res.Price, cfg.Currency),
			service.FormatMoney(res.Proceeds, cfg.Currency), service.FormatMoney(res.RemainingBalance, cfg.Currency))
		return nil
	})
}

type quoteCmd struct {
	symbol string
}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "print the current quote for a symbol" }
func (*quoteCmd) Usage() string {
	return `ledgerctl quote -symbol <ticker>
`
}

func (p *quoteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.symbol, "symbol", "", "Ticker symbol.")
}

func (p *quoteCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, cfg *config.Config, a *app.App) error {
		q, err := a.Engine.Quote(ctx, p.symbol)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s (%s, %s)\n", q.Symbol, service.FormatMoney(q.Price, cfg.Currency), q.Source, q.Timestamp.Format(time.RFC3339))
		return nil
	})
}

type resetCmd struct {
	yes bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "delete all users and holdings" }
func (*resetCmd) Usage() string {
	return `ledgerctl reset -yes

  Deletes every user and holding. Price history is kept.
`
}

func (p *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&p.yes, "yes", false, "Confirm the deletion.")
}

func (p *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !p.yes {
		fmt.Fprintln(os.Stderr, "Error: reset deletes all users; pass -yes to confirm.")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, cfg *config.Config, a *app.App) error {
		n, err := a.Repo.ResetAllUsers(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %d users\n", n)
		return nil
	})
}

// seedPricesCmd records price ticks for the simulated provider, either from
// -symbol/-price or from SYMBOL=PRICE arguments.
type seedPricesCmd struct {
	symbol string
	price  string
	at     string
}

func (*seedPricesCmd) Name() string     { return "seed-prices" }
func (*seedPricesCmd) Synopsis() string { return "record prices for the simulated quote provider" }
func (*seedPricesCmd) Usage() string {
	return `ledgerctl seed-prices [-symbol <ticker> -price <p>] [-at <RFC3339>] [SYMBOL=PRICE ...]

  Inserts price ticks. Without -at the ticks are stamped with the current time.
`
}

func (p *seedPricesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.symbol, "symbol", "", "Ticker symbol.")
	f.StringVar(&p.price, "price", "", "Price to record.")
	f.StringVar(&p.at, "at", "", "Observation time (RFC3339). Defaults to now.")
}

type priceSeed struct {
	symbol string
	price  decimal.Decimal
}

func (p *seedPricesCmd) seeds(args []string) ([]priceSeed, error) {
	pairs := args
	if p.symbol != "" || p.price != "" {
		pairs = append([]string{p.symbol + "=" + p.price}, pairs...)
	}
	if len(pairs) == 0 {
		return nil, errors.New("no prices given")
	}
	var out []priceSeed
	for _, pair := range pairs {
		sym, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected SYMBOL=PRICE, got %q", pair)
		}
		norm, err := service.NormalizeSymbol(sym)
		if err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(raw)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("invalid price %q for %s", raw, norm)
		}
		out = append(out, priceSeed{symbol: norm, price: price})
	}
	return out, nil
}

func (p *seedPricesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	seeds, err := p.seeds(f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	at := time.Now().UTC()
	if p.at != "" {
		if at, err = time.Parse(time.RFC3339, p.at); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing -at: %v\n", err)
			return subcommands.ExitUsageError
		}
	}
	return withApp(ctx, func(ctx context.Context, cfg *config.Config, a *app.App) error {
		for _, s := range seeds {
			if err := a.Repo.UpsertPrice(ctx, s.symbol, s.price, at); err != nil {
				return fmt.Errorf("insert price for %s: %w", s.symbol, err)
			}
			fmt.Fprintf(stdout, "%s %s at %s\n", s.symbol, s.price.String(), at.Format(time.RFC3339))
		}
		return nil
	})
}
