package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odyssey-erp/odyssey-books/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-books/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-books/internal/app"
	"github.com/odyssey-erp/odyssey-books/internal/books"
)

const usage = `usage: booksctl <command> [flags]

commands:
  report tb|bs|pl|vat   print a statement from the configured store
  verify                run the integrity check in-process
  trigger <task>        enqueue ledger:integrity or inventory:reconcile
  queue                 show default queue depth
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "booksctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	switch args[0] {
	case "report":
		return report(ctx, cfg, logger, args[1:], out)
	case "verify":
		return withBooks(ctx, cfg, logger, func(b *books.Books) error {
			result, verr := b.VerifyIntegrity(ctx)
			if perr := cli.NewReportPrinter("en").Integrity(out, result); perr != nil {
				return perr
			}
			return verr
		})
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("trigger: task name required")
		}
		jc := cli.NewJobsCLI(cfg.RedisAddr)
		defer jc.Close()
		info, err := jc.Trigger(ctx, args[1], cfg.LedgerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "queue":
		jc := cli.NewJobsCLI(cfg.RedisAddr)
		defer jc.Close()
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		archived, err := jc.ListArchived(ctx, 5)
		if err != nil {
			return err
		}
		for _, task := range archived {
			fmt.Fprintf(out, "  archived %s %s: %s\n", task.Type, task.ID, task.LastErr)
		}
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func report(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("report: kind required (tb, bs, pl, vat)")
	}
	kind := args[0]
	fs := flag.NewFlagSet("report "+kind, flag.ContinueOnError)
	fs.SetOutput(out)
	from := fs.String("from", "", "period start, YYYY-MM-DD")
	to := fs.String("to", "", "period end or as-of date, YYYY-MM-DD")
	lang := fs.String("lang", "en", "locale for amounts")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	fromDate, err := parseDay(*from)
	if err != nil {
		return fmt.Errorf("report: -from: %w", err)
	}
	toDate, err := parseDay(*to)
	if err != nil {
		return fmt.Errorf("report: -to: %w", err)
	}
	if !toDate.IsZero() {
		toDate = toDate.Add(24*time.Hour - time.Nanosecond)
	}
	rp := cli.NewReportPrinter(*lang)

	return withBooks(ctx, cfg, logger, func(b *books.Books) error {
		switch kind {
		case "tb":
			tb, err := b.GetTrialBalance(ctx, reports.TrialBalanceFilter{From: fromDate, To: toDate})
			if err != nil {
				return err
			}
			return rp.TrialBalance(out, tb)
		case "bs":
			bs, err := b.GetBalanceSheet(ctx, toDate)
			if err != nil {
				return err
			}
			return rp.BalanceSheet(out, bs)
		case "pl":
			pl, err := b.GetIncomeStatement(ctx, fromDate, toDate)
			if err != nil {
				return err
			}
			return rp.IncomeStatement(out, pl)
		case "vat":
			vat, err := b.GetVatDeclaration(ctx, fromDate, toDate)
			if err != nil {
				return err
			}
			return rp.Vat(out, vat)
		default:
			return fmt.Errorf("report: unknown kind %q", kind)
		}
	})
}

func withBooks(ctx context.Context, cfg *app.Config, logger *slog.Logger, fn func(*books.Books) error) error {
	rt, err := app.NewRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.Books)
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
