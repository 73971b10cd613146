package books

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
)

// snapshot is the committed state a report is derived from.
type snapshot struct {
	entries   []accounting.JournalEntry
	items     []inventory.Item
	movements []inventory.Movement
	// complete is set when no movement is dated after the cut-off.
	complete bool
}

// load reads effective entries and movements dated up to to, plus items,
// from one consistent view.
func (b *Books) load(ctx context.Context, to time.Time) (snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var snap snapshot
	err := b.uow.Snapshot(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if snap.entries, err = tx.Journal.ListEntries(ctx, accounting.EntryFilter{To: to, Statuses: accounting.PostedStatuses}); err != nil {
			return err
		}
		all, err := tx.Inventory.ListMovements(ctx, inventory.MovementFilter{})
		if err != nil {
			return err
		}
		cut := inventory.MovementFilter{To: to}
		snap.movements = make([]inventory.Movement, 0, len(all))
		for _, mv := range all {
			if cut.Match(mv) {
				snap.movements = append(snap.movements, mv)
			}
		}
		snap.complete = len(snap.movements) == len(all)
		snap.items, err = tx.Inventory.ListItems(ctx)
		return err
	})
	return snap, err
}

// cachedReport serves a report from the versioned cache, building it on a
// miss. Without a cache it builds directly.
func cachedReport[T any](ctx context.Context, b *Books, build func(context.Context) (T, error), parts ...string) (T, error) {
	if b.cache == nil {
		return build(ctx)
	}
	key, err := b.cache.BuildKey(ctx, append([]string{b.ledgerID}, parts...)...)
	if err != nil {
		b.logger.Warn("report cache unavailable", slog.Any("error", err))
		return build(ctx)
	}
	var out T
	err = b.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return build(ctx)
	})
	return out, err
}

// boundKey renders a report bound for a cache key at full precision, so
// two cut-offs on the same day never share an entry.
func boundKey(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// GetLedgerView returns per-account ledgers.
func (b *Books) GetLedgerView(ctx context.Context, opts reports.LedgerOptions) ([]reports.LedgerAccountView, error) {
	return cachedReport(ctx, b, func(ctx context.Context) ([]reports.LedgerAccountView, error) {
		snap, err := b.load(ctx, opts.To)
		if err != nil {
			return nil, err
		}
		return reports.BuildLedger(b.chart, snap.entries, opts)
	}, "ledger", boundKey(opts.From), boundKey(opts.To), opts.AccountCode, strconv.FormatBool(opts.IncludeVoided))
}

// GetTrialBalance returns the verified trial balance.
func (b *Books) GetTrialBalance(ctx context.Context, filter reports.TrialBalanceFilter) (reports.TrialBalance, error) {
	return cachedReport(ctx, b, func(ctx context.Context) (reports.TrialBalance, error) {
		snap, err := b.load(ctx, filter.To)
		if err != nil {
			return reports.TrialBalance{}, err
		}
		return reports.BuildTrialBalance(b.chart, snap.entries, filter)
	}, "tb", boundKey(filter.From), boundKey(filter.To), filter.CodeFrom, filter.CodeTo)
}

// GetBalanceSheet returns the position as of asOf. A zero asOf covers every
// entry.
func (b *Books) GetBalanceSheet(ctx context.Context, asOf time.Time) (reports.BalanceSheet, error) {
	return cachedReport(ctx, b, func(ctx context.Context) (reports.BalanceSheet, error) {
		snap, err := b.load(ctx, asOf)
		if err != nil {
			return reports.BalanceSheet{}, err
		}
		return balanceSheet(b.chart, snap, asOf)
	}, "bs", boundKey(asOf))
}

// GetIncomeStatement returns the result of the period.
func (b *Books) GetIncomeStatement(ctx context.Context, from, to time.Time) (reports.IncomeStatement, error) {
	return cachedReport(ctx, b, func(ctx context.Context) (reports.IncomeStatement, error) {
		snap, err := b.load(ctx, to)
		if err != nil {
			return reports.IncomeStatement{}, err
		}
		return incomeStatement(b.chart, snap, from, to)
	}, "pl", boundKey(from), boundKey(to))
}

// GetVatDeclaration returns the VAT position of the period.
func (b *Books) GetVatDeclaration(ctx context.Context, from, to time.Time) (reports.VatDeclaration, error) {
	return cachedReport(ctx, b, func(ctx context.Context) (reports.VatDeclaration, error) {
		snap, err := b.load(ctx, to)
		if err != nil {
			return reports.VatDeclaration{}, err
		}
		return reports.BuildVatDeclaration(b.chart, snap.entries, from, to)
	}, "vat", boundKey(from), boundKey(to))
}

// FinancialPack bundles every statement of a period.
type FinancialPack struct {
	From            time.Time               `json:"from"`
	To              time.Time               `json:"to"`
	TrialBalance    reports.TrialBalance    `json:"trial_balance"`
	BalanceSheet    reports.BalanceSheet    `json:"balance_sheet"`
	IncomeStatement reports.IncomeStatement `json:"income_statement"`
	Vat             reports.VatDeclaration  `json:"vat"`
}

// GetFinancialPack derives all statements from one snapshot concurrently.
func (b *Books) GetFinancialPack(ctx context.Context, from, to time.Time) (FinancialPack, error) {
	return cachedReport(ctx, b, func(ctx context.Context) (FinancialPack, error) {
		snap, err := b.load(ctx, to)
		if err != nil {
			return FinancialPack{}, err
		}
		pack := FinancialPack{From: from, To: to}
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error {
			tb, err := reports.BuildTrialBalance(b.chart, snap.entries, reports.TrialBalanceFilter{From: from, To: to})
			pack.TrialBalance = tb
			return err
		})
		g.Go(func() error {
			bs, err := balanceSheet(b.chart, snap, to)
			pack.BalanceSheet = bs
			return err
		})
		g.Go(func() error {
			pl, err := incomeStatement(b.chart, snap, from, to)
			pack.IncomeStatement = pl
			return err
		})
		g.Go(func() error {
			vat, err := reports.BuildVatDeclaration(b.chart, snap.entries, from, to)
			pack.Vat = vat
			return err
		})
		if err := g.Wait(); err != nil {
			return FinancialPack{}, err
		}
		return pack, nil
	}, "pack", boundKey(from), boundKey(to))
}

func balanceSheet(chart *accounting.Chart, snap snapshot, asOf time.Time) (reports.BalanceSheet, error) {
	tb, err := reports.BuildTrialBalance(chart, snap.entries, reports.TrialBalanceFilter{To: asOf})
	if err != nil {
		return reports.BalanceSheet{}, err
	}
	return reports.BuildBalanceSheet(tb, physicalValuation(snap, asOf), asOf), nil
}

// physicalValuation is the current stock value unless asOf cuts off a later
// movement, in which case the movement log is replayed up to asOf.
func physicalValuation(snap snapshot, asOf time.Time) decimal.Decimal {
	if asOf.IsZero() || snap.complete {
		return inventory.TotalValuation(snap.items)
	}
	return inventory.ValuationAsOf(snap.movements, asOf)
}

func incomeStatement(chart *accounting.Chart, snap snapshot, from, to time.Time) (reports.IncomeStatement, error) {
	tb, err := reports.BuildTrialBalance(chart, snap.entries, reports.TrialBalanceFilter{From: from, To: to})
	if err != nil {
		return reports.IncomeStatement{}, err
	}
	period := make([]inventory.Movement, 0, len(snap.movements))
	filter := inventory.MovementFilter{From: from, To: to}
	for _, mv := range snap.movements {
		if filter.Match(mv) {
			period = append(period, mv)
		}
	}
	return reports.BuildIncomeStatement(tb, period), nil
}

// ListEntries lists journal entries, voided and reversals included.
func (b *Books) ListEntries(ctx context.Context, filter accounting.EntryFilter) ([]accounting.JournalEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []accounting.JournalEntry
	err := b.uow.Snapshot(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Journal.ListEntries(ctx, filter)
		return err
	})
	return out, err
}

// GetEntry loads one entry.
func (b *Books) GetEntry(ctx context.Context, id uuid.UUID) (accounting.JournalEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out accounting.JournalEntry
	err := b.uow.Snapshot(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Journal.GetEntry(ctx, id)
		return err
	})
	return out, err
}

// ListItems lists stock items by code.
func (b *Books) ListItems(ctx context.Context) ([]inventory.Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []inventory.Item
	err := b.uow.Snapshot(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Inventory.ListItems(ctx)
		return err
	})
	return out, err
}

// ListMovements lists stock movements in date order.
func (b *Books) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []inventory.Movement
	err := b.uow.Snapshot(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Inventory.ListMovements(ctx, filter)
		return err
	})
	return out, err
}

// IntegrityReport summarises a full-ledger check.
type IntegrityReport struct {
	Entries          int             `json:"entries"`
	LastSequence     int64           `json:"last_sequence"`
	TotalDebit       decimal.Decimal `json:"total_debit"`
	TotalCredit      decimal.Decimal `json:"total_credit"`
	ChecksumFailures []uuid.UUID     `json:"checksum_failures,omitempty"`
	Unbalanced       []uuid.UUID     `json:"unbalanced,omitempty"`
	SequenceGaps     []int64         `json:"sequence_gaps,omitempty"`
}

// OK reports whether no defect was found.
func (r IntegrityReport) OK() bool {
	return len(r.ChecksumFailures) == 0 && len(r.Unbalanced) == 0 && len(r.SequenceGaps) == 0
}

// VerifyIntegrity re-checks every stored entry and the trial balance. It
// returns ErrReportingInconsistency when anything fails to reconcile.
func (b *Books) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	snap, err := b.load(ctx, time.Time{})
	if err != nil {
		return IntegrityReport{}, err
	}
	var report IntegrityReport
	seen := make(map[int64]bool, len(snap.entries))
	for _, e := range snap.entries {
		report.Entries++
		seen[e.Sequence] = true
		if e.Sequence > report.LastSequence {
			report.LastSequence = e.Sequence
		}
		if !accounting.VerifyChecksum(e) {
			report.ChecksumFailures = append(report.ChecksumFailures, e.ID)
		}
		if !e.Balanced() {
			report.Unbalanced = append(report.Unbalanced, e.ID)
		}
	}
	for seq := int64(1); seq <= report.LastSequence; seq++ {
		if !seen[seq] {
			report.SequenceGaps = append(report.SequenceGaps, seq)
		}
	}
	tb, err := reports.BuildTrialBalance(b.chart, snap.entries, reports.TrialBalanceFilter{})
	if err != nil {
		return report, err
	}
	report.TotalDebit = tb.TotalSumDebit
	report.TotalCredit = tb.TotalSumCredit
	if !report.OK() {
		return report, fmt.Errorf("%w: %d checksum failures, %d unbalanced entries, %d sequence gaps",
			accounting.ErrReportingInconsistency, len(report.ChecksumFailures), len(report.Unbalanced), len(report.SequenceGaps))
	}
	return report, nil
}

// ReconcileInventory compares the inventory account with the valuation of
// stock on hand.
func (b *Books) ReconcileInventory(ctx context.Context) (reports.InventoryReconciliation, error) {
	snap, err := b.load(ctx, time.Time{})
	if err != nil {
		return reports.InventoryReconciliation{}, err
	}
	tb, err := reports.BuildTrialBalance(b.chart, snap.entries, reports.TrialBalanceFilter{})
	if err != nil {
		return reports.InventoryReconciliation{}, err
	}
	return reports.BuildBalanceSheet(tb, physicalValuation(snap, time.Time{}), time.Time{}).Inventory, nil
}
