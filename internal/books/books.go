package books

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/integration"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
	"github.com/odyssey-erp/odyssey-books/internal/observability"
	"github.com/odyssey-erp/odyssey-books/internal/payroll"
	"github.com/odyssey-erp/odyssey-books/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// ErrUnsupportedReason indicates a movement reason that only a source
// document may produce.
var ErrUnsupportedReason = errors.New("books: movement reason must be adjustment, return or opening")

// Options wires a Books instance. Only Chart and UnitOfWork are required.
type Options struct {
	LedgerID   string
	Chart      *accounting.Chart
	UnitOfWork UnitOfWork
	Locker     *shared.LedgerLocker
	Cache      *cache.Versioned
	Audit      shared.AuditPort
	Metrics    *observability.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Books is one ledger: the journal, the stock it values and the reports
// derived from both. Writes are serialised; reads share a snapshot.
type Books struct {
	mu       sync.RWMutex
	ledgerID string
	chart    *accounting.Chart
	gen      *integration.Generator
	uow      UnitOfWork
	locker   *shared.LedgerLocker
	cache    *cache.Versioned
	audit    shared.AuditPort
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs Books.
func New(opts Options) (*Books, error) {
	if opts.Chart == nil {
		return nil, errors.New("books: chart required")
	}
	if opts.UnitOfWork == nil {
		return nil, errors.New("books: unit of work required")
	}
	if opts.LedgerID == "" {
		opts.LedgerID = "default"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Books{
		ledgerID: opts.LedgerID,
		chart:    opts.Chart,
		gen:      integration.NewGenerator(opts.Chart),
		uow:      opts.UnitOfWork,
		locker:   opts.Locker,
		cache:    opts.Cache,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With(slog.String("ledger", opts.LedgerID)),
		now:      opts.Now,
	}, nil
}

// NewInMemory builds Books over fresh in-process stores.
func NewInMemory(chart *accounting.Chart, audit shared.AuditPort) *Books {
	b, err := New(Options{
		Chart:      chart,
		UnitOfWork: NewMemoryUnitOfWork(accounting.NewMemoryStore(), inventory.NewMemoryStore()),
		Audit:      audit,
	})
	if err != nil {
		panic(err)
	}
	return b
}

// Chart returns the chart of accounts the ledger posts against.
func (b *Books) Chart() *accounting.Chart { return b.chart }

// LedgerID identifies the ledger.
func (b *Books) LedgerID() string { return b.ledgerID }

// Result lists what one write appended.
type Result struct {
	Entries   []accounting.JournalEntry `json:"entries"`
	Movements []inventory.Movement      `json:"movements,omitempty"`
}

func (r *Result) merge(other Result) {
	r.Entries = append(r.Entries, other.Entries...)
	r.Movements = append(r.Movements, other.Movements...)
}

// RecordSale posts a sales invoice with its cost of sale.
func (b *Books) RecordSale(ctx context.Context, sale integration.Sale) (Result, error) {
	posting, err := b.gen.GenerateSaleEntry(sale)
	if err != nil {
		return Result{}, b.reject("record_sale", err)
	}
	return b.recordDocument(ctx, "record_sale", posting)
}

// RecordPurchase posts a supplier bill and receives its stock.
func (b *Books) RecordPurchase(ctx context.Context, purchase integration.Purchase) (Result, error) {
	posting, err := b.gen.GeneratePurchaseEntry(purchase)
	if err != nil {
		return Result{}, b.reject("record_purchase", err)
	}
	return b.recordDocument(ctx, "record_purchase", posting)
}

func (b *Books) recordDocument(ctx context.Context, op string, posting integration.Posting) (Result, error) {
	var res Result
	err := b.write(ctx, op, func(ctx context.Context, tx Tx) error {
		if err := b.ensureNewDocument(ctx, tx, posting.Entry); err != nil {
			return err
		}
		out, err := b.applyPosting(ctx, tx, posting)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	b.recordPosted(ctx, op, res)
	return res, nil
}

// RecordInventoryMovement applies a stock adjustment, return or opening
// balance and books its value.
func (b *Books) RecordInventoryMovement(ctx context.Context, req inventory.MovementRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, b.reject("record_movement", err)
	}
	switch req.Reason {
	case inventory.ReasonAdjustment, inventory.ReasonReturn, inventory.ReasonOpening:
	default:
		return Result{}, b.reject("record_movement", fmt.Errorf("%w: got %q", ErrUnsupportedReason, req.Reason))
	}
	var res Result
	err := b.write(ctx, "record_movement", func(ctx context.Context, tx Tx) error {
		out, err := b.applyValued(ctx, tx, req)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	b.recordPosted(ctx, "record_movement", res)
	return res, nil
}

// RecordPayment settles an open credit sale or purchase.
func (b *Books) RecordPayment(ctx context.Context, payment integration.Payment) (accounting.JournalEntry, error) {
	if payment.DocumentID == uuid.Nil {
		return accounting.JournalEntry{}, b.reject("record_payment", &accounting.PostingError{Op: "payment", Err: accounting.ErrDocumentNotFound})
	}
	var entry accounting.JournalEntry
	err := b.write(ctx, "record_payment", func(ctx context.Context, tx Tx) error {
		related, err := tx.Journal.ListByDocument(ctx, payment.DocumentID)
		if err != nil {
			return err
		}
		in, err := b.gen.GeneratePaymentEntry(payment, related)
		if err != nil {
			return err
		}
		entry, err = b.post(ctx, tx, in, uuid.Nil)
		return err
	})
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	b.recordPosted(ctx, "record_payment", Result{Entries: []accounting.JournalEntry{entry}})
	return entry, nil
}

// VoidEntry reverses an entry together with the cost entries and stock of
// its document. A zero date reverses on the original's date.
func (b *Books) VoidEntry(ctx context.Context, id uuid.UUID, date time.Time) (Result, error) {
	var (
		res       Result
		originals []accounting.JournalEntry
	)
	err := b.write(ctx, "void_entry", func(ctx context.Context, tx Tx) error {
		original, err := tx.Journal.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		var (
			related []accounting.JournalEntry
			filter  = inventory.MovementFilter{EntryID: &original.ID}
		)
		if original.OriginDocumentID != nil {
			if related, err = tx.Journal.ListByDocument(ctx, *original.OriginDocumentID); err != nil {
				return err
			}
			filter = inventory.MovementFilter{DocumentID: original.OriginDocumentID}
		}
		movements, err := tx.Inventory.ListMovements(ctx, filter)
		if err != nil {
			return err
		}
		postings, err := b.gen.GenerateVoidReversalEntries(original, related, movements, date)
		if err != nil {
			return err
		}
		for _, vp := range postings {
			mirrorID := uuid.New()
			for _, req := range vp.Movements {
				req.EntryID = &mirrorID
				_, mv, err := inventory.ApplyMovement(ctx, tx.Inventory, req, b.now())
				if err != nil {
					return err
				}
				res.Movements = append(res.Movements, mv)
			}
			mirror, err := b.post(ctx, tx, vp.Entry, mirrorID)
			if err != nil {
				return err
			}
			if err := tx.Journal.MarkVoided(ctx, vp.Original.ID, mirror.ID); err != nil {
				return err
			}
			res.Entries = append(res.Entries, mirror)
			originals = append(originals, vp.Original)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	for i, original := range originals {
		b.metrics.RecordVoid(string(original.Origin))
		b.metrics.RecordPosting(string(accounting.OriginVoidReversal))
		b.record(ctx, "journal.void", original.ID.String(), map[string]any{
			"reference": original.Reference(),
			"origin":    string(original.Origin),
			"voided_by": res.Entries[i].ID.String(),
		})
	}
	return res, nil
}

// PostManualEntry posts a user journal.
func (b *Books) PostManualEntry(ctx context.Context, manual integration.ManualEntry) (accounting.JournalEntry, error) {
	in, err := b.gen.GenerateManualEntry(manual)
	if err != nil {
		return accounting.JournalEntry{}, b.reject("post_manual", err)
	}
	var entry accounting.JournalEntry
	err = b.write(ctx, "post_manual", func(ctx context.Context, tx Tx) error {
		entry, err = b.post(ctx, tx, in, uuid.Nil)
		return err
	})
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	b.recordPosted(ctx, "post_manual", Result{Entries: []accounting.JournalEntry{entry}})
	return entry, nil
}

// PostPayroll evaluates a payroll run and posts it once per period.
func (b *Books) PostPayroll(ctx context.Context, run payroll.Run) (accounting.JournalEntry, payroll.Summary, error) {
	in, summary, err := b.gen.GeneratePayrollEntry(run)
	if err != nil {
		return accounting.JournalEntry{}, payroll.Summary{}, b.reject("post_payroll", err)
	}
	var entry accounting.JournalEntry
	err = b.write(ctx, "post_payroll", func(ctx context.Context, tx Tx) error {
		if err := b.ensureNewDocument(ctx, tx, in); err != nil {
			return err
		}
		entry, err = b.post(ctx, tx, in, uuid.Nil)
		return err
	})
	if err != nil {
		return accounting.JournalEntry{}, payroll.Summary{}, err
	}
	b.recordPosted(ctx, "post_payroll", Result{Entries: []accounting.JournalEntry{entry}})
	return entry, summary, nil
}

// CreateItem registers a stock item. Opening stock is booked against equity.
func (b *Books) CreateItem(ctx context.Context, input inventory.CreateItemInput) (inventory.Item, Result, error) {
	item, opening, err := inventory.NewItem(input, b.now())
	if err != nil {
		return inventory.Item{}, Result{}, b.reject("create_item", err)
	}
	var res Result
	err = b.write(ctx, "create_item", func(ctx context.Context, tx Tx) error {
		if err := tx.Inventory.InsertItem(ctx, item); err != nil {
			return err
		}
		if opening == nil {
			return nil
		}
		out, err := b.applyValued(ctx, tx, *opening)
		if err != nil {
			return err
		}
		res = out
		if n := len(out.Movements); n > 0 {
			item.QuantityOnHand = out.Movements[n-1].StockAfter
			item.AverageUnitCost = out.Movements[n-1].AvgCostAfter
		}
		return nil
	})
	if err != nil {
		return inventory.Item{}, Result{}, err
	}
	b.record(ctx, "inventory.item_created", item.ID.String(), map[string]any{"code": item.Code})
	b.recordPosted(ctx, "create_item", res)
	return item, res, nil
}

// write runs fn as one unit of work under the writer locks and invalidates
// cached reports when it commits.
func (b *Books) write(ctx context.Context, op string, fn func(context.Context, Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	release, err := b.locker.Obtain(ctx, b.ledgerID)
	if err != nil {
		return b.reject(op, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			b.logger.Warn("ledger lock release failed", slog.String("op", op), slog.Any("error", err))
		}
	}()

	if err := b.uow.WithTx(ctx, fn); err != nil {
		return b.reject(op, err)
	}
	if err := b.cache.Bump(ctx); err != nil {
		b.logger.Warn("report cache bump failed", slog.String("op", op), slog.Any("error", err))
	}
	return nil
}

// ensureNewDocument rejects a second recording of the same document.
func (b *Books) ensureNewDocument(ctx context.Context, tx Tx, in accounting.PostingInput) error {
	if in.OriginDocumentID == nil {
		return nil
	}
	existing, err := tx.Journal.ListByDocument(ctx, *in.OriginDocumentID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Origin == in.Origin {
			return &accounting.PostingError{Op: "record", EntryID: e.ID, Reference: e.Reference(), Err: accounting.ErrDuplicateDocument}
		}
	}
	return nil
}

// applyPosting appends the document entry and applies its movements.
// Linked movements point at the document entry; the others each get their
// own cost entry.
func (b *Books) applyPosting(ctx context.Context, tx Tx, posting integration.Posting) (Result, error) {
	entry, err := b.post(ctx, tx, posting.Entry, uuid.Nil)
	if err != nil {
		return Result{}, err
	}
	res := Result{Entries: []accounting.JournalEntry{entry}}
	for _, req := range posting.Movements {
		if posting.Linked {
			req.EntryID = &entry.ID
			_, mv, err := inventory.ApplyMovement(ctx, tx.Inventory, req, b.now())
			if err != nil {
				return Result{}, err
			}
			res.Movements = append(res.Movements, mv)
			continue
		}
		out, err := b.applyValued(ctx, tx, req)
		if err != nil {
			return Result{}, err
		}
		res.merge(out)
	}
	return res, nil
}

// applyValued applies one movement and posts the entry carrying its value.
// The entry id is reserved up front so the movement can point at it.
func (b *Books) applyValued(ctx context.Context, tx Tx, req inventory.MovementRequest) (Result, error) {
	item, err := tx.Inventory.GetItemForUpdate(ctx, req.ItemID)
	if err != nil {
		return Result{}, err
	}
	_, preview, err := inventory.Value(item, req)
	if err != nil {
		return Result{}, err
	}
	var entryID uuid.UUID
	if accounting.RoundMoney(preview.Value).IsPositive() {
		entryID = uuid.New()
		req.EntryID = &entryID
	}
	_, mv, err := inventory.ApplyMovement(ctx, tx.Inventory, req, b.now())
	if err != nil {
		return Result{}, err
	}
	res := Result{Movements: []inventory.Movement{mv}}
	in, ok, err := b.gen.GenerateInventoryMovementEntry(mv)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return res, nil
	}
	entry, err := b.post(ctx, tx, in, entryID)
	if err != nil {
		return Result{}, err
	}
	res.Entries = append(res.Entries, entry)
	return res, nil
}

// post builds, seals and appends one entry. A non-nil id replaces the
// generated one.
func (b *Books) post(ctx context.Context, tx Tx, in accounting.PostingInput, id uuid.UUID) (accounting.JournalEntry, error) {
	draft, err := accounting.BuildEntry(b.chart, in)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	if id != uuid.Nil {
		draft.ID = id
	}
	return accounting.Append(ctx, tx.Journal, draft, b.now())
}

func (b *Books) reject(op string, err error) error {
	kind := ErrorKind(err)
	b.metrics.RecordRejected(op, kind)
	b.logger.Info("write rejected", slog.String("op", op), slog.String("kind", kind), slog.Any("error", err))
	return err
}

func (b *Books) recordPosted(ctx context.Context, op string, res Result) {
	for _, e := range res.Entries {
		b.metrics.RecordPosting(string(e.Origin))
		b.record(ctx, "journal.post", e.ID.String(), map[string]any{
			"op":        op,
			"sequence":  e.Sequence,
			"reference": e.Reference(),
			"origin":    string(e.Origin),
			"total":     e.TotalDebit.StringFixed(2),
		})
	}
}

func (b *Books) record(ctx context.Context, action, entityID string, meta map[string]any) {
	if b.audit == nil {
		return
	}
	entity := "journal_entry"
	if action == "inventory.item_created" {
		entity = "inventory_item"
	}
	if err := b.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       b.now(),
	}); err != nil {
		b.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// ErrorKind names the sentinel behind err for metrics and logs.
func ErrorKind(err error) string {
	kinds := []struct {
		target error
		name   string
	}{
		{accounting.ErrStructuralImbalance, "structural_imbalance"},
		{accounting.ErrTooFewLines, "too_few_lines"},
		{accounting.ErrInvalidLine, "invalid_line"},
		{accounting.ErrAmountMismatch, "amount_mismatch"},
		{accounting.ErrAccountNotFound, "account_not_found"},
		{accounting.ErrReportingInconsistency, "reporting_inconsistency"},
		{accounting.ErrEntryNotFound, "entry_not_found"},
		{accounting.ErrAlreadyVoided, "already_voided"},
		{accounting.ErrInvalidStatus, "invalid_status"},
		{accounting.ErrDocumentNotFound, "document_not_found"},
		{accounting.ErrDocumentSettled, "document_settled"},
		{accounting.ErrDuplicateDocument, "duplicate_document"},
		{accounting.ErrSequenceConflict, "sequence_conflict"},
		{inventory.ErrInsufficientStock, "insufficient_stock"},
		{inventory.ErrItemNotFound, "item_not_found"},
		{inventory.ErrDuplicateItem, "duplicate_item"},
		{inventory.ErrInvalidQuantity, "invalid_quantity"},
		{inventory.ErrInvalidUnitCost, "invalid_unit_cost"},
		{inventory.ErrValuationExceedsCarrying, "valuation_exceeds_carrying"},
		{payroll.ErrInvalidFormula, "invalid_formula"},
		{shared.ErrLedgerBusy, "ledger_busy"},
		{ErrUnsupportedReason, "unsupported_reason"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.name
		}
	}
	return "other"
}
