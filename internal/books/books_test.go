package books

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-books/internal/integration"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
	"github.com/odyssey-erp/odyssey-books/internal/observability"
	"github.com/odyssey-erp/odyssey-books/internal/payroll"
	"github.com/odyssey-erp/odyssey-books/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func ptr[T any](v T) *T { return &v }

var (
	opening = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	saleDay = time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
)

func newBooks(t *testing.T, mutate func(*Options)) (*Books, *shared.MemoryAuditLog) {
	t.Helper()
	audit := shared.NewMemoryAuditLog()
	opts := Options{
		Chart:      accounting.DefaultChart(),
		UnitOfWork: NewMemoryUnitOfWork(accounting.NewMemoryStore(), inventory.NewMemoryStore()),
		Audit:      audit,
		Now:        func() time.Time { return opening },
	}
	if mutate != nil {
		mutate(&opts)
	}
	b, err := New(opts)
	require.NoError(t, err)
	return b, audit
}

// stockedItem registers an item with opening stock at cost.
func stockedItem(t *testing.T, b *Books, code, qty, cost string) inventory.Item {
	t.Helper()
	item, res, err := b.CreateItem(context.Background(), inventory.CreateItemInput{
		Code:            code,
		Name:            "Item " + code,
		OpeningQuantity: dec(qty),
		OpeningUnitCost: dec(cost),
	})
	require.NoError(t, err)
	if dec(qty).IsPositive() {
		require.Len(t, res.Movements, 1)
	}
	return item
}

func cashSale(number string, item uuid.UUID, qty, price string) integration.Sale {
	return integration.Sale{
		Number:  number,
		Date:    saleDay,
		Terms:   integration.TermsCash,
		Lines:   []integration.SaleLine{{ItemID: &item, Quantity: dec(qty), UnitPrice: dec(price)}},
		VATRate: ptr(dec("0.13")),
	}
}

func itemByID(t *testing.T, b *Books, id uuid.UUID) inventory.Item {
	t.Helper()
	items, err := b.ListItems(context.Background())
	require.NoError(t, err)
	for _, it := range items {
		if it.ID == id {
			return it
		}
	}
	t.Fatalf("item %s not listed", id)
	return inventory.Item{}
}

func lineOf(t *testing.T, e accounting.JournalEntry, code string) accounting.JournalLine {
	t.Helper()
	for _, l := range e.Lines {
		if l.AccountCode == code {
			return l
		}
	}
	t.Fatalf("entry %s has no line for %s", e.Reference(), code)
	return accounting.JournalLine{}
}

func TestCreateItemBooksOpeningStockAgainstCapital(t *testing.T) {
	b, audit := newBooks(t, nil)
	item, res, err := b.CreateItem(context.Background(), inventory.CreateItemInput{
		Code: "W-1", Name: "Widget", OpeningQuantity: dec("20"), OpeningUnitCost: dec("50"),
	})
	require.NoError(t, err)
	require.Equal(t, "20", item.QuantityOnHand.String())
	require.Equal(t, "50", item.AverageUnitCost.String())
	require.Len(t, res.Entries, 1)
	require.Equal(t, "1000.00", lineOf(t, res.Entries[0], "1301").Debit.StringFixed(2))
	require.Equal(t, "1000.00", lineOf(t, res.Entries[0], "3101").Credit.StringFixed(2))
	require.Equal(t, *res.Movements[0].EntryID, res.Entries[0].ID)

	_, _, err = b.CreateItem(context.Background(), inventory.CreateItemInput{Code: "W-1", Name: "Again"})
	require.ErrorIs(t, err, inventory.ErrDuplicateItem)

	actions := map[string]int{}
	for _, l := range audit.Entries() {
		actions[l.Action]++
	}
	require.Equal(t, 1, actions["inventory.item_created"])
	require.Equal(t, 1, actions["journal.post"])
}

func TestRecordSalePostsRevenueAndCost(t *testing.T) {
	ctx := context.Background()
	b, _ := newBooks(t, nil)
	item := stockedItem(t, b, "W-1", "20", "50")

	res, err := b.RecordSale(ctx, cashSale("S-1", item.ID, "10", "150"))
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	sale, cost := res.Entries[0], res.Entries[1]
	require.Equal(t, accounting.OriginSale, sale.Origin)
	require.Equal(t, "1695.00", lineOf(t, sale, "1101").Debit.StringFixed(2))
	require.Equal(t, "1500.00", lineOf(t, sale, "4101").Credit.StringFixed(2))
	require.Equal(t, "195.00", lineOf(t, sale, "2201").Credit.StringFixed(2))
	require.Equal(t, accounting.OriginInventory, cost.Origin)
	require.Equal(t, "500.00", lineOf(t, cost, "5101").Debit.StringFixed(2))
	require.Equal(t, "500.00", lineOf(t, cost, "1301").Credit.StringFixed(2))
	require.Equal(t, *sale.OriginDocumentID, *cost.OriginDocumentID)

	require.Len(t, res.Movements, 1)
	require.Equal(t, cost.ID, *res.Movements[0].EntryID)
	require.Equal(t, "10", itemByID(t, b, item.ID).QuantityOnHand.String())

	bs, err := b.GetBalanceSheet(ctx, time.Time{})
	require.NoError(t, err)
	require.True(t, bs.BalancedEquation)
	require.Equal(t, "2195.00", bs.Assets.Total.StringFixed(2))
	require.Equal(t, "1000.00", bs.PeriodResult.StringFixed(2))
	require.True(t, bs.Inventory.Variance.IsZero())
}

func TestRecordSaleRejectsDuplicateDocument(t *testing.T) {
	ctx := context.Background()
	b, _ := newBooks(t, nil)
	item := stockedItem(t, b, "W-1", "20", "50")

	_, err := b.RecordSale(ctx, cashSale("S-1", item.ID, "1", "150"))
	require.NoError(t, err)
	_, err = b.RecordSale(ctx, cashSale("S-1", item.ID, "1", "150"))
	require.ErrorIs(t, err, accounting.ErrDuplicateDocument)
	require.Equal(t, "19", itemByID(t, b, item.ID).QuantityOnHand.String())
}

func TestRecordSaleRollsBackOnInsufficientStock(t *testing.T) {
	ctx := context.Background()
	b, _ := newBooks(t, nil)
	stocked := stockedItem(t, b, "W-1", "5", "50")
	empty := stockedItem(t, b, "W-2", "0", "0")

	before, err := b.ListEntries(ctx, accounting.EntryFilter{})
	require.NoError(t, err)

	sale := cashSale("S-9", stocked.ID, "3", "150")
	sale.Lines = append(sale.Lines, integration.SaleLine{ItemID: &empty.ID, Quantity: dec("1"), UnitPrice: dec("10")})
	_, err = b.RecordSale(ctx, sale)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	var stockErr *inventory.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, empty.ID, stockErr.ItemID)

	after, err := b.ListEntries(ctx, accounting.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, after, len(before))
	require.Equal(t, "5", itemByID(t, b, stocked.ID).QuantityOnHand.String())
	movements, err := b.ListMovements(ctx, inventory.MovementFilter{Reasons: []inventory.Reason{inventory.ReasonSale}})
	require.NoError(t, err)
	require.Empty(t, movements)
}

func TestVoidSaleRestoresStockAndReversesCost(t *testing.T) {
	ctx := context.Background()
	b, _ := newBooks(t, nil)
	item := stockedItem(t, b, "W-1", "20", "50")
	sold, err := b.RecordSale(ctx, cashSale("S-1", item.ID, "10", "150"))
	require.NoError(t, err)

	res, err := b.VoidEntry(ctx, sold.Entries[0].ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	mirror, costMirror := res.Entries[0], res.Entries[1]
	require.Equal(t, accounting.OriginVoidReversal, mirror.Origin)
	require.Equal(t, "1500.00", lineOf(t, mirror, "4101").Debit.StringFixed(2))
	require.Equal(t, "195.00", lineOf(t, mirror, "2201").Debit.StringFixed(2))
	require.Equal(t, "1695.00", lineOf(t, mirror, "1101").Credit.StringFixed(2))
	require.Equal(t, "500.00", lineOf(t, costMirror, "1301").Debit.StringFixed(2))
	require.Equal(t, "500.00", lineOf(t, costMirror, "5101").Credit.StringFixed(2))
	require.True(t, mirror.Date.Equal(saleDay))

	require.Len(t, res.Movements, 1)
	require.Equal(t, inventory.ReasonSaleVoid, res.Movements[0].Reason)
	require.Equal(t, costMirror.ID, *res.Movements[0].EntryID)
	require.Equal(t, "20", itemByID(t, b, item.ID).QuantityOnHand.String())

	original, err := b.GetEntry(ctx, sold.Entries[0].ID)
	require.NoError(t, err)
	require.Equal(t, accounting.EntryStatusVoided, original.Status)
	require.Equal(t, mirror.ID, *original.VoidedBy)

	_, err = b.VoidEntry(ctx, sold.Entries[0].ID, time.Time{})
	require.ErrorIs(t, err, accounting.ErrAlreadyVoided)
	_, err = b.VoidEntry(ctx, mirror.ID, time.Time{})
	require.ErrorIs(t, err, accounting.ErrInvalidStatus)
	_, err = b.VoidEntry(ctx, uuid.New(), time.Time{})
	require.ErrorIs(t, err, accounting.ErrEntryNotFound)

	tb, err := b.GetTrialBalance(ctx, reports.TrialBalanceFilter{})
	require.NoError(t, err)
	cash, ok := tb.Row("1101")
	require.True(t, ok)
	require.True(t, cash.Net().IsZero())
}

func TestPurchasePaymentAndVat(t *testing.T) {
	ctx := context.Background()
	b, _ := newBooks(t, nil)
	item := stockedItem(t, b, "W-1", "0", "0")

	bought, err := b.RecordPurchase(ctx, integration.Purchase{
		Number:  "P-1",
		Date:    saleDay,
		Terms:   integration.TermsCredit,
		Lines:   []integration.PurchaseLine{{ItemID: &item.ID, Quantity: dec("20"), UnitCost: dec("25")}},
		VATRate: ptr(dec("0.13")),
	})
	require.NoError(t, err)
	require.Len(t, bought.Entries, 1)
	purchase := bought.Entries[0]
	require.Equal(t, "500.00", lineOf(t, purchase, "1301").Debit.StringFixed(2))
	require.Equal(t, "65.00", lineOf(t, purchase, "1401").Debit.StringFixed(2))
	require.Equal(t, "565.00", lineOf(t, purchase, "2101").Credit.StringFixed(2))
	require.Equal(t, purchase.ID, *bought.Movements[0].EntryID)
	require.Equal(t, "25", itemByID(t, b, item.ID).AverageUnitCost.String())

	_, err = b.RecordSale(ctx, integration.Sale{
		Number:  "S-1",
		Date:    saleDay,
		Terms:   integration.TermsCash,
		Lines:   []integration.SaleLine{{Description: "Service", Quantity: dec("10"), UnitPrice: dec("150")}},
		VATRate: ptr(dec("0.13")),
	})
	require.NoError(t, err)

	vat, err := b.GetVatDeclaration(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "195.00", vat.OutputTax.StringFixed(2))
	require.Equal(t, "65.00", vat.InputTax.StringFixed(2))
	require.Equal(t, "130.00", vat.Net.StringFixed(2))
	require.Equal(t, reports.VatPayable, vat.Position)

	_, err = b.RecordPayment(ctx, integration.Payment{DocumentID: *purchase.OriginDocumentID, Date: saleDay, Amount: dec("500"), Method: integration.MethodBank})
	require.ErrorIs(t, err, accounting.ErrAmountMismatch)

	paid, err := b.RecordPayment(ctx, integration.Payment{DocumentID: *purchase.OriginDocumentID, Date: saleDay, Method: integration.MethodBank})
	require.NoError(t, err)
	require.Equal(t, "565.00", lineOf(t, paid, "2101").Debit.StringFixed(2))
	require.Equal(t, "565.00", lineOf(t, paid, "1102").Credit.StringFixed(2))

	_, err = b.RecordPayment(ctx, integration.Payment{DocumentID: *purchase.OriginDocumentID, Date: saleDay})
	require.ErrorIs(t, err, accounting.ErrDocumentSettled)
	_, err = b.VoidEntry(ctx, purchase.ID, time.Time{})
	require.ErrorIs(t, err, accounting.ErrDocumentSettled)
	_, err = b.RecordPayment(ctx, integration.Payment{DocumentID: uuid.New(), Date: saleDay})
	require.ErrorIs(t, err, accounting.ErrDocumentNotFound)
}

func TestRecordInventoryMovementReasons(t *testing.T) {
	ctx := context.Background()
	b, _ := newBooks(t, nil)
	item := stockedItem(t, b, "W-1", "10", "40")

	res, err := b.RecordInventoryMovement(ctx, inventory.MovementRequest{
		ItemID: item.ID, Type: inventory.MovementOut, Quantity: dec("2"), Reason: inventory.ReasonAdjustment, Date: saleDay,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, "80.00", lineOf(t, res.Entries[0], "5201").Debit.StringFixed(2))

	_, err = b.RecordInventoryMovement(ctx, inventory.MovementRequest{
		ItemID: item.ID, Type: inventory.MovementOut, Quantity: dec("1"), Reason: inventory.ReasonSale, Date: saleDay,
	})
	require.ErrorIs(t, err, ErrUnsupportedReason)

	_, err = b.RecordInventoryMovement(ctx, inventory.MovementRequest{
		ItemID: item.ID, Type: inventory.MovementOut, Quantity: dec("9"), Reason: inventory.ReasonAdjustment, Date: saleDay,
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, "8", itemByID(t, b, item.ID).QuantityOnHand.String())

	rec, err := b.ReconcileInventory(ctx)
	require.NoError(t, err)
	require.Equal(t, "320.00", rec.Ledger.StringFixed(2))
	require.True(t, rec.Variance.IsZero())
}

func TestPostManualEntryAndPayroll(t *testing.T) {
	ctx := context.Background()
	b, _ := newBooks(t, nil)

	capital, err := b.PostManualEntry(ctx, integration.ManualEntry{
		Date:        opening,
		Description: "Owner contribution",
		Lines: []accounting.PostingLineInput{
			{AccountCode: "1102", Debit: dec("10000")},
			{AccountCode: "3101", Credit: dec("10000")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), capital.Sequence)

	_, err = b.PostManualEntry(ctx, integration.ManualEntry{
		Date:        opening,
		Description: "Broken",
		Lines: []accounting.PostingLineInput{
			{AccountCode: "1102", Debit: dec("10")},
			{AccountCode: "3101", Credit: dec("9")},
		},
	})
	require.ErrorIs(t, err, accounting.ErrStructuralImbalance)

	run := payroll.Run{
		Period: "2025-04",
		Date:   time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC),
		Concepts: []payroll.Concept{
			{Code: "base", Kind: payroll.ConceptEarning, Formula: payroll.Percentage(dec("1"), payroll.BaseSalary)},
			{Code: "pension", Kind: payroll.ConceptDeduction, Formula: payroll.Percentage(dec("0.10"), payroll.BaseGross)},
			{Code: "social", Kind: payroll.ConceptEmployerContribution, Formula: payroll.Percentage(dec("0.20"), "base")},
		},
		Employees: []payroll.Employee{{ID: "E1", BaseSalary: dec("1000")}},
	}
	entry, summary, err := b.PostPayroll(ctx, run)
	require.NoError(t, err)
	require.Equal(t, "900.00", summary.Net.StringFixed(2))
	require.Equal(t, "1000.00", lineOf(t, entry, "6101").Debit.StringFixed(2))
	require.Equal(t, "200.00", lineOf(t, entry, "6102").Debit.StringFixed(2))
	require.Equal(t, "300.00", lineOf(t, entry, "2302").Credit.StringFixed(2))
	require.Equal(t, "900.00", lineOf(t, entry, "2301").Credit.StringFixed(2))

	_, _, err = b.PostPayroll(ctx, run)
	require.ErrorIs(t, err, accounting.ErrDuplicateDocument)

	pl, err := b.GetIncomeStatement(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "-1200.00", pl.NetIncome.StringFixed(2))
}

func TestFinancialPackAndIntegrity(t *testing.T) {
	ctx := context.Background()
	b, _ := newBooks(t, nil)
	item := stockedItem(t, b, "W-1", "20", "50")
	_, err := b.RecordSale(ctx, cashSale("S-1", item.ID, "10", "150"))
	require.NoError(t, err)

	pack, err := b.GetFinancialPack(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.True(t, pack.TrialBalance.TotalSumDebit.Equal(pack.TrialBalance.TotalSumCredit))
	require.True(t, pack.BalanceSheet.BalancedEquation)
	require.Equal(t, "1000.00", pack.IncomeStatement.NetIncome.StringFixed(2))
	require.Equal(t, "500.00", pack.IncomeStatement.COGS.StringFixed(2))
	require.Equal(t, "195.00", pack.Vat.OutputTax.StringFixed(2))

	report, err := b.VerifyIntegrity(ctx)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, 3, report.Entries)
	require.Equal(t, int64(3), report.LastSequence)

	views, err := b.GetLedgerView(ctx, reports.LedgerOptions{AccountCode: "1301"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, "500.00", views[0].Balance.StringFixed(2))
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestReportCacheInvalidatedByWrites(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	b, _ := newBooks(t, func(o *Options) {
		o.Cache = cache.NewVersioned(client, "books", time.Minute)
		o.Locker = shared.NewLedgerLocker(client, time.Second, 0)
	})
	item := stockedItem(t, b, "W-1", "20", "50")

	first, err := b.GetTrialBalance(ctx, reports.TrialBalanceFilter{})
	require.NoError(t, err)
	require.Equal(t, "1000.00", first.TotalSumDebit.StringFixed(2))
	keys := mr.Keys()
	require.Contains(t, keys, "books:default:tb:-:-:::v1")

	_, err = b.RecordSale(ctx, cashSale("S-1", item.ID, "10", "150"))
	require.NoError(t, err)
	second, err := b.GetTrialBalance(ctx, reports.TrialBalanceFilter{})
	require.NoError(t, err)
	require.Equal(t, "3195.00", second.TotalSumDebit.StringFixed(2))
	require.True(t, mr.Exists("books:default:tb:-:-:::v2"))
	require.False(t, mr.Exists(shared.LedgerLockKey("default")))
}

func TestWriteRejectedWhileLedgerLocked(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	metrics := observability.NewMetrics()
	b, _ := newBooks(t, func(o *Options) {
		o.Locker = shared.NewLedgerLocker(client, time.Second, 0)
		o.Metrics = metrics
	})

	lock, err := redislock.New(client).Obtain(ctx, shared.LedgerLockKey("default"), time.Minute, nil)
	require.NoError(t, err)
	_, err = b.PostManualEntry(ctx, integration.ManualEntry{
		Date:        opening,
		Description: "Blocked",
		Lines: []accounting.PostingLineInput{
			{AccountCode: "1101", Debit: dec("1")},
			{AccountCode: "3101", Credit: dec("1")},
		},
	})
	require.ErrorIs(t, err, shared.ErrLedgerBusy)
	require.Equal(t, "ledger_busy", ErrorKind(err))
	require.NoError(t, lock.Release(ctx))

	entries, err := b.ListEntries(ctx, accounting.EntryFilter{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGeneratedPostingsKeepBalanceSheetBalanced(t *testing.T) {
	ctx := context.Background()
	b, _ := newBooks(t, nil)
	item := stockedItem(t, b, "W-1", "20", "50")

	balanced := func(step, inventoryValue string) {
		t.Helper()
		bs, err := b.GetBalanceSheet(ctx, time.Time{})
		require.NoError(t, err, step)
		require.True(t, bs.BalancedEquation, step)
		require.Equal(t, inventoryValue, bs.Inventory.Ledger.StringFixed(2), step)
		require.True(t, bs.Inventory.Variance.IsZero(), step)
	}
	balanced("opening", "1000.00")

	bought, err := b.RecordPurchase(ctx, integration.Purchase{
		Number:  "P-1",
		Date:    saleDay,
		Terms:   integration.TermsCredit,
		Lines:   []integration.PurchaseLine{{ItemID: &item.ID, Quantity: dec("20"), UnitCost: dec("25")}},
		VATRate: ptr(dec("0.13")),
	})
	require.NoError(t, err)
	balanced("purchase", "1500.00")

	sold, err := b.RecordSale(ctx, cashSale("S-1", item.ID, "10", "150"))
	require.NoError(t, err)
	balanced("sale", "1125.00")

	_, err = b.RecordInventoryMovement(ctx, inventory.MovementRequest{
		ItemID: item.ID, Type: inventory.MovementOut, Quantity: dec("2"), Reason: inventory.ReasonAdjustment, Date: saleDay,
	})
	require.NoError(t, err)
	balanced("adjustment", "1050.00")

	_, err = b.RecordPayment(ctx, integration.Payment{DocumentID: *bought.Entries[0].OriginDocumentID, Date: saleDay, Method: integration.MethodBank})
	require.NoError(t, err)
	balanced("payment", "1050.00")

	_, err = b.VoidEntry(ctx, sold.Entries[0].ID, time.Time{})
	require.NoError(t, err)
	balanced("void", "1425.00")
}

func TestReportsHaveNoSideEffects(t *testing.T) {
	ctx := context.Background()
	b, audit := newBooks(t, nil)
	item := stockedItem(t, b, "W-1", "20", "50")
	_, err := b.RecordSale(ctx, cashSale("S-1", item.ID, "10", "150"))
	require.NoError(t, err)

	entries, err := b.ListEntries(ctx, accounting.EntryFilter{})
	require.NoError(t, err)
	items, err := b.ListItems(ctx)
	require.NoError(t, err)
	audited := len(audit.Entries())

	run := func() (reports.TrialBalance, reports.BalanceSheet, reports.IncomeStatement, reports.VatDeclaration) {
		tb, err := b.GetTrialBalance(ctx, reports.TrialBalanceFilter{})
		require.NoError(t, err)
		bs, err := b.GetBalanceSheet(ctx, time.Time{})
		require.NoError(t, err)
		pl, err := b.GetIncomeStatement(ctx, time.Time{}, time.Time{})
		require.NoError(t, err)
		vat, err := b.GetVatDeclaration(ctx, time.Time{}, time.Time{})
		require.NoError(t, err)
		_, err = b.GetLedgerView(ctx, reports.LedgerOptions{IncludeVoided: true})
		require.NoError(t, err)
		_, err = b.VerifyIntegrity(ctx)
		require.NoError(t, err)
		return tb, bs, pl, vat
	}
	tb1, bs1, pl1, vat1 := run()
	tb2, bs2, pl2, vat2 := run()
	require.Equal(t, tb1, tb2)
	require.Equal(t, bs1, bs2)
	require.Equal(t, pl1, pl2)
	require.Equal(t, vat1, vat2)

	after, err := b.ListEntries(ctx, accounting.EntryFilter{})
	require.NoError(t, err)
	require.Equal(t, entries, after)
	itemsAfter, err := b.ListItems(ctx)
	require.NoError(t, err)
	require.Equal(t, items, itemsAfter)
	require.Len(t, audit.Entries(), audited)
}

func TestBalanceSheetValuesStockAfterBackdatedVoid(t *testing.T) {
	ctx := context.Background()
	b, _ := newBooks(t, nil)
	item := stockedItem(t, b, "W-1", "20", "50")

	first, err := b.RecordSale(ctx, cashSale("S-1", item.ID, "10", "150"))
	require.NoError(t, err)
	later := cashSale("S-2", item.ID, "5", "150")
	later.Date = saleDay.AddDate(0, 0, 10)
	_, err = b.RecordSale(ctx, later)
	require.NoError(t, err)
	_, err = b.VoidEntry(ctx, first.Entries[0].ID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "15", itemByID(t, b, item.ID).QuantityOnHand.String())

	rec, err := b.ReconcileInventory(ctx)
	require.NoError(t, err)
	require.Equal(t, "750.00", rec.Physical.StringFixed(2))
	require.True(t, rec.Variance.IsZero())

	bs, err := b.GetBalanceSheet(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "750.00", bs.Inventory.Ledger.StringFixed(2))
	require.Equal(t, "750.00", bs.Inventory.Physical.StringFixed(2))
	require.True(t, bs.Inventory.Variance.IsZero())

	end, err := b.GetBalanceSheet(ctx, later.Date)
	require.NoError(t, err)
	require.Equal(t, bs.Inventory, end.Inventory)
}

func TestReportCacheKeysKeepTimeOfDay(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	b, _ := newBooks(t, func(o *Options) {
		o.Cache = cache.NewVersioned(client, "books", time.Minute)
	})
	noon := saleDay.Add(12 * time.Hour)
	_, err := b.PostManualEntry(ctx, integration.ManualEntry{
		Date:        noon,
		Description: "Midday capital",
		Lines: []accounting.PostingLineInput{
			{AccountCode: "1102", Debit: dec("100")},
			{AccountCode: "3101", Credit: dec("100")},
		},
	})
	require.NoError(t, err)

	morning, err := b.GetTrialBalance(ctx, reports.TrialBalanceFilter{To: saleDay.Add(9 * time.Hour)})
	require.NoError(t, err)
	require.Empty(t, morning.Rows)

	evening, err := b.GetTrialBalance(ctx, reports.TrialBalanceFilter{To: saleDay.Add(23 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, "100.00", evening.TotalSumDebit.StringFixed(2))
	require.Len(t, evening.Rows, 2)
}
