package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
	"github.com/odyssey-erp/odyssey-books/internal/payroll"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func rate(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

var day = time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

func lineFor(t *testing.T, in accounting.PostingInput, code string) accounting.PostingLineInput {
	t.Helper()
	for _, l := range in.Lines {
		if l.AccountCode == code {
			return l
		}
	}
	t.Fatalf("no line for account %s", code)
	return accounting.PostingLineInput{}
}

func TestGenerateSaleEntryCashWithVAT(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	item := uuid.New()
	posting, err := gen.GenerateSaleEntry(Sale{
		Number:  "S-1",
		Date:    day,
		Terms:   TermsCash,
		Lines:   []SaleLine{{ItemID: &item, Quantity: dec("10"), UnitPrice: dec("150")}},
		VATRate: rate("0.13"),
	})
	require.NoError(t, err)
	require.Equal(t, accounting.OriginSale, posting.Entry.Origin)
	require.Equal(t, "1695.00", lineFor(t, posting.Entry, "1101").Debit.StringFixed(2))
	require.Equal(t, "1500.00", lineFor(t, posting.Entry, "4101").Credit.StringFixed(2))
	require.Equal(t, "195.00", lineFor(t, posting.Entry, "2201").Credit.StringFixed(2))
	require.False(t, posting.Linked)
	require.Len(t, posting.Movements, 1)
	require.Equal(t, inventory.MovementOut, posting.Movements[0].Type)
	require.Equal(t, *posting.Entry.OriginDocumentID, *posting.Movements[0].DocumentID)

	entry, err := accounting.BuildEntry(accounting.DefaultChart(), posting.Entry)
	require.NoError(t, err)
	require.True(t, entry.TotalDebit.Equal(dec("1695")))
}

func TestGenerateSaleEntryCreditWithoutTaxOmitsVATLine(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	posting, err := gen.GenerateSaleEntry(Sale{
		Number: "S-2",
		Date:   day,
		Terms:  TermsCredit,
		Lines:  []SaleLine{{Description: "Consulting", Quantity: dec("2"), UnitPrice: dec("80")}},
	})
	require.NoError(t, err)
	require.Len(t, posting.Entry.Lines, 2)
	require.Equal(t, "160.00", lineFor(t, posting.Entry, "1201").Debit.StringFixed(2))
	require.Empty(t, posting.Movements)
}

func TestGenerateSaleEntryAmountMismatch(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	base := Sale{Number: "S-3", Date: day, Lines: []SaleLine{{Quantity: dec("10"), UnitPrice: dec("150")}}}

	wrongSubtotal := base
	wrongSubtotal.Subtotal = dec("1400")
	_, err := gen.GenerateSaleEntry(wrongSubtotal)
	require.ErrorIs(t, err, accounting.ErrAmountMismatch)

	wrongTax := base
	wrongTax.VATRate = rate("0.13")
	wrongTax.Tax = dec("190")
	_, err = gen.GenerateSaleEntry(wrongTax)
	require.ErrorIs(t, err, accounting.ErrAmountMismatch)

	wrongTotal := base
	wrongTotal.Tax = dec("195")
	wrongTotal.Total = dec("1700")
	_, err = gen.GenerateSaleEntry(wrongTotal)
	require.ErrorIs(t, err, accounting.ErrAmountMismatch)
	require.Contains(t, err.Error(), "ref=S-3")
}

func TestGeneratePurchaseEntryScenario(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	item := uuid.New()
	posting, err := gen.GeneratePurchaseEntry(Purchase{
		Number:  "P-1",
		Date:    day,
		Terms:   TermsCredit,
		Lines:   []PurchaseLine{{ItemID: &item, Quantity: dec("20"), UnitCost: dec("25")}},
		VATRate: rate("0.13"),
	})
	require.NoError(t, err)
	require.Equal(t, "500.00", lineFor(t, posting.Entry, "1301").Debit.StringFixed(2))
	require.Equal(t, "65.00", lineFor(t, posting.Entry, "1401").Debit.StringFixed(2))
	require.Equal(t, "565.00", lineFor(t, posting.Entry, "2101").Credit.StringFixed(2))
	require.True(t, posting.Linked)
	require.Len(t, posting.Movements, 1)
	require.True(t, posting.Movements[0].UnitCost.Equal(dec("25")))
}

func TestGeneratePurchaseEntryExpenseLine(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	posting, err := gen.GeneratePurchaseEntry(Purchase{
		Number: "P-2",
		Date:   day,
		Terms:  TermsCash,
		Method: MethodBank,
		Lines:  []PurchaseLine{{Description: "Rent", Quantity: dec("1"), UnitCost: dec("300")}},
	})
	require.NoError(t, err)
	require.Equal(t, "300.00", lineFor(t, posting.Entry, "6201").Debit.StringFixed(2))
	require.Equal(t, "300.00", lineFor(t, posting.Entry, "1102").Credit.StringFixed(2))

	_, err = gen.GeneratePurchaseEntry(Purchase{
		Number: "P-3",
		Date:   day,
		Lines:  []PurchaseLine{{Quantity: dec("1"), UnitCost: dec("300"), ExpenseAccount: "6999"}},
	})
	require.ErrorIs(t, err, accounting.ErrAccountNotFound)
}

func TestGenerateInventoryMovementEntry(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	cases := []struct {
		typ    inventory.MovementType
		reason inventory.Reason
		debit  string
		credit string
	}{
		{inventory.MovementOut, inventory.ReasonSale, "5101", "1301"},
		{inventory.MovementIn, inventory.ReasonSaleVoid, "1301", "5101"},
		{inventory.MovementIn, inventory.ReasonPurchase, "1301", "2101"},
		{inventory.MovementIn, inventory.ReasonAdjustment, "1301", "4201"},
		{inventory.MovementOut, inventory.ReasonAdjustment, "5201", "1301"},
		{inventory.MovementIn, inventory.ReasonOpening, "1301", "3101"},
	}
	for _, tc := range cases {
		in, ok, err := gen.GenerateInventoryMovementEntry(inventory.Movement{Type: tc.typ, Reason: tc.reason, Quantity: dec("10"), Value: dec("500"), Date: day})
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, accounting.OriginInventory, in.Origin)
		require.Equal(t, "500.00", lineFor(t, in, tc.debit).Debit.StringFixed(2), "%s %s", tc.typ, tc.reason)
		require.Equal(t, "500.00", lineFor(t, in, tc.credit).Credit.StringFixed(2), "%s %s", tc.typ, tc.reason)
	}

	_, ok, err := gen.GenerateInventoryMovementEntry(inventory.Movement{Type: inventory.MovementOut, Reason: inventory.ReasonSale, Quantity: dec("1")})
	require.NoError(t, err)
	require.False(t, ok)
}

func postedFrom(t *testing.T, in accounting.PostingInput, seq int64) accounting.JournalEntry {
	t.Helper()
	draft, err := accounting.BuildEntry(accounting.DefaultChart(), in)
	require.NoError(t, err)
	return accounting.Seal(draft, seq, day)
}

func TestGeneratePaymentEntry(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	sale, err := gen.GenerateSaleEntry(Sale{Number: "S-9", Date: day, Terms: TermsCredit, Lines: []SaleLine{{Quantity: dec("1"), UnitPrice: dec("100")}}, VATRate: rate("0.13")})
	require.NoError(t, err)
	saleEntry := postedFrom(t, sale.Entry, 1)
	docID := *saleEntry.OriginDocumentID

	_, err = gen.GeneratePaymentEntry(Payment{DocumentID: docID, Date: day, Amount: dec("100")}, []accounting.JournalEntry{saleEntry})
	require.ErrorIs(t, err, accounting.ErrAmountMismatch)

	payment, err := gen.GeneratePaymentEntry(Payment{DocumentID: docID, Date: day, Amount: dec("113")}, []accounting.JournalEntry{saleEntry})
	require.NoError(t, err)
	require.Equal(t, "113.00", lineFor(t, payment, "1101").Debit.StringFixed(2))
	require.Equal(t, "113.00", lineFor(t, payment, "1201").Credit.StringFixed(2))

	paid := postedFrom(t, payment, 2)
	_, err = gen.GeneratePaymentEntry(Payment{DocumentID: docID, Date: day}, []accounting.JournalEntry{saleEntry, paid})
	require.ErrorIs(t, err, accounting.ErrDocumentSettled)

	_, err = gen.GeneratePaymentEntry(Payment{DocumentID: uuid.New(), Date: day}, nil)
	require.ErrorIs(t, err, accounting.ErrDocumentNotFound)
}

func TestGeneratePaymentEntryRejectsCashDocuments(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	sale, err := gen.GenerateSaleEntry(Sale{Number: "S-10", Date: day, Terms: TermsCash, Lines: []SaleLine{{Quantity: dec("1"), UnitPrice: dec("100")}}})
	require.NoError(t, err)
	entry := postedFrom(t, sale.Entry, 1)
	_, err = gen.GeneratePaymentEntry(Payment{DocumentID: *entry.OriginDocumentID, Date: day}, []accounting.JournalEntry{entry})
	require.ErrorIs(t, err, accounting.ErrDocumentSettled)
}

func TestGenerateVoidReversalEntriesForSale(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	item := uuid.New()
	sale, err := gen.GenerateSaleEntry(Sale{Number: "S-1", Date: day, Terms: TermsCash, Lines: []SaleLine{{ItemID: &item, Quantity: dec("10"), UnitPrice: dec("150")}}, VATRate: rate("0.13")})
	require.NoError(t, err)
	saleEntry := postedFrom(t, sale.Entry, 1)

	mv := inventory.Movement{ID: uuid.New(), ItemID: item, Type: inventory.MovementOut, Quantity: dec("10"), UnitCost: dec("50"), Value: dec("500"), Reason: inventory.ReasonSale, DocumentID: saleEntry.OriginDocumentID, Date: day}
	costIn, ok, err := gen.GenerateInventoryMovementEntry(mv)
	require.NoError(t, err)
	require.True(t, ok)
	costEntry := postedFrom(t, costIn, 2)
	mv.EntryID = &costEntry.ID

	postings, err := gen.GenerateVoidReversalEntries(saleEntry, []accounting.JournalEntry{saleEntry, costEntry}, []inventory.Movement{mv}, time.Time{})
	require.NoError(t, err)
	require.Len(t, postings, 2)

	mirror := postings[0].Entry
	require.Equal(t, accounting.OriginVoidReversal, mirror.Origin)
	require.Equal(t, saleEntry.ID, *mirror.ReversalOf)
	require.Equal(t, accounting.OriginSale, mirror.ReversedOrigin)
	require.Equal(t, day, mirror.Date)
	require.Equal(t, "1500.00", lineFor(t, mirror, "4101").Debit.StringFixed(2))
	require.Equal(t, "195.00", lineFor(t, mirror, "2201").Debit.StringFixed(2))
	require.Equal(t, "1695.00", lineFor(t, mirror, "1101").Credit.StringFixed(2))
	require.Empty(t, postings[0].Movements)

	cost := postings[1]
	require.Equal(t, "500.00", lineFor(t, cost.Entry, "1301").Debit.StringFixed(2))
	require.Equal(t, "500.00", lineFor(t, cost.Entry, "5101").Credit.StringFixed(2))
	require.Len(t, cost.Movements, 1)
	require.Equal(t, inventory.MovementIn, cost.Movements[0].Type)
	require.Equal(t, inventory.ReasonSaleVoid, cost.Movements[0].Reason)
	require.True(t, cost.Movements[0].UnitCost.Equal(dec("50")))
}

func TestGenerateVoidReversalEntriesGuards(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	sale, err := gen.GenerateSaleEntry(Sale{Number: "S-5", Date: day, Terms: TermsCredit, Lines: []SaleLine{{Quantity: dec("1"), UnitPrice: dec("10")}}})
	require.NoError(t, err)
	entry := postedFrom(t, sale.Entry, 1)

	voided := entry
	voided.Status = accounting.EntryStatusVoided
	_, err = gen.GenerateVoidReversalEntries(voided, nil, nil, time.Time{})
	require.ErrorIs(t, err, accounting.ErrAlreadyVoided)

	payIn, err := gen.GeneratePaymentEntry(Payment{DocumentID: *entry.OriginDocumentID, Date: day}, []accounting.JournalEntry{entry})
	require.NoError(t, err)
	payment := postedFrom(t, payIn, 2)
	_, err = gen.GenerateVoidReversalEntries(entry, []accounting.JournalEntry{entry, payment}, nil, time.Time{})
	require.ErrorIs(t, err, accounting.ErrDocumentSettled)

	postings, err := gen.GenerateVoidReversalEntries(payment, []accounting.JournalEntry{entry, payment}, nil, time.Time{})
	require.NoError(t, err)
	require.Len(t, postings, 1)
	reversal := postedFrom(t, postings[0].Entry, 3)
	_, err = gen.GenerateVoidReversalEntries(reversal, nil, nil, time.Time{})
	require.ErrorIs(t, err, accounting.ErrInvalidStatus)
}

func TestDocumentIDIsStable(t *testing.T) {
	require.Equal(t, DocumentID(uuid.Nil, "SALE", "S-1"), DocumentID(uuid.Nil, "SALE", "S-1"))
	require.NotEqual(t, DocumentID(uuid.Nil, "SALE", "S-1"), DocumentID(uuid.Nil, "PURCHASE", "S-1"))
	id := uuid.New()
	require.Equal(t, id, DocumentID(id, "SALE", "S-1"))
}

func TestGeneratePayrollEntry(t *testing.T) {
	gen := NewGenerator(accounting.DefaultChart())
	run := payroll.Run{
		Period: "2025-03",
		Date:   day,
		Concepts: []payroll.Concept{
			{Code: "base", Kind: payroll.ConceptEarning, Formula: payroll.Percentage(dec("1"), payroll.BaseSalary)},
			{Code: "tax", Kind: payroll.ConceptDeduction, Formula: payroll.Percentage(dec("0.1"), payroll.BaseGross)},
			{Code: "social", Kind: payroll.ConceptEmployerContribution, Formula: payroll.Percentage(dec("0.2"), payroll.BaseGross)},
		},
		Employees: []payroll.Employee{{ID: "E1", BaseSalary: dec("1000")}},
	}
	in, summary, err := gen.GeneratePayrollEntry(run)
	require.NoError(t, err)
	require.Equal(t, accounting.OriginPayroll, in.Origin)
	require.Equal(t, "1000.00", lineFor(t, in, "6101").Debit.StringFixed(2))
	require.Equal(t, "200.00", lineFor(t, in, "6102").Debit.StringFixed(2))
	require.Equal(t, "300.00", lineFor(t, in, "2302").Credit.StringFixed(2))
	require.Equal(t, "900.00", lineFor(t, in, "2301").Credit.StringFixed(2))
	require.Equal(t, "900.00", summary.Net.StringFixed(2))

	entry, err := accounting.BuildEntry(accounting.DefaultChart(), in)
	require.NoError(t, err)
	require.True(t, entry.Balanced())

	run.Concepts[0].Formula = payroll.Formula{Kind: "EXPR"}
	_, _, err = gen.GeneratePayrollEntry(run)
	require.ErrorIs(t, err, payroll.ErrInvalidFormula)
}
