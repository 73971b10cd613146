package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/app"
	"github.com/odyssey-erp/odyssey-books/internal/books"
	"github.com/odyssey-erp/odyssey-books/internal/integration"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
	"github.com/odyssey-erp/odyssey-books/internal/payroll"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// Seeds a demo month into the configured ledger. Documents already present
// are skipped, so reruns are harmless.
func main() {
	ctx := shared.ContextWithActor(context.Background(), "seed")
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	rt, err := app.NewRuntime(ctx, cfg, app.NewLogger(cfg), nil)
	if err != nil {
		log.Fatalf("init runtime: %v", err)
	}
	defer rt.Close()
	b := rt.Books

	fmt.Println("→ Seeding capital...")
	if err := seedCapital(ctx, b); err != nil {
		log.Fatalf("seed capital: %v", err)
	}

	fmt.Println("→ Seeding items...")
	items, err := seedItems(ctx, b)
	if err != nil {
		log.Fatalf("seed items: %v", err)
	}

	fmt.Println("→ Seeding purchases and payments...")
	if err := seedPurchases(ctx, b, items); err != nil {
		log.Fatalf("seed purchases: %v", err)
	}

	fmt.Println("→ Seeding sales...")
	if err := seedSales(ctx, b, items); err != nil {
		log.Fatalf("seed sales: %v", err)
	}

	fmt.Println("→ Seeding payroll...")
	if err := seedPayroll(ctx, b); err != nil {
		log.Fatalf("seed payroll: %v", err)
	}

	report, err := b.VerifyIntegrity(ctx)
	if err != nil {
		log.Fatalf("verify: %v", err)
	}
	fmt.Printf("✓ ledger %s: %d entries, debit %s credit %s\n",
		b.LedgerID(), report.Entries, report.TotalDebit.StringFixed(2), report.TotalCredit.StringFixed(2))
}

var month = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func day(d int) time.Time { return month.AddDate(0, 0, d-1) }

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seeded(err error) bool {
	return errors.Is(err, accounting.ErrDuplicateDocument) || errors.Is(err, inventory.ErrDuplicateItem)
}

func seedCapital(ctx context.Context, b *books.Books) error {
	existing, err := b.ListEntries(ctx, accounting.EntryFilter{Origins: []accounting.EntryOrigin{accounting.OriginManual}})
	if err != nil || len(existing) > 0 {
		return err
	}
	_, err = b.PostManualEntry(ctx, integration.ManualEntry{
		Date:        day(1),
		Description: "Owner contribution",
		Reference:   "CAP-001",
		Lines: []accounting.PostingLineInput{
			{AccountCode: "1102", Debit: amount("50000")},
			{AccountCode: "3101", Credit: amount("50000")},
		},
	})
	return err
}

func seedItems(ctx context.Context, b *books.Books) (map[string]uuid.UUID, error) {
	inputs := []inventory.CreateItemInput{
		{Code: "CHAIR", Name: "Office chair", ReorderPoint: amount("5"), OpeningQuantity: amount("20"), OpeningUnitCost: amount("45")},
		{Code: "DESK", Name: "Standing desk", ReorderPoint: amount("2"), OpeningQuantity: amount("8"), OpeningUnitCost: amount("210")},
		{Code: "LAMP", Name: "Desk lamp", ReorderPoint: amount("10")},
	}
	for _, in := range inputs {
		if _, _, err := b.CreateItem(ctx, in); err != nil && !seeded(err) {
			return nil, err
		}
	}
	items, err := b.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uuid.UUID, len(items))
	for _, item := range items {
		out[item.Code] = item.ID
	}
	return out, nil
}

func seedPurchases(ctx context.Context, b *books.Books, items map[string]uuid.UUID) error {
	lamp := items["LAMP"]
	res, err := b.RecordPurchase(ctx, integration.Purchase{
		Number:   "BILL-0001",
		Date:     day(3),
		Supplier: "Lumen Supply",
		Terms:    integration.TermsCredit,
		Lines: []integration.PurchaseLine{
			{ItemID: &lamp, Description: "Desk lamps", Quantity: amount("30"), UnitCost: amount("12")},
			{Description: "Freight", Quantity: amount("1"), UnitCost: amount("40"), ExpenseAccount: "6201"},
		},
	})
	if seeded(err) {
		return nil
	}
	if err != nil {
		return err
	}
	docID := res.Entries[0].OriginDocumentID
	if docID == nil {
		return errors.New("purchase posted without document id")
	}
	_, err = b.RecordPayment(ctx, integration.Payment{
		DocumentID: *docID,
		Date:       day(20),
		Method:     integration.MethodBank,
		Reference:  "TRF-0420",
	})
	return err
}

func seedSales(ctx context.Context, b *books.Books, items map[string]uuid.UUID) error {
	chair, desk, lamp := items["CHAIR"], items["DESK"], items["LAMP"]
	sales := []integration.Sale{
		{
			Number: "INV-0001", Date: day(10), Customer: "Northwind", Terms: integration.TermsCash, Method: integration.MethodBank,
			Lines: []integration.SaleLine{
				{ItemID: &chair, Quantity: amount("6"), UnitPrice: amount("89")},
				{ItemID: &lamp, Quantity: amount("6"), UnitPrice: amount("25")},
			},
		},
		{
			Number: "INV-0002", Date: day(18), Customer: "Contoso", Terms: integration.TermsCredit,
			Lines: []integration.SaleLine{
				{ItemID: &desk, Quantity: amount("2"), UnitPrice: amount("399")},
				{Description: "Assembly service", Quantity: amount("2"), UnitPrice: amount("35")},
			},
		},
	}
	for _, sale := range sales {
		if _, err := b.RecordSale(ctx, sale); err != nil && !seeded(err) {
			return err
		}
	}
	return nil
}

func seedPayroll(ctx context.Context, b *books.Books) error {
	_, _, err := b.PostPayroll(ctx, payroll.Run{
		Period: "2025-04",
		Date:   day(30),
		Concepts: []payroll.Concept{
			{Code: "base", Name: "Base salary", Kind: payroll.ConceptEarning, Formula: payroll.Percentage(amount("1"), payroll.BaseSalary)},
			{Code: "pension", Name: "Pension", Kind: payroll.ConceptDeduction, Formula: payroll.Percentage(amount("0.05"), payroll.BaseGross)},
			{Code: "social", Name: "Social security", Kind: payroll.ConceptEmployerContribution, Formula: payroll.Percentage(amount("0.12"), "base")},
		},
		Employees: []payroll.Employee{
			{ID: "E-001", Name: "Ayu", BaseSalary: amount("2400")},
			{ID: "E-002", Name: "Budi", BaseSalary: amount("1900")},
		},
	})
	if seeded(err) {
		return nil
	}
	return err
}
