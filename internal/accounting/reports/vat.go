package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
)

// VatPosition tells which way the net tax flows.
type VatPosition string

const (
	VatPayable VatPosition = "PAYABLE"
	VatCredit  VatPosition = "CREDIT"
	VatNil     VatPosition = "NIL"
)

// VatDeclaration summarises output and input tax for a period.
type VatDeclaration struct {
	From             time.Time       `json:"from"`
	To               time.Time       `json:"to"`
	TaxableSales     decimal.Decimal `json:"taxable_sales"`
	OutputTax        decimal.Decimal `json:"output_tax"`
	TaxablePurchases decimal.Decimal `json:"taxable_purchases"`
	InputTax         decimal.Decimal `json:"input_tax"`
	Net              decimal.Decimal `json:"net"`
	Position         VatPosition     `json:"position"`
	EntriesScanned   int             `json:"entries_scanned"`
}

// BuildVatDeclaration nets output tax from sales against input tax from
// purchases. Reversals of sales or purchases carry opposite sides and
// therefore subtract.
func BuildVatDeclaration(chart *accounting.Chart, entries []accounting.JournalEntry, from, to time.Time) (VatDeclaration, error) {
	decl := VatDeclaration{From: from, To: to}
	for _, e := range entries {
		if !e.Effective() || !withinRange(e.Date, from, to) {
			continue
		}
		origin := e.BusinessOrigin()
		if origin != accounting.OriginSale && origin != accounting.OriginPurchase {
			continue
		}
		decl.EntriesScanned++
		for _, line := range e.Lines {
			acc, err := chart.Lookup(line.AccountCode)
			if err != nil {
				return VatDeclaration{}, &accounting.PostingError{Op: "vat declaration", EntryID: e.ID, Reference: e.Reference(), AccountCode: line.AccountCode, Err: accounting.ErrAccountNotFound}
			}
			credit := line.Credit.Sub(line.Debit)
			debit := credit.Neg()
			if origin == accounting.OriginSale {
				switch {
				case acc.Role == accounting.RoleVATPayable:
					decl.OutputTax = decl.OutputTax.Add(credit)
				case acc.Type == accounting.AccountTypeRevenue:
					decl.TaxableSales = decl.TaxableSales.Add(credit)
				}
				continue
			}
			switch {
			case acc.Role == accounting.RoleInputVAT:
				decl.InputTax = decl.InputTax.Add(debit)
			case acc.Role == accounting.RoleInventory, acc.Type == accounting.AccountTypeExpense:
				decl.TaxablePurchases = decl.TaxablePurchases.Add(debit)
			}
		}
	}
	decl.Net = decl.OutputTax.Sub(decl.InputTax)
	switch {
	case decl.Net.GreaterThanOrEqual(accounting.Tolerance):
		decl.Position = VatPayable
	case decl.Net.LessThanOrEqual(accounting.Tolerance.Neg()):
		decl.Position = VatCredit
	default:
		decl.Position = VatNil
	}
	return decl, nil
}
