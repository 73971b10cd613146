package integration

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
)

// Generator turns business documents into balanced postings. It never
// mutates state; the ledger engine applies what it returns.
type Generator struct {
	chart *accounting.Chart
}

// NewGenerator constructs a generator over chart.
func NewGenerator(chart *accounting.Chart) *Generator {
	return &Generator{chart: chart}
}

func (g *Generator) resolveAccount(role accounting.AccountRole) (string, error) {
	acc, err := g.chart.ByRole(role)
	if err != nil {
		return "", err
	}
	return acc.Code, nil
}

func (g *Generator) moneyAccount(method Method) (string, error) {
	if method == MethodBank {
		return g.resolveAccount(accounting.RoleBank)
	}
	return g.resolveAccount(accounting.RoleCash)
}

// GenerateSaleEntry debits cash or receivable for the total and credits
// revenue and output VAT. Stocked lines yield outward movements, each of
// which posts its own cost-of-sale entry once valued.
func (g *Generator) GenerateSaleEntry(sale Sale) (Posting, error) {
	if strings.TrimSpace(sale.Number) == "" || sale.Date.IsZero() {
		return Posting{}, errors.New("integration: sale number and date required")
	}
	if len(sale.Lines) == 0 {
		return Posting{}, fmt.Errorf("%w: sale %s has no lines", accounting.ErrAmountMismatch, sale.Number)
	}
	var lineTotal decimal.Decimal
	for idx, line := range sale.Lines {
		if !line.Quantity.IsPositive() || line.UnitPrice.IsNegative() {
			return Posting{}, fmt.Errorf("%w: sale %s line %d quantity or price invalid", accounting.ErrAmountMismatch, sale.Number, idx+1)
		}
		lineTotal = lineTotal.Add(monetary(line.Quantity, line.UnitPrice))
	}
	amounts, err := reconcile(sale.Number, lineTotal, sale.Subtotal, sale.Tax, sale.Total, sale.VATRate)
	if err != nil {
		return Posting{}, err
	}

	var debitAccount string
	if sale.Terms == TermsCash {
		debitAccount, err = g.moneyAccount(sale.Method)
	} else {
		debitAccount, err = g.resolveAccount(accounting.RoleReceivable)
	}
	if err != nil {
		return Posting{}, err
	}
	revenueAccount, err := g.resolveAccount(accounting.RoleRevenue)
	if err != nil {
		return Posting{}, err
	}
	lines := []accounting.PostingLineInput{
		{AccountCode: debitAccount, Debit: amounts.total, Memo: sale.Customer},
		{AccountCode: revenueAccount, Credit: amounts.subtotal},
	}
	if amounts.tax.IsPositive() {
		vatAccount, err := g.resolveAccount(accounting.RoleVATPayable)
		if err != nil {
			return Posting{}, err
		}
		lines = append(lines, accounting.PostingLineInput{AccountCode: vatAccount, Credit: amounts.tax})
	}

	docID := DocumentID(sale.ID, "SALE", sale.Number)
	posting := Posting{
		Entry: accounting.PostingInput{
			Date:              sale.Date,
			Description:       fmt.Sprintf("Sale %s", sale.Number),
			ExternalReference: sale.Number,
			Origin:            accounting.OriginSale,
			OriginDocumentID:  &docID,
			Lines:             lines,
		},
	}
	for _, line := range sale.Lines {
		if line.ItemID == nil {
			continue
		}
		posting.Movements = append(posting.Movements, inventory.MovementRequest{
			ItemID:     *line.ItemID,
			Type:       inventory.MovementOut,
			Quantity:   line.Quantity,
			Reason:     inventory.ReasonSale,
			DocumentID: &docID,
			Date:       sale.Date,
			Memo:       line.Description,
		})
	}
	return posting, nil
}

// GeneratePurchaseEntry debits inventory or expense and input VAT and
// credits payable or cash. Stocked lines yield inward movements linked to
// the purchase entry itself.
func (g *Generator) GeneratePurchaseEntry(purchase Purchase) (Posting, error) {
	if strings.TrimSpace(purchase.Number) == "" || purchase.Date.IsZero() {
		return Posting{}, errors.New("integration: purchase number and date required")
	}
	if len(purchase.Lines) == 0 {
		return Posting{}, fmt.Errorf("%w: purchase %s has no lines", accounting.ErrAmountMismatch, purchase.Number)
	}
	inventoryAccount, err := g.resolveAccount(accounting.RoleInventory)
	if err != nil {
		return Posting{}, err
	}
	debits := make(map[string]decimal.Decimal)
	var order []string
	var lineTotal decimal.Decimal
	for idx, line := range purchase.Lines {
		if !line.Quantity.IsPositive() || line.UnitCost.IsNegative() {
			return Posting{}, fmt.Errorf("%w: purchase %s line %d quantity or cost invalid", accounting.ErrAmountMismatch, purchase.Number, idx+1)
		}
		account := inventoryAccount
		if line.ItemID == nil {
			account = line.ExpenseAccount
			if account == "" {
				if account, err = g.resolveAccount(accounting.RoleOperatingExpense); err != nil {
					return Posting{}, err
				}
			}
			if _, err := g.chart.Lookup(account); err != nil {
				return Posting{}, err
			}
		}
		amount := monetary(line.Quantity, line.UnitCost)
		if _, seen := debits[account]; !seen {
			order = append(order, account)
		}
		debits[account] = debits[account].Add(amount)
		lineTotal = lineTotal.Add(amount)
	}
	amounts, err := reconcile(purchase.Number, lineTotal, purchase.Subtotal, purchase.Tax, purchase.Total, purchase.VATRate)
	if err != nil {
		return Posting{}, err
	}

	lines := make([]accounting.PostingLineInput, 0, len(order)+2)
	for _, account := range order {
		if debits[account].IsPositive() {
			lines = append(lines, accounting.PostingLineInput{AccountCode: account, Debit: debits[account]})
		}
	}
	if amounts.tax.IsPositive() {
		vatAccount, err := g.resolveAccount(accounting.RoleInputVAT)
		if err != nil {
			return Posting{}, err
		}
		lines = append(lines, accounting.PostingLineInput{AccountCode: vatAccount, Debit: amounts.tax})
	}
	var creditAccount string
	if purchase.Terms == TermsCash {
		creditAccount, err = g.moneyAccount(purchase.Method)
	} else {
		creditAccount, err = g.resolveAccount(accounting.RolePayable)
	}
	if err != nil {
		return Posting{}, err
	}
	lines = append(lines, accounting.PostingLineInput{AccountCode: creditAccount, Credit: amounts.total, Memo: purchase.Supplier})

	docID := DocumentID(purchase.ID, "PURCHASE", purchase.Number)
	posting := Posting{
		Entry: accounting.PostingInput{
			Date:              purchase.Date,
			Description:       fmt.Sprintf("Purchase %s", purchase.Number),
			ExternalReference: purchase.Number,
			Origin:            accounting.OriginPurchase,
			OriginDocumentID:  &docID,
			Lines:             lines,
		},
		Linked: true,
	}
	for _, line := range purchase.Lines {
		if line.ItemID == nil {
			continue
		}
		cost := line.UnitCost
		posting.Movements = append(posting.Movements, inventory.MovementRequest{
			ItemID:     *line.ItemID,
			Type:       inventory.MovementIn,
			Quantity:   line.Quantity,
			UnitCost:   &cost,
			Reason:     inventory.ReasonPurchase,
			DocumentID: &docID,
			Date:       purchase.Date,
			Memo:       line.Description,
		})
	}
	return posting, nil
}

// GenerateInventoryMovementEntry books a valued movement against inventory.
// It returns false when the movement carries no value.
func (g *Generator) GenerateInventoryMovementEntry(mv inventory.Movement) (accounting.PostingInput, bool, error) {
	value := accounting.RoundMoney(mv.Value)
	if !value.IsPositive() {
		return accounting.PostingInput{}, false, nil
	}
	inventoryAccount, err := g.resolveAccount(accounting.RoleInventory)
	if err != nil {
		return accounting.PostingInput{}, false, err
	}
	counterRole, err := counterRoleFor(mv)
	if err != nil {
		return accounting.PostingInput{}, false, err
	}
	counterAccount, err := g.resolveAccount(counterRole)
	if err != nil {
		return accounting.PostingInput{}, false, err
	}
	lines := []accounting.PostingLineInput{
		{AccountCode: inventoryAccount, Debit: value, Memo: mv.Memo},
		{AccountCode: counterAccount, Credit: value},
	}
	if mv.Type == inventory.MovementOut {
		lines = []accounting.PostingLineInput{
			{AccountCode: counterAccount, Debit: value, Memo: mv.Memo},
			{AccountCode: inventoryAccount, Credit: value},
		}
	}
	date := mv.Date
	if date.IsZero() {
		date = mv.PostedAt
	}
	return accounting.PostingInput{
		Date:             date,
		Description:      fmt.Sprintf("Inventory %s %s x %s", strings.ToLower(string(mv.Type)), mv.Reason, mv.Quantity.String()),
		Origin:           accounting.OriginInventory,
		OriginDocumentID: mv.DocumentID,
		Lines:            lines,
	}, true, nil
}

func counterRoleFor(mv inventory.Movement) (accounting.AccountRole, error) {
	if mv.Type == inventory.MovementIn {
		switch mv.Reason {
		case inventory.ReasonPurchase, "":
			return accounting.RolePayable, nil
		case inventory.ReasonSaleVoid, inventory.ReasonReturn:
			return accounting.RoleCOGS, nil
		case inventory.ReasonAdjustment:
			return accounting.RoleInventoryGain, nil
		case inventory.ReasonOpening:
			return accounting.RoleEquityCapital, nil
		}
	} else {
		switch mv.Reason {
		case inventory.ReasonSale, "":
			return accounting.RoleCOGS, nil
		case inventory.ReasonAdjustment:
			return accounting.RoleInventoryLoss, nil
		case inventory.ReasonPurchaseVoid, inventory.ReasonReturn:
			return accounting.RolePayable, nil
		}
	}
	return "", fmt.Errorf("integration: no account for %s movement with reason %q", mv.Type, mv.Reason)
}

// GeneratePaymentEntry settles an open credit document. documentEntries are
// every entry linked to the document.
func (g *Generator) GeneratePaymentEntry(payment Payment, documentEntries []accounting.JournalEntry) (accounting.PostingInput, error) {
	if payment.Date.IsZero() {
		return accounting.PostingInput{}, errors.New("integration: payment date required")
	}
	var source *accounting.JournalEntry
	for i := range documentEntries {
		e := documentEntries[i]
		switch {
		case e.Origin == accounting.OriginPayment && e.Status == accounting.EntryStatusPosted:
			return accounting.PostingInput{}, &accounting.PostingError{Op: "payment", EntryID: e.ID, Reference: e.Reference(), Err: accounting.ErrDocumentSettled}
		case (e.Origin == accounting.OriginSale || e.Origin == accounting.OriginPurchase) && e.Status == accounting.EntryStatusPosted:
			source = &documentEntries[i]
		}
	}
	if source == nil {
		return accounting.PostingInput{}, &accounting.PostingError{Op: "payment", Detail: payment.DocumentID.String(), Err: accounting.ErrDocumentNotFound}
	}

	role := accounting.RoleReceivable
	if source.Origin == accounting.OriginPurchase {
		role = accounting.RolePayable
	}
	openAccount, err := g.resolveAccount(role)
	if err != nil {
		return accounting.PostingInput{}, err
	}
	var outstanding decimal.Decimal
	for _, line := range source.Lines {
		if line.AccountCode == openAccount {
			outstanding = outstanding.Add(line.Debit).Add(line.Credit)
		}
	}
	if outstanding.IsZero() {
		return accounting.PostingInput{}, &accounting.PostingError{Op: "payment", EntryID: source.ID, Reference: source.Reference(), Detail: "settled on cash terms", Err: accounting.ErrDocumentSettled}
	}
	amount := accounting.RoundMoney(payment.Amount)
	if amount.IsZero() {
		amount = outstanding
	}
	if !accounting.WithinTolerance(amount, outstanding) {
		return accounting.PostingInput{}, &accounting.PostingError{
			Op:        "payment",
			EntryID:   source.ID,
			Reference: source.Reference(),
			Detail:    fmt.Sprintf("amount=%s outstanding=%s", amount.StringFixed(2), outstanding.StringFixed(2)),
			Err:       accounting.ErrAmountMismatch,
		}
	}
	moneyAccount, err := g.moneyAccount(payment.Method)
	if err != nil {
		return accounting.PostingInput{}, err
	}
	lines := []accounting.PostingLineInput{
		{AccountCode: moneyAccount, Debit: amount},
		{AccountCode: openAccount, Credit: amount},
	}
	if role == accounting.RolePayable {
		lines = []accounting.PostingLineInput{
			{AccountCode: openAccount, Debit: amount},
			{AccountCode: moneyAccount, Credit: amount},
		}
	}
	docID := payment.DocumentID
	ref := payment.Reference
	if ref == "" {
		ref = "PAY-" + source.Reference()
	}
	return accounting.PostingInput{
		Date:              payment.Date,
		Description:       fmt.Sprintf("Payment for %s", source.Reference()),
		ExternalReference: ref,
		Origin:            accounting.OriginPayment,
		OriginDocumentID:  &docID,
		Lines:             lines,
	}, nil
}

// GenerateManualEntry validates a user journal.
func (g *Generator) GenerateManualEntry(manual ManualEntry) (accounting.PostingInput, error) {
	in := accounting.PostingInput{
		Date:              manual.Date,
		Description:       manual.Description,
		ExternalReference: manual.Reference,
		Origin:            accounting.OriginManual,
		Lines:             manual.Lines,
	}
	if _, err := accounting.BuildEntry(g.chart, in); err != nil {
		return accounting.PostingInput{}, err
	}
	return in, nil
}

type documentAmounts struct {
	subtotal decimal.Decimal
	tax      decimal.Decimal
	total    decimal.Decimal
}

// reconcile derives missing amounts and checks supplied ones.
func reconcile(number string, lineTotal, subtotal, tax, total decimal.Decimal, rate *decimal.Decimal) (documentAmounts, error) {
	mismatch := func(detail string) error {
		return &accounting.PostingError{Op: "reconcile", Reference: number, Detail: detail, Err: accounting.ErrAmountMismatch}
	}
	out := documentAmounts{subtotal: accounting.RoundMoney(subtotal), tax: accounting.RoundMoney(tax), total: accounting.RoundMoney(total)}
	if out.subtotal.IsZero() {
		out.subtotal = lineTotal
	} else if !accounting.WithinTolerance(out.subtotal, lineTotal) {
		return documentAmounts{}, mismatch(fmt.Sprintf("lines=%s subtotal=%s", lineTotal.StringFixed(2), out.subtotal.StringFixed(2)))
	}
	if out.tax.IsNegative() {
		return documentAmounts{}, mismatch("negative tax")
	}
	if rate != nil {
		expected := accounting.RoundMoney(out.subtotal.Mul(*rate))
		if out.tax.IsZero() {
			out.tax = expected
		} else if !accounting.WithinTolerance(out.tax, expected) {
			return documentAmounts{}, mismatch(fmt.Sprintf("tax=%s expected=%s", out.tax.StringFixed(2), expected.StringFixed(2)))
		}
	}
	expectedTotal := out.subtotal.Add(out.tax)
	if out.total.IsZero() {
		out.total = expectedTotal
	} else if !accounting.WithinTolerance(out.total, expectedTotal) {
		return documentAmounts{}, mismatch(fmt.Sprintf("total=%s subtotal+tax=%s", out.total.StringFixed(2), expectedTotal.StringFixed(2)))
	}
	if !out.total.IsPositive() {
		return documentAmounts{}, mismatch("document total must be positive")
	}
	return out, nil
}

func monetary(qty, unit decimal.Decimal) decimal.Decimal {
	return accounting.RoundMoney(qty.Mul(unit))
}

func dateOr(date, fallback time.Time) time.Time {
	if date.IsZero() {
		return fallback
	}
	return date
}
