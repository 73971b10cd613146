package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/odyssey-erp/odyssey-books/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-books/internal/books"
)

// ReportPrinter renders statements as aligned text with locale-aware amounts.
type ReportPrinter struct {
	p *message.Printer
}

// NewReportPrinter parses lang as a BCP 47 tag, falling back to English.
func NewReportPrinter(lang string) *ReportPrinter {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return &ReportPrinter{p: message.NewPrinter(tag)}
}

// Amount formats d with two decimals and local grouping.
func (rp *ReportPrinter) Amount(d decimal.Decimal) string {
	return rp.p.Sprintf("%v", number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

// TrialBalance prints one row per account plus the totals.
func (rp *ReportPrinter) TrialBalance(w io.Writer, tb reports.TrialBalance) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Code\tAccount\tDebit\tCredit\tDebit bal.\tCredit bal.\t")
	for _, row := range tb.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", row.Code, row.Name,
			rp.Amount(row.SumDebit), rp.Amount(row.SumCredit),
			rp.Amount(row.DebitBalance), rp.Amount(row.CreditBalance))
	}
	fmt.Fprintf(tw, "\tTotal\t%s\t%s\t%s\t%s\t\n",
		rp.Amount(tb.TotalSumDebit), rp.Amount(tb.TotalSumCredit),
		rp.Amount(tb.TotalDebitBalance), rp.Amount(tb.TotalCreditBalance))
	return tw.Flush()
}

// BalanceSheet prints the three sections and the equation check.
func (rp *ReportPrinter) BalanceSheet(w io.Writer, bs reports.BalanceSheet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, section := range []reports.BalanceSheetSection{bs.Assets, bs.Liabilities, bs.Equity} {
		fmt.Fprintf(tw, "%s\t\t\t\n", section.Label)
		for _, acc := range section.Accounts {
			fmt.Fprintf(tw, "\t%s\t%s\t\n", acc.Name, rp.Amount(acc.Balance))
		}
		fmt.Fprintf(tw, "\tTotal\t%s\t\n", rp.Amount(section.Total))
	}
	fmt.Fprintf(tw, "Liabilities and equity\t\t%s\t\n", rp.Amount(bs.TotalLiabilitiesAndEquity))
	fmt.Fprintf(tw, "Inventory variance\t\t%s\t\n", rp.Amount(bs.Inventory.Variance))
	if err := tw.Flush(); err != nil {
		return err
	}
	if !bs.BalancedEquation {
		_, err := fmt.Fprintln(w, "WARNING: assets do not equal liabilities and equity")
		return err
	}
	return nil
}

// IncomeStatement prints revenue, expenses and the net result.
func (rp *ReportPrinter) IncomeStatement(w io.Writer, pl reports.IncomeStatement) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, section := range []reports.IncomeStatementSection{pl.Revenue, pl.Expense} {
		fmt.Fprintf(tw, "%s\t\t\t\n", section.Label)
		for _, acc := range section.Accounts {
			fmt.Fprintf(tw, "\t%s\t%s\t\n", acc.Name, rp.Amount(acc.Amount))
		}
		fmt.Fprintf(tw, "\tTotal\t%s\t\n", rp.Amount(section.Total))
	}
	fmt.Fprintf(tw, "Net income\t\t%s\t\n", rp.Amount(pl.NetIncome))
	return tw.Flush()
}

// Vat prints the declaration figures.
func (rp *ReportPrinter) Vat(w io.Writer, vat reports.VatDeclaration) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Taxable sales\t%s\t\n", rp.Amount(vat.TaxableSales))
	fmt.Fprintf(tw, "Output tax\t%s\t\n", rp.Amount(vat.OutputTax))
	fmt.Fprintf(tw, "Taxable purchases\t%s\t\n", rp.Amount(vat.TaxablePurchases))
	fmt.Fprintf(tw, "Input tax\t%s\t\n", rp.Amount(vat.InputTax))
	fmt.Fprintf(tw, "Net (%s)\t%s\t\n", vat.Position, rp.Amount(vat.Net))
	return tw.Flush()
}

// Integrity prints the outcome of a ledger check.
func (rp *ReportPrinter) Integrity(w io.Writer, report books.IntegrityReport) error {
	status := "OK"
	if !report.OK() {
		status = "FAILED"
	}
	_, err := rp.p.Fprintf(w, "integrity %s: %d entries, last sequence %d, debit %s, credit %s\n",
		status, report.Entries, report.LastSequence, rp.Amount(report.TotalDebit), rp.Amount(report.TotalCredit))
	return err
}
