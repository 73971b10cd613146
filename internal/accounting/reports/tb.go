package reports

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
)

// TrialBalanceFilter restricts the trial balance. Zero values are unbounded.
type TrialBalanceFilter struct {
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`
	CodeFrom string    `json:"code_from,omitempty"`
	CodeTo   string    `json:"code_to,omitempty"`
}

func (f TrialBalanceFilter) includesCode(code string) bool {
	if f.CodeFrom != "" && code < f.CodeFrom {
		return false
	}
	if f.CodeTo != "" && code > f.CodeTo {
		return false
	}
	return true
}

// TrialBalanceRow carries per-account sums and the resulting side balance.
type TrialBalanceRow struct {
	Code          string                 `json:"code"`
	Name          string                 `json:"name"`
	Type          accounting.AccountType `json:"type"`
	Role          accounting.AccountRole `json:"role,omitempty"`
	SumDebit      decimal.Decimal        `json:"sum_debit"`
	SumCredit     decimal.Decimal        `json:"sum_credit"`
	DebitBalance  decimal.Decimal        `json:"debit_balance"`
	CreditBalance decimal.Decimal        `json:"credit_balance"`
}

// Net returns SumDebit - SumCredit.
func (r TrialBalanceRow) Net() decimal.Decimal {
	return r.SumDebit.Sub(r.SumCredit)
}

// TrialBalance is the verified result over the filtered accounts.
type TrialBalance struct {
	Filter             TrialBalanceFilter `json:"filter"`
	Rows               []TrialBalanceRow  `json:"rows"`
	TotalSumDebit      decimal.Decimal    `json:"total_sum_debit"`
	TotalSumCredit     decimal.Decimal    `json:"total_sum_credit"`
	TotalDebitBalance  decimal.Decimal    `json:"total_debit_balance"`
	TotalCreditBalance decimal.Decimal    `json:"total_credit_balance"`
}

// Row finds the row for code.
func (tb TrialBalance) Row(code string) (TrialBalanceRow, bool) {
	idx := sort.Search(len(tb.Rows), func(i int) bool { return tb.Rows[i].Code >= code })
	if idx < len(tb.Rows) && tb.Rows[idx].Code == code {
		return tb.Rows[idx], true
	}
	return TrialBalanceRow{}, false
}

// BuildTrialBalance accumulates effective entries in the date range and
// verifies that the whole ledger reconciles before applying the code range.
func BuildTrialBalance(chart *accounting.Chart, entries []accounting.JournalEntry, filter TrialBalanceFilter) (TrialBalance, error) {
	rows := make(map[string]*TrialBalanceRow)
	for _, e := range entries {
		if !e.Effective() || !withinRange(e.Date, filter.From, filter.To) {
			continue
		}
		for _, line := range e.Lines {
			row, ok := rows[line.AccountCode]
			if !ok {
				acc, err := chart.Lookup(line.AccountCode)
				if err != nil {
					return TrialBalance{}, &accounting.PostingError{Op: "trial balance", EntryID: e.ID, Reference: e.Reference(), AccountCode: line.AccountCode, Err: accounting.ErrAccountNotFound}
				}
				row = &TrialBalanceRow{Code: acc.Code, Name: acc.Name, Type: acc.Type, Role: acc.Role}
				rows[line.AccountCode] = row
			}
			row.SumDebit = row.SumDebit.Add(line.Debit)
			row.SumCredit = row.SumCredit.Add(line.Credit)
		}
	}

	var all TrialBalance
	codes := make([]string, 0, len(rows))
	for code, row := range rows {
		balance := row.Net()
		if balance.IsPositive() {
			row.DebitBalance = balance
		} else {
			row.CreditBalance = balance.Abs()
		}
		all.add(*row)
		codes = append(codes, code)
	}
	if err := all.verify(); err != nil {
		return TrialBalance{}, err
	}

	sort.Strings(codes)
	result := TrialBalance{Filter: filter, Rows: make([]TrialBalanceRow, 0, len(codes))}
	for _, code := range codes {
		row := rows[code]
		if row.SumDebit.IsZero() && row.SumCredit.IsZero() {
			continue
		}
		if !filter.includesCode(code) {
			continue
		}
		result.Rows = append(result.Rows, *row)
		result.add(*row)
	}
	return result, nil
}

func (tb *TrialBalance) add(row TrialBalanceRow) {
	tb.TotalSumDebit = tb.TotalSumDebit.Add(row.SumDebit)
	tb.TotalSumCredit = tb.TotalSumCredit.Add(row.SumCredit)
	tb.TotalDebitBalance = tb.TotalDebitBalance.Add(row.DebitBalance)
	tb.TotalCreditBalance = tb.TotalCreditBalance.Add(row.CreditBalance)
}

func (tb TrialBalance) verify() error {
	if !accounting.WithinTolerance(tb.TotalSumDebit, tb.TotalSumCredit) {
		return fmt.Errorf("%w: sum debit %s != sum credit %s", accounting.ErrReportingInconsistency,
			tb.TotalSumDebit.StringFixed(2), tb.TotalSumCredit.StringFixed(2))
	}
	if !accounting.WithinTolerance(tb.TotalDebitBalance, tb.TotalCreditBalance) {
		return fmt.Errorf("%w: debit balances %s != credit balances %s", accounting.ErrReportingInconsistency,
			tb.TotalDebitBalance.StringFixed(2), tb.TotalCreditBalance.StringFixed(2))
	}
	return nil
}
