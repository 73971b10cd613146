package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
)

// IncomeStatementAccount represents a revenue or expense account summary.
type IncomeStatementAccount struct {
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Recomputed bool            `json:"recomputed,omitempty"`
}

// IncomeStatementSection groups accounts by nature.
type IncomeStatementSection struct {
	Label    string                   `json:"label"`
	Accounts []IncomeStatementAccount `json:"accounts"`
	Total    decimal.Decimal          `json:"total"`
}

func (s *IncomeStatementSection) add(row IncomeStatementAccount) {
	s.Accounts = append(s.Accounts, row)
	s.Total = s.Total.Add(row.Amount)
}

// IncomeStatement contains the structured output for the report.
type IncomeStatement struct {
	From         time.Time              `json:"from"`
	To           time.Time              `json:"to"`
	Revenue      IncomeStatementSection `json:"revenue"`
	Expense      IncomeStatementSection `json:"expense"`
	COGS         decimal.Decimal        `json:"cogs"`
	COGSLedger   decimal.Decimal        `json:"cogs_ledger"`
	COGSVariance decimal.Decimal        `json:"cogs_variance"`
	NetIncome    decimal.Decimal        `json:"net_income"`
}

// RealizedCOGS values goods sold from the sale movements in the slice, net
// of reinstatements from voided sales.
func RealizedCOGS(movements []inventory.Movement) decimal.Decimal {
	total := decimal.Zero
	for _, mv := range movements {
		switch {
		case mv.Reason == inventory.ReasonSale && mv.Type == inventory.MovementOut:
			total = total.Add(mv.Quantity.Mul(mv.UnitCost))
		case mv.Reason == inventory.ReasonSaleVoid && mv.Type == inventory.MovementIn:
			total = total.Sub(mv.Quantity.Mul(mv.UnitCost))
		}
	}
	return accounting.RoundMoney(total)
}

// BuildIncomeStatement derives revenue and expense sections from a trial
// balance over the period. The cost-of-goods-sold row is taken from the
// period's realized sale movements instead of the ledger balance.
func BuildIncomeStatement(tb TrialBalance, movements []inventory.Movement) IncomeStatement {
	revenue := IncomeStatementSection{Label: "Revenue"}
	expense := IncomeStatementSection{Label: "Expense"}
	realized := RealizedCOGS(movements)

	var cogsLedger decimal.Decimal
	cogsCode, cogsName := "", "Cost of Goods Sold"
	for _, row := range tb.Rows {
		switch row.Type {
		case accounting.AccountTypeRevenue:
			amount := row.Net().Neg()
			if amount.GreaterThan(accounting.Tolerance) {
				revenue.add(IncomeStatementAccount{Code: row.Code, Name: row.Name, Amount: amount})
			}
		case accounting.AccountTypeExpense:
			amount := row.Net()
			if row.Role == accounting.RoleCOGS {
				cogsLedger = cogsLedger.Add(amount)
				cogsCode, cogsName = row.Code, row.Name
				if realized.GreaterThan(accounting.Tolerance) {
					expense.add(IncomeStatementAccount{Code: row.Code, Name: row.Name, Amount: realized, Recomputed: true})
				}
				continue
			}
			if amount.GreaterThan(accounting.Tolerance) {
				expense.add(IncomeStatementAccount{Code: row.Code, Name: row.Name, Amount: amount})
			}
		}
	}
	if cogsCode == "" && realized.GreaterThan(accounting.Tolerance) {
		expense.add(IncomeStatementAccount{Name: cogsName, Amount: realized, Recomputed: true})
	}

	return IncomeStatement{
		From:         tb.Filter.From,
		To:           tb.Filter.To,
		Revenue:      revenue,
		Expense:      expense,
		COGS:         realized,
		COGSLedger:   cogsLedger,
		COGSVariance: realized.Sub(cogsLedger),
		NetIncome:    revenue.Total.Sub(expense.Total),
	}
}
