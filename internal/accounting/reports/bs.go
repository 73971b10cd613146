package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
)

// PeriodResultLabel names the synthetic equity line carrying profit or loss.
const PeriodResultLabel = "Current period result"

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	Code      string          `json:"code,omitempty"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Synthetic bool            `json:"synthetic,omitempty"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

func (s *BalanceSheetSection) add(row BalanceSheetAccount) {
	s.Accounts = append(s.Accounts, row)
	s.Total = s.Total.Add(row.Balance)
}

// InventoryReconciliation compares the inventory ledger balance with the
// valuation of items on hand. Variance is physical minus ledger.
type InventoryReconciliation struct {
	Ledger   decimal.Decimal `json:"ledger"`
	Physical decimal.Decimal `json:"physical"`
	Variance decimal.Decimal `json:"variance"`
}

// Drifted reports whether the variance exceeds tolerance.
func (r InventoryReconciliation) Drifted() bool {
	return !accounting.WithinTolerance(r.Ledger, r.Physical)
}

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	AsOf                      time.Time               `json:"as_of"`
	Assets                    BalanceSheetSection     `json:"assets"`
	Liabilities               BalanceSheetSection     `json:"liabilities"`
	Equity                    BalanceSheetSection     `json:"equity"`
	PeriodResult              decimal.Decimal         `json:"period_result"`
	TotalLiabilitiesAndEquity decimal.Decimal         `json:"total_liabilities_and_equity"`
	Inventory                 InventoryReconciliation `json:"inventory"`
	BalancedEquation          bool                    `json:"balanced_equation"`
}

// BuildBalanceSheet classifies trial balance rows by account type. The trial
// balance must cover every account up to the statement date.
func BuildBalanceSheet(tb TrialBalance, physicalInventory decimal.Decimal, asOf time.Time) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	equity := BalanceSheetSection{Label: "Equity"}
	var overdrawn []BalanceSheetAccount
	var result, inventoryLedger decimal.Decimal

	for _, row := range tb.Rows {
		switch row.Type {
		case accounting.AccountTypeAsset:
			balance := row.Net()
			if row.Role == accounting.RoleInventory {
				inventoryLedger = inventoryLedger.Add(balance)
			}
			if balance.IsNegative() {
				overdrawn = append(overdrawn, BalanceSheetAccount{Code: row.Code, Name: row.Name + " (credit balance)", Balance: balance.Neg()})
				assets.add(BalanceSheetAccount{Code: row.Code, Name: row.Name, Balance: decimal.Zero})
				continue
			}
			assets.add(BalanceSheetAccount{Code: row.Code, Name: row.Name, Balance: balance})
		case accounting.AccountTypeLiability:
			liabilities.add(BalanceSheetAccount{Code: row.Code, Name: row.Name, Balance: row.Net().Neg()})
		case accounting.AccountTypeEquity:
			equity.add(BalanceSheetAccount{Code: row.Code, Name: row.Name, Balance: row.Net().Neg()})
		case accounting.AccountTypeRevenue:
			result = result.Add(row.Net().Neg())
		case accounting.AccountTypeExpense:
			result = result.Sub(row.Net())
		}
	}
	for _, row := range overdrawn {
		liabilities.add(row)
	}
	equity.add(BalanceSheetAccount{Name: PeriodResultLabel, Balance: result, Synthetic: true})

	total := liabilities.Total.Add(equity.Total)
	physical := accounting.RoundMoney(physicalInventory)
	return BalanceSheet{
		AsOf:                      asOf,
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		PeriodResult:              result,
		TotalLiabilitiesAndEquity: total,
		Inventory: InventoryReconciliation{
			Ledger:   inventoryLedger,
			Physical: physical,
			Variance: physical.Sub(inventoryLedger),
		},
		BalancedEquation: accounting.WithinTolerance(assets.Total, total),
	}
}
