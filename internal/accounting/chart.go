package accounting

import (
	"fmt"
	"sort"
	"strings"
)

// AccountRole links integration keys to ledger accounts.
type AccountRole string

const (
	RoleCash                   AccountRole = "cash"
	RoleBank                   AccountRole = "bank"
	RoleReceivable             AccountRole = "receivable"
	RoleInventory              AccountRole = "inventory"
	RoleInputVAT               AccountRole = "input_vat"
	RolePayable                AccountRole = "payable"
	RoleVATPayable             AccountRole = "vat_payable"
	RoleSalariesPayable        AccountRole = "salaries_payable"
	RoleWithholdingsPayable    AccountRole = "withholdings_payable"
	RoleEquityCapital          AccountRole = "equity_capital"
	RoleRetainedEarnings       AccountRole = "retained_earnings"
	RoleRevenue                AccountRole = "revenue"
	RoleCOGS                   AccountRole = "cogs"
	RoleOperatingExpense       AccountRole = "operating_expense"
	RoleSalariesExpense        AccountRole = "salaries_expense"
	RoleEmployerContribExpense AccountRole = "employer_contrib_expense"
	RoleInventoryGain          AccountRole = "inventory_gain"
	RoleInventoryLoss          AccountRole = "inventory_loss"
)

// Chart is the immutable chart of accounts for one ledger.
type Chart struct {
	accounts map[string]Account
	roles    map[AccountRole]string
	codes    []string
}

// NewChart indexes accounts and fixes their type and normal side once.
// Accounts without an explicit type are classified by the leading digit of
// their code here and nowhere else.
func NewChart(accounts []Account) (*Chart, error) {
	c := &Chart{
		accounts: make(map[string]Account, len(accounts)),
		roles:    make(map[AccountRole]string),
	}
	for _, acc := range accounts {
		acc.Code = strings.TrimSpace(acc.Code)
		if acc.Code == "" {
			return nil, fmt.Errorf("accounting: account code required for %q", acc.Name)
		}
		if _, dup := c.accounts[acc.Code]; dup {
			return nil, fmt.Errorf("accounting: duplicate account code %s", acc.Code)
		}
		if acc.Type == "" {
			t, err := ClassifyCode(acc.Code)
			if err != nil {
				return nil, err
			}
			acc.Type = t
		}
		if !acc.Type.Valid() {
			return nil, fmt.Errorf("accounting: account %s has invalid type %q", acc.Code, acc.Type)
		}
		if acc.NormalSide == "" {
			acc.NormalSide = normalSideFor(acc.Type)
		}
		if acc.Role != "" {
			if prev, taken := c.roles[acc.Role]; taken {
				return nil, fmt.Errorf("accounting: role %s mapped to both %s and %s", acc.Role, prev, acc.Code)
			}
			c.roles[acc.Role] = acc.Code
		}
		c.accounts[acc.Code] = acc
		c.codes = append(c.codes, acc.Code)
	}
	sort.Strings(c.codes)
	return c, nil
}

// ClassifyCode derives the account type from the leading digit of a code.
func ClassifyCode(code string) (AccountType, error) {
	if code == "" {
		return "", fmt.Errorf("%w: empty code", ErrAccountNotFound)
	}
	switch code[0] {
	case '1':
		return AccountTypeAsset, nil
	case '2':
		return AccountTypeLiability, nil
	case '3':
		return AccountTypeEquity, nil
	case '4':
		return AccountTypeRevenue, nil
	case '5', '6':
		return AccountTypeExpense, nil
	}
	return "", fmt.Errorf("accounting: cannot classify account code %s", code)
}

func normalSideFor(t AccountType) NormalSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalSideDebit
	default:
		return NormalSideCredit
	}
}

// Lookup resolves an account by code.
func (c *Chart) Lookup(code string) (Account, error) {
	acc, ok := c.accounts[code]
	if !ok {
		return Account{}, &PostingError{Op: "lookup", AccountCode: code, Err: ErrAccountNotFound}
	}
	return acc, nil
}

// ByRole resolves the account mapped to a role.
func (c *Chart) ByRole(role AccountRole) (Account, error) {
	code, ok := c.roles[role]
	if !ok {
		return Account{}, &PostingError{Op: "lookup", Detail: "role " + string(role), Err: ErrAccountNotFound}
	}
	return c.accounts[code], nil
}

// HasRole reports whether code is mapped to role.
func (c *Chart) HasRole(code string, role AccountRole) bool {
	return c.roles[role] == code && code != ""
}

// Accounts returns all accounts ordered by code.
func (c *Chart) Accounts() []Account {
	out := make([]Account, 0, len(c.codes))
	for _, code := range c.codes {
		out = append(out, c.accounts[code])
	}
	return out
}

// DefaultChart returns the small-business chart shipped with the engine.
func DefaultChart() *Chart {
	chart, err := NewChart([]Account{
		{Code: "1101", Name: "Cash", Role: RoleCash},
		{Code: "1102", Name: "Bank", Role: RoleBank},
		{Code: "1201", Name: "Accounts Receivable", Role: RoleReceivable},
		{Code: "1301", Name: "Inventory", Role: RoleInventory},
		{Code: "1401", Name: "Input VAT", Role: RoleInputVAT},
		{Code: "1501", Name: "Equipment"},
		{Code: "2101", Name: "Accounts Payable", Role: RolePayable},
		{Code: "2201", Name: "VAT Payable", Role: RoleVATPayable},
		{Code: "2301", Name: "Salaries Payable", Role: RoleSalariesPayable},
		{Code: "2302", Name: "Payroll Withholdings Payable", Role: RoleWithholdingsPayable},
		{Code: "3101", Name: "Owner's Capital", Role: RoleEquityCapital},
		{Code: "3201", Name: "Retained Earnings", Role: RoleRetainedEarnings},
		{Code: "4101", Name: "Sales Revenue", Role: RoleRevenue},
		{Code: "4201", Name: "Inventory Gains", Role: RoleInventoryGain},
		{Code: "5101", Name: "Cost of Goods Sold", Role: RoleCOGS},
		{Code: "5201", Name: "Inventory Shrinkage", Role: RoleInventoryLoss},
		{Code: "6101", Name: "Salaries Expense", Role: RoleSalariesExpense},
		{Code: "6102", Name: "Employer Contributions", Role: RoleEmployerContribExpense},
		{Code: "6201", Name: "General Expenses", Role: RoleOperatingExpense},
	})
	if err != nil {
		panic(err)
	}
	return chart
}
