package integration

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/payroll"
)

// GeneratePayrollEntry evaluates the run and books it as a single entry:
// gross and employer contributions as expense, withholdings and net pay as
// liabilities.
func (g *Generator) GeneratePayrollEntry(run payroll.Run) (accounting.PostingInput, payroll.Summary, error) {
	if run.Date.IsZero() {
		return accounting.PostingInput{}, payroll.Summary{}, fmt.Errorf("%w: run date required", payroll.ErrInvalidFormula)
	}
	summary, err := payroll.Evaluate(run)
	if err != nil {
		return accounting.PostingInput{}, payroll.Summary{}, err
	}
	if !summary.Gross.IsPositive() {
		return accounting.PostingInput{}, payroll.Summary{}, &accounting.PostingError{Op: "payroll", Reference: run.Period, Detail: "gross is zero", Err: accounting.ErrAmountMismatch}
	}

	accounts := make(map[accounting.AccountRole]string, 4)
	for _, role := range []accounting.AccountRole{
		accounting.RoleSalariesExpense,
		accounting.RoleEmployerContribExpense,
		accounting.RoleWithholdingsPayable,
		accounting.RoleSalariesPayable,
	} {
		code, err := g.resolveAccount(role)
		if err != nil {
			return accounting.PostingInput{}, payroll.Summary{}, err
		}
		accounts[role] = code
	}

	gross := accounting.RoundMoney(summary.Gross)
	contributions := accounting.RoundMoney(summary.Contributions)
	withholdings := accounting.RoundMoney(summary.Withholdings())
	net := accounting.RoundMoney(summary.Net)

	lines := []accounting.PostingLineInput{
		{AccountCode: accounts[accounting.RoleSalariesExpense], Debit: gross, Memo: "gross pay"},
	}
	if contributions.IsPositive() {
		lines = append(lines, accounting.PostingLineInput{AccountCode: accounts[accounting.RoleEmployerContribExpense], Debit: contributions})
	}
	if withholdings.IsPositive() {
		lines = append(lines, accounting.PostingLineInput{AccountCode: accounts[accounting.RoleWithholdingsPayable], Credit: withholdings})
	}
	if net.IsPositive() {
		lines = append(lines, accounting.PostingLineInput{AccountCode: accounts[accounting.RoleSalariesPayable], Credit: net, Memo: "net pay"})
	}

	docID := DocumentID(uuid.Nil, "PAYROLL", run.Period)
	return accounting.PostingInput{
		Date:              run.Date,
		Description:       fmt.Sprintf("Payroll %s", run.Period),
		ExternalReference: "PAYROLL-" + run.Period,
		Origin:            accounting.OriginPayroll,
		OriginDocumentID:  &docID,
		Lines:             lines,
	}, summary, nil
}
