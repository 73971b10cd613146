package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ConceptKind tells how a concept moves money.
type ConceptKind string

const (
	ConceptEarning              ConceptKind = "EARNING"
	ConceptDeduction            ConceptKind = "DEDUCTION"
	ConceptEmployerContribution ConceptKind = "EMPLOYER_CONTRIBUTION"
)

// Concept is one line type on a payslip.
type Concept struct {
	Code    string      `json:"code" validate:"required,max=32"`
	Name    string      `json:"name"`
	Kind    ConceptKind `json:"kind" validate:"required,oneof=EARNING DEDUCTION EMPLOYER_CONTRIBUTION"`
	Formula Formula     `json:"formula"`
}

// Employee carries the salary and per-period inputs for named formulas.
// Inputs are keyed by concept code, then input name.
type Employee struct {
	ID         string                                `json:"id" validate:"required"`
	Name       string                                `json:"name"`
	BaseSalary decimal.Decimal                       `json:"base_salary"`
	Inputs     map[string]map[string]decimal.Decimal `json:"inputs,omitempty"`
}

// Run is one payroll period for a set of employees.
type Run struct {
	Period    string     `json:"period" validate:"required"`
	Date      time.Time  `json:"date" validate:"required"`
	Concepts  []Concept  `json:"concepts" validate:"required,min=1,dive"`
	Employees []Employee `json:"employees" validate:"required,min=1,dive"`
}

// PayslipLine is one evaluated concept.
type PayslipLine struct {
	Code   string          `json:"code"`
	Kind   ConceptKind     `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

// Payslip totals one employee.
type Payslip struct {
	EmployeeID    string          `json:"employee_id"`
	Lines         []PayslipLine   `json:"lines"`
	Gross         decimal.Decimal `json:"gross"`
	Deductions    decimal.Decimal `json:"deductions"`
	Contributions decimal.Decimal `json:"contributions"`
	Net           decimal.Decimal `json:"net"`
}

// Summary totals a run.
type Summary struct {
	Period        string          `json:"period"`
	Payslips      []Payslip       `json:"payslips"`
	Gross         decimal.Decimal `json:"gross"`
	Deductions    decimal.Decimal `json:"deductions"`
	Contributions decimal.Decimal `json:"contributions"`
	Net           decimal.Decimal `json:"net"`
}

// Withholdings is what the employer owes third parties.
func (s Summary) Withholdings() decimal.Decimal {
	return s.Deductions.Add(s.Contributions)
}

// Evaluate computes every payslip of the run.
func Evaluate(run Run) (Summary, error) {
	concepts, err := index(run.Concepts)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Period: run.Period}
	for _, emp := range run.Employees {
		slip, err := evaluateEmployee(concepts, run.Concepts, emp)
		if err != nil {
			return Summary{}, fmt.Errorf("employee %s: %w", emp.ID, err)
		}
		summary.Payslips = append(summary.Payslips, slip)
		summary.Gross = summary.Gross.Add(slip.Gross)
		summary.Deductions = summary.Deductions.Add(slip.Deductions)
		summary.Contributions = summary.Contributions.Add(slip.Contributions)
		summary.Net = summary.Net.Add(slip.Net)
	}
	return summary, nil
}

func index(list []Concept) (map[string]Concept, error) {
	out := make(map[string]Concept, len(list))
	for _, c := range list {
		code := strings.TrimSpace(c.Code)
		if code == "" || code == BaseSalary || code == BaseGross {
			return nil, fmt.Errorf("%w: concept code %q is reserved or empty", ErrInvalidFormula, c.Code)
		}
		if _, dup := out[code]; dup {
			return nil, fmt.Errorf("%w: duplicate concept %q", ErrInvalidFormula, code)
		}
		switch c.Kind {
		case ConceptEarning, ConceptDeduction, ConceptEmployerContribution:
		default:
			return nil, fmt.Errorf("%w: concept %s has unknown kind %q", ErrInvalidFormula, code, c.Kind)
		}
		out[code] = c
	}
	return out, nil
}

type evaluator struct {
	concepts map[string]Concept
	employee Employee
	values   map[string]decimal.Decimal
	visiting map[string]bool
}

func evaluateEmployee(concepts map[string]Concept, order []Concept, emp Employee) (Payslip, error) {
	ev := &evaluator{
		concepts: concepts,
		employee: emp,
		values:   make(map[string]decimal.Decimal),
		visiting: make(map[string]bool),
	}
	slip := Payslip{EmployeeID: emp.ID}
	for _, c := range order {
		amount, err := ev.resolve(c.Code)
		if err != nil {
			return Payslip{}, err
		}
		slip.Lines = append(slip.Lines, PayslipLine{Code: c.Code, Kind: c.Kind, Amount: amount})
		switch c.Kind {
		case ConceptEarning:
			slip.Gross = slip.Gross.Add(amount)
		case ConceptDeduction:
			slip.Deductions = slip.Deductions.Add(amount)
		case ConceptEmployerContribution:
			slip.Contributions = slip.Contributions.Add(amount)
		}
	}
	slip.Net = slip.Gross.Sub(slip.Deductions)
	if slip.Net.IsNegative() {
		return Payslip{}, fmt.Errorf("%w: deductions %s exceed gross %s", ErrInvalidFormula, slip.Deductions.StringFixed(2), slip.Gross.StringFixed(2))
	}
	return slip, nil
}

// resolve returns the value of a base or concept, detecting cycles.
func (ev *evaluator) resolve(name string) (decimal.Decimal, error) {
	if name == BaseSalary {
		return ev.employee.BaseSalary, nil
	}
	if v, ok := ev.values[name]; ok {
		return v, nil
	}
	if ev.visiting[name] {
		return decimal.Zero, fmt.Errorf("%w: cycle through %q", ErrInvalidFormula, name)
	}
	ev.visiting[name] = true
	defer delete(ev.visiting, name)

	var (
		v   decimal.Decimal
		err error
	)
	if name == BaseGross {
		v, err = ev.gross()
	} else {
		c, ok := ev.concepts[name]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: unknown base %q", ErrInvalidFormula, name)
		}
		v, err = ev.apply(c)
	}
	if err != nil {
		return decimal.Zero, err
	}
	v = v.Round(2)
	ev.values[name] = v
	return v, nil
}

func (ev *evaluator) gross() (decimal.Decimal, error) {
	total := decimal.Zero
	for code, c := range ev.concepts {
		if c.Kind != ConceptEarning {
			continue
		}
		v, err := ev.resolve(code)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

func (ev *evaluator) apply(c Concept) (decimal.Decimal, error) {
	f := c.Formula
	var (
		v   decimal.Decimal
		err error
	)
	switch f.Kind {
	case FormulaFixedAmount:
		v = f.Amount
	case FormulaPercentageOfBase:
		if f.Base == "" {
			return decimal.Zero, fmt.Errorf("%w: concept %s has no base", ErrInvalidFormula, c.Code)
		}
		base, err := ev.resolve(f.Base)
		if err != nil {
			return decimal.Zero, err
		}
		v = base.Mul(f.Rate)
	case FormulaNamed:
		fn, ok := namedRegistry[f.Name]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: unknown computation %q", ErrInvalidFormula, f.Name)
		}
		merged := make(inputs, len(f.Inputs))
		for k, val := range f.Inputs {
			merged[k] = val
		}
		for k, val := range ev.employee.Inputs[c.Code] {
			merged[k] = val
		}
		if v, err = fn(ev.employee.BaseSalary, merged); err != nil {
			return decimal.Zero, fmt.Errorf("concept %s: %w", c.Code, err)
		}
	default:
		return decimal.Zero, fmt.Errorf("%w: concept %s has unknown kind %q", ErrInvalidFormula, c.Code, f.Kind)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: concept %s evaluates negative", ErrInvalidFormula, c.Code)
	}
	return v, nil
}
