package payroll

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidFormula indicates an unknown formula kind, base, named
// computation, or a cycle between concepts.
var ErrInvalidFormula = errors.New("payroll: invalid formula")

// FormulaKind enumerates the supported computations.
type FormulaKind string

const (
	FormulaPercentageOfBase FormulaKind = "PERCENTAGE_OF_BASE"
	FormulaFixedAmount      FormulaKind = "FIXED_AMOUNT"
	FormulaNamed            FormulaKind = "NAMED"
)

// Reserved bases. Any other base must be the code of another concept.
const (
	BaseSalary = "salary"
	BaseGross  = "gross"
)

// Formula describes how a concept amount is computed. Only the fields of
// its kind are read.
type Formula struct {
	Kind   FormulaKind                `json:"kind" validate:"required,oneof=PERCENTAGE_OF_BASE FIXED_AMOUNT NAMED"`
	Rate   decimal.Decimal            `json:"rate,omitempty"`
	Base   string                     `json:"base,omitempty"`
	Amount decimal.Decimal            `json:"amount,omitempty"`
	Name   string                     `json:"name,omitempty"`
	Inputs map[string]decimal.Decimal `json:"inputs,omitempty"`
}

// Percentage builds a PERCENTAGE_OF_BASE formula.
func Percentage(rate decimal.Decimal, base string) Formula {
	return Formula{Kind: FormulaPercentageOfBase, Rate: rate, Base: base}
}

// Fixed builds a FIXED_AMOUNT formula.
func Fixed(amount decimal.Decimal) Formula {
	return Formula{Kind: FormulaFixedAmount, Amount: amount}
}

// Named builds a NAMED formula.
func Named(name string, inputs map[string]decimal.Decimal) Formula {
	return Formula{Kind: FormulaNamed, Name: name, Inputs: inputs}
}

// namedFunc computes an amount from the employee's salary and merged inputs.
type namedFunc func(salary decimal.Decimal, in inputs) (decimal.Decimal, error)

var namedRegistry = map[string]namedFunc{
	"overtime":   overtime,
	"hours_rate": hoursRate,
	"per_diem":   perDiem,
}

// NamedComputations lists the registered names.
func NamedComputations() []string {
	return []string{"hours_rate", "overtime", "per_diem"}
}

type inputs map[string]decimal.Decimal

func (in inputs) require(key string) (decimal.Decimal, error) {
	v, ok := in[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: missing input %q", ErrInvalidFormula, key)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative input %q", ErrInvalidFormula, key)
	}
	return v, nil
}

func (in inputs) or(key string, fallback decimal.Decimal) decimal.Decimal {
	if v, ok := in[key]; ok {
		return v
	}
	return fallback
}

var (
	defaultMonthlyHours = decimal.NewFromInt(240)
	defaultOvertimeRate = decimal.RequireFromString("1.5")
)

// overtime pays hours at the hourly salary times a premium factor.
func overtime(salary decimal.Decimal, in inputs) (decimal.Decimal, error) {
	hours, err := in.require("hours")
	if err != nil {
		return decimal.Zero, err
	}
	monthly := in.or("monthly_hours", defaultMonthlyHours)
	if !monthly.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: monthly_hours must be positive", ErrInvalidFormula)
	}
	factor := in.or("factor", defaultOvertimeRate)
	return salary.Div(monthly).Mul(hours).Mul(factor), nil
}

func hoursRate(_ decimal.Decimal, in inputs) (decimal.Decimal, error) {
	hours, err := in.require("hours")
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := in.require("rate")
	if err != nil {
		return decimal.Zero, err
	}
	return hours.Mul(rate), nil
}

func perDiem(_ decimal.Decimal, in inputs) (decimal.Decimal, error) {
	days, err := in.require("days")
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := in.require("daily_rate")
	if err != nil {
		return decimal.Zero, err
	}
	return days.Mul(rate), nil
}
