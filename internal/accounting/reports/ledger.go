package reports

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
)

// LedgerMovement is one journal line as it appears on an account card.
type LedgerMovement struct {
	Date           time.Time       `json:"date"`
	Sequence       int64           `json:"sequence"`
	EntryID        uuid.UUID       `json:"entry_id"`
	Description    string          `json:"description"`
	Reference      string          `json:"reference"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	Voided         bool            `json:"voided,omitempty"`
	Reversal       bool            `json:"reversal,omitempty"`
}

// LedgerAccountView aggregates movements for one account. Balances are
// expressed on the account's normal side.
type LedgerAccountView struct {
	Code        string                 `json:"code"`
	Name        string                 `json:"name"`
	Type        accounting.AccountType `json:"type"`
	Opening     decimal.Decimal        `json:"opening"`
	Movements   []LedgerMovement       `json:"movements"`
	TotalDebit  decimal.Decimal        `json:"total_debit"`
	TotalCredit decimal.Decimal        `json:"total_credit"`
	Balance     decimal.Decimal        `json:"balance"`
}

// LedgerOptions narrows the ledger view.
type LedgerOptions struct {
	From          time.Time
	To            time.Time
	AccountCode   string
	IncludeVoided bool
}

// BuildLedger folds effective entries into per-account views ordered by
// date then sequence. Entries before From feed the opening balance.
//
// The active view drops a voided entry together with its reversal when both
// fall inside the window; they net to zero so balances match the audit view.
func BuildLedger(chart *accounting.Chart, entries []accounting.JournalEntry, opts LedgerOptions) ([]LedgerAccountView, error) {
	sorted := effectiveEntries(entries)

	inWindow := make(map[uuid.UUID]bool, len(sorted))
	for _, e := range sorted {
		if withinRange(e.Date, opts.From, opts.To) {
			inWindow[e.ID] = true
		}
	}

	views := make(map[string]*LedgerAccountView)
	for _, e := range sorted {
		if !opts.To.IsZero() && e.Date.After(opts.To) {
			continue
		}
		opening := !opts.From.IsZero() && e.Date.Before(opts.From)
		hidden := !opts.IncludeVoided && !opening && pairedInWindow(e, inWindow)
		for _, line := range e.Lines {
			if opts.AccountCode != "" && line.AccountCode != opts.AccountCode {
				continue
			}
			view, err := ledgerView(views, chart, line.AccountCode)
			if err != nil {
				return nil, err
			}
			acc, _ := chart.Lookup(line.AccountCode)
			delta := signedAmount(acc.NormalSide, line.Debit, line.Credit)
			if opening {
				view.Opening = view.Opening.Add(delta)
				continue
			}
			if hidden {
				continue
			}
			view.TotalDebit = view.TotalDebit.Add(line.Debit)
			view.TotalCredit = view.TotalCredit.Add(line.Credit)
			view.Movements = append(view.Movements, LedgerMovement{
				Date:        e.Date,
				Sequence:    e.Sequence,
				EntryID:     e.ID,
				Description: e.Description,
				Reference:   e.Reference(),
				Debit:       line.Debit,
				Credit:      line.Credit,
				Voided:      e.Status == accounting.EntryStatusVoided,
				Reversal:    e.IsReversal(),
			})
		}
	}

	out := make([]LedgerAccountView, 0, len(views))
	for _, view := range views {
		acc, _ := chart.Lookup(view.Code)
		running := view.Opening
		for i := range view.Movements {
			m := &view.Movements[i]
			running = running.Add(signedAmount(acc.NormalSide, m.Debit, m.Credit))
			m.RunningBalance = running
		}
		view.Balance = running
		out = append(out, *view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func ledgerView(views map[string]*LedgerAccountView, chart *accounting.Chart, code string) (*LedgerAccountView, error) {
	if view, ok := views[code]; ok {
		return view, nil
	}
	acc, err := chart.Lookup(code)
	if err != nil {
		return nil, err
	}
	view := &LedgerAccountView{Code: acc.Code, Name: acc.Name, Type: acc.Type}
	views[code] = view
	return view, nil
}

// pairedInWindow reports whether e is half of a void pair fully inside the
// window.
func pairedInWindow(e accounting.JournalEntry, inWindow map[uuid.UUID]bool) bool {
	if e.Status == accounting.EntryStatusVoided && e.VoidedBy != nil {
		return inWindow[*e.VoidedBy]
	}
	if e.IsReversal() {
		return inWindow[*e.ReversalOf]
	}
	return false
}

func effectiveEntries(entries []accounting.JournalEntry) []accounting.JournalEntry {
	out := make([]accounting.JournalEntry, 0, len(entries))
	for _, e := range entries {
		if e.Effective() {
			out = append(out, e)
		}
	}
	accounting.SortEntries(out)
	return out
}

func withinRange(date, from, to time.Time) bool {
	if !from.IsZero() && date.Before(from) {
		return false
	}
	if !to.IsZero() && date.After(to) {
		return false
	}
	return true
}

func signedAmount(side accounting.NormalSide, debit, credit decimal.Decimal) decimal.Decimal {
	if side == accounting.NormalSideCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}
