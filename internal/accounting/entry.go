package accounting

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// Tolerance is the largest difference still treated as equal when comparing
// monetary totals.
var Tolerance = decimal.NewFromFloat(0.01)

// RoundMoney rounds to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithinTolerance reports whether a and b differ by less than Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Tolerance)
}

// Validate ensures posting input meets minimum criteria without a chart.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date required", ErrInvalidLine)
	}
	var debit, credit decimal.Decimal
	for idx, line := range in.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			return &PostingError{Op: "validate", Reference: in.ExternalReference, Detail: fmt.Sprintf("line %d missing account", idx), Err: ErrInvalidLine}
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return &PostingError{Op: "validate", Reference: in.ExternalReference, AccountCode: line.AccountCode, Detail: fmt.Sprintf("line %d negative amount", idx), Err: ErrInvalidLine}
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return &PostingError{Op: "validate", Reference: in.ExternalReference, AccountCode: line.AccountCode, Detail: fmt.Sprintf("line %d cannot be both debit and credit", idx), Err: ErrInvalidLine}
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return &PostingError{Op: "validate", Reference: in.ExternalReference, AccountCode: line.AccountCode, Detail: fmt.Sprintf("line %d has no amount", idx), Err: ErrInvalidLine}
		}
		debit = debit.Add(RoundMoney(line.Debit))
		credit = credit.Add(RoundMoney(line.Credit))
	}
	if !WithinTolerance(debit, credit) {
		return &PostingError{
			Op:        "validate",
			Reference: in.ExternalReference,
			Detail:    fmt.Sprintf("debit=%s credit=%s", debit.StringFixed(2), credit.StringFixed(2)),
			Err:       ErrStructuralImbalance,
		}
	}
	return nil
}

// BuildEntry validates input against the chart and returns a draft entry
// with name snapshots and totals filled in.
func BuildEntry(chart *Chart, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	origin := in.Origin
	if origin == "" {
		origin = OriginManual
	}
	entry := JournalEntry{
		ID:                uuid.New(),
		Date:              in.Date,
		Description:       in.Description,
		ExternalReference: in.ExternalReference,
		Status:            EntryStatusDraft,
		Origin:            origin,
		OriginDocumentID:  in.OriginDocumentID,
		ReversalOf:        in.ReversalOf,
		ReversedOrigin:    in.ReversedOrigin,
		Lines:             make([]JournalLine, 0, len(in.Lines)),
	}
	for _, line := range in.Lines {
		acc, err := chart.Lookup(line.AccountCode)
		if err != nil {
			return JournalEntry{}, &PostingError{Op: "build entry", Reference: in.ExternalReference, AccountCode: line.AccountCode, Err: ErrAccountNotFound}
		}
		jl := JournalLine{
			AccountCode: acc.Code,
			AccountName: acc.Name,
			Debit:       RoundMoney(line.Debit),
			Credit:      RoundMoney(line.Credit),
			Memo:        line.Memo,
		}
		entry.TotalDebit = entry.TotalDebit.Add(jl.Debit)
		entry.TotalCredit = entry.TotalCredit.Add(jl.Credit)
		entry.Lines = append(entry.Lines, jl)
	}
	return entry, nil
}

// Seal marks a draft as posted with its final sequence and checksum.
func Seal(entry JournalEntry, sequence int64, at time.Time) JournalEntry {
	entry.Sequence = sequence
	entry.Status = EntryStatusPosted
	entry.PostedAt = at.UTC()
	entry.Checksum = Checksum(entry)
	return entry
}

// Checksum fingerprints the immutable part of a posted entry.
func Checksum(e JournalEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%s|%s|%s|", e.ID, e.Sequence, e.Date.UTC().Format(time.RFC3339), e.Origin, e.ExternalReference)
	if e.OriginDocumentID != nil {
		b.WriteString(e.OriginDocumentID.String())
	}
	b.WriteByte('|')
	if e.ReversalOf != nil {
		b.WriteString(e.ReversalOf.String())
	}
	for _, l := range e.Lines {
		fmt.Fprintf(&b, "|%s:%s:%s", l.AccountCode, l.Debit.StringFixed(2), l.Credit.StringFixed(2))
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether a stored entry still matches its checksum.
func VerifyChecksum(e JournalEntry) bool {
	return e.Checksum != "" && e.Checksum == Checksum(e)
}

// MirrorLines swaps debit and credit on every line.
func MirrorLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Memo:        line.Memo,
		})
	}
	return out
}

// Balanced re-checks the posted-entry invariant.
func (e JournalEntry) Balanced() bool {
	var debit, credit decimal.Decimal
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return WithinTolerance(debit, credit) && WithinTolerance(debit, e.TotalDebit) && WithinTolerance(credit, e.TotalCredit)
}
