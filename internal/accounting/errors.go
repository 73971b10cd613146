package accounting

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrStructuralImbalance indicates debit != credit on a proposed entry.
	ErrStructuralImbalance = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrInvalidLine indicates a negative or double-sided line.
	ErrInvalidLine = errors.New("accounting: invalid journal line")
	// ErrAmountMismatch indicates supplied document amounts do not reconcile.
	ErrAmountMismatch = errors.New("accounting: amounts do not reconcile")
	// ErrAccountNotFound indicates an undefined account code or role.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrReportingInconsistency indicates aggregated totals failed to reconcile.
	ErrReportingInconsistency = errors.New("accounting: reporting inconsistency")
	// ErrEntryNotFound indicates missing entry.
	ErrEntryNotFound = errors.New("accounting: journal entry not found")
	// ErrAlreadyVoided indicates the entry was voided before.
	ErrAlreadyVoided = errors.New("accounting: journal entry already voided")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrDocumentNotFound indicates no posted entry references the document.
	ErrDocumentNotFound = errors.New("accounting: source document not found")
	// ErrDocumentSettled indicates the document is already paid.
	ErrDocumentSettled = errors.New("accounting: source document already settled")
	// ErrDuplicateDocument indicates the source document was already recorded.
	ErrDuplicateDocument = errors.New("accounting: source document already recorded")
	// ErrSequenceConflict indicates a duplicate sequence number on append.
	ErrSequenceConflict = errors.New("accounting: sequence conflict")
)

// PostingError carries enough context to locate the offending transaction.
type PostingError struct {
	Op          string
	EntryID     uuid.UUID
	Reference   string
	AccountCode string
	Detail      string
	Err         error
}

func (e *PostingError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		fmt.Fprintf(&b, " (%s)", e.Detail)
	}
	if e.AccountCode != "" {
		fmt.Fprintf(&b, " account=%s", e.AccountCode)
	}
	if e.EntryID != uuid.Nil {
		fmt.Fprintf(&b, " entry=%s", e.EntryID)
	}
	if e.Reference != "" {
		fmt.Fprintf(&b, " ref=%s", e.Reference)
	}
	return b.String()
}

func (e *PostingError) Unwrap() error { return e.Err }
