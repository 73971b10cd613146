package accounting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalSide tells on which side an account grows.
type NormalSide string

const (
	NormalSideDebit  NormalSide = "DEBIT"
	NormalSideCredit NormalSide = "CREDIT"
)

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoided EntryStatus = "VOIDED"
)

// EntryOrigin identifies the business event that produced an entry.
type EntryOrigin string

const (
	OriginManual       EntryOrigin = "MANUAL"
	OriginSale         EntryOrigin = "SALE"
	OriginPurchase     EntryOrigin = "PURCHASE"
	OriginPayment      EntryOrigin = "PAYMENT"
	OriginInventory    EntryOrigin = "INVENTORY"
	OriginVoidReversal EntryOrigin = "VOID_REVERSAL"
	OriginPayroll      EntryOrigin = "PAYROLL"
)

// Account models a chart of accounts node.
type Account struct {
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Type       AccountType `json:"type"`
	NormalSide NormalSide  `json:"normal_side"`
	Role       AccountRole `json:"role,omitempty"`
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo,omitempty"`
}

// JournalEntry captures posting metadata. Entries are never edited after
// posting; voiding appends a reversal and flips Status to VOIDED.
type JournalEntry struct {
	ID                uuid.UUID       `json:"id"`
	Sequence          int64           `json:"sequence"`
	Date              time.Time       `json:"date"`
	Description       string          `json:"description"`
	ExternalReference string          `json:"external_reference,omitempty"`
	TotalDebit        decimal.Decimal `json:"total_debit"`
	TotalCredit       decimal.Decimal `json:"total_credit"`
	Status            EntryStatus     `json:"status"`
	Origin            EntryOrigin     `json:"origin"`
	OriginDocumentID  *uuid.UUID      `json:"origin_document_id,omitempty"`
	ReversalOf        *uuid.UUID      `json:"reversal_of,omitempty"`
	ReversedOrigin    EntryOrigin     `json:"reversed_origin,omitempty"`
	VoidedBy          *uuid.UUID      `json:"voided_by,omitempty"`
	PostedAt          time.Time       `json:"posted_at"`
	Checksum          string          `json:"checksum"`
	Lines             []JournalLine   `json:"lines"`
}

// IsReversal reports whether the entry mirrors another one.
func (e JournalEntry) IsReversal() bool {
	return e.Origin == OriginVoidReversal && e.ReversalOf != nil
}

// Effective reports whether the entry counts towards balances. Voided
// originals still count because their reversal nets them out.
func (e JournalEntry) Effective() bool {
	return e.Status == EntryStatusPosted || e.Status == EntryStatusVoided
}

// BusinessOrigin returns the origin of the event the entry accounts for,
// following reversals back to the entry they mirror.
func (e JournalEntry) BusinessOrigin() EntryOrigin {
	if e.Origin == OriginVoidReversal && e.ReversedOrigin != "" {
		return e.ReversedOrigin
	}
	return e.Origin
}

// Reference returns a human label used in error messages and ledger rows.
func (e JournalEntry) Reference() string {
	if e.ExternalReference != "" {
		return e.ExternalReference
	}
	if e.Sequence > 0 {
		return fmt.Sprintf("JE-%06d", e.Sequence)
	}
	return e.ID.String()
}

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo,omitempty"`
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date              time.Time
	Description       string
	ExternalReference string
	Origin            EntryOrigin
	OriginDocumentID  *uuid.UUID
	ReversalOf        *uuid.UUID
	ReversedOrigin    EntryOrigin
	Lines             []PostingLineInput
}

// EntryFilter narrows journal listings. Zero values mean unbounded.
type EntryFilter struct {
	From       time.Time
	To         time.Time
	Statuses   []EntryStatus
	Origins    []EntryOrigin
	DocumentID *uuid.UUID
}

// Match reports whether the entry passes the filter.
func (f EntryFilter) Match(e JournalEntry) bool {
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, e.Status) {
		return false
	}
	if len(f.Origins) > 0 && !containsOrigin(f.Origins, e.Origin) {
		return false
	}
	if f.DocumentID != nil && (e.OriginDocumentID == nil || *e.OriginDocumentID != *f.DocumentID) {
		return false
	}
	return true
}

// PostedStatuses lists the statuses of entries that reached the ledger.
var PostedStatuses = []EntryStatus{EntryStatusPosted, EntryStatusVoided}

func containsStatus(list []EntryStatus, s EntryStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsOrigin(list []EntryOrigin, o EntryOrigin) bool {
	for _, v := range list {
		if v == o {
			return true
		}
	}
	return false
}
