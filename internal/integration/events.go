package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
)

// Terms tells whether a document settles immediately or on account.
type Terms string

const (
	TermsCash   Terms = "CASH"
	TermsCredit Terms = "CREDIT"
)

// Method names the money account a settlement goes through.
type Method string

const (
	MethodCash Method = "CASH"
	MethodBank Method = "BANK"
)

// SaleLine is one line of a sales invoice. ItemID links it to stock.
type SaleLine struct {
	ItemID      *uuid.UUID      `json:"item_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Sale is a sales invoice ready for posting. Zero Subtotal, Tax or Total
// are derived; supplied ones must reconcile.
type Sale struct {
	ID       uuid.UUID        `json:"id"`
	Number   string           `json:"number" validate:"required,max=64"`
	Date     time.Time        `json:"date" validate:"required"`
	Customer string           `json:"customer"`
	Terms    Terms            `json:"terms" validate:"omitempty,oneof=CASH CREDIT"`
	Method   Method           `json:"method" validate:"omitempty,oneof=CASH BANK"`
	Lines    []SaleLine       `json:"lines" validate:"required,min=1,dive"`
	Subtotal decimal.Decimal  `json:"subtotal"`
	Tax      decimal.Decimal  `json:"tax"`
	Total    decimal.Decimal  `json:"total"`
	VATRate  *decimal.Decimal `json:"vat_rate,omitempty"`
}

// PurchaseLine is one line of a supplier bill. Lines without an item are
// charged to ExpenseAccount, or the operating expense account.
type PurchaseLine struct {
	ItemID         *uuid.UUID      `json:"item_id,omitempty"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	ExpenseAccount string          `json:"expense_account,omitempty"`
}

// Purchase is a supplier bill ready for posting.
type Purchase struct {
	ID       uuid.UUID        `json:"id"`
	Number   string           `json:"number" validate:"required,max=64"`
	Date     time.Time        `json:"date" validate:"required"`
	Supplier string           `json:"supplier"`
	Terms    Terms            `json:"terms" validate:"omitempty,oneof=CASH CREDIT"`
	Method   Method           `json:"method" validate:"omitempty,oneof=CASH BANK"`
	Lines    []PurchaseLine   `json:"lines" validate:"required,min=1,dive"`
	Subtotal decimal.Decimal  `json:"subtotal"`
	Tax      decimal.Decimal  `json:"tax"`
	Total    decimal.Decimal  `json:"total"`
	VATRate  *decimal.Decimal `json:"vat_rate,omitempty"`
}

// Payment settles an open credit document.
type Payment struct {
	DocumentID uuid.UUID       `json:"document_id" validate:"required"`
	Date       time.Time       `json:"date" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Method     Method          `json:"method" validate:"omitempty,oneof=CASH BANK"`
	Reference  string          `json:"reference"`
}

// ManualEntry is a free-form journal posted by a user.
type ManualEntry struct {
	Date        time.Time                     `json:"date" validate:"required"`
	Description string                        `json:"description" validate:"required"`
	Reference   string                        `json:"reference"`
	Lines       []accounting.PostingLineInput `json:"lines" validate:"required,min=2"`
}

// Posting is one journal entry plus the stock movements applied with it.
// Linked movements carry the entry's value already; unlinked ones each post
// their own inventory entry.
type Posting struct {
	Entry     accounting.PostingInput
	Movements []inventory.MovementRequest
	Linked    bool
}

// DocumentID returns id, or a stable id derived from kind and number.
func DocumentID(id uuid.UUID, kind, number string) uuid.UUID {
	if id != uuid.Nil {
		return id
	}
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%s", kind, number)))
}
