package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement.
	MovementOut MovementType = "OUT"
)

// Reason records why stock moved.
type Reason string

const (
	ReasonPurchase     Reason = "purchase"
	ReasonSale         Reason = "sale"
	ReasonSaleVoid     Reason = "sale_void"
	ReasonPurchaseVoid Reason = "purchase_void"
	ReasonAdjustment   Reason = "adjustment"
	ReasonOpening      Reason = "opening"
	ReasonReturn       Reason = "return"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonPurchase, ReasonSale, ReasonSaleVoid, ReasonPurchaseVoid, ReasonAdjustment, ReasonOpening, ReasonReturn:
		return true
	}
	return false
}

// Item is a stock keeping unit valued at moving weighted-average cost.
type Item struct {
	ID              uuid.UUID       `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	QuantityOnHand  decimal.Decimal `json:"quantity_on_hand"`
	AverageUnitCost decimal.Decimal `json:"average_unit_cost"`
	ReorderPoint    decimal.Decimal `json:"reorder_point"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CarryingValue returns quantity times average cost, rounded to cents.
func (i Item) CarryingValue() decimal.Decimal {
	return roundMoney(i.QuantityOnHand.Mul(i.AverageUnitCost))
}

// BelowReorder reports whether stock fell to or under the reorder point.
func (i Item) BelowReorder() bool {
	return i.ReorderPoint.IsPositive() && i.QuantityOnHand.LessThanOrEqual(i.ReorderPoint)
}

// Movement is the immutable record of one stock change. Sequence is the
// order in which the store applied it, independent of the document date.
type Movement struct {
	ID            uuid.UUID       `json:"id"`
	ItemID        uuid.UUID       `json:"item_id"`
	Type          MovementType    `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	Value         decimal.Decimal `json:"value"`
	Reason        Reason          `json:"reason"`
	StockBefore   decimal.Decimal `json:"stock_before"`
	StockAfter    decimal.Decimal `json:"stock_after"`
	AvgCostBefore decimal.Decimal `json:"avg_cost_before"`
	AvgCostAfter  decimal.Decimal `json:"avg_cost_after"`
	EntryID       *uuid.UUID      `json:"entry_id,omitempty"`
	DocumentID    *uuid.UUID      `json:"document_id,omitempty"`
	Date          time.Time       `json:"date"`
	PostedAt      time.Time       `json:"posted_at"`
	Sequence      int64           `json:"sequence"`
	Memo          string          `json:"memo,omitempty"`
}

// MovementRequest asks the valuation module to move stock. UnitCost is
// required for inward movements and, for outward ones, turns the movement
// into a return at that cost instead of an issue at average cost.
type MovementRequest struct {
	ItemID     uuid.UUID
	Type       MovementType
	Quantity   decimal.Decimal
	UnitCost   *decimal.Decimal
	Reason     Reason
	DocumentID *uuid.UUID
	EntryID    *uuid.UUID
	Date       time.Time
	Memo       string
}

// Validate checks the request shape before any state is read.
func (r MovementRequest) Validate() error {
	if r.ItemID == uuid.Nil {
		return fmt.Errorf("%w: item id required", ErrItemNotFound)
	}
	if r.Type != MovementIn && r.Type != MovementOut {
		return fmt.Errorf("inventory: unknown movement type %q", r.Type)
	}
	if !r.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if r.Reason != "" && !r.Reason.Valid() {
		return fmt.Errorf("inventory: unknown reason %q", r.Reason)
	}
	if r.Type == MovementIn && r.UnitCost == nil {
		return fmt.Errorf("%w: inward movement needs a unit cost", ErrInvalidUnitCost)
	}
	if r.UnitCost != nil && r.UnitCost.IsNegative() {
		return ErrInvalidUnitCost
	}
	return nil
}

// CreateItemInput registers a new item, optionally with opening stock.
type CreateItemInput struct {
	Code            string          `json:"code" validate:"required,max=64"`
	Name            string          `json:"name" validate:"required,max=200"`
	ReorderPoint    decimal.Decimal `json:"reorder_point"`
	OpeningQuantity decimal.Decimal `json:"opening_quantity"`
	OpeningUnitCost decimal.Decimal `json:"opening_unit_cost"`
}

// MovementFilter narrows movement listings. Zero values mean unbounded.
type MovementFilter struct {
	ItemID     *uuid.UUID
	DocumentID *uuid.UUID
	EntryID    *uuid.UUID
	Reasons    []Reason
	From       time.Time
	To         time.Time
}

// Match reports whether m passes the filter.
func (f MovementFilter) Match(m Movement) bool {
	if f.ItemID != nil && m.ItemID != *f.ItemID {
		return false
	}
	if f.DocumentID != nil && (m.DocumentID == nil || *m.DocumentID != *f.DocumentID) {
		return false
	}
	if f.EntryID != nil && (m.EntryID == nil || *m.EntryID != *f.EntryID) {
		return false
	}
	if !f.From.IsZero() && m.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && m.Date.After(f.To) {
		return false
	}
	if len(f.Reasons) > 0 {
		for _, r := range f.Reasons {
			if r == m.Reason {
				return true
			}
		}
		return false
	}
	return true
}

var (
	// ErrInsufficientStock triggered when movement would result negative qty.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrItemNotFound indicates an unknown item.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrDuplicateItem indicates the item code is taken.
	ErrDuplicateItem = errors.New("inventory: item code already exists")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrValuationExceedsCarrying indicates a return worth more than the stock carried.
	ErrValuationExceedsCarrying = errors.New("inventory: movement value exceeds carrying value")
)

// StockError describes a rejected movement.
type StockError struct {
	ItemID    uuid.UUID
	ItemCode  string
	Requested decimal.Decimal
	OnHand    decimal.Decimal
	Err       error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s: item=%s requested=%s on_hand=%s", e.Err, itemLabel(e.ItemCode, e.ItemID), e.Requested, e.OnHand)
}

func (e *StockError) Unwrap() error { return e.Err }

func itemLabel(code string, id uuid.UUID) string {
	if code != "" {
		return code
	}
	return id.String()
}

func roundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func roundCost(d decimal.Decimal) decimal.Decimal { return d.Round(6) }
