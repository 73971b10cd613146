package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewItem validates input and returns the item plus its opening movement
// request, if any.
func NewItem(input CreateItemInput, now time.Time) (Item, *MovementRequest, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return Item{}, nil, fmt.Errorf("inventory: code and name required")
	}
	if input.OpeningQuantity.IsNegative() || input.ReorderPoint.IsNegative() {
		return Item{}, nil, ErrInvalidQuantity
	}
	if input.OpeningUnitCost.IsNegative() {
		return Item{}, nil, ErrInvalidUnitCost
	}
	item := Item{
		ID:           uuid.New(),
		Code:         code,
		Name:         name,
		ReorderPoint: input.ReorderPoint,
		UpdatedAt:    now.UTC(),
	}
	if !input.OpeningQuantity.IsPositive() {
		return item, nil, nil
	}
	cost := input.OpeningUnitCost
	return item, &MovementRequest{
		ItemID:   item.ID,
		Type:     MovementIn,
		Quantity: input.OpeningQuantity,
		UnitCost: &cost,
		Reason:   ReasonOpening,
		Date:     now,
	}, nil
}

// TotalValuation sums quantity times average cost.
func TotalValuation(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.QuantityOnHand.Mul(item.AverageUnitCost))
	}
	return roundMoney(total)
}

// ValuationAsOf values stock from each item's last applied movement dated
// on or before asOf. A zero asOf takes every movement. Application order is
// the movement sequence, so a backdated movement still counts as the latest
// state it produced.
func ValuationAsOf(movements []Movement, asOf time.Time) decimal.Decimal {
	last := make(map[uuid.UUID]Movement)
	for _, mv := range movements {
		if !asOf.IsZero() && mv.Date.After(asOf) {
			continue
		}
		if prev, ok := last[mv.ItemID]; ok && prev.Sequence > mv.Sequence {
			continue
		}
		last[mv.ItemID] = mv
	}
	total := decimal.Zero
	for _, mv := range last {
		total = total.Add(mv.StockAfter.Mul(mv.AvgCostAfter))
	}
	return roundMoney(total)
}
