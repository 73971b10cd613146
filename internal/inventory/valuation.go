package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordInward blends qty at unitCost into the running average.
func RecordInward(item Item, qty, unitCost decimal.Decimal) (Item, Movement, error) {
	if !qty.IsPositive() {
		return item, Movement{}, ErrInvalidQuantity
	}
	if unitCost.IsNegative() {
		return item, Movement{}, ErrInvalidUnitCost
	}
	before := item
	newQty := item.QuantityOnHand.Add(qty)
	totalCost := item.QuantityOnHand.Mul(item.AverageUnitCost).Add(qty.Mul(unitCost))
	item.QuantityOnHand = newQty
	item.AverageUnitCost = roundCost(totalCost.Div(newQty))
	return item, newMovement(before, item, MovementIn, qty, unitCost, roundMoney(qty.Mul(unitCost))), nil
}

// RecordOutward issues qty at the pre-movement average cost. The average is
// unchanged unless stock reaches zero, where it resets.
func RecordOutward(item Item, qty decimal.Decimal) (Item, Movement, error) {
	if !qty.IsPositive() {
		return item, Movement{}, ErrInvalidQuantity
	}
	if qty.GreaterThan(item.QuantityOnHand) {
		return item, Movement{}, &StockError{ItemID: item.ID, ItemCode: item.Code, Requested: qty, OnHand: item.QuantityOnHand, Err: ErrInsufficientStock}
	}
	before := item
	item.QuantityOnHand = item.QuantityOnHand.Sub(qty)
	if item.QuantityOnHand.IsZero() {
		item.AverageUnitCost = decimal.Zero
	}
	value := roundMoney(qty.Mul(before.AverageUnitCost))
	if carrying := before.CarryingValue(); value.GreaterThan(carrying) {
		value = carrying
	}
	return item, newMovement(before, item, MovementOut, qty, before.AverageUnitCost, value), nil
}

// RecordReturn removes qty valued at unitCost, undoing an earlier inward.
func RecordReturn(item Item, qty, unitCost decimal.Decimal) (Item, Movement, error) {
	if !qty.IsPositive() {
		return item, Movement{}, ErrInvalidQuantity
	}
	if unitCost.IsNegative() {
		return item, Movement{}, ErrInvalidUnitCost
	}
	if qty.GreaterThan(item.QuantityOnHand) {
		return item, Movement{}, &StockError{ItemID: item.ID, ItemCode: item.Code, Requested: qty, OnHand: item.QuantityOnHand, Err: ErrInsufficientStock}
	}
	value := roundMoney(qty.Mul(unitCost))
	carrying := item.CarryingValue()
	if value.Sub(carrying).GreaterThanOrEqual(decimal.New(1, -2)) {
		return item, Movement{}, &StockError{ItemID: item.ID, ItemCode: item.Code, Requested: value, OnHand: carrying, Err: ErrValuationExceedsCarrying}
	}
	before := item
	item.QuantityOnHand = item.QuantityOnHand.Sub(qty)
	if item.QuantityOnHand.IsZero() {
		item.AverageUnitCost = decimal.Zero
	} else {
		remaining := carrying.Sub(value)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		item.AverageUnitCost = roundCost(remaining.Div(item.QuantityOnHand))
	}
	return item, newMovement(before, item, MovementOut, qty, unitCost, value), nil
}

// Value dispatches a request to the matching valuation rule.
func Value(item Item, req MovementRequest) (Item, Movement, error) {
	var (
		next Item
		mv   Movement
		err  error
	)
	switch {
	case req.Type == MovementIn:
		next, mv, err = RecordInward(item, req.Quantity, *req.UnitCost)
	case req.UnitCost != nil:
		next, mv, err = RecordReturn(item, req.Quantity, *req.UnitCost)
	default:
		next, mv, err = RecordOutward(item, req.Quantity)
	}
	if err != nil {
		return item, Movement{}, err
	}
	mv.Reason = req.Reason
	mv.DocumentID = req.DocumentID
	mv.EntryID = req.EntryID
	mv.Date = req.Date
	mv.Memo = req.Memo
	return next, mv, nil
}

func newMovement(before, after Item, typ MovementType, qty, unitCost, value decimal.Decimal) Movement {
	return Movement{
		ID:            uuid.New(),
		ItemID:        before.ID,
		Type:          typ,
		Quantity:      qty,
		UnitCost:      unitCost,
		Value:         value,
		StockBefore:   before.QuantityOnHand,
		StockAfter:    after.QuantityOnHand,
		AvgCostBefore: before.AverageUnitCost,
		AvgCostAfter:  after.AverageUnitCost,
	}
}
