package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func costPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func TestAverageMovingCost(t *testing.T) {
	item := Item{ID: uuid.New(), Code: "SKU-1"}

	item, mv, err := RecordInward(item, dec("10"), dec("100"))
	require.NoError(t, err)
	require.True(t, item.QuantityOnHand.Equal(dec("10")))
	require.True(t, item.AverageUnitCost.Equal(dec("100")))
	require.True(t, mv.Value.Equal(dec("1000")))

	item, mv, err = RecordInward(item, dec("5"), dec("130"))
	require.NoError(t, err)
	require.True(t, item.AverageUnitCost.Equal(dec("110")), item.AverageUnitCost.String())
	require.True(t, mv.AvgCostBefore.Equal(dec("100")))
	require.True(t, mv.AvgCostAfter.Equal(dec("110")))

	item, mv, err = RecordOutward(item, dec("6"))
	require.NoError(t, err)
	require.True(t, item.QuantityOnHand.Equal(dec("9")))
	require.True(t, item.AverageUnitCost.Equal(dec("110")))
	require.True(t, mv.Value.Equal(dec("660")))
	require.True(t, mv.StockBefore.Equal(dec("15")))
	require.True(t, mv.StockAfter.Equal(dec("9")))
}

func TestRecordOutwardRejectsOverdraw(t *testing.T) {
	item := Item{ID: uuid.New(), Code: "SKU-1", QuantityOnHand: dec("3"), AverageUnitCost: dec("50")}
	after, _, err := RecordOutward(item, dec("4"))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, item, after)

	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, "SKU-1", stockErr.ItemCode)
	require.True(t, stockErr.OnHand.Equal(dec("3")))
}

func TestRecordOutwardResetsAverageAtZero(t *testing.T) {
	item := Item{ID: uuid.New(), QuantityOnHand: dec("3"), AverageUnitCost: dec("33.333333")}
	item, mv, err := RecordOutward(item, dec("3"))
	require.NoError(t, err)
	require.True(t, item.QuantityOnHand.IsZero())
	require.True(t, item.AverageUnitCost.IsZero())
	require.True(t, mv.Value.Equal(dec("100")))
}

func TestRecordReturnUndoesInward(t *testing.T) {
	item := Item{ID: uuid.New(), QuantityOnHand: dec("10"), AverageUnitCost: dec("50")}
	item, _, err := RecordInward(item, dec("20"), dec("25"))
	require.NoError(t, err)
	item, mv, err := RecordReturn(item, dec("20"), dec("25"))
	require.NoError(t, err)
	require.True(t, item.QuantityOnHand.Equal(dec("10")))
	require.True(t, item.AverageUnitCost.Equal(dec("50")), item.AverageUnitCost.String())
	require.True(t, mv.Value.Equal(dec("500")))
	require.Equal(t, MovementOut, mv.Type)
}

func TestRecordReturnRejectsValueAboveCarrying(t *testing.T) {
	item := Item{ID: uuid.New(), QuantityOnHand: dec("10"), AverageUnitCost: dec("5")}
	_, _, err := RecordReturn(item, dec("5"), dec("20"))
	require.ErrorIs(t, err, ErrValuationExceedsCarrying)
}

func TestValuationInvariantsAcrossSequence(t *testing.T) {
	item := Item{ID: uuid.New()}
	steps := []struct {
		in   bool
		qty  string
		cost string
	}{
		{true, "7", "12.5"}, {false, "3", ""}, {true, "11", "9.75"}, {false, "14", ""}, {false, "2", ""}, {true, "1", "40"},
	}
	for _, step := range steps {
		var (
			next Item
			mv   Movement
			err  error
		)
		if step.in {
			next, mv, err = RecordInward(item, dec(step.qty), dec(step.cost))
		} else {
			carrying := item.CarryingValue()
			next, mv, err = RecordOutward(item, dec(step.qty))
			if err == nil {
				require.True(t, mv.Value.LessThanOrEqual(carrying))
			}
		}
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientStock)
			require.Equal(t, item, next)
			continue
		}
		require.False(t, next.QuantityOnHand.IsNegative())
		require.False(t, next.AverageUnitCost.IsNegative())
		item = next
	}
}

func TestMovementRequestValidate(t *testing.T) {
	id := uuid.New()
	require.ErrorIs(t, MovementRequest{ItemID: id, Type: MovementIn, Quantity: dec("1")}.Validate(), ErrInvalidUnitCost)
	require.ErrorIs(t, MovementRequest{ItemID: id, Type: MovementOut, Quantity: dec("0")}.Validate(), ErrInvalidQuantity)
	require.ErrorIs(t, MovementRequest{ItemID: id, Type: MovementIn, Quantity: dec("1"), UnitCost: costPtr("-1")}.Validate(), ErrInvalidUnitCost)
	require.Error(t, MovementRequest{ItemID: id, Type: "SIDEWAYS", Quantity: dec("1")}.Validate())
	require.NoError(t, MovementRequest{ItemID: id, Type: MovementOut, Quantity: dec("1"), Reason: ReasonSale}.Validate())
}

func TestApplyMovementAndValuation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	item, opening, err := NewItem(CreateItemInput{Code: "WIDGET", Name: "Widget"}, time.Now())
	require.NoError(t, err)
	require.Nil(t, opening)
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertItem(ctx, item)
	}))
	err = store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertItem(ctx, Item{ID: uuid.New(), Code: "WIDGET", Name: "Again"})
	})
	require.ErrorIs(t, err, ErrDuplicateItem)

	apply := func(req MovementRequest) error {
		return store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, _, err := ApplyMovement(ctx, tx, req, time.Now())
			return err
		})
	}
	require.NoError(t, apply(MovementRequest{ItemID: item.ID, Type: MovementIn, Quantity: dec("20"), UnitCost: costPtr("25"), Reason: ReasonPurchase}))
	require.NoError(t, apply(MovementRequest{ItemID: item.ID, Type: MovementOut, Quantity: dec("5"), Reason: ReasonSale}))
	require.ErrorIs(t, apply(MovementRequest{ItemID: item.ID, Type: MovementOut, Quantity: dec("16"), Reason: ReasonSale}), ErrInsufficientStock)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, got.QuantityOnHand.Equal(dec("15")))

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	require.Equal(t, "375.00", TotalValuation(items).StringFixed(2))

	movements, err := store.ListMovements(ctx, MovementFilter{ItemID: &item.ID, Reasons: []Reason{ReasonSale}})
	require.NoError(t, err)
	require.Len(t, movements, 1)

	all, err := store.ListMovements(ctx, MovementFilter{})
	require.NoError(t, err)
	require.Equal(t, "375.00", ValuationAsOf(all, time.Time{}).StringFixed(2))
	require.True(t, ValuationAsOf(all, all[0].Date.Add(-time.Hour)).IsZero())
}

func TestMemoryStoreRollbackLeavesItemUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	item := Item{ID: uuid.New(), Code: "A", Name: "A", QuantityOnHand: dec("2"), AverageUnitCost: dec("10")}
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertItem(ctx, item)
	}))
	boom := errors.New("journal append failed")
	err := store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, _, err := ApplyMovement(ctx, tx, MovementRequest{ItemID: item.ID, Type: MovementOut, Quantity: dec("1")}, time.Now()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, got.QuantityOnHand.Equal(dec("2")))
	movements, err := store.ListMovements(ctx, MovementFilter{})
	require.NoError(t, err)
	require.Empty(t, movements)
}

func TestNewItemOpeningRequest(t *testing.T) {
	item, opening, err := NewItem(CreateItemInput{Code: "X", Name: "X", OpeningQuantity: dec("4"), OpeningUnitCost: dec("2.5")}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, opening)
	require.Equal(t, item.ID, opening.ItemID)
	require.Equal(t, ReasonOpening, opening.Reason)

	_, _, err = NewItem(CreateItemInput{Code: "", Name: "X"}, time.Now())
	require.Error(t, err)
}

func TestValuationAsOfFollowsApplicationOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	item, _, err := NewItem(CreateItemInput{Code: "W-1", Name: "Widget"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertItem(ctx, item)
	}))

	apr := func(d int) time.Time { return time.Date(2025, 4, d, 0, 0, 0, 0, time.UTC) }
	apply := func(req MovementRequest) {
		t.Helper()
		require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, _, err := ApplyMovement(ctx, tx, req, time.Now())
			return err
		}))
	}
	apply(MovementRequest{ItemID: item.ID, Type: MovementIn, Quantity: dec("20"), UnitCost: costPtr("50"), Reason: ReasonOpening, Date: apr(1)})
	apply(MovementRequest{ItemID: item.ID, Type: MovementOut, Quantity: dec("10"), Reason: ReasonSale, Date: apr(10)})
	apply(MovementRequest{ItemID: item.ID, Type: MovementOut, Quantity: dec("5"), Reason: ReasonSale, Date: apr(20)})
	apply(MovementRequest{ItemID: item.ID, Type: MovementIn, Quantity: dec("10"), UnitCost: costPtr("50"), Reason: ReasonSaleVoid, Date: apr(10)})

	all, err := store.ListMovements(ctx, MovementFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, ReasonSaleVoid, all[2].Reason)
	require.Equal(t, int64(4), all[2].Sequence)

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	require.Equal(t, "750.00", TotalValuation(items).StringFixed(2))
	require.Equal(t, "750.00", ValuationAsOf(all, time.Time{}).StringFixed(2))
	require.Equal(t, "1000.00", ValuationAsOf(all, apr(5)).StringFixed(2))
}
