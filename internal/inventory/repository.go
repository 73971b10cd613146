package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TxRepository exposes transactional operations used by the valuation flow.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (Item, error)
	GetItemByCode(ctx context.Context, code string) (Item, error)
	InsertItem(ctx context.Context, item Item) error
	ListItems(ctx context.Context) ([]Item, error)
	SaveMovement(ctx context.Context, item Item, mv Movement) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// ApplyMovement loads the item, values the request and stores the result.
// A rejected movement leaves the item untouched.
func ApplyMovement(ctx context.Context, tx TxRepository, req MovementRequest, now time.Time) (Item, Movement, error) {
	if err := req.Validate(); err != nil {
		return Item{}, Movement{}, err
	}
	item, err := tx.GetItemForUpdate(ctx, req.ItemID)
	if err != nil {
		return Item{}, Movement{}, err
	}
	if req.Date.IsZero() {
		req.Date = now
	}
	next, mv, err := Value(item, req)
	if err != nil {
		return item, Movement{}, err
	}
	next.UpdatedAt = now.UTC()
	mv.PostedAt = now.UTC()
	if err := tx.SaveMovement(ctx, next, mv); err != nil {
		return item, Movement{}, err
	}
	return next, mv, nil
}
