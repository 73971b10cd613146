package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	q        querier
	ledgerID string
}

// NewTxRepository binds inventory operations to an external transaction.
func NewTxRepository(tx pgx.Tx, ledgerID string) TxRepository {
	return &txRepository{q: tx, ledgerID: ledgerID}
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, id uuid.UUID) (Item, error) {
	return getItem(ctx, r.q, r.ledgerID, `id=$2 FOR UPDATE`, id)
}

func (r *txRepository) GetItemByCode(ctx context.Context, code string) (Item, error) {
	return getItem(ctx, r.q, r.ledgerID, `code=$2`, code)
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) error {
	_, err := r.q.Exec(ctx, `INSERT INTO inventory_items (id, ledger_id, code, name, quantity_on_hand, average_unit_cost, reorder_point, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, item.ID, r.ledgerID, item.Code, item.Name, item.QuantityOnHand, item.AverageUnitCost, item.ReorderPoint, item.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, item.Code)
		}
		return err
	}
	return nil
}

func (r *txRepository) SaveMovement(ctx context.Context, item Item, mv Movement) error {
	cmd, err := r.q.Exec(ctx, `UPDATE inventory_items SET quantity_on_hand=$3, average_unit_cost=$4, updated_at=$5
WHERE ledger_id=$1 AND id=$2`, r.ledgerID, item.ID, item.QuantityOnHand, item.AverageUnitCost, item.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	_, err = r.q.Exec(ctx, `INSERT INTO inventory_movements (id, ledger_id, item_id, type, quantity, unit_cost, value, reason,
stock_before, stock_after, avg_cost_before, avg_cost_after, entry_id, document_id, date, posted_at, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		mv.ID, r.ledgerID, mv.ItemID, string(mv.Type), mv.Quantity, mv.UnitCost, mv.Value, string(mv.Reason),
		mv.StockBefore, mv.StockAfter, mv.AvgCostBefore, mv.AvgCostAfter, mv.EntryID, mv.DocumentID, mv.Date, mv.PostedAt, mv.Memo)
	return err
}

func (r *txRepository) ListItems(ctx context.Context) ([]Item, error) {
	return listItems(ctx, r.q, r.ledgerID)
}

func (r *txRepository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return listMovements(ctx, r.q, r.ledgerID, filter)
}

const itemSelect = `SELECT id, code, name, quantity_on_hand, average_unit_cost, reorder_point, updated_at FROM inventory_items`

func getItem(ctx context.Context, q querier, ledgerID, where string, arg any) (Item, error) {
	row := q.QueryRow(ctx, itemSelect+` WHERE ledger_id=$1 AND `+where, ledgerID, arg)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, fmt.Errorf("%w: %v", ErrItemNotFound, arg)
		}
		return Item{}, err
	}
	return item, nil
}

func listItems(ctx context.Context, q querier, ledgerID string) ([]Item, error) {
	rows, err := q.Query(ctx, itemSelect+` WHERE ledger_id=$1 ORDER BY code`, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.QuantityOnHand, &item.AverageUnitCost, &item.ReorderPoint, &item.UpdatedAt)
	return item, err
}

func listMovements(ctx context.Context, q querier, ledgerID string, filter MovementFilter) ([]Movement, error) {
	clauses := []string{"ledger_id=$1"}
	args := []any{ledgerID}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.ItemID != nil {
		add("item_id=$%d", *filter.ItemID)
	}
	if filter.DocumentID != nil {
		add("document_id=$%d", *filter.DocumentID)
	}
	if filter.EntryID != nil {
		add("entry_id=$%d", *filter.EntryID)
	}
	if !filter.From.IsZero() {
		add("date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("date <= $%d", filter.To)
	}
	rows, err := q.Query(ctx, `SELECT id, item_id, type, quantity, unit_cost, value, reason, stock_before, stock_after,
avg_cost_before, avg_cost_after, entry_id, document_id, date, posted_at, seq, memo
FROM inventory_movements WHERE `+strings.Join(clauses, " AND ")+` ORDER BY date, seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var (
			mv          Movement
			typ, reason string
		)
		if err := rows.Scan(&mv.ID, &mv.ItemID, &typ, &mv.Quantity, &mv.UnitCost, &mv.Value, &reason, &mv.StockBefore, &mv.StockAfter,
			&mv.AvgCostBefore, &mv.AvgCostAfter, &mv.EntryID, &mv.DocumentID, &mv.Date, &mv.PostedAt, &mv.Sequence, &mv.Memo); err != nil {
			return nil, err
		}
		mv.Type = MovementType(typ)
		mv.Reason = Reason(reason)
		if filter.Match(mv) {
			out = append(out, mv)
		}
	}
	return out, rows.Err()
}
