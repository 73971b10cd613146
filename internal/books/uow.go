package books

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
)

// Tx bundles the journal and inventory views of one unit of work.
type Tx struct {
	Journal   accounting.TxRepository
	Inventory inventory.TxRepository
}

// UnitOfWork runs journal and inventory operations atomically.
type UnitOfWork interface {
	// WithTx commits every write made through tx when fn succeeds and
	// discards all of them otherwise.
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	// Snapshot runs fn against a consistent read-only view.
	Snapshot(ctx context.Context, fn func(context.Context, Tx) error) error
}

// MemoryUnitOfWork pairs the in-process stores.
type MemoryUnitOfWork struct {
	journal *accounting.MemoryStore
	stock   *inventory.MemoryStore
}

// NewMemoryUnitOfWork constructs a unit of work over in-process stores.
func NewMemoryUnitOfWork(journal *accounting.MemoryStore, stock *inventory.MemoryStore) *MemoryUnitOfWork {
	return &MemoryUnitOfWork{journal: journal, stock: stock}
}

// WithTx stages both stores and commits inventory before the journal. The
// engine's writer lock keeps either commit from conflicting.
func (u *MemoryUnitOfWork) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	jtx := u.journal.Begin()
	stx := u.stock.Begin()
	if err := fn(ctx, Tx{Journal: jtx, Inventory: stx}); err != nil {
		jtx.Rollback()
		stx.Rollback()
		return err
	}
	if err := stx.Commit(); err != nil {
		jtx.Rollback()
		return err
	}
	return jtx.Commit()
}

// Snapshot runs fn on staged views and discards them.
func (u *MemoryUnitOfWork) Snapshot(ctx context.Context, fn func(context.Context, Tx) error) error {
	jtx := u.journal.Begin()
	stx := u.stock.Begin()
	defer jtx.Rollback()
	defer stx.Rollback()
	return fn(ctx, Tx{Journal: jtx, Inventory: stx})
}

// PostgresUnitOfWork shares one repeatable-read transaction between the
// journal and inventory repositories.
type PostgresUnitOfWork struct {
	pool     *pgxpool.Pool
	ledgerID string
}

// NewPostgresUnitOfWork constructs a unit of work over pool.
func NewPostgresUnitOfWork(pool *pgxpool.Pool, ledgerID string) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{pool: pool, ledgerID: ledgerID}
}

func (u *PostgresUnitOfWork) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if u == nil || u.pool == nil {
		return errors.New("books: postgres unit of work not initialised")
	}
	return db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, u.bind(tx))
	})
}

// Snapshot runs fn in a read-only repeatable-read transaction.
func (u *PostgresUnitOfWork) Snapshot(ctx context.Context, fn func(context.Context, Tx) error) error {
	if u == nil || u.pool == nil {
		return errors.New("books: postgres unit of work not initialised")
	}
	return db.WithSnapshot(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, u.bind(tx))
	})
}

func (u *PostgresUnitOfWork) bind(tx pgx.Tx) Tx {
	return Tx{
		Journal:   accounting.NewTxRepository(tx, u.ledgerID),
		Inventory: inventory.NewTxRepository(tx, u.ledgerID),
	}
}
