package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps items and movements in process.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[uuid.UUID]Item
	movements []Movement
	seq       int64
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]Item)}
}

// WithTx runs fn on a staged transaction and commits when it succeeds.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := s.Begin()
	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Begin opens a staged transaction.
func (s *MemoryStore) Begin() *MemoryTx {
	return &MemoryTx{store: s, items: make(map[uuid.UUID]Item)}
}

// GetItem reads a committed item.
func (s *MemoryStore) GetItem(_ context.Context, id uuid.UUID) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return item, nil
}

// ListItems lists committed items by code.
func (s *MemoryStore) ListItems(context.Context) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	return items, nil
}

// ListMovements lists committed movements in posting order.
func (s *MemoryStore) ListMovements(_ context.Context, filter MovementFilter) ([]Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterMovements(s.movements, filter), nil
}

// MemoryTx stages item updates and movements until Commit.
type MemoryTx struct {
	store     *MemoryStore
	items     map[uuid.UUID]Item
	inserted  []uuid.UUID
	movements []Movement
	done      bool
}

func (tx *MemoryTx) GetItemForUpdate(_ context.Context, id uuid.UUID) (Item, error) {
	if item, ok := tx.items[id]; ok {
		return item, nil
	}
	tx.store.mu.RLock()
	item, ok := tx.store.items[id]
	tx.store.mu.RUnlock()
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return item, nil
}

func (tx *MemoryTx) GetItemByCode(_ context.Context, code string) (Item, error) {
	for _, item := range tx.items {
		if item.Code == code {
			return item, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, item := range tx.store.items {
		if item.Code == code {
			return item, nil
		}
	}
	return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, code)
}

func (tx *MemoryTx) InsertItem(ctx context.Context, item Item) error {
	if _, err := tx.GetItemByCode(ctx, item.Code); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, item.Code)
	}
	tx.items[item.ID] = item
	tx.inserted = append(tx.inserted, item.ID)
	return nil
}

func (tx *MemoryTx) ListItems(context.Context) ([]Item, error) {
	tx.store.mu.RLock()
	merged := make(map[uuid.UUID]Item, len(tx.store.items)+len(tx.items))
	for id, item := range tx.store.items {
		merged[id] = item
	}
	tx.store.mu.RUnlock()
	for id, item := range tx.items {
		merged[id] = item
	}
	items := make([]Item, 0, len(merged))
	for _, item := range merged {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	return items, nil
}

func (tx *MemoryTx) SaveMovement(ctx context.Context, item Item, mv Movement) error {
	if _, err := tx.GetItemForUpdate(ctx, item.ID); err != nil {
		return err
	}
	tx.store.mu.RLock()
	mv.Sequence = tx.store.seq + int64(len(tx.movements)) + 1
	tx.store.mu.RUnlock()
	tx.items[item.ID] = item
	tx.movements = append(tx.movements, mv)
	return nil
}

func (tx *MemoryTx) ListMovements(_ context.Context, filter MovementFilter) ([]Movement, error) {
	tx.store.mu.RLock()
	view := make([]Movement, 0, len(tx.store.movements)+len(tx.movements))
	view = append(view, tx.store.movements...)
	tx.store.mu.RUnlock()
	view = append(view, tx.movements...)
	return filterMovements(view, filter), nil
}

// Commit applies staged writes.
func (tx *MemoryTx) Commit() error {
	if tx.done {
		return nil
	}
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tx.inserted {
		if _, exists := s.items[id]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, id)
		}
	}
	for id, item := range tx.items {
		s.items[id] = item
	}
	s.movements = append(s.movements, tx.movements...)
	if n := len(tx.movements); n > 0 {
		s.seq = tx.movements[n-1].Sequence
	}
	tx.done = true
	return nil
}

// Rollback discards staged writes.
func (tx *MemoryTx) Rollback() {
	tx.items = nil
	tx.movements = nil
	tx.done = true
}

func filterMovements(movements []Movement, filter MovementFilter) []Movement {
	out := make([]Movement, 0, len(movements))
	for _, mv := range movements {
		if filter.Match(mv) {
			out = append(out, mv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}
