package accounting

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps the journal in process. Writes are staged on a MemoryTx
// and applied on Commit.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []JournalEntry
	index   map[uuid.UUID]int
	lastSeq int64
}

// NewMemoryStore constructs an empty journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[uuid.UUID]int)}
}

// WithTx runs fn against a staged transaction and commits when it succeeds.
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
	s.mu.RLock()
	base := s.lastSeq
	s.mu.RUnlock()
	return &MemoryTx{
		store:   s,
		baseSeq: base,
		nextSeq: base,
		voided:  make(map[uuid.UUID]uuid.UUID),
	}
}

// ListEntries returns committed entries matching filter.
func (s *MemoryStore) ListEntries(_ context.Context, filter EntryFilter) ([]JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterEntries(s.entries, filter), nil
}

// Len reports the number of committed entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) lookup(id uuid.UUID) (JournalEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[id]
	if !ok {
		return JournalEntry{}, false
	}
	return s.entries[idx], true
}

// MemoryTx stages appends and status changes until Commit.
type MemoryTx struct {
	store    *MemoryStore
	baseSeq  int64
	nextSeq  int64
	appended []JournalEntry
	voided   map[uuid.UUID]uuid.UUID
	done     bool
}

// NextSequence reserves the next sequence number.
func (tx *MemoryTx) NextSequence(context.Context) (int64, error) {
	tx.nextSeq++
	return tx.nextSeq, nil
}

// AppendEntry stages a sealed entry.
func (tx *MemoryTx) AppendEntry(_ context.Context, entry JournalEntry) (uuid.UUID, error) {
	if entry.Sequence <= tx.baseSeq {
		return uuid.Nil, fmt.Errorf("%w: sequence %d", ErrSequenceConflict, entry.Sequence)
	}
	for _, staged := range tx.appended {
		if staged.Sequence == entry.Sequence {
			return uuid.Nil, fmt.Errorf("%w: sequence %d", ErrSequenceConflict, entry.Sequence)
		}
	}
	tx.appended = append(tx.appended, entry)
	return entry.ID, nil
}

// GetEntry resolves staged entries first, then committed ones.
func (tx *MemoryTx) GetEntry(_ context.Context, id uuid.UUID) (JournalEntry, error) {
	entry, ok := tx.find(id)
	if !ok {
		return JournalEntry{}, &PostingError{Op: "get entry", EntryID: id, Err: ErrEntryNotFound}
	}
	return entry, nil
}

// MarkVoided stages the status flip of an effective entry.
func (tx *MemoryTx) MarkVoided(_ context.Context, id, by uuid.UUID) error {
	entry, ok := tx.find(id)
	if !ok {
		return &PostingError{Op: "mark voided", EntryID: id, Err: ErrEntryNotFound}
	}
	if entry.Status == EntryStatusVoided {
		return &PostingError{Op: "mark voided", EntryID: id, Reference: entry.Reference(), Err: ErrAlreadyVoided}
	}
	if entry.Status != EntryStatusPosted {
		return &PostingError{Op: "mark voided", EntryID: id, Reference: entry.Reference(), Err: ErrInvalidStatus}
	}
	tx.voided[id] = by
	return nil
}

// ListByDocument returns every entry linked to documentID, staged included.
func (tx *MemoryTx) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]JournalEntry, error) {
	return tx.ListEntries(ctx, EntryFilter{DocumentID: &documentID})
}

// ListEntries lists committed and staged entries as this transaction sees them.
func (tx *MemoryTx) ListEntries(_ context.Context, filter EntryFilter) ([]JournalEntry, error) {
	tx.store.mu.RLock()
	view := make([]JournalEntry, 0, len(tx.store.entries)+len(tx.appended))
	view = append(view, tx.store.entries...)
	tx.store.mu.RUnlock()
	view = append(view, tx.appended...)
	for i := range view {
		view[i] = tx.overlay(view[i])
	}
	return filterEntries(view, filter), nil
}

// Commit applies staged writes atomically.
func (tx *MemoryTx) Commit() error {
	if tx.done {
		return nil
	}
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSeq != tx.baseSeq {
		return fmt.Errorf("%w: journal advanced from %d to %d", ErrSequenceConflict, tx.baseSeq, s.lastSeq)
	}
	for _, entry := range tx.appended {
		s.index[entry.ID] = len(s.entries)
		s.entries = append(s.entries, entry)
		if entry.Sequence > s.lastSeq {
			s.lastSeq = entry.Sequence
		}
	}
	for id, by := range tx.voided {
		idx, ok := s.index[id]
		if !ok {
			continue
		}
		s.entries[idx] = markVoided(s.entries[idx], by)
	}
	tx.done = true
	return nil
}

// Rollback discards staged writes.
func (tx *MemoryTx) Rollback() {
	tx.appended = nil
	tx.voided = nil
	tx.done = true
}

func (tx *MemoryTx) find(id uuid.UUID) (JournalEntry, bool) {
	for _, staged := range tx.appended {
		if staged.ID == id {
			return tx.overlay(staged), true
		}
	}
	entry, ok := tx.store.lookup(id)
	if !ok {
		return JournalEntry{}, false
	}
	return tx.overlay(entry), true
}

func (tx *MemoryTx) overlay(entry JournalEntry) JournalEntry {
	if by, ok := tx.voided[entry.ID]; ok {
		return markVoided(entry, by)
	}
	return entry
}

func markVoided(entry JournalEntry, by uuid.UUID) JournalEntry {
	entry.Status = EntryStatusVoided
	voidedBy := by
	entry.VoidedBy = &voidedBy
	return entry
}

func filterEntries(entries []JournalEntry, filter EntryFilter) []JournalEntry {
	out := make([]JournalEntry, 0, len(entries))
	for _, e := range entries {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	SortEntries(out)
	return out
}

// SortEntries orders entries by date ascending with ties broken by sequence.
func SortEntries(entries []JournalEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].Sequence < entries[j].Sequence
	})
}
