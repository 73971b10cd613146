package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TxRepository exposes the journal operations available inside one unit of
// work. Implementations must make every write visible only on commit.
type TxRepository interface {
	NextSequence(ctx context.Context) (int64, error)
	AppendEntry(ctx context.Context, entry JournalEntry) (uuid.UUID, error)
	GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	MarkVoided(ctx context.Context, id, by uuid.UUID) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]JournalEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, error)
}

// Append seals a draft with the next sequence number and stores it.
func Append(ctx context.Context, tx TxRepository, draft JournalEntry, at time.Time) (JournalEntry, error) {
	seq, err := tx.NextSequence(ctx)
	if err != nil {
		return JournalEntry{}, err
	}
	entry := Seal(draft, seq, at)
	if !entry.Balanced() {
		return JournalEntry{}, &PostingError{Op: "append", EntryID: entry.ID, Reference: entry.Reference(), Err: ErrStructuralImbalance}
	}
	if _, err := tx.AppendEntry(ctx, entry); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}
