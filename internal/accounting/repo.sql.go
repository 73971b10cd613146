package accounting

import (
	"context"
	"errors"
	"fmt"

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

// NewTxRepository binds the journal to an externally managed transaction so
// inventory and journal writes can share it.
func NewTxRepository(tx pgx.Tx, ledgerID string) TxRepository {
	return &txRepository{q: tx, ledgerID: ledgerID}
}

func (r *txRepository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := r.q.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM journal_entries WHERE ledger_id=$1`, r.ledgerID).Scan(&seq)
	return seq, err
}

func (r *txRepository) AppendEntry(ctx context.Context, e JournalEntry) (uuid.UUID, error) {
	_, err := r.q.Exec(ctx, `INSERT INTO journal_entries (id, ledger_id, sequence, date, description, external_reference,
total_debit, total_credit, status, origin, origin_document_id, reversal_of, reversed_origin, posted_at, checksum)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.ID, r.ledgerID, e.Sequence, e.Date, e.Description, e.ExternalReference,
		e.TotalDebit, e.TotalCredit, string(e.Status), string(e.Origin), e.OriginDocumentID, e.ReversalOf,
		string(e.ReversedOrigin), e.PostedAt, e.Checksum)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_entries_sequence" {
			return uuid.Nil, fmt.Errorf("%w: sequence %d", ErrSequenceConflict, e.Sequence)
		}
		return uuid.Nil, err
	}
	for idx, line := range e.Lines {
		if _, err := r.q.Exec(ctx, `INSERT INTO journal_lines (entry_id, line_no, account_code, account_name, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, e.ID, idx+1, line.AccountCode, line.AccountName, line.Debit, line.Credit, line.Memo); err != nil {
			return uuid.Nil, err
		}
	}
	return e.ID, nil
}

func (r *txRepository) GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	entries, err := queryEntries(ctx, r.q, entrySelect+` WHERE ledger_id=$1 AND id=$2`, r.ledgerID, id)
	if err != nil {
		return JournalEntry{}, err
	}
	if len(entries) == 0 {
		return JournalEntry{}, &PostingError{Op: "get entry", EntryID: id, Err: ErrEntryNotFound}
	}
	return entries[0], nil
}

func (r *txRepository) MarkVoided(ctx context.Context, id, by uuid.UUID) error {
	cmd, err := r.q.Exec(ctx, `UPDATE journal_entries SET status=$3, voided_by=$4
WHERE ledger_id=$1 AND id=$2 AND status=$5`, r.ledgerID, id, string(EntryStatusVoided), by, string(EntryStatusPosted))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}
	current, err := r.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == EntryStatusVoided {
		return &PostingError{Op: "mark voided", EntryID: id, Reference: current.Reference(), Err: ErrAlreadyVoided}
	}
	return &PostingError{Op: "mark voided", EntryID: id, Reference: current.Reference(), Err: ErrInvalidStatus}
}

func (r *txRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]JournalEntry, error) {
	return r.ListEntries(ctx, EntryFilter{DocumentID: &documentID})
}

func (r *txRepository) ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, error) {
	return listEntries(ctx, r.q, r.ledgerID, filter)
}

const entrySelect = `SELECT id, sequence, date, description, external_reference, total_debit, total_credit, status, origin,
origin_document_id, reversal_of, reversed_origin, voided_by, posted_at, checksum FROM journal_entries`

func listEntries(ctx context.Context, q querier, ledgerID string, filter EntryFilter) ([]JournalEntry, error) {
	sql := entrySelect + ` WHERE ledger_id=$1`
	args := []any{ledgerID}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		sql += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		sql += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	if filter.DocumentID != nil {
		args = append(args, *filter.DocumentID)
		sql += fmt.Sprintf(" AND origin_document_id = $%d", len(args))
	}
	sql += ` ORDER BY date ASC, sequence ASC`
	entries, err := queryEntries(ctx, q, sql, args...)
	if err != nil {
		return nil, err
	}
	// status and origin sets are small, filter them in process
	out := entries[:0]
	for _, e := range entries {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func queryEntries(ctx context.Context, q querier, sql string, args ...any) ([]JournalEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			e                      JournalEntry
			status, origin, revOri string
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Date, &e.Description, &e.ExternalReference, &e.TotalDebit, &e.TotalCredit,
			&status, &origin, &e.OriginDocumentID, &e.ReversalOf, &revOri, &e.VoidedBy, &e.PostedAt, &e.Checksum); err != nil {
			return nil, err
		}
		e.Status = EntryStatus(status)
		e.Origin = EntryOrigin(origin)
		e.ReversedOrigin = EntryOrigin(revOri)
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(entries) == 0 {
		return entries, nil
	}
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	lineRows, err := q.Query(ctx, `SELECT entry_id, account_code, account_name, debit, credit, memo
FROM journal_lines WHERE entry_id = ANY($1) ORDER BY entry_id, line_no`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var (
			entryID uuid.UUID
			line    JournalLine
		)
		if err := lineRows.Scan(&entryID, &line.AccountCode, &line.AccountName, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return nil, err
		}
		if idx, ok := index[entryID]; ok {
			entries[idx].Lines = append(entries[idx].Lines, line)
		}
	}
	return entries, lineRows.Err()
}
