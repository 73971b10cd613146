package accounting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func saleInput() PostingInput {
	return PostingInput{
		Date:              time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Description:       "Cash sale",
		ExternalReference: "INV-001",
		Origin:            OriginSale,
		Lines: []PostingLineInput{
			{AccountCode: "1101", Debit: d("1695")},
			{AccountCode: "4101", Credit: d("1500")},
			{AccountCode: "2201", Credit: d("195")},
		},
	}
}

func TestBuildEntrySnapshotsNamesAndTotals(t *testing.T) {
	entry, err := BuildEntry(DefaultChart(), saleInput())
	require.NoError(t, err)
	require.Equal(t, EntryStatusDraft, entry.Status)
	require.Equal(t, "Cash", entry.Lines[0].AccountName)
	require.True(t, entry.TotalDebit.Equal(d("1695")))
	require.True(t, entry.TotalCredit.Equal(d("1695")))
	require.True(t, entry.Balanced())
}

func TestBuildEntryRejectsImbalance(t *testing.T) {
	in := saleInput()
	in.Lines[2].Credit = d("194.50")
	_, err := BuildEntry(DefaultChart(), in)
	require.ErrorIs(t, err, ErrStructuralImbalance)

	var perr *PostingError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "INV-001", perr.Reference)
	require.Contains(t, err.Error(), "debit=1695.00 credit=1694.50")
}

func TestBuildEntryRejectsUnknownAccount(t *testing.T) {
	in := saleInput()
	in.Lines[1].AccountCode = "4999"
	_, err := BuildEntry(DefaultChart(), in)
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.Contains(t, err.Error(), "account=4999")
}

func TestValidateRejectsMalformedLines(t *testing.T) {
	cases := map[string]func(*PostingInput){
		"single line":  func(in *PostingInput) { in.Lines = in.Lines[:1] },
		"negative":     func(in *PostingInput) { in.Lines[0].Debit = d("-1695") },
		"double sided": func(in *PostingInput) { in.Lines[1].Debit = d("1") },
		"empty amount": func(in *PostingInput) { in.Lines[2].Credit = decimal.Zero },
		"no account":   func(in *PostingInput) { in.Lines[0].AccountCode = " " },
		"no date":      func(in *PostingInput) { in.Date = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := saleInput()
			in.Lines = append([]PostingLineInput(nil), in.Lines...)
			mutate(&in)
			require.Error(t, in.Validate())
		})
	}
}

func TestBuildEntryRoundsToCents(t *testing.T) {
	in := PostingInput{
		Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Lines: []PostingLineInput{
			{AccountCode: "6201", Debit: d("10.004")},
			{AccountCode: "1101", Credit: d("10.001")},
		},
	}
	entry, err := BuildEntry(DefaultChart(), in)
	require.NoError(t, err)
	require.Equal(t, OriginManual, entry.Origin)
	require.Equal(t, "10.00", entry.TotalDebit.StringFixed(2))
	require.True(t, entry.Lines[0].Debit.Equal(d("10")))
}

func TestSealChecksumDetectsTampering(t *testing.T) {
	entry, err := BuildEntry(DefaultChart(), saleInput())
	require.NoError(t, err)
	sealed := Seal(entry, 7, time.Now())
	require.Equal(t, EntryStatusPosted, sealed.Status)
	require.Equal(t, "JE-000007", (JournalEntry{ID: sealed.ID, Sequence: 7}).Reference())
	require.True(t, VerifyChecksum(sealed))

	sealed.Lines = append([]JournalLine(nil), sealed.Lines...)
	sealed.Lines[1].Credit = d("1400")
	require.False(t, VerifyChecksum(sealed))
}

func TestMirrorLinesSwapsSides(t *testing.T) {
	entry, err := BuildEntry(DefaultChart(), saleInput())
	require.NoError(t, err)
	mirror := MirrorLines(entry.Lines)
	require.True(t, mirror[0].Credit.Equal(d("1695")))
	require.True(t, mirror[0].Debit.IsZero())
	require.True(t, mirror[1].Debit.Equal(d("1500")))
}

func TestChartClassification(t *testing.T) {
	chart, err := NewChart([]Account{
		{Code: "1000", Name: "Cash"},
		{Code: "5500", Name: "Rent"},
		{Code: "9000", Name: "Suspense", Type: AccountTypeLiability},
	})
	require.NoError(t, err)
	cash, err := chart.Lookup("1000")
	require.NoError(t, err)
	require.Equal(t, AccountTypeAsset, cash.Type)
	require.Equal(t, NormalSideDebit, cash.NormalSide)
	suspense, err := chart.Lookup("9000")
	require.NoError(t, err)
	require.Equal(t, NormalSideCredit, suspense.NormalSide)

	_, err = NewChart([]Account{{Code: "9000", Name: "Unknown"}})
	require.Error(t, err)
	_, err = NewChart([]Account{{Code: "1000", Name: "A"}, {Code: "1000", Name: "B"}})
	require.Error(t, err)
	_, err = chart.Lookup("2000")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestChartRoles(t *testing.T) {
	chart := DefaultChart()
	inv, err := chart.ByRole(RoleInventory)
	require.NoError(t, err)
	require.Equal(t, "1301", inv.Code)
	require.True(t, chart.HasRole("2201", RoleVATPayable))
	require.False(t, chart.HasRole("", RoleVATPayable))

	_, err = NewChart([]Account{{Code: "1000", Name: "A", Role: RoleCash}, {Code: "1001", Name: "B", Role: RoleCash}})
	require.Error(t, err)
}

func TestMemoryStoreStagesUntilCommit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	draft, err := BuildEntry(DefaultChart(), saleInput())
	require.NoError(t, err)

	tx := store.Begin()
	posted, err := Append(ctx, tx, draft, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, posted.Sequence)
	require.Zero(t, store.Len())

	staged, err := tx.ListEntries(ctx, EntryFilter{})
	require.NoError(t, err)
	require.Len(t, staged, 1)

	require.NoError(t, tx.Commit())
	require.Equal(t, 1, store.Len())
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		draft, err := BuildEntry(DefaultChart(), saleInput())
		require.NoError(t, err)
		if _, err := Append(ctx, tx, draft, time.Now()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, store.Len())
}

func TestMemoryStoreMarkVoided(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	var id uuid.UUID
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		draft, err := BuildEntry(DefaultChart(), saleInput())
		if err != nil {
			return err
		}
		posted, err := Append(ctx, tx, draft, time.Now())
		id = posted.ID
		return err
	}))

	reversal := uuid.New()
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkVoided(ctx, id, reversal)
	}))
	err := store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkVoided(ctx, id, reversal)
	})
	require.ErrorIs(t, err, ErrAlreadyVoided)

	entries, err := store.ListEntries(ctx, EntryFilter{Statuses: []EntryStatus{EntryStatusVoided}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, reversal, *entries[0].VoidedBy)
	require.True(t, VerifyChecksum(entries[0]))
}

func TestMemoryStoreRejectsStaleCommit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	first := store.Begin()
	second := store.Begin()
	for _, tx := range []*MemoryTx{first, second} {
		draft, err := BuildEntry(DefaultChart(), saleInput())
		require.NoError(t, err)
		_, err = Append(ctx, tx, draft, time.Now())
		require.NoError(t, err)
	}
	require.NoError(t, first.Commit())
	require.ErrorIs(t, second.Commit(), ErrSequenceConflict)
	require.Equal(t, 1, store.Len())
}

func TestEntryFilterOrdersByDateThenSequence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	dates := []time.Time{
		time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, date := range dates {
			in := saleInput()
			in.Date = date
			draft, err := BuildEntry(DefaultChart(), in)
			if err != nil {
				return err
			}
			if _, err := Append(ctx, tx, draft, time.Now()); err != nil {
				return err
			}
		}
		return nil
	}))
	entries, err := store.ListEntries(ctx, EntryFilter{})
	require.NoError(t, err)
	require.EqualValues(t, []int64{2, 3, 1}, []int64{entries[0].Sequence, entries[1].Sequence, entries[2].Sequence})

	entries, err = store.ListEntries(ctx, EntryFilter{To: dates[1]})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
