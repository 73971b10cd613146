package integration

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
)

// VoidPosting mirrors one entry. Movements undo the stock the original
// entry carried and are linked to the mirror.
type VoidPosting struct {
	Original  accounting.JournalEntry
	Entry     accounting.PostingInput
	Movements []inventory.MovementRequest
}

// GenerateVoidReversalEntries mirrors original and every cost entry of the
// same document. documentEntries are the entries linked to the original's
// document; movements are the stock movements linked to any of them. A zero
// date reverses on the original's date.
func (g *Generator) GenerateVoidReversalEntries(original accounting.JournalEntry, documentEntries []accounting.JournalEntry, movements []inventory.Movement, date time.Time) ([]VoidPosting, error) {
	fail := func(err error, detail string) error {
		return &accounting.PostingError{Op: "void", EntryID: original.ID, Reference: original.Reference(), Detail: detail, Err: err}
	}
	switch {
	case original.Status == accounting.EntryStatusVoided:
		return nil, fail(accounting.ErrAlreadyVoided, "")
	case original.IsReversal():
		return nil, fail(accounting.ErrInvalidStatus, "reversal entries cannot be voided")
	case original.Status != accounting.EntryStatusPosted:
		return nil, fail(accounting.ErrInvalidStatus, string(original.Status))
	}

	targets := []accounting.JournalEntry{original}
	for _, e := range documentEntries {
		if e.ID == original.ID || e.Status != accounting.EntryStatusPosted {
			continue
		}
		switch original.Origin {
		case accounting.OriginSale, accounting.OriginPurchase:
			if e.Origin == accounting.OriginPayment {
				return nil, fail(accounting.ErrDocumentSettled, "void the payment "+e.Reference()+" first")
			}
			if e.Origin == accounting.OriginInventory {
				targets = append(targets, e)
			}
		case accounting.OriginInventory:
			if e.Origin == accounting.OriginSale || e.Origin == accounting.OriginPurchase {
				return nil, fail(accounting.ErrInvalidStatus, "void the source document "+e.Reference())
			}
		}
	}

	postings := make([]VoidPosting, 0, len(targets))
	for _, target := range targets {
		targetID := target.ID
		posting := VoidPosting{
			Original: target,
			Entry: accounting.PostingInput{
				Date:              dateOr(date, target.Date),
				Description:       fmt.Sprintf("Void of %s", target.Reference()),
				ExternalReference: "VOID-" + target.Reference(),
				Origin:            accounting.OriginVoidReversal,
				OriginDocumentID:  target.OriginDocumentID,
				ReversalOf:        &targetID,
				ReversedOrigin:    target.Origin,
				Lines:             accounting.MirrorLines(target.Lines),
			},
		}
		for _, mv := range movements {
			if mv.EntryID == nil || *mv.EntryID != target.ID {
				continue
			}
			posting.Movements = append(posting.Movements, inverseMovement(mv, posting.Entry.Date))
		}
		postings = append(postings, posting)
	}
	return postings, nil
}

// inverseMovement undoes mv at its original unit cost.
func inverseMovement(mv inventory.Movement, date time.Time) inventory.MovementRequest {
	cost := mv.UnitCost
	req := inventory.MovementRequest{
		ItemID:     mv.ItemID,
		Quantity:   mv.Quantity,
		UnitCost:   &cost,
		Reason:     mv.Reason,
		DocumentID: mv.DocumentID,
		Date:       date,
		Memo:       "void " + string(mv.Reason),
	}
	if mv.Type == inventory.MovementOut {
		req.Type = inventory.MovementIn
		if mv.Reason == inventory.ReasonSale {
			req.Reason = inventory.ReasonSaleVoid
		}
		return req
	}
	req.Type = inventory.MovementOut
	if mv.Reason == inventory.ReasonPurchase || mv.Reason == inventory.ReasonOpening {
		req.Reason = inventory.ReasonPurchaseVoid
	}
	return req
}
