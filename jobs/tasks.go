package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity re-verifies every posted entry and the trial balance.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskInventoryReconcile compares the inventory account with stock on hand.
	TaskInventoryReconcile = "inventory:reconcile"
)

// LedgerPayload scopes a task to one ledger. An empty LedgerID means the
// ledger the worker was started for.
type LedgerPayload struct {
	LedgerID    string    `json:"ledger_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewLedgerIntegrityTask builds a ledger:integrity task.
func NewLedgerIntegrityTask(ledgerID string) (*asynq.Task, error) {
	return newLedgerTask(TaskLedgerIntegrity, ledgerID)
}

// NewInventoryReconcileTask builds an inventory:reconcile task.
func NewInventoryReconcileTask(ledgerID string) (*asynq.Task, error) {
	return newLedgerTask(TaskInventoryReconcile, ledgerID)
}

func newLedgerTask(typ, ledgerID string) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerPayload{LedgerID: ledgerID, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

func decodeLedgerPayload(t *asynq.Task) (LedgerPayload, error) {
	var payload LedgerPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
