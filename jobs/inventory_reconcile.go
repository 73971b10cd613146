package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-books/internal/accounting/reports"
	jobmetrics "github.com/odyssey-erp/odyssey-books/internal/jobs"
)

// InventoryReconciler compares the inventory account with stock on hand.
type InventoryReconciler interface {
	LedgerID() string
	ReconcileInventory(ctx context.Context) (reports.InventoryReconciliation, error)
}

// InventoryReconcileJob logs the reconciliation variance of a ledger.
type InventoryReconcileJob struct {
	Books   InventoryReconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInventoryReconcileJob wires the reconciliation handler.
func NewInventoryReconcileJob(b InventoryReconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryReconcileJob {
	return &InventoryReconcileJob{Books: b, Logger: logger, Metrics: metrics}
}

// Handle processes inventory:reconcile tasks. A variance is reported, not
// treated as a failure.
func (j *InventoryReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Books == nil {
		return errors.New("inventory reconcile: handler not configured")
	}
	payload, err := decodeLedgerPayload(t)
	if err != nil {
		return fmt.Errorf("inventory reconcile: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := checkLedger(j.Books.LedgerID(), payload); err != nil {
		return err
	}
	_, err = j.Run(ctx)
	return err
}

// Run performs one reconciliation.
func (j *InventoryReconcileJob) Run(ctx context.Context) (rec reports.InventoryReconciliation, resultErr error) {
	tracker := j.metrics().Track(TaskInventoryReconcile)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ledgerID := j.Books.LedgerID()
	logger := j.logger().With(slog.String("ledger", ledgerID))

	rec, err := j.Books.ReconcileInventory(ctx)
	if err != nil {
		logger.Error("inventory reconciliation failed", slog.Any("error", err))
		return rec, err
	}
	attrs := []any{
		slog.String("ledger_balance", rec.Ledger.StringFixed(2)),
		slog.String("physical", rec.Physical.StringFixed(2)),
		slog.String("variance", rec.Variance.StringFixed(2)),
	}
	if rec.Drifted() {
		j.metrics().AddAnomalies("inventory_variance", ledgerID, 1)
		logger.Warn("inventory out of balance", attrs...)
		return rec, nil
	}
	logger.Info("inventory reconciled", attrs...)
	return rec, nil
}

func (j *InventoryReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInventoryReconcile))
	}
	return slog.Default().With(slog.String("job", TaskInventoryReconcile))
}

func (j *InventoryReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
