package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/books"
	jobmetrics "github.com/odyssey-erp/odyssey-books/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ErrWrongLedger rejects a task addressed to another ledger.
var ErrWrongLedger = errors.New("jobs: task addressed to another ledger")

// IntegrityVerifier re-checks a ledger end to end.
type IntegrityVerifier interface {
	LedgerID() string
	VerifyIntegrity(ctx context.Context) (books.IntegrityReport, error)
}

// LedgerIntegrityJob re-runs the trial balance and the per-entry checks.
type LedgerIntegrityJob struct {
	Books   IntegrityVerifier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob wires the integrity handler.
func NewLedgerIntegrityJob(b IntegrityVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Books: b, Logger: logger, Metrics: metrics}
}

// Handle processes ledger:integrity tasks. Inconsistencies skip retry.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Books == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	payload, err := decodeLedgerPayload(t)
	if err != nil {
		return fmt.Errorf("ledger integrity: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := checkLedger(j.Books.LedgerID(), payload); err != nil {
		return err
	}

	_, err = j.Run(ctx)
	if errors.Is(err, accounting.ErrReportingInconsistency) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Run performs one check and records its outcome.
func (j *LedgerIntegrityJob) Run(ctx context.Context) (report books.IntegrityReport, resultErr error) {
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ledgerID := j.Books.LedgerID()
	logger := j.logger().With(slog.String("ledger", ledgerID))
	logger.Info("starting ledger integrity check")

	report, err := j.Books.VerifyIntegrity(ctx)
	if err != nil && !errors.Is(err, accounting.ErrReportingInconsistency) {
		logger.Error("integrity check failed", slog.Any("error", err))
		return report, err
	}

	metrics := j.metrics()
	metrics.AddAnomalies("checksum", ledgerID, len(report.ChecksumFailures))
	metrics.AddAnomalies("unbalanced", ledgerID, len(report.Unbalanced))
	metrics.AddAnomalies("sequence_gap", ledgerID, len(report.SequenceGaps))

	if err != nil {
		logger.Error("ledger integrity violated",
			slog.Any("checksum_failures", report.ChecksumFailures),
			slog.Any("unbalanced", report.Unbalanced),
			slog.Any("sequence_gaps", report.SequenceGaps),
			slog.Any("error", err),
		)
		return report, err
	}

	logger.Info("completed ledger integrity check",
		slog.Int("entries", report.Entries),
		slog.Int64("last_sequence", report.LastSequence),
		slog.String("total_debit", report.TotalDebit.StringFixed(2)),
		slog.String("total_credit", report.TotalCredit.StringFixed(2)),
	)
	return report, nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func checkLedger(own string, payload LedgerPayload) error {
	if payload.LedgerID == "" || payload.LedgerID == own {
		return nil
	}
	return fmt.Errorf("%w: want %q, got %q: %w", ErrWrongLedger, own, payload.LedgerID, asynq.SkipRetry)
}
