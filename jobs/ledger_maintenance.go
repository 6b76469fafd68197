package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/printhub/backoffice/internal/jobs"
	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/ledger"
)

// LedgerMaintainer is the slice of the ledger service used by scheduled jobs.
type LedgerMaintainer interface {
	UpdateOverdueStatus(ctx context.Context) (ledger.OverdueResult, error)
	CleanupOrphans(ctx context.Context) (int, error)
}

// IntegrityChecker lists journals whose debits and credits differ.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, since time.Time) ([]journal.Imbalance, error)
}

// OverdueJob refreshes ledger payment status against due dates.
type OverdueJob struct {
	Ledgers LedgerMaintainer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverdueJob initialises the overdue handler.
func NewOverdueJob(ledgers LedgerMaintainer, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueJob {
	return &OverdueJob{Ledgers: ledgers, Logger: logger, Metrics: metrics}
}

// Handle flips past-due ledgers to overdue.
func (j *OverdueJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Ledgers == nil {
		return errors.New("ledger overdue: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerOverdue)
	defer func() { err = tracker.End(err) }()

	res, err := j.Ledgers.UpdateOverdueStatus(ctx)
	if err != nil {
		logFor(j.Logger, TaskLedgerOverdue).Error("overdue refresh failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetResult(TaskLedgerOverdue, "sales", res.Sales)
	j.Metrics.SetResult(TaskLedgerOverdue, "purchase", res.Purchase)
	return nil
}

// KeyJanitor purges expired request idempotency keys.
type KeyJanitor interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OrphanJob removes order-origin ledgers left behind by deleted orders and,
// when Keys is set, idempotency keys older than KeyRetention.
type OrphanJob struct {
	Ledgers      LedgerMaintainer
	Keys         KeyJanitor
	KeyRetention time.Duration
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
}

// NewOrphanJob initialises the orphan cleanup handler.
func NewOrphanJob(ledgers LedgerMaintainer, logger *slog.Logger, metrics *jobmetrics.Metrics) *OrphanJob {
	return &OrphanJob{Ledgers: ledgers, Logger: logger, Metrics: metrics}
}

// Handle runs one cleanup pass.
func (j *OrphanJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Ledgers == nil {
		return errors.New("ledger orphans: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerOrphans)
	defer func() { err = tracker.End(err) }()

	removed, err := j.Ledgers.CleanupOrphans(ctx)
	if err != nil {
		logFor(j.Logger, TaskLedgerOrphans).Error("orphan cleanup failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddFindings(TaskLedgerOrphans, "orphan_ledger", removed)
	if removed > 0 {
		logFor(j.Logger, TaskLedgerOrphans).Info("orphan ledgers removed", slog.Int("removed", removed))
	}
	if j.Keys == nil {
		return nil
	}
	retention := j.KeyRetention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	purged, err := j.Keys.Cleanup(ctx, retention)
	if err != nil {
		logFor(j.Logger, TaskLedgerOrphans).Error("idempotency cleanup failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetResult(TaskLedgerOrphans, "idempotency_keys_purged", purged)
	return nil
}

// IntegrityJob scans recent journals for debit/credit mismatches.
type IntegrityJob struct {
	Journals IntegrityChecker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewIntegrityJob initialises the integrity handler.
func NewIntegrityJob(journals IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Journals: journals, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle reports every unbalanced journal posted inside the window.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Journals == nil {
		return errors.New("journal integrity: handler not configured")
	}
	payload := IntegrityPayload{WindowHours: 24}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.WindowHours <= 0 {
		payload.WindowHours = 24
	}
	tracker := j.Metrics.Track(TaskJournalIntegrity)
	defer func() { err = tracker.End(err) }()

	logger := logFor(j.Logger, TaskJournalIntegrity)
	since := j.clock().Add(-time.Duration(payload.WindowHours) * time.Hour)
	found, err := j.Journals.CheckIntegrity(ctx, since)
	if err != nil {
		logger.Error("integrity check failed", slog.Any("error", err))
		return err
	}
	for _, im := range found {
		logger.Error("unbalanced journal",
			slog.Int64("journal_id", im.JournalID),
			slog.String("voucher_no", im.VoucherNo),
			slog.Int64("debit", im.Debit),
			slog.Int64("credit", im.Credit),
		)
	}
	j.Metrics.AddFindings(TaskJournalIntegrity, "unbalanced_journal", len(found))
	return nil
}
