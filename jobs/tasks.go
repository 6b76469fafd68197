package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/printhub/backoffice/internal/reconcile"
)

const (
	// QueueCritical carries post-commit side effects of financial mutations.
	QueueCritical = "critical"
	// QueueDefault carries scheduled maintenance.
	QueueDefault = "default"
)

const (
	// TaskReconcileEffect runs one deferred side effect.
	TaskReconcileEffect = "reconcile:effect"
	// TaskReconcileSweep retries due pending reconciliations.
	TaskReconcileSweep = "reconcile:sweep"
	// TaskLedgerOverdue flips ledgers past their due date to overdue.
	TaskLedgerOverdue = "ledger:overdue"
	// TaskLedgerOrphans removes ledgers whose order is gone.
	TaskLedgerOrphans = "ledger:orphans"
	// TaskJournalIntegrity reports journals whose lines do not balance.
	TaskJournalIntegrity = "journal:integrity"
)

// DefaultEffectRetries bounds queue retries before an effect falls back to
// the pending-reconciliation table.
const DefaultEffectRetries = 5

// NewEffectTask wraps a side effect as a task.
func NewEffectTask(e reconcile.Effect, maxRetry int) (*asynq.Task, error) {
	if maxRetry <= 0 {
		maxRetry = DefaultEffectRetries
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%s:%s", e.String(), uuid.NewString())
	return asynq.NewTask(TaskReconcileEffect, body,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(id),
	), nil
}

// SweepPayload bounds one sweep pass.
type SweepPayload struct {
	Limit int `json:"limit"`
}

// NewSweepTask builds the reconcile sweep task.
func NewSweepTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileSweep, body, asynq.Queue(QueueDefault)), nil
}

// NewOverdueTask builds the overdue refresh task.
func NewOverdueTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerOverdue, nil, asynq.Queue(QueueDefault))
}

// NewOrphanCleanupTask builds the orphan ledger cleanup task.
func NewOrphanCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerOrphans, nil, asynq.Queue(QueueDefault))
}

// IntegrityPayload sets how far back the journal check looks.
type IntegrityPayload struct {
	WindowHours int `json:"window_hours"`
}

// NewIntegrityTask builds the journal integrity task.
func NewIntegrityTask(windowHours int) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityPayload{WindowHours: windowHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskJournalIntegrity, body, asynq.Queue(QueueDefault)), nil
}
