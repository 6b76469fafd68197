package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/printhub/backoffice/internal/jobs"
	"github.com/printhub/backoffice/internal/reconcile"
)

// EffectRunner executes queued effects and records those that exhausted their retries.
type EffectRunner interface {
	Handle(ctx context.Context, e reconcile.Effect) error
	Fail(ctx context.Context, e reconcile.Effect, cause error)
}

// Sweeper retries due pending reconciliations.
type Sweeper interface {
	Sweep(ctx context.Context, limit int) (reconcile.SweepResult, error)
}

// EffectJob is the worker side of reconcile.Dispatcher.Dispatch.
type EffectJob struct {
	Runner  EffectRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	// retries reports how often the running task was retried and its limit.
	retries func(ctx context.Context) (retried, max int)
}

// NewEffectJob initialises the effect handler.
func NewEffectJob(runner EffectRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *EffectJob {
	return &EffectJob{Runner: runner, Logger: logger, Metrics: metrics, retries: asynqRetries}
}

func asynqRetries(ctx context.Context) (int, int) {
	retried, _ := asynq.GetRetryCount(ctx)
	max, _ := asynq.GetMaxRetry(ctx)
	return retried, max
}

// Handle runs the effect. On the final attempt a failure is persisted for the
// sweep instead of being returned, so the task is not archived twice.
func (j *EffectJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("reconcile effect: handler not configured")
	}
	var e reconcile.Effect
	if err := json.Unmarshal(t.Payload(), &e); err != nil || e.Kind == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskReconcileEffect)
	err := j.Runner.Handle(ctx, e)
	_ = tracker.End(err)
	if err == nil {
		return nil
	}
	retried, max := j.retries(ctx)
	logger := logFor(j.Logger, TaskReconcileEffect).With(
		slog.String("effect", e.String()),
		slog.Int("retried", retried),
	)
	if errors.Is(err, reconcile.ErrUnknownKind) || retried >= max {
		logger.Error("effect retries exhausted", slog.Any("error", err))
		j.Runner.Fail(ctx, e, err)
		return nil
	}
	logger.Warn("effect failed, will retry", slog.Any("error", err))
	return err
}

// SweepJob retries due pending reconciliations on a schedule.
type SweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Limit   int
}

// NewSweepJob initialises the sweep handler.
func NewSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics, limit int) *SweepJob {
	return &SweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics, Limit: limit}
}

// Handle executes one sweep pass.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("reconcile sweep: handler not configured")
	}
	payload := SweepPayload{Limit: j.Limit}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskReconcileSweep)
	defer func() { err = tracker.End(err) }()

	res, err := j.Sweeper.Sweep(ctx, payload.Limit)
	if err != nil {
		logFor(j.Logger, TaskReconcileSweep).Error("sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetResult(TaskReconcileSweep, "resolved", int64(res.Resolved))
	j.Metrics.SetResult(TaskReconcileSweep, "failed", int64(res.Failed))
	j.Metrics.AddFindings(TaskReconcileSweep, "abandoned", res.Abandoned)
	if res.Attempted > 0 {
		logFor(j.Logger, TaskReconcileSweep).Info("sweep completed",
			slog.Int("attempted", res.Attempted),
			slog.Int("resolved", res.Resolved),
			slog.Int("failed", res.Failed),
			slog.Int("abandoned", res.Abandoned),
		)
	}
	return nil
}

func logFor(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
