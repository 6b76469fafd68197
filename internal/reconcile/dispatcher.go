package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler executes one effect. Handlers must be idempotent.
type Handler func(ctx context.Context, e Effect) error

// Store persists failed effects.
type Store interface {
	// Record upserts the open row for (kind, ref) and bumps its attempt count.
	Record(ctx context.Context, e Effect, cause string, next time.Time) error
	// Resolve closes any open row for (kind, ref).
	Resolve(ctx context.Context, kind Kind, refID int64) error
	Due(ctx context.Context, now time.Time, limit int) ([]Pending, error)
	Reschedule(ctx context.Context, id int64, cause string, next time.Time) error
	Abandon(ctx context.Context, id int64, cause string) error
	MarkResolved(ctx context.Context, id int64) error
	List(ctx context.Context, status Status, limit, offset int) ([]Pending, int, error)
}

// Queue hands effects to the background worker.
type Queue interface {
	Enqueue(ctx context.Context, e Effect) error
}

// Config tunes retry behaviour.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Minute
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 6 * time.Hour
	}
	return c
}

// Dispatcher routes effects to registered handlers.
type Dispatcher struct {
	store    Store
	queue    Queue
	logger   *slog.Logger
	metrics  *Metrics
	cfg      Config
	now      func() time.Time
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewDispatcher constructs a dispatcher. A nil queue makes Dispatch run inline.
func NewDispatcher(store Store, queue Queue, logger *slog.Logger, metrics *Metrics, cfg Config) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		queue:    queue,
		logger:   logger.With(slog.String("component", "reconcile")),
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		handlers: make(map[Kind]Handler),
	}
}

// WithNow overrides the clock for testing.
func (d *Dispatcher) WithNow(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// Register binds a handler to kind, replacing any previous one.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Kinds lists the registered effect kinds.
func (d *Dispatcher) Kinds() []Kind {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Kind, 0, len(d.handlers))
	for k := range d.handlers {
		out = append(out, k)
	}
	return out
}

// Run executes e inline. A failure is logged and persisted, never returned.
func (d *Dispatcher) Run(ctx context.Context, e Effect) {
	if err := d.execute(ctx, e); err != nil {
		d.defer1(ctx, e, err)
		return
	}
	d.metrics.observe(e.Kind, outcomeApplied)
}

// Dispatch hands e to the queue. Without a queue it runs inline; an enqueue
// failure is persisted so the sweep picks it up.
func (d *Dispatcher) Dispatch(ctx context.Context, e Effect) {
	if d.queue == nil {
		d.Run(ctx, e)
		return
	}
	if err := d.queue.Enqueue(ctx, e); err != nil {
		d.defer1(ctx, e, fmt.Errorf("enqueue: %w", err))
		return
	}
	d.metrics.observe(e.Kind, outcomeQueued)
}

// Handle is the worker entry point. Errors are returned so the queue retries.
func (d *Dispatcher) Handle(ctx context.Context, e Effect) error {
	if err := d.execute(ctx, e); err != nil {
		d.metrics.observe(e.Kind, outcomeRetry)
		return err
	}
	d.metrics.observe(e.Kind, outcomeApplied)
	if err := d.store.Resolve(ctx, e.Kind, e.RefID); err != nil {
		d.logger.Warn("resolve pending", slog.String("effect", e.String()), slog.Any("error", err))
	}
	return nil
}

// Fail persists an effect whose queue retries are exhausted.
func (d *Dispatcher) Fail(ctx context.Context, e Effect, cause error) {
	d.defer1(ctx, e, cause)
}

// Sweep retries due pending rows, abandoning those that exhausted MaxAttempts.
func (d *Dispatcher) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	var res SweepResult
	if limit <= 0 {
		limit = 100
	}
	due, err := d.store.Due(ctx, d.now(), limit)
	if err != nil {
		return res, fmt.Errorf("reconcile: load due: %w", err)
	}
	for _, p := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Attempted++
		logger := d.logger.With(slog.Int64("pending_id", p.ID), slog.String("effect", p.Effect().String()), slog.Int("attempts", p.Attempts))
		runErr := d.execute(ctx, p.Effect())
		if runErr == nil {
			if err := d.store.MarkResolved(ctx, p.ID); err != nil {
				return res, fmt.Errorf("reconcile: resolve %d: %w", p.ID, err)
			}
			res.Resolved++
			d.metrics.observe(p.Kind, outcomeApplied)
			logger.Info("pending reconciliation resolved")
			continue
		}
		attempts := p.Attempts + 1
		if attempts >= d.cfg.MaxAttempts || errors.Is(runErr, ErrUnknownKind) {
			if err := d.store.Abandon(ctx, p.ID, runErr.Error()); err != nil {
				return res, fmt.Errorf("reconcile: abandon %d: %w", p.ID, err)
			}
			res.Abandoned++
			d.metrics.observe(p.Kind, outcomeAbandoned)
			logger.Error("pending reconciliation abandoned", slog.Any("error", runErr))
			continue
		}
		if err := d.store.Reschedule(ctx, p.ID, runErr.Error(), d.now().Add(d.backoff(attempts))); err != nil {
			return res, fmt.Errorf("reconcile: reschedule %d: %w", p.ID, err)
		}
		res.Failed++
		d.metrics.observe(p.Kind, outcomeDeferred)
		logger.Warn("pending reconciliation retry failed", slog.Any("error", runErr))
	}
	return res, nil
}

// List pages through persisted rows with the given status.
func (d *Dispatcher) List(ctx context.Context, status Status, limit, offset int) ([]Pending, int, error) {
	return d.store.List(ctx, status, limit, offset)
}

func (d *Dispatcher) execute(ctx context.Context, e Effect) error {
	d.mu.RLock()
	h, ok := d.handlers[e.Kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownKind, e.Kind)
	}
	return h(ctx, e)
}

// defer1 records the first failed attempt of e.
func (d *Dispatcher) defer1(ctx context.Context, e Effect, cause error) {
	d.metrics.observe(e.Kind, outcomeDeferred)
	d.logger.Warn("side effect failed, recorded for reconciliation",
		slog.String("effect", e.String()),
		slog.Any("error", cause),
	)
	if d.store == nil {
		return
	}
	if err := d.store.Record(ctx, e, cause.Error(), d.now().Add(d.backoff(1))); err != nil {
		d.logger.Error("record pending reconciliation",
			slog.String("effect", e.String()),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
	}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	wait := d.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	return wait
}
