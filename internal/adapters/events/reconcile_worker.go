package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/groovy/replicasync/internal/application"
)

type ReconcileSchedule struct {
	Interval     time.Duration
	FullInterval time.Duration
	FullOnStart  bool
}

// ReconcileWorker runs every engine target one after another on each tick,
// so a target never overlaps with itself.
type ReconcileWorker struct {
	logger   *slog.Logger
	engine   *application.Engine
	schedule ReconcileSchedule
	nowFn    func() time.Time
	lastFull time.Time
}

func NewReconcileWorker(logger *slog.Logger, engine *application.Engine, schedule ReconcileSchedule) *ReconcileWorker {
	if schedule.Interval <= 0 {
		schedule.Interval = 5 * time.Minute
	}
	return &ReconcileWorker{
		logger: logger, engine: engine, schedule: schedule, nowFn: time.Now,
	}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	if w.schedule.FullOnStart {
		w.runAll(ctx, application.ModeFull)
	} else {
		w.lastFull = w.nowFn()
		w.processOnce(ctx)
	}
	ticker := time.NewTicker(w.schedule.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		w.processOnce(ctx)
	}
}

func (w *ReconcileWorker) processOnce(ctx context.Context) {
	mode := application.ModeIncremental
	if w.schedule.FullInterval > 0 && w.nowFn().Sub(w.lastFull) >= w.schedule.FullInterval {
		mode = application.ModeFull
	}
	w.runAll(ctx, mode)
}

func (w *ReconcileWorker) runAll(ctx context.Context, mode application.RunMode) {
	if mode == application.ModeFull {
		w.lastFull = w.nowFn()
	}
	for _, target := range w.engine.Targets() {
		if ctx.Err() != nil {
			return
		}
		if status, err := w.engine.Status(target); err == nil && status.State == application.StateRunning {
			w.logger.InfoContext(ctx, "reconciliation skipped, target busy",
				"module", "events.reconcile_worker",
				"layer", "adapter",
				"operation", "run_"+string(mode),
				"outcome", "skipped",
				"target", target,
			)
			continue
		}
		runMode := w.modeFor(ctx, target, mode)
		if _, err := w.engine.Run(ctx, target, runMode); err != nil {
			w.logger.ErrorContext(ctx, "reconciliation iteration failed",
				"module", "events.reconcile_worker",
				"layer", "adapter",
				"operation", "run_"+string(runMode),
				"outcome", "failure",
				"target", target,
				"error", err,
			)
		}
	}
}

// modeFor upgrades an incremental tick to a full run for a target that has
// never been seeded, since an incremental run without a checkpoint only
// prunes.
func (w *ReconcileWorker) modeFor(ctx context.Context, target string, mode application.RunMode) application.RunMode {
	if mode == application.ModeFull {
		return mode
	}
	seeded, err := w.engine.HasCheckpoint(ctx, target)
	if err != nil {
		w.logger.WarnContext(ctx, "checkpoint lookup failed",
			"module", "events.reconcile_worker",
			"layer", "adapter",
			"operation", "load_checkpoint",
			"outcome", "failure",
			"target", target,
			"error", err,
		)
		return mode
	}
	if !seeded {
		w.logger.InfoContext(ctx, "seeding target with a full run",
			"module", "events.reconcile_worker",
			"layer", "adapter",
			"operation", "run_full",
			"outcome", "seed",
			"target", target,
		)
		return application.ModeFull
	}
	return mode
}
