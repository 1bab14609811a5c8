package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

type RunMode string

const (
	ModeIncremental RunMode = "incremental"
	ModeFull        RunMode = "full"
)

func ParseRunMode(v string) (RunMode, error) {
	switch RunMode(v) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", fmt.Errorf("%w: unsupported run mode %q", domain.ErrInvalidInput, v)
	}
}

type RunState string

const (
	StateIdle    RunState = "IDLE"
	StateRunning RunState = "RUNNING"
)

type RunReport struct {
	Target       string     `json:"target"`
	Mode         RunMode    `json:"mode"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   time.Time  `json:"finishedAt"`
	Since        *time.Time `json:"since,omitempty"`
	Pages        int        `json:"pages"`
	Upserted     int        `json:"upserted"`
	Skipped      int        `json:"skipped"`
	Deleted      int64      `json:"deleted"`
	Checkpointed bool       `json:"checkpointed"`
}

type TargetStatus struct {
	Target     string     `json:"target"`
	State      RunState   `json:"state"`
	LastReport *RunReport `json:"lastReport,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

type EngineConfig struct {
	PageSize int
	Clock    func() time.Time
}

// Engine repairs replicas by pulling the owner's sync feed page by page,
// upserting every page and pruning local ids the owner no longer reports.
// A run never holds a lock: callers must not run the same target twice
// concurrently, and can consult Status to avoid it. Status only reflects
// runs of this Engine value; separate processes sharing a replica store
// (the api and worker binaries) can still overlap, so schedule a target in
// one of them only.
type Engine struct {
	logger      *slog.Logger
	source      ports.SyncSource
	checkpoints ports.CheckpointRepository
	pageSize    int
	nowFn       func() time.Time
	targets     map[string]Target

	mu     sync.Mutex
	status map[string]*TargetStatus
}

func NewEngine(logger *slog.Logger, source ports.SyncSource, checkpoints ports.CheckpointRepository, cfg EngineConfig, targets ...Target) *Engine {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = contracts.DefaultSyncPageSize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	e := &Engine{
		logger:      loggerOrDefault(logger),
		source:      source,
		checkpoints: checkpoints,
		pageSize:    pageSize,
		nowFn:       clock,
		targets:     make(map[string]Target, len(targets)),
		status:      make(map[string]*TargetStatus, len(targets)),
	}
	for _, target := range targets {
		e.targets[target.Name()] = target
		e.status[target.Name()] = &TargetStatus{Target: target.Name(), State: StateIdle}
	}
	return e
}

func (e *Engine) Targets() []string {
	names := make([]string, 0, len(e.targets))
	for name := range e.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) Status(name string) (TargetStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.status[name]
	if !ok {
		return TargetStatus{}, fmt.Errorf("%w: sync target %q", domain.ErrNotFound, name)
	}
	out := *st
	if st.LastReport != nil {
		report := *st.LastReport
		out.LastReport = &report
	}
	return out, nil
}

// HasCheckpoint reports whether target has a stored watermark. A target
// without one only prunes on incremental runs until a full run seeds it.
func (e *Engine) HasCheckpoint(ctx context.Context, name string) (bool, error) {
	if _, ok := e.targets[name]; !ok {
		return false, fmt.Errorf("%w: sync target %q", domain.ErrNotFound, name)
	}
	_, err := e.checkpoints.Get(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("load checkpoint: %w", err)
	}
}

func (e *Engine) RunIncremental(ctx context.Context, name string) (RunReport, error) {
	return e.Run(ctx, name, ModeIncremental)
}

func (e *Engine) RunFull(ctx context.Context, name string) (RunReport, error) {
	return e.Run(ctx, name, ModeFull)
}

func (e *Engine) Run(ctx context.Context, name string, mode RunMode) (RunReport, error) {
	target, ok := e.targets[name]
	if !ok {
		return RunReport{}, fmt.Errorf("%w: sync target %q", domain.ErrNotFound, name)
	}
	// a started run is never abandoned half-way by the caller.
	ctx = context.WithoutCancel(ctx)

	report := RunReport{Target: name, Mode: mode, StartedAt: e.nowFn()}
	e.setState(name, StateRunning, nil, nil)

	var err error
	switch mode {
	case ModeFull:
		err = e.runFull(ctx, target, &report)
	default:
		report.Mode = ModeIncremental
		err = e.runIncremental(ctx, target, &report)
	}
	report.FinishedAt = e.nowFn()
	e.setState(name, StateIdle, &report, err)

	if err != nil {
		e.logger.ErrorContext(ctx, "reconciliation run failed",
			"module", "reconcile.engine",
			"layer", "application",
			"operation", "run_"+string(report.Mode),
			"outcome", "failure",
			"target", name,
			"pages", report.Pages,
			"upserted", report.Upserted,
			"error", err,
		)
		return report, err
	}
	e.logger.InfoContext(ctx, "reconciliation run completed",
		"module", "reconcile.engine",
		"layer", "application",
		"operation", "run_"+string(report.Mode),
		"outcome", "success",
		"target", name,
		"pages", report.Pages,
		"upserted", report.Upserted,
		"skipped", report.Skipped,
		"deleted", report.Deleted,
		"checkpointed", report.Checkpointed,
	)
	return report, nil
}

func (e *Engine) runIncremental(ctx context.Context, target Target, report *RunReport) error {
	checkpoint, err := e.checkpoints.Get(ctx, target.Name())
	if errors.Is(err, domain.ErrNotFound) {
		// without a watermark only the orphan pass runs; a full run seeds
		// the first checkpoint.
		return e.prune(ctx, target, report)
	}
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	since := checkpoint.LastSyncAt
	report.Since = &since
	if err := e.pull(ctx, target, &since, report); err != nil {
		return err
	}
	if err := e.prune(ctx, target, report); err != nil {
		return err
	}
	return e.commit(ctx, target, report)
}

func (e *Engine) runFull(ctx context.Context, target Target, report *RunReport) error {
	if err := e.checkpoints.Delete(ctx, target.Name()); err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	if err := e.pull(ctx, target, nil, report); err != nil {
		return err
	}
	if err := e.prune(ctx, target, report); err != nil {
		return err
	}
	return e.commit(ctx, target, report)
}

func (e *Engine) pull(ctx context.Context, target Target, since *time.Time, report *RunReport) error {
	for page := 1; ; page++ {
		result, err := e.source.FetchPage(ctx, target.Resource(), contracts.SyncQuery{
			Page:  page,
			Limit: e.pageSize,
			Since: since,
		})
		if err != nil {
			return fmt.Errorf("fetch %s page %d: %w", target.Resource(), page, err)
		}
		report.Pages++
		if len(result.Items) > 0 {
			upserted, skipped, err := target.Upsert(ctx, result.Items)
			report.Skipped += skipped
			if err != nil {
				return fmt.Errorf("upsert %s page %d: %w", target.Name(), page, err)
			}
			report.Upserted += upserted
		}
		if page >= result.Pagination.TotalPages {
			return nil
		}
	}
}

func (e *Engine) prune(ctx context.Context, target Target, report *RunReport) error {
	// local ids first: a record created by an event after this read is
	// never a prune candidate.
	local, err := target.LocalIDs(ctx)
	if err != nil {
		return fmt.Errorf("list local %s ids: %w", target.Name(), err)
	}
	remote, err := e.source.FetchActiveIDs(ctx, target.Resource())
	if err != nil {
		return fmt.Errorf("fetch %s ids: %w", target.Resource(), err)
	}
	active := make(map[string]struct{}, len(remote))
	for _, id := range remote {
		active[id] = struct{}{}
	}
	orphans := make([]string, 0)
	for _, id := range local {
		if _, ok := active[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return nil
	}
	deleted, err := target.DeleteIDs(ctx, orphans)
	if err != nil {
		return fmt.Errorf("delete %s orphans: %w", target.Name(), err)
	}
	report.Deleted += deleted
	return nil
}

// commit stores the run start as the new watermark so that writes landing
// while the run was paging are picked up by the next one.
func (e *Engine) commit(ctx context.Context, target Target, report *RunReport) error {
	if err := e.checkpoints.Save(ctx, domain.Checkpoint{Type: target.Name(), LastSyncAt: report.StartedAt}); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	report.Checkpointed = true
	return nil
}

func (e *Engine) setState(name string, state RunState, report *RunReport, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.status[name]
	st.State = state
	if report != nil {
		r := *report
		st.LastReport = &r
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
	}
}
