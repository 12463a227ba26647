// Package engine wires scanner, executor and auto manager behind the
// operations the CLI exposes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hetulpatel/cexarb/internal/arb"
	"github.com/hetulpatel/cexarb/internal/auto"
	"github.com/hetulpatel/cexarb/internal/cache"
	"github.com/hetulpatel/cexarb/internal/executor"
	"github.com/hetulpatel/cexarb/internal/logging"
	"github.com/hetulpatel/cexarb/internal/models"
	"github.com/hetulpatel/cexarb/internal/runtime"
)

var (
	ErrUnknownProposal    = errors.New("unknown proposal")
	ErrDuplicateExecution = errors.New("duplicate execution")
)

type DecisionMetrics interface {
	ObserveDecision(decision string)
}

type Config struct {
	HistorySize int
	Auto        auto.Config
}

type Deps struct {
	Scanner  auto.Scanner
	Executor auto.Executor
	Flags    runtime.Store
	Guard    cache.Guard
	Metrics  DecisionMetrics
}

// ExecuteRequest is a manual execution of a previously scanned proposal.
// IdempotencyKey defaults to the proposal id.
type ExecuteRequest struct {
	ProposalID     string
	Mode           models.Mode
	Transfer       executor.TransferPreference
	PIN            string
	DoubleConfirm  bool
	IdempotencyKey string
}

type Engine struct {
	scanner  auto.Scanner
	executor auto.Executor
	flags    runtime.Store
	guard    cache.Guard
	metrics  DecisionMetrics
	auto     *auto.Manager

	history  *history
	locks    keyedMutex
	counters runtime.Counters
	now      func() time.Time
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Scanner == nil || deps.Executor == nil {
		return nil, fmt.Errorf("engine: scanner and executor are required")
	}
	if deps.Flags == nil {
		deps.Flags = runtime.NewMemoryStore(runtime.DefaultFlags())
	}
	if deps.Guard == nil {
		deps.Guard = cache.NewMemoryGuard(0)
	}
	e := &Engine{
		scanner:  deps.Scanner,
		executor: deps.Executor,
		flags:    deps.Flags,
		guard:    deps.Guard,
		metrics:  deps.Metrics,
		history:  newHistory(cfg.HistorySize),
		now:      time.Now,
	}
	// The auto manager goes through the same guarded path as manual runs.
	mgr, err := auto.NewManager(cfg.Auto, e, guardedExecutor{e})
	if err != nil {
		return nil, err
	}
	e.auto = mgr
	return e, nil
}

// WithClock replaces the time source of the engine and its auto manager.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.auto.WithClock(now)
	return e
}

// Scan runs one scan with the current filters and remembers the kept
// opportunities for ExecuteByID.
func (e *Engine) Scan(ctx context.Context, f models.Filters) (arb.Result, error) {
	res, err := e.scanner.Scan(ctx, f)
	if err != nil {
		return arb.Result{}, err
	}
	e.history.add(res.Opportunities...)
	e.counters.RecordScan(e.now(), len(res.Opportunities))
	return res, nil
}

// ScanNow scans with the filters from the flag store.
func (e *Engine) ScanNow(ctx context.Context) (arb.Result, error) {
	flags, err := e.flags.Load(ctx)
	if err != nil {
		return arb.Result{}, fmt.Errorf("load flags: %w", err)
	}
	return e.Scan(ctx, flags.Filters)
}

func (e *Engine) ExecuteByID(ctx context.Context, req ExecuteRequest) (models.ExecutionResult, error) {
	opp, ok := e.history.get(req.ProposalID)
	if !ok {
		return models.ExecutionResult{}, fmt.Errorf("%w: %s", ErrUnknownProposal, req.ProposalID)
	}
	flags, err := e.flags.Load(ctx)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("load flags: %w", err)
	}
	return e.execute(ctx, req.IdempotencyKey, executor.Request{
		Opportunity:   opp,
		Mode:          req.Mode,
		Transfer:      req.Transfer,
		PIN:           req.PIN,
		DoubleConfirm: req.DoubleConfirm,
		GlobalStop:    flags.GlobalStop,
		Filters:       &flags.Filters,
	})
}

// execute claims the idempotency key, serializes on the venue pair and runs
// the executor. Rejections release the key so the signal can be retried;
// fills and failures keep it.
func (e *Engine) execute(ctx context.Context, key string, req executor.Request) (models.ExecutionResult, error) {
	if key == "" {
		key = req.Opportunity.ProposalID
	}
	claimed, err := e.guard.Claim(ctx, key)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		return models.ExecutionResult{}, fmt.Errorf("%w: %s", ErrDuplicateExecution, key)
	}

	unlock := e.locks.lock(req.Opportunity.Key())
	res, err := e.executor.Execute(ctx, req)
	unlock()

	if err != nil || res.Status == models.StatusRejected {
		if relErr := e.guard.Release(ctx, key); relErr != nil {
			logging.Warnf("[engine] release %s: %v", key, relErr)
		}
	}
	if err != nil {
		return models.ExecutionResult{}, err
	}
	e.counters.RecordExecution(res)
	return res, nil
}

// Tick drives the auto manager once with the current flags.
func (e *Engine) Tick(ctx context.Context) (auto.Decision, error) {
	flags, err := e.flags.Load(ctx)
	if err != nil {
		return auto.Decision{}, fmt.Errorf("load flags: %w", err)
	}
	decision, err := e.auto.MaybeRun(ctx, flags)
	if err != nil {
		return decision, err
	}
	e.counters.RecordDecision(string(decision.Reason))
	if e.metrics != nil {
		e.metrics.ObserveDecision(string(decision.Reason))
	}
	return decision, nil
}

// Run ticks every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		decision, err := e.Tick(ctx)
		if err != nil {
			logging.Errorf("[engine] tick: %v", err)
		} else if decision.Reason != auto.ReasonIntervalWait {
			logging.Infof("[engine] tick decision=%s", decision.Reason)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) UpdateFilters(ctx context.Context, patch models.FiltersPatch) (models.Filters, error) {
	flags, err := runtime.Update(ctx, e.flags, func(f *runtime.Flags) error {
		next, err := patch.Apply(f.Filters)
		if err != nil {
			return err
		}
		f.Filters = next
		return nil
	})
	if err != nil {
		return models.Filters{}, err
	}
	logging.Infof("[engine] filters updated: %+v", flags.Filters)
	return flags.Filters, nil
}

func (e *Engine) ToggleAutoMode(ctx context.Context, on bool) (runtime.Flags, error) {
	return e.setFlag(ctx, "auto_mode", on, func(f *runtime.Flags) { f.AutoMode = on })
}

func (e *Engine) SetGlobalStop(ctx context.Context, on bool) (runtime.Flags, error) {
	return e.setFlag(ctx, "global_stop", on, func(f *runtime.Flags) { f.GlobalStop = on })
}

func (e *Engine) SetArbOn(ctx context.Context, on bool) (runtime.Flags, error) {
	return e.setFlag(ctx, "arb_on", on, func(f *runtime.Flags) { f.ArbOn = on })
}

func (e *Engine) setFlag(ctx context.Context, name string, on bool, set func(*runtime.Flags)) (runtime.Flags, error) {
	flags, err := runtime.Update(ctx, e.flags, func(f *runtime.Flags) error {
		set(f)
		return nil
	})
	if err != nil {
		return runtime.Flags{}, err
	}
	logging.Infof("[engine] %s=%t", name, on)
	return flags, nil
}

func (e *Engine) Flags(ctx context.Context) (runtime.Flags, error) {
	return e.flags.Load(ctx)
}

func (e *Engine) Snapshot() runtime.Snapshot {
	return e.counters.Snapshot()
}

// Recent returns remembered opportunities, newest first.
func (e *Engine) Recent(limit int) []models.Opportunity {
	return e.history.recent(limit)
}

// guardedExecutor routes auto-triggered executions through Engine.execute.
type guardedExecutor struct {
	e *Engine
}

func (g guardedExecutor) Execute(ctx context.Context, req executor.Request) (models.ExecutionResult, error) {
	return g.e.execute(ctx, "", req)
}
