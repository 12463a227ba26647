// Package auto drives one autonomous decision per external tick.
package auto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hetulpatel/cexarb/internal/arb"
	"github.com/hetulpatel/cexarb/internal/executor"
	"github.com/hetulpatel/cexarb/internal/logging"
	"github.com/hetulpatel/cexarb/internal/models"
	"github.com/hetulpatel/cexarb/internal/policy"
	"github.com/hetulpatel/cexarb/internal/runtime"
)

type Reason string

const (
	ReasonStopped       Reason = "stopped"
	ReasonAutoDisabled  Reason = "auto_disabled"
	ReasonIntervalWait  Reason = "interval_wait"
	ReasonNoOpportunity Reason = "no_opportunity"
	ReasonExecuted      Reason = "executed"
)

type Scanner interface {
	Scan(ctx context.Context, f models.Filters) (arb.Result, error)
}

type Executor interface {
	Execute(ctx context.Context, req executor.Request) (models.ExecutionResult, error)
}

// Decision is what one MaybeRun call did. Scan and Execution are set only
// when that stage ran.
type Decision struct {
	Reason    Reason                  `json:"reason"`
	Scan      *arb.Result             `json:"scan,omitempty"`
	Execution *models.ExecutionResult `json:"execution,omitempty"`
	At        time.Time               `json:"at"`
}

type Config struct {
	// Mode is the execution mode used for auto-triggered runs; real is not
	// allowed.
	Mode     models.Mode
	Transfer executor.TransferPreference
}

// Manager keeps only the time of the last run between calls.
type Manager struct {
	cfg      Config
	scanner  Scanner
	executor Executor
	now      func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

func NewManager(cfg Config, scanner Scanner, exec Executor) (*Manager, error) {
	if cfg.Mode == "" {
		cfg.Mode = models.ModeDry
	}
	if !cfg.Mode.Valid() || cfg.Mode == models.ModeReal {
		return nil, fmt.Errorf("auto: mode must be dry or simulation, got %q", cfg.Mode)
	}
	if scanner == nil || exec == nil {
		return nil, fmt.Errorf("auto: scanner and executor are required")
	}
	return &Manager{cfg: cfg, scanner: scanner, executor: exec, now: time.Now}, nil
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) LastRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun
}

// MaybeRun evaluates flags and, when due, scans and executes the best
// surviving opportunity. Calls are serialized.
func (m *Manager) MaybeRun(ctx context.Context, flags runtime.Flags) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	decision := Decision{At: now}
	switch {
	case flags.GlobalStop:
		decision.Reason = ReasonStopped
		return decision, nil
	case !flags.ArbOn, !flags.AutoMode:
		decision.Reason = ReasonAutoDisabled
		return decision, nil
	case !m.lastRun.IsZero() && now.Sub(m.lastRun) < flags.Interval():
		decision.Reason = ReasonIntervalWait
		return decision, nil
	}
	m.lastRun = now

	res, err := m.scanner.Scan(ctx, flags.Filters)
	if err != nil {
		return decision, fmt.Errorf("auto scan: %w", err)
	}
	decision.Scan = &res

	opp, ok := policy.Select(res.Opportunities, flags.Filters)
	if !ok {
		decision.Reason = ReasonNoOpportunity
		logging.Debugf("[auto] no opportunity (kept=%d rejected=%d)", len(res.Opportunities), len(res.Rejected))
		return decision, nil
	}

	exec, err := m.executor.Execute(ctx, executor.Request{
		Opportunity: opp,
		Mode:        m.cfg.Mode,
		Transfer:    m.cfg.Transfer,
		AutoTrigger: true,
		GlobalStop:  flags.GlobalStop,
		Filters:     &flags.Filters,
	})
	if err != nil {
		return decision, fmt.Errorf("auto execute %s: %w", opp.ProposalID, err)
	}
	decision.Reason = ReasonExecuted
	decision.Execution = &exec
	logging.Infof("[auto] executed proposal=%s status=%s reason=%s pnl=%.4f", opp.ProposalID, exec.Status, exec.Reason, exec.PnLUSD)
	return decision, nil
}
