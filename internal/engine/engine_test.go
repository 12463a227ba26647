package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetulpatel/cexarb/internal/arb"
	"github.com/hetulpatel/cexarb/internal/audit"
	"github.com/hetulpatel/cexarb/internal/auto"
	"github.com/hetulpatel/cexarb/internal/exchanges"
	"github.com/hetulpatel/cexarb/internal/executor"
	"github.com/hetulpatel/cexarb/internal/hashutil"
	"github.com/hetulpatel/cexarb/internal/models"
	"github.com/hetulpatel/cexarb/internal/portfolio"
	"github.com/hetulpatel/cexarb/internal/ratelimit"
	"github.com/hetulpatel/cexarb/internal/risk"
	"github.com/hetulpatel/cexarb/internal/runtime"
)

type fixture struct {
	engine *Engine
	ledger *portfolio.Ledger
	audit  *audit.Memory
	flags  *runtime.MemoryStore
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: portfolio.NewLedger(10_000),
		audit:  &audit.Memory{},
		now:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	reg := exchanges.Registry{
		"binance": exchanges.NewStaticSource("binance", map[string]float64{"BTCUSDT": 100.0}),
		"bybit":   exchanges.NewStaticSource("bybit", map[string]float64{"BTCUSDT": 101.0}),
	}
	scanner, err := arb.NewScanner(arb.Config{
		Symbols: []string{"BTCUSDT"},
		Venues: []arb.VenueConfig{
			{Name: "binance", DepthUSD: 1_000_000},
			{Name: "bybit", DepthUSD: 1_000_000},
		},
		Sizing: arb.Sizing{BaseQtyUSD: 100, QtyMinUSD: 10, QtyMaxUSD: 1000},
	}, reg, arb.WithAuditor(f.audit), arb.WithClock(clock))
	require.NoError(t, err)

	exec := executor.New(executor.Config{AdminPINDigest: hashutil.DigestPIN("4821")}, executor.Deps{
		Risk:      risk.NewValidator(risk.Config{}),
		Portfolio: f.ledger,
		Limiter:   ratelimit.New(ratelimit.Config{Enabled: true, MaxPerExchange: 100, MaxPerSymbol: 100}),
		Auditor:   f.audit,
	}).WithClock(clock)

	initial := runtime.DefaultFlags()
	initial.IntervalSeconds = 60
	f.flags = runtime.NewMemoryStore(initial)

	e, err := New(Config{HistorySize: 10, Auto: auto.Config{Mode: models.ModeDry}}, Deps{
		Scanner:  scanner,
		Executor: exec,
		Flags:    f.flags,
	})
	require.NoError(t, err)
	f.engine = e.WithClock(clock)
	return f
}

func (f *fixture) scanOne(t *testing.T) models.Opportunity {
	t.Helper()
	res, err := f.engine.ScanNow(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Opportunities, 1)
	return res.Opportunities[0]
}

func TestScanThenExecuteDry(t *testing.T) {
	f := newFixture(t)
	opp := f.scanOne(t)
	assert.InDelta(t, 1.0, opp.GrossSpreadPct, 1e-9)
	assert.InDelta(t, 1.0, opp.NetProfitUSD, 1e-9)

	res, err := f.engine.ExecuteByID(context.Background(), ExecuteRequest{ProposalID: opp.ProposalID, Mode: models.ModeDry})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, res.Status)
	assert.InDelta(t, 1.0, res.PnLUSD, 1e-9)
	assert.InDelta(t, 10_001, f.ledger.EquityUSD(), 1e-9)

	snap := f.engine.Snapshot()
	assert.EqualValues(t, 1, snap.TotalScans)
	assert.EqualValues(t, 1, snap.SuccessCount)
	assert.InDelta(t, 1.0, snap.TotalPnLUSD, 1e-9)
	require.Len(t, f.audit.Executions(), 1)
	// Both directions were audited: one kept, one filtered.
	assert.Len(t, f.audit.Proposals(), 2)
}

func TestExecuteUnknownProposal(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ExecuteByID(context.Background(), ExecuteRequest{ProposalID: "arb-missing", Mode: models.ModeDry})
	assert.ErrorIs(t, err, ErrUnknownProposal)
}

func TestExecuteTwiceIsDuplicate(t *testing.T) {
	f := newFixture(t)
	opp := f.scanOne(t)
	req := ExecuteRequest{ProposalID: opp.ProposalID, Mode: models.ModeDry}

	_, err := f.engine.ExecuteByID(context.Background(), req)
	require.NoError(t, err)
	_, err = f.engine.ExecuteByID(context.Background(), req)
	assert.ErrorIs(t, err, ErrDuplicateExecution)
	assert.InDelta(t, 10_001, f.ledger.EquityUSD(), 1e-9)
}

func TestConcurrentExecutionsSettleOnce(t *testing.T) {
	f := newFixture(t)
	opp := f.scanOne(t)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		filled int
		dupes  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.ExecuteByID(context.Background(), ExecuteRequest{ProposalID: opp.ProposalID, Mode: models.ModeSimulation})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrDuplicateExecution):
				dupes++
			case err == nil && res.Filled():
				filled++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, filled)
	assert.Equal(t, 7, dupes)
}

func TestRejectionReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	opp := f.scanOne(t)

	res, err := f.engine.ExecuteByID(context.Background(), ExecuteRequest{ProposalID: opp.ProposalID, Mode: models.ModeReal, PIN: "4821"})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonConfirmationRequired, res.Reason)
	assert.Empty(t, res.Steps)

	res, err = f.engine.ExecuteByID(context.Background(), ExecuteRequest{ProposalID: opp.ProposalID, Mode: models.ModeReal, PIN: "4821", DoubleConfirm: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, res.Status)

	snap := f.engine.Snapshot()
	assert.EqualValues(t, 2, snap.TotalExecutions)
	assert.EqualValues(t, 1, snap.RejectedCount)
}

func TestFiltersRecheckedAtExecution(t *testing.T) {
	f := newFixture(t)
	opp := f.scanOne(t)

	minROI := 5.0
	updated, err := f.engine.UpdateFilters(context.Background(), models.FiltersPatch{MinNetROIPct: &minROI})
	require.NoError(t, err)
	assert.Equal(t, 5.0, updated.MinNetROIPct)

	res, err := f.engine.ExecuteByID(context.Background(), ExecuteRequest{ProposalID: opp.ProposalID, Mode: models.ModeDry})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.Status)
	assert.Equal(t, models.ReasonROIBelowThreshold, res.Reason)

	scan, err := f.engine.ScanNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, scan.Opportunities)
}

func TestUpdateFiltersRejectsMalformedPatch(t *testing.T) {
	f := newFixture(t)
	zero := 0
	_, err := f.engine.UpdateFilters(context.Background(), models.FiltersPatch{TopK: &zero})
	assert.ErrorIs(t, err, models.ErrInvalidFilters)

	flags, _ := f.engine.Flags(context.Background())
	assert.Equal(t, 10, flags.Filters.TopK)
}

func TestTickRespectsInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, auto.ReasonAutoDisabled, d.Reason)

	_, err = f.engine.ToggleAutoMode(ctx, true)
	require.NoError(t, err)

	d, err = f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, auto.ReasonExecuted, d.Reason)
	require.NotNil(t, d.Execution)
	assert.True(t, d.Execution.AutoTrigger)
	assert.Equal(t, models.StatusFilled, d.Execution.Status)
	assert.EqualValues(t, 1, f.engine.Snapshot().TotalScans)

	f.now = f.now.Add(10 * time.Second)
	d, err = f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, auto.ReasonIntervalWait, d.Reason)
	assert.EqualValues(t, 1, f.engine.Snapshot().TotalScans)
	assert.Equal(t, string(auto.ReasonIntervalWait), f.engine.Snapshot().LastDecision)

	_, err = f.engine.SetGlobalStop(ctx, true)
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)
	d, err = f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, auto.ReasonStopped, d.Reason)
	assert.EqualValues(t, 1, f.engine.Snapshot().TotalScans)
}

func TestGlobalStopBlocksManualExecution(t *testing.T) {
	f := newFixture(t)
	opp := f.scanOne(t)
	_, err := f.engine.SetGlobalStop(context.Background(), true)
	require.NoError(t, err)

	res, err := f.engine.ExecuteByID(context.Background(), ExecuteRequest{ProposalID: opp.ProposalID, Mode: models.ModeDry})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonGlobalStop, res.Reason)
	assert.InDelta(t, 10_000, f.ledger.EquityUSD(), 1e-9)
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := newHistory(2)
	h.add(models.Opportunity{ProposalID: "a"}, models.Opportunity{ProposalID: "b"})
	h.add(models.Opportunity{ProposalID: "c"}, models.Opportunity{ProposalID: "b"})

	_, ok := h.get("a")
	assert.False(t, ok)
	recent := h.recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ProposalID)
	assert.Equal(t, "b", recent[1].ProposalID)
}
