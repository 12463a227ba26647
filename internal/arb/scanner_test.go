package arb

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetulpatel/cexarb/internal/exchanges"
	"github.com/hetulpatel/cexarb/internal/models"
)

const tolerance = 1e-9

func testConfig(symbols ...string) Config {
	return Config{
		Symbols: symbols,
		Venues: []VenueConfig{
			{Name: "binance", DepthUSD: 1_000_000},
			{Name: "bybit", DepthUSD: 1_000_000},
		},
		Sizing: Sizing{BaseQtyUSD: 100, QtyMinUSD: 10, QtyMaxUSD: 1000},
	}
}

func testRegistry(prices map[string]map[string]float64) exchanges.Registry {
	reg := exchanges.Registry{}
	for name, p := range prices {
		reg[name] = exchanges.NewStaticSource(name, p)
	}
	return reg
}

type recordingAuditor struct {
	mu       sync.Mutex
	calls    int
	accepted []models.Opportunity
	rejected map[string]models.RejectReason
}

func (a *recordingAuditor) RecordProposals(_ context.Context, batch []models.ProposalDecision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	for _, d := range batch {
		if d.Accepted {
			a.accepted = append(a.accepted, d.Opportunity)
			continue
		}
		if a.rejected == nil {
			a.rejected = make(map[string]models.RejectReason)
		}
		a.rejected[d.Opportunity.ProposalID] = d.Reason
	}
	return nil
}

type countingMetrics struct {
	mu          sync.Mutex
	scans       int
	fetchErrors map[string]int
	rejected    map[string]int
}

func (m *countingMetrics) ObserveScan(time.Duration, int, int, int) {
	m.mu.Lock()
	m.scans++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveRejected(reason string) {
	m.mu.Lock()
	if m.rejected == nil {
		m.rejected = make(map[string]int)
	}
	m.rejected[reason]++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveOpportunity(float64, float64) {}

func (m *countingMetrics) ObserveFetchError(exchange string) {
	m.mu.Lock()
	if m.fetchErrors == nil {
		m.fetchErrors = make(map[string]int)
	}
	m.fetchErrors[exchange]++
	m.mu.Unlock()
}

func TestScanSimpleSpread(t *testing.T) {
	reg := testRegistry(map[string]map[string]float64{
		"binance": {"BTCUSDT": 100.0},
		"bybit":   {"BTCUSDT": 101.0},
	})
	s, err := NewScanner(testConfig("BTCUSDT"), reg)
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), models.DefaultFilters())
	require.NoError(t, err)
	require.Len(t, res.Opportunities, 1)

	opp := res.Opportunities[0]
	assert.Equal(t, "binance", opp.BuyExchange)
	assert.Equal(t, "bybit", opp.SellExchange)
	assert.InDelta(t, 1.0, opp.GrossSpreadPct, tolerance)
	assert.InDelta(t, 100.0, opp.QtyUSD, tolerance)
	assert.InDelta(t, 1.0, opp.NetProfitUSD, tolerance)
	assert.Equal(t, models.TransferChain, opp.TransferType)
	assert.NotEmpty(t, opp.ProposalID)

	// The reverse direction loses money and is filtered at min_net_roi_pct=0.
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, models.ReasonROIBelowThreshold, res.Rejected[0].Reason)
}

func TestScanFilteredByMinROI(t *testing.T) {
	reg := testRegistry(map[string]map[string]float64{
		"binance": {"BTCUSDT": 100.0},
		"bybit":   {"BTCUSDT": 101.0},
	})
	auditor := &recordingAuditor{}
	s, err := NewScanner(testConfig("BTCUSDT"), reg, WithAuditor(auditor))
	require.NoError(t, err)

	f := models.DefaultFilters()
	f.MinNetROIPct = 5.0
	res, err := s.Scan(context.Background(), f)
	require.NoError(t, err)
	assert.Empty(t, res.Opportunities)
	assert.Len(t, res.Rejected, 2)

	// Every filtered proposal reaches the auditor with its reason.
	assert.Empty(t, auditor.accepted)
	require.Len(t, auditor.rejected, 2)
	for _, reason := range auditor.rejected {
		assert.Equal(t, models.ReasonROIBelowThreshold, reason)
	}
}

func TestScanAuditsInOneBatch(t *testing.T) {
	reg := testRegistry(map[string]map[string]float64{
		"binance": {"BTCUSDT": 100, "ETHUSDT": 50, "SOLUSDT": 20},
		"bybit":   {"BTCUSDT": 103, "ETHUSDT": 50.1, "SOLUSDT": 20.8},
	})
	auditor := &recordingAuditor{}
	s, err := NewScanner(testConfig("BTCUSDT", "ETHUSDT", "SOLUSDT"), reg, WithAuditor(auditor))
	require.NoError(t, err)

	f := models.DefaultFilters()
	f.MinNetROIPct = 0.5
	res, err := s.Scan(context.Background(), f)
	require.NoError(t, err)
	require.NotEmpty(t, res.Opportunities)
	require.NotEmpty(t, res.Rejected)

	assert.Equal(t, 1, auditor.calls)
	assert.Len(t, auditor.accepted, len(res.Opportunities))
	assert.Len(t, auditor.rejected, len(res.Rejected))

	_, err = s.Scan(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 2, auditor.calls)
}

func TestScanROIArithmetic(t *testing.T) {
	cfg := Config{
		Symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		Venues: []VenueConfig{
			{Name: "binance", TakerFeePct: 0.1, SpreadBps: 2, DepthUSD: 50_000, WithdrawalFeeUSD: 1.5},
			{Name: "bybit", TakerFeePct: 0.1, SpreadBps: 3, DepthUSD: 20_000, InternalTransfer: true},
			{Name: "okx", TakerFeePct: 0.08, SpreadBps: 1, DepthUSD: 80_000, InternalTransfer: true, WithdrawalFeeUSD: 2},
		},
		Sizing: Sizing{
			BaseQtyUSD:         2000,
			QtyMinUSD:          50,
			QtyMaxUSD:          5000,
			SlippageFactorPct:  0.2,
			VolatilityBySymbol: map[string]float64{"SOLUSDT": 0.1},
		},
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		prices := map[string]map[string]float64{}
		for _, v := range cfg.Venues {
			prices[v.Name] = map[string]float64{}
			for _, sym := range cfg.Symbols {
				prices[v.Name][sym] = 10 + rng.Float64()*1000
			}
		}
		priority := StaticPriority{"BTCUSDT": rng.Float64() * 0.5, "ETHUSDT": 0.1}
		s, err := NewScanner(cfg, testRegistry(prices), WithPriority(priority))
		require.NoError(t, err)

		f := models.DefaultFilters()
		f.MinNetROIPct = -1e9
		f.MaxNetROIPct = 1e9
		f.MinNetUSD = -1e12
		f.TopK = 100
		res, err := s.Scan(context.Background(), f)
		require.NoError(t, err)
		require.Len(t, res.Opportunities, len(cfg.Symbols)*len(cfg.Venues)*(len(cfg.Venues)-1))

		for _, o := range res.Opportunities {
			assert.GreaterOrEqual(t, o.Priority, 0.0)
			assert.LessOrEqual(t, o.Priority, 0.25)
			want := (o.GrossSpreadPct - o.FeesTotalPct - o.SlippageEstPct) * (1 + o.Priority)
			assert.InDelta(t, want, o.NetROIPct, 1e-9)
			assert.InDelta(t, o.QtyUSD*o.NetROIPct/100, o.NetProfitUSD, 1e-9)
			assert.Greater(t, o.BuyPrice, 0.0)
			assert.Greater(t, o.SellPrice, 0.0)
		}
	}
}

func TestScanFilterMonotonicity(t *testing.T) {
	reg := testRegistry(map[string]map[string]float64{
		"binance": {"BTCUSDT": 100, "ETHUSDT": 10, "SOLUSDT": 3},
		"bybit":   {"BTCUSDT": 102, "ETHUSDT": 10.05, "SOLUSDT": 3.2},
	})
	s, err := NewScanner(testConfig("BTCUSDT", "ETHUSDT", "SOLUSDT"), reg)
	require.NoError(t, err)

	prev := math.MaxInt
	for _, minROI := range []float64{-10, -1, 0, 0.4, 1, 2, 7} {
		f := models.DefaultFilters()
		f.MinNetROIPct = minROI
		res, err := s.Scan(context.Background(), f)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Opportunities), prev, "min_net_roi_pct=%v", minROI)
		prev = len(res.Opportunities)
	}
}

func TestScanSortedAndBounded(t *testing.T) {
	reg := testRegistry(map[string]map[string]float64{
		"binance": {"A": 100, "B": 50, "C": 20, "D": 5},
		"bybit":   {"A": 103, "B": 51, "C": 20.8, "D": 5.01},
	})
	s, err := NewScanner(testConfig("A", "B", "C", "D"), reg)
	require.NoError(t, err)

	for _, key := range []models.SortKey{models.SortByNetROI, models.SortByNetProfit} {
		for _, dir := range []models.SortDir{models.SortAsc, models.SortDesc} {
			f := models.DefaultFilters()
			f.MinNetROIPct = -100
			f.TopK = 3
			f.SortKey = key
			f.SortDir = dir
			res, err := s.Scan(context.Background(), f)
			require.NoError(t, err)
			require.Len(t, res.Opportunities, 3)
			for i := 1; i < len(res.Opportunities); i++ {
				a, b := res.Opportunities[i-1], res.Opportunities[i]
				va, vb := a.NetROIPct, b.NetROIPct
				if key == models.SortByNetProfit {
					va, vb = a.NetProfitUSD, b.NetProfitUSD
				}
				if dir == models.SortDesc {
					assert.GreaterOrEqual(t, va, vb)
				} else {
					assert.LessOrEqual(t, va, vb)
				}
			}
		}
	}
}

func TestSuggestQtyUSDBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		minQty := 1 + rng.Float64()*100
		s := Sizing{
			BaseQtyUSD:         rng.Float64() * 10_000,
			QtyMinUSD:          minQty,
			QtyMaxUSD:          minQty + rng.Float64()*5_000,
			VolatilityBySymbol: map[string]float64{"X": rng.Float64()},
		}
		buy := VenueConfig{Name: "a", DepthUSD: rng.Float64() * 20_000, BalanceUSD: rng.Float64() * 20_000}
		sell := VenueConfig{Name: "b", DepthUSD: rng.Float64() * 20_000}

		qty, capUSD, ok := SuggestQtyUSD(s, buy, sell, "X")
		assert.GreaterOrEqual(t, qty, s.QtyMinUSD)
		assert.LessOrEqual(t, qty, s.QtyMaxUSD)
		if ok {
			assert.LessOrEqual(t, qty, 0.25*math.Min(buy.DepthUSD, sell.DepthUSD)+1e-9)
		} else {
			assert.Greater(t, qty, capUSD)
		}
	}
}

func TestSuggestQtyUSDVolatilityShrinks(t *testing.T) {
	s := Sizing{BaseQtyUSD: 1000, QtyMinUSD: 10, QtyMaxUSD: 5000, VolatilityBySymbol: map[string]float64{"SOL": 0.25}}
	v := VenueConfig{DepthUSD: 1_000_000}

	calm, _, ok := SuggestQtyUSD(s, v, v, "BTC")
	require.True(t, ok)
	volatile, _, ok := SuggestQtyUSD(s, v, v, "SOL")
	require.True(t, ok)
	assert.InDelta(t, 1000.0, calm, tolerance)
	assert.InDelta(t, 800.0, volatile, tolerance)
}

func TestScanSkipsThinLiquidity(t *testing.T) {
	cfg := testConfig("BTCUSDT")
	cfg.Venues[1].DepthUSD = 20 // cap = 5 < qty_min 10
	reg := testRegistry(map[string]map[string]float64{
		"binance": {"BTCUSDT": 100},
		"bybit":   {"BTCUSDT": 101},
	})
	s, err := NewScanner(cfg, reg)
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), models.DefaultFilters())
	require.NoError(t, err)
	assert.Empty(t, res.Opportunities)
	require.Len(t, res.Skipped, 2)
	for _, sk := range res.Skipped {
		assert.Equal(t, SkipInsufficientLiquidity, sk.Reason)
	}
}

func TestScanFetchFailureSkipsPairOnly(t *testing.T) {
	cfg := testConfig("BTCUSDT", "ETHUSDT")
	cfg.Venues = append(cfg.Venues, VenueConfig{Name: "okx", DepthUSD: 1_000_000})
	reg := testRegistry(map[string]map[string]float64{
		"binance": {"BTCUSDT": 100, "ETHUSDT": 10},
		"bybit":   {"BTCUSDT": 101, "ETHUSDT": 10.2},
		"okx":     {"BTCUSDT": 102, "ETHUSDT": 0},
	})
	reg["bybit"].(*exchanges.StaticSource).SetError("BTCUSDT", errors.New("502 bad gateway"))
	metrics := &countingMetrics{}
	s, err := NewScanner(cfg, reg, WithMetrics(metrics))
	require.NoError(t, err)

	f := models.DefaultFilters()
	f.MinNetROIPct = -100
	f.MinNetUSD = -1e9
	f.TopK = 50
	res, err := s.Scan(context.Background(), f)
	require.NoError(t, err)

	// BTC: only binance<->okx survive. ETH: okx has a zero price, so only
	// binance<->bybit survive.
	assert.Len(t, res.Opportunities, 4)
	assert.Len(t, res.Skipped, 8)
	for _, sk := range res.Skipped {
		assert.Equal(t, SkipPriceUnavailable, sk.Reason)
	}
	assert.Equal(t, 1, metrics.fetchErrors["bybit"])
	assert.Equal(t, 1, metrics.scans)
}

func TestScanTransferTypeAndFee(t *testing.T) {
	cfg := testConfig("BTCUSDT")
	cfg.Venues = []VenueConfig{
		{Name: "binance", DepthUSD: 1_000_000, InternalTransfer: true, WithdrawalFeeUSD: 5},
		{Name: "bybit", DepthUSD: 1_000_000, InternalTransfer: true},
		{Name: "kraken", DepthUSD: 1_000_000, WithdrawalFeeUSD: 2},
	}
	cfg.ChainTransferETA = 10 * time.Minute
	reg := testRegistry(map[string]map[string]float64{
		"binance": {"BTCUSDT": 100},
		"bybit":   {"BTCUSDT": 101},
		"kraken":  {"BTCUSDT": 102},
	})
	s, err := NewScanner(cfg, reg)
	require.NoError(t, err)

	f := models.DefaultFilters()
	f.MinNetROIPct = -100
	f.MinNetUSD = -1e9
	f.TopK = 10
	res, err := s.Scan(context.Background(), f)
	require.NoError(t, err)

	byPair := map[string]models.Opportunity{}
	for _, o := range res.Opportunities {
		byPair[o.BuyExchange+">"+o.SellExchange] = o
	}
	internal := byPair["binance>bybit"]
	assert.Equal(t, models.TransferInternal, internal.TransferType)
	assert.Zero(t, internal.Breakdown.Transfer.FeeUSD)
	assert.Zero(t, internal.Breakdown.Fees.TransferPct)

	chain := byPair["binance>kraken"]
	assert.Equal(t, models.TransferChain, chain.TransferType)
	assert.InDelta(t, 5.0, chain.Breakdown.Transfer.FeeUSD, tolerance)
	assert.InDelta(t, 5.0, chain.FeesTotalPct, tolerance) // $5 on $100
	assert.Equal(t, 600, chain.Breakdown.Transfer.ETASeconds)
}

func TestScanRejectsInvalidFilters(t *testing.T) {
	reg := testRegistry(map[string]map[string]float64{
		"binance": {"BTCUSDT": 100},
		"bybit":   {"BTCUSDT": 101},
	})
	s, err := NewScanner(testConfig("BTCUSDT"), reg)
	require.NoError(t, err)

	f := models.DefaultFilters()
	f.TopK = 0
	_, err = s.Scan(context.Background(), f)
	assert.ErrorIs(t, err, models.ErrInvalidFilters)
}

func TestNewScannerRequiresSources(t *testing.T) {
	reg := testRegistry(map[string]map[string]float64{"binance": {"BTCUSDT": 100}})
	_, err := NewScanner(testConfig("BTCUSDT"), reg)
	assert.Error(t, err)

	cfg := testConfig("BTCUSDT")
	cfg.Venues = cfg.Venues[:1]
	_, err = NewScanner(cfg, reg)
	assert.Error(t, err)
}

func TestProposalIDsAreUnique(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := proposalID("BTCUSDT", "binance", "bybit", at)
	b := proposalID("BTCUSDT", "bybit", "binance", at)
	c := proposalID("BTCUSDT", "binance", "bybit", at.Add(time.Nanosecond))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, proposalID("BTCUSDT", "binance", "bybit", at))
}
