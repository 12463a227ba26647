package arb

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hetulpatel/cexarb/internal/exchanges"
	"github.com/hetulpatel/cexarb/internal/hashutil"
	"github.com/hetulpatel/cexarb/internal/logging"
	"github.com/hetulpatel/cexarb/internal/models"
	"github.com/hetulpatel/cexarb/internal/policy"
	"github.com/hetulpatel/cexarb/internal/workers"
)

const (
	defaultFetchTimeout = 5 * time.Second
	defaultConcurrency  = 8

	SkipPriceUnavailable      = "price_unavailable"
	SkipInsufficientLiquidity = "insufficient_liquidity"
)

// PrioritySource supplies an optional per-symbol boost in [0, 0.25].
type PrioritySource interface {
	Priority(symbol string) float64
}

// StaticPriority is a fixed symbol -> priority mapping.
type StaticPriority map[string]float64

func (p StaticPriority) Priority(symbol string) float64 {
	return p[symbol]
}

// Auditor records every proposal of a scan, kept or not, with its reason.
// It receives one batch per scan.
type Auditor interface {
	RecordProposals(ctx context.Context, batch []models.ProposalDecision) error
}

type Metrics interface {
	ObserveScan(latency time.Duration, kept, rejected, skipped int)
	ObserveRejected(reason string)
	ObserveOpportunity(netROIPct, netProfitUSD float64)
	ObserveFetchError(exchange string)
}

// Skip is a venue pair that produced no opportunity at all.
type Skip struct {
	Symbol       string `json:"symbol"`
	BuyExchange  string `json:"buy_exchange"`
	SellExchange string `json:"sell_exchange"`
	Reason       string `json:"reason"`
	Err          string `json:"error,omitempty"`
}

// Result is the outcome of one scan cycle.
type Result struct {
	Opportunities []models.Opportunity `json:"opportunities"`
	Rejected      []policy.Rejection   `json:"rejected,omitempty"`
	Skipped       []Skip               `json:"skipped,omitempty"`
	ScannedAt     time.Time            `json:"scanned_at"`
	Latency       time.Duration        `json:"latency"`
}

type Option func(*Scanner)

func WithPriority(p PrioritySource) Option { return func(s *Scanner) { s.priority = p } }
func WithAuditor(a Auditor) Option         { return func(s *Scanner) { s.audit = a } }
func WithMetrics(m Metrics) Option         { return func(s *Scanner) { s.metrics = m } }
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// Scanner compares prices for every symbol across every ordered exchange pair.
type Scanner struct {
	cfg      Config
	sources  exchanges.Registry
	priority PrioritySource
	audit    Auditor
	metrics  Metrics
	now      func() time.Time
}

func NewScanner(cfg Config, sources exchanges.Registry, opts ...Option) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range cfg.Venues {
		if sources[v.Name] == nil {
			return nil, fmt.Errorf("scanner: no price source for exchange %q", v.Name)
		}
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	s := &Scanner{cfg: cfg, sources: sources, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type quoteKey struct {
	exchange string
	symbol   string
}

type quote struct {
	fetched bool
	price   float64
	err     error
	latency time.Duration
}

// Scan fetches prices, evaluates every ordered pair and ranks the survivors
// with f. Fetch failures skip the affected pairs; only an invalid f fails
// the scan.
func (s *Scanner) Scan(ctx context.Context, f models.Filters) (Result, error) {
	if err := f.Validate(); err != nil {
		return Result{}, err
	}
	started := s.now()
	quotes := s.fetchAll(ctx)

	var (
		candidates []models.Opportunity
		skipped    []Skip
	)
	for _, symbol := range s.cfg.Symbols {
		priority := 0.0
		if s.priority != nil {
			priority = s.priority.Priority(symbol)
		}
		for _, buy := range s.cfg.Venues {
			for _, sell := range s.cfg.Venues {
				if buy.Name == sell.Name {
					continue
				}
				bq := quotes[quoteKey{buy.Name, symbol}]
				sq := quotes[quoteKey{sell.Name, symbol}]
				if err := usable(bq, sq); err != nil {
					skipped = append(skipped, Skip{Symbol: symbol, BuyExchange: buy.Name, SellExchange: sell.Name, Reason: SkipPriceUnavailable, Err: err.Error()})
					continue
				}
				latency := bq.latency
				if sq.latency > latency {
					latency = sq.latency
				}
				opp, ok := evaluate(quotePair{
					symbol:    symbol,
					buy:       buy,
					sell:      sell,
					buyPx:     bq.price,
					sellPx:    sq.price,
					priority:  priority,
					latency:   latency,
					createdAt: started,
				}, s.cfg.Sizing, s.cfg.ChainTransferETA)
				if !ok {
					skipped = append(skipped, Skip{Symbol: symbol, BuyExchange: buy.Name, SellExchange: sell.Name, Reason: SkipInsufficientLiquidity})
					continue
				}
				candidates = append(candidates, opp)
			}
		}
	}

	kept, rejected := policy.Rank(candidates, f)
	res := Result{
		Opportunities: kept,
		Rejected:      rejected,
		Skipped:       skipped,
		ScannedAt:     started,
		Latency:       s.now().Sub(started),
	}
	s.record(ctx, res)
	logging.Debugf("[scanner] symbols=%d candidates=%d kept=%d rejected=%d skipped=%d latency=%s",
		len(s.cfg.Symbols), len(candidates), len(kept), len(rejected), len(skipped), res.Latency)
	return res, nil
}

// fetchAll requests each (exchange, symbol) price once, concurrently, with a
// per-request timeout so one stalled venue cannot hold up the cycle.
func (s *Scanner) fetchAll(ctx context.Context) map[quoteKey]quote {
	keys := make([]quoteKey, 0, len(s.cfg.Venues)*len(s.cfg.Symbols))
	for _, symbol := range s.cfg.Symbols {
		for _, v := range s.cfg.Venues {
			keys = append(keys, quoteKey{exchange: v.Name, symbol: symbol})
		}
	}

	var mu sync.Mutex
	out := make(map[quoteKey]quote, len(keys))
	workers.Run(ctx, s.cfg.Concurrency, keys, func(ctx context.Context, k quoteKey) {
		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
		t0 := time.Now()
		price, err := s.sources[k.exchange].GetPrice(fetchCtx, k.symbol)
		q := quote{fetched: true, price: price, err: err, latency: time.Since(t0)}
		if err != nil {
			logging.Warnf("[scanner] price fetch failed exchange=%s symbol=%s: %v", k.exchange, k.symbol, err)
			if s.metrics != nil {
				s.metrics.ObserveFetchError(k.exchange)
			}
		}
		mu.Lock()
		out[k] = q
		mu.Unlock()
	})
	return out
}

func usable(qs ...quote) error {
	for _, q := range qs {
		switch {
		case !q.fetched:
			return fmt.Errorf("price not fetched")
		case q.err != nil:
			return q.err
		case q.price <= epsilon:
			return fmt.Errorf("non-positive price %v", q.price)
		}
	}
	return nil
}

func (s *Scanner) record(ctx context.Context, res Result) {
	if s.metrics != nil {
		s.metrics.ObserveScan(res.Latency, len(res.Opportunities), len(res.Rejected), len(res.Skipped))
		for _, o := range res.Opportunities {
			s.metrics.ObserveOpportunity(o.NetROIPct, o.NetProfitUSD)
		}
		for _, r := range res.Rejected {
			s.metrics.ObserveRejected(string(r.Reason))
		}
	}
	if s.audit == nil {
		return
	}
	batch := make([]models.ProposalDecision, 0, len(res.Opportunities)+len(res.Rejected))
	for _, o := range res.Opportunities {
		batch = append(batch, models.ProposalDecision{Opportunity: o, Accepted: true})
	}
	for _, r := range res.Rejected {
		batch = append(batch, models.ProposalDecision{Opportunity: r.Opportunity, Reason: r.Reason})
	}
	if len(batch) == 0 {
		return
	}
	if err := s.audit.RecordProposals(ctx, batch); err != nil {
		logging.Errorf("[scanner] audit proposals=%d: %v", len(batch), err)
	}
}

func proposalID(symbol, buy, sell string, at time.Time) string {
	digest := hashutil.HashStrings(symbol, buy, sell, strconv.FormatInt(at.UnixNano(), 10))
	return "arb-" + digest[:20]
}
