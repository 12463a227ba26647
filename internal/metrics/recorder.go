package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hetulpatel/cexarb/internal/models"
)

// Recorder owns the engine's collectors on a private registry so several
// engines (and tests) can coexist in one process.
type Recorder struct {
	Registry *prometheus.Registry

	scans          prometheus.Counter
	scanLatency    prometheus.Histogram
	opportunities  prometheus.Counter
	filtered       *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	opportunityROI prometheus.Histogram
	opportunityUSD prometheus.Histogram
	executions     *prometheus.CounterVec
	cumulativePnL  prometheus.Gauge
	autoDecisions  *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arb_scans_total",
			Help: "Completed scan cycles",
		}),
		scanLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arb_scan_latency_seconds",
			Help:    "Wall time of one scan cycle",
			Buckets: prometheus.DefBuckets,
		}),
		opportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arb_opportunities_total",
			Help: "Opportunities that survived filtering",
		}),
		filtered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_filtered_total",
			Help: "Opportunities dropped by filters, by reason",
		}, []string{"reason"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_price_fetch_errors_total",
			Help: "Price fetch failures by exchange",
		}, []string{"exchange"}),
		opportunityROI: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arb_opportunity_net_roi_pct",
			Help:    "Net ROI of kept opportunities",
			Buckets: []float64{-1, -0.5, 0, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		opportunityUSD: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arb_opportunity_net_profit_usd",
			Help:    "Net profit of kept opportunities",
			Buckets: []float64{0, 0.5, 1, 5, 10, 50, 100},
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_executions_total",
			Help: "Execution attempts by mode, status, reason and trigger",
		}, []string{"mode", "status", "reason", "auto"}),
		cumulativePnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_cumulative_pnl_usd",
			Help: "Sum of pnl_usd over filled executions",
		}),
		autoDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_auto_decisions_total",
			Help: "Auto manager tick outcomes",
		}, []string{"decision"}),
	}
	r.Registry.MustRegister(
		r.scans,
		r.scanLatency,
		r.opportunities,
		r.filtered,
		r.fetchErrors,
		r.opportunityROI,
		r.opportunityUSD,
		r.executions,
		r.cumulativePnL,
		r.autoDecisions,
	)
	return r
}

func (r *Recorder) ObserveScan(latency time.Duration, kept, rejected, skipped int) {
	r.scans.Inc()
	r.scanLatency.Observe(latency.Seconds())
	r.opportunities.Add(float64(kept))
}

func (r *Recorder) ObserveRejected(reason string) {
	r.filtered.WithLabelValues(reason).Inc()
}

func (r *Recorder) ObserveOpportunity(netROIPct, netProfitUSD float64) {
	r.opportunityROI.Observe(netROIPct)
	r.opportunityUSD.Observe(netProfitUSD)
}

func (r *Recorder) ObserveFetchError(exchange string) {
	r.fetchErrors.WithLabelValues(exchange).Inc()
}

// ObserveExecution counts every attempt; only fills move cumulative PnL.
func (r *Recorder) ObserveExecution(res models.ExecutionResult) {
	auto := "false"
	if res.AutoTrigger {
		auto = "true"
	}
	r.executions.WithLabelValues(string(res.Mode), string(res.Status), string(res.Reason), auto).Inc()
	if res.Filled() {
		r.cumulativePnL.Add(res.PnLUSD)
	}
}

func (r *Recorder) ObserveDecision(decision string) {
	r.autoDecisions.WithLabelValues(decision).Inc()
}
