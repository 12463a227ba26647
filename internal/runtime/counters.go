package runtime

import (
	"sync"
	"time"

	"github.com/hetulpatel/cexarb/internal/models"
)

// Snapshot is the read model exposed to operators.
type Snapshot struct {
	TotalScans         int64     `json:"total_scans"`
	TotalOpportunities int64     `json:"total_opportunities"`
	TotalExecutions    int64     `json:"total_executions"`
	SuccessCount       int64     `json:"success_count"`
	FailCount          int64     `json:"fail_count"`
	RejectedCount      int64     `json:"rejected_count"`
	TotalPnLUSD        float64   `json:"total_pnl_usd"`
	LastScanAt         time.Time `json:"last_scan_at"`
	LastExecutionAt    time.Time `json:"last_execution_at"`
	LastDecision       string    `json:"last_decision,omitempty"`
}

// Counters aggregates Snapshot under a mutex.
type Counters struct {
	mu   sync.Mutex
	snap Snapshot
}

func (c *Counters) RecordScan(at time.Time, opportunities int) {
	c.mu.Lock()
	c.snap.TotalScans++
	c.snap.TotalOpportunities += int64(opportunities)
	c.snap.LastScanAt = at
	c.mu.Unlock()
}

// RecordExecution counts every attempt. Rejections count as failures too,
// and only fills move total PnL.
func (c *Counters) RecordExecution(res models.ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.TotalExecutions++
	c.snap.LastExecutionAt = res.CompletedAt
	switch res.Status {
	case models.StatusFilled:
		c.snap.SuccessCount++
		c.snap.TotalPnLUSD += res.PnLUSD
	case models.StatusRejected:
		c.snap.RejectedCount++
		c.snap.FailCount++
	default:
		c.snap.FailCount++
	}
}

func (c *Counters) RecordDecision(decision string) {
	c.mu.Lock()
	c.snap.LastDecision = decision
	c.mu.Unlock()
}

func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}
