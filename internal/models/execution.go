package models

import "time"

// Mode gates whether real capital is at risk.
type Mode string

const (
	ModeDry        Mode = "dry"
	ModeSimulation Mode = "simulation"
	ModeReal       Mode = "real"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeDry, ModeSimulation, ModeReal:
		return true
	}
	return false
}

type Status string

const (
	StatusFilled   Status = "FILLED"
	StatusRejected Status = "REJECTED"
	// StatusFailed marks an execution that passed validation but broke off
	// mid-way; Steps is the only record of what was applied.
	StatusFailed Status = "FAILED"
)

// RejectReason is a stable, machine-readable code suitable for display.
type RejectReason string

const (
	ReasonNone                 RejectReason = ""
	ReasonGlobalStop           RejectReason = "global_stop"
	ReasonRateLimited          RejectReason = "rate_limited"
	ReasonOverExposure         RejectReason = "over_exposure"
	ReasonInvalidPIN           RejectReason = "invalid_pin"
	ReasonConfirmationRequired RejectReason = "confirmation_required"
	ReasonROIBelowThreshold    RejectReason = "roi_below_threshold"
	ReasonProfitBelowThreshold RejectReason = "profit_below_threshold"
	ReasonArbitrageRejected    RejectReason = "arbitrage_rejected"
	ReasonRiskRejected         RejectReason = "risk_rejected"
	ReasonExecutionFailed      RejectReason = "execution_failed"
)

type StepName string

const (
	StepReserve  StepName = "reserve"
	StepBuy      StepName = "buy"
	StepTransfer StepName = "transfer"
	StepSell     StepName = "sell"
	StepSettle   StepName = "settle"
)

type StepStatus string

const (
	StepOK     StepStatus = "ok"
	StepFailed StepStatus = "failed"
)

// Step is one stage record in an execution's audit trail.
type Step struct {
	Name    StepName       `json:"name"`
	Status  StepStatus     `json:"status"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ExecutionResult is terminal: it is recorded, never mutated.
type ExecutionResult struct {
	ExecID       string         `json:"exec_id"`
	ProposalID   string         `json:"proposal_id"`
	Symbol       string         `json:"symbol"`
	BuyExchange  string         `json:"buy_exchange"`
	SellExchange string         `json:"sell_exchange"`
	Mode         Mode           `json:"mode"`
	Status       Status         `json:"status"`
	Reason       RejectReason   `json:"reason,omitempty"`
	ReasonDetail string         `json:"reason_detail,omitempty"`
	AutoTrigger  bool           `json:"auto_trigger"`
	QtyUSD       float64        `json:"qty_usd"`
	PnLUSD       float64        `json:"pnl_usd"`
	FeesUSD      float64        `json:"fees_usd"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  time.Time      `json:"completed_at"`
	Steps        []Step         `json:"steps"`
	Meta         map[string]any `json:"meta,omitempty"`
}

func (r ExecutionResult) Filled() bool {
	return r.Status == StatusFilled
}
