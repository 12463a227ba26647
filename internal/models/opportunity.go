package models

import "time"

// TransferType describes how the asset moves between the two venues.
type TransferType string

const (
	TransferInternal TransferType = "internal"
	TransferChain    TransferType = "chain"
)

// Breakdown is the structured part of an opportunity's meta; anything that
// is consumed programmatically lives here rather than in the free-form map.
type Breakdown struct {
	Fees     FeeBreakdown      `json:"fees"`
	Slippage SlippageBreakdown `json:"slippage"`
	Transfer TransferBreakdown `json:"transfer"`
	Qty      QtyBreakdown      `json:"qty"`
}

type FeeBreakdown struct {
	BuyTakerPct    float64 `json:"buy_taker_pct"`
	SellTakerPct   float64 `json:"sell_taker_pct"`
	TransferPct    float64 `json:"transfer_pct"`
	TransferFeeUSD float64 `json:"transfer_fee_usd"`
}

type SlippageBreakdown struct {
	DepthUSD  float64 `json:"depth_usd"`
	FactorPct float64 `json:"factor_pct"`
}

type TransferBreakdown struct {
	Type       TransferType `json:"type"`
	FeeUSD     float64      `json:"fee_usd"`
	ETASeconds int          `json:"eta_seconds"`
}

type QtyBreakdown struct {
	BaseUSD    float64 `json:"base_usd"`
	CapUSD     float64 `json:"cap_usd"`
	Volatility float64 `json:"volatility"`
	MinUSD     float64 `json:"min_usd"`
	MaxUSD     float64 `json:"max_usd"`
}

// Opportunity is a scanned, cost-adjusted candidate trade between two venues.
// It is not modified after the scanner returns it.
type Opportunity struct {
	ProposalID     string         `json:"proposal_id"`
	Symbol         string         `json:"symbol"`
	BuyExchange    string         `json:"buy_exchange"`
	SellExchange   string         `json:"sell_exchange"`
	BuyPrice       float64        `json:"buy_price"`
	SellPrice      float64        `json:"sell_price"`
	GrossSpreadPct float64        `json:"gross_spread_pct"`
	FeesTotalPct   float64        `json:"fees_total_pct"`
	SlippageEstPct float64        `json:"slippage_est_pct"`
	Priority       float64        `json:"priority"`
	NetROIPct      float64        `json:"net_roi_pct"`
	NetProfitUSD   float64        `json:"net_profit_usd"`
	QtyUSD         float64        `json:"qty_usd"`
	TransferType   TransferType   `json:"transfer_type"`
	LatencyMS      int64          `json:"latency_ms"`
	CreatedAt      time.Time      `json:"created_at"`
	Breakdown      Breakdown      `json:"breakdown"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// Key identifies the venue pair and symbol an opportunity trades; executions
// sharing a key must not run concurrently.
func (o Opportunity) Key() string {
	return o.BuyExchange + "|" + o.SellExchange + "|" + o.Symbol
}

// ProposalDecision is the audit record of one scanned opportunity: kept, or
// filtered with the first failing reason.
type ProposalDecision struct {
	Opportunity Opportunity  `json:"opportunity"`
	Accepted    bool         `json:"accepted"`
	Reason      RejectReason `json:"reason,omitempty"`
}
