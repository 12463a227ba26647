// Package executor runs a single opportunity through the safety gates and
// the reserve, buy, transfer, sell, settle sequence.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hetulpatel/cexarb/internal/hashutil"
	"github.com/hetulpatel/cexarb/internal/logging"
	"github.com/hetulpatel/cexarb/internal/models"
	"github.com/hetulpatel/cexarb/internal/policy"
	"github.com/hetulpatel/cexarb/internal/portfolio"
)

var ErrInvalidMode = errors.New("invalid execution mode")

type TransferPreference string

const (
	TransferAuto     TransferPreference = "auto"
	TransferChain    TransferPreference = "chain"
	TransferInternal TransferPreference = "internal"
)

// Request is one execution attempt. GlobalStop is read from the caller's
// flag snapshot for the current tick.
type Request struct {
	Opportunity   models.Opportunity
	Mode          models.Mode
	Transfer      TransferPreference
	PIN           string
	DoubleConfirm bool
	AutoTrigger   bool
	GlobalStop    bool
	// Filters, when set, re-checks the thresholds current at execution
	// time; the opportunity may have been scanned under older ones.
	Filters *models.Filters
}

type RiskValidator interface {
	ValidateArbitrage(qtyUSD, netROIPct float64) (bool, models.RejectReason)
	ValidateOrder(equityUSD, orderValueUSD, leverage float64) (bool, models.RejectReason)
	RegisterPnL(delta float64)
}

type Portfolio interface {
	UpdateOnFill(symbol string, side portfolio.Side, qty, price float64) (float64, error)
	EquityUSD() float64
}

// RateLimiter reserves a slot per exchange and symbol before anything is
// touched. The execution keeps the slot when it fills and calls release
// otherwise.
type RateLimiter interface {
	Reserve(exchangeA, exchangeB, symbol string) (release func(), ok bool, key string)
}

type Auditor interface {
	RecordExecution(ctx context.Context, res models.ExecutionResult) error
}

type Metrics interface {
	ObserveExecution(res models.ExecutionResult)
}

type Config struct {
	// AdminPINDigest is a hex SHA256 or bcrypt hash. Empty rejects every
	// real-mode request.
	AdminPINDigest      string
	ChainTransferFeeUSD float64
	ChainTransferETA    time.Duration
	Leverage            float64
	// EquityUSD is used when no portfolio is attached.
	EquityUSD float64
	// InternalTransfer lists exchanges that support internal transfers.
	InternalTransfer map[string]bool
}

type Deps struct {
	Risk      RiskValidator
	Portfolio Portfolio
	Limiter   RateLimiter
	Auditor   Auditor
	Metrics   Metrics
}

type Executor struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

func New(cfg Config, deps Deps) *Executor {
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	return &Executor{cfg: cfg, deps: deps, now: time.Now}
}

func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Execute never returns an error for an expected outcome: rejections and
// mid-way failures come back as a result. The error is reserved for
// malformed requests.
func (e *Executor) Execute(ctx context.Context, req Request) (models.ExecutionResult, error) {
	if !req.Mode.Valid() {
		return models.ExecutionResult{}, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	opp := req.Opportunity
	if opp.BuyPrice <= 0 || opp.SellPrice <= 0 {
		return models.ExecutionResult{}, fmt.Errorf("proposal %s: non-positive leg price", opp.ProposalID)
	}
	res := models.ExecutionResult{
		ExecID:       uuid.NewString(),
		ProposalID:   opp.ProposalID,
		Symbol:       opp.Symbol,
		BuyExchange:  opp.BuyExchange,
		SellExchange: opp.SellExchange,
		Mode:         req.Mode,
		AutoTrigger:  req.AutoTrigger,
		QtyUSD:       opp.QtyUSD,
		StartedAt:    e.now(),
		Steps:        []models.Step{},
		Meta:         map[string]any{"paper": req.Mode != models.ModeReal},
	}

	release, reason, detail := e.gate(req)
	if reason != models.ReasonNone {
		return e.reject(ctx, res, reason, detail), nil
	}

	// The slot stays taken only for a fill.
	res = e.run(ctx, req, res)
	if !res.Filled() {
		release()
	}
	return res, nil
}

// gate runs every check that must pass before any state is touched. The
// rate-limit slot is reserved in its place in the order and handed back if
// a later check rejects; on success the caller owns the release.
func (e *Executor) gate(req Request) (release func(), reason models.RejectReason, detail string) {
	release = func() {}
	opp := req.Opportunity
	if req.Mode == models.ModeReal {
		if !req.DoubleConfirm {
			return release, models.ReasonConfirmationRequired, "real mode requires double confirmation"
		}
		if !hashutil.VerifyPIN(e.cfg.AdminPINDigest, req.PIN) {
			return release, models.ReasonInvalidPIN, "pin does not match admin digest"
		}
	}
	if req.GlobalStop {
		return release, models.ReasonGlobalStop, "global stop is active"
	}
	if req.Filters != nil {
		if reason := policy.Check(opp, *req.Filters); reason != models.ReasonNone {
			return release, reason, fmt.Sprintf("net_roi_pct=%.4f net_profit_usd=%.4f", opp.NetROIPct, opp.NetProfitUSD)
		}
	}
	if e.deps.Limiter != nil {
		rel, ok, key := e.deps.Limiter.Reserve(opp.BuyExchange, opp.SellExchange, opp.Symbol)
		if !ok {
			return release, models.ReasonRateLimited, key
		}
		release = rel
	}
	if e.deps.Risk != nil {
		if ok, reason := e.deps.Risk.ValidateArbitrage(opp.QtyUSD, opp.NetROIPct); !ok {
			release()
			return func() {}, orDefault(reason, models.ReasonArbitrageRejected), fmt.Sprintf("qty_usd=%.2f net_roi_pct=%.4f", opp.QtyUSD, opp.NetROIPct)
		}
		equity := e.cfg.EquityUSD
		if e.deps.Portfolio != nil {
			equity = e.deps.Portfolio.EquityUSD()
		}
		if ok, reason := e.deps.Risk.ValidateOrder(equity, opp.QtyUSD, e.cfg.Leverage); !ok {
			release()
			return func() {}, orDefault(reason, models.ReasonRiskRejected), fmt.Sprintf("equity_usd=%.2f order_usd=%.2f leverage=%.2f", equity, opp.QtyUSD, e.cfg.Leverage)
		}
	}
	return release, models.ReasonNone, ""
}

func orDefault(reason, fallback models.RejectReason) models.RejectReason {
	if reason == models.ReasonNone {
		return fallback
	}
	return reason
}

func (e *Executor) reject(ctx context.Context, res models.ExecutionResult, reason models.RejectReason, detail string) models.ExecutionResult {
	res.Status = models.StatusRejected
	res.Reason = reason
	res.ReasonDetail = detail
	res.CompletedAt = e.now()
	logging.Infof("[executor] rejected proposal=%s mode=%s reason=%s detail=%s", res.ProposalID, res.Mode, reason, detail)
	e.finish(ctx, res)
	return res
}

func (e *Executor) run(ctx context.Context, req Request, res models.ExecutionResult) models.ExecutionResult {
	opp := req.Opportunity
	baseQty := opp.QtyUSD / opp.BuyPrice

	res.Steps = append(res.Steps, e.step(models.StepReserve, models.StepOK, map[string]any{
		"qty_usd":       opp.QtyUSD,
		"buy_exchange":  opp.BuyExchange,
		"sell_exchange": opp.SellExchange,
	}))

	if e.deps.Portfolio != nil {
		if _, err := e.deps.Portfolio.UpdateOnFill(opp.Symbol, portfolio.Buy, baseQty, opp.BuyPrice); err != nil {
			return e.fail(ctx, res, models.StepBuy, err)
		}
	}
	res.Steps = append(res.Steps, e.step(models.StepBuy, models.StepOK, map[string]any{
		"exchange": opp.BuyExchange,
		"qty":      baseQty,
		"price":    opp.BuyPrice,
	}))

	transfer := e.resolveTransfer(req)
	res.Meta["transfer"] = transfer
	if req.Transfer == TransferInternal && transfer.Type != models.TransferInternal {
		res.Meta["transfer_fallback"] = "internal transfer unsupported, used chain"
	}
	res.Steps = append(res.Steps, e.step(models.StepTransfer, models.StepOK, map[string]any{
		"type":        transfer.Type,
		"fee_usd":     transfer.FeeUSD,
		"eta_seconds": transfer.ETASeconds,
	}))

	pnl := opp.NetProfitUSD
	pnlSource := "estimate"
	if e.deps.Portfolio != nil {
		realized, err := e.deps.Portfolio.UpdateOnFill(opp.Symbol, portfolio.Sell, baseQty, opp.SellPrice)
		if err != nil {
			return e.fail(ctx, res, models.StepSell, err)
		}
		pnl = realized
		pnlSource = "portfolio"
	}
	res.Steps = append(res.Steps, e.step(models.StepSell, models.StepOK, map[string]any{
		"exchange": opp.SellExchange,
		"qty":      baseQty,
		"price":    opp.SellPrice,
	}))

	fees := opp.QtyUSD*(opp.Breakdown.Fees.BuyTakerPct+opp.Breakdown.Fees.SellTakerPct)/100 + transfer.FeeUSD
	net := pnl
	if pnlSource == "portfolio" {
		net = pnl - fees
	}
	res.PnLUSD = pnl
	res.FeesUSD = fees
	res.Meta["pnl_source"] = pnlSource
	res.Meta["net_pnl_usd"] = net
	if e.deps.Risk != nil {
		e.deps.Risk.RegisterPnL(net)
	}
	res.Steps = append(res.Steps, e.step(models.StepSettle, models.StepOK, map[string]any{
		"pnl_usd":     pnl,
		"fees_usd":    fees,
		"net_pnl_usd": net,
	}))

	res.Status = models.StatusFilled
	res.CompletedAt = e.now()
	logging.Infof("[executor] filled proposal=%s exec=%s mode=%s auto=%t pnl=%.4f fees=%.4f",
		res.ProposalID, res.ExecID, res.Mode, res.AutoTrigger, pnl, fees)
	e.finish(ctx, res)
	return res
}

// fail closes an execution that broke off after validation. Whatever was
// applied before the failing step stays applied; Steps records how far it got.
func (e *Executor) fail(ctx context.Context, res models.ExecutionResult, at models.StepName, err error) models.ExecutionResult {
	res.Steps = append(res.Steps, e.step(at, models.StepFailed, map[string]any{"error": err.Error()}))
	res.Status = models.StatusFailed
	res.Reason = models.ReasonExecutionFailed
	res.ReasonDetail = fmt.Sprintf("%s: %v", at, err)
	res.CompletedAt = e.now()
	logging.Errorf("[executor] failed proposal=%s exec=%s step=%s: %v (operator reconciliation required)",
		res.ProposalID, res.ExecID, at, err)
	e.finish(ctx, res)
	return res
}

func (e *Executor) finish(ctx context.Context, res models.ExecutionResult) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.ObserveExecution(res)
	}
	if e.deps.Auditor != nil {
		if err := e.deps.Auditor.RecordExecution(ctx, res); err != nil {
			logging.Errorf("[executor] audit exec=%s: %v", res.ExecID, err)
		}
	}
}

func (e *Executor) step(name models.StepName, status models.StepStatus, payload map[string]any) models.Step {
	return models.Step{Name: name, Status: status, At: e.now(), Payload: payload}
}

// resolveTransfer picks the transfer leg. Internal transfers need support on
// both exchanges; otherwise the asset moves on chain.
func (e *Executor) resolveTransfer(req Request) models.TransferBreakdown {
	opp := req.Opportunity
	internalOK := e.cfg.InternalTransfer[opp.BuyExchange] && e.cfg.InternalTransfer[opp.SellExchange]
	if e.cfg.InternalTransfer == nil {
		internalOK = opp.TransferType == models.TransferInternal
	}

	useInternal := false
	switch req.Transfer {
	case TransferChain:
	case TransferInternal:
		useInternal = internalOK
	default:
		useInternal = opp.TransferType == models.TransferInternal && internalOK
	}
	if useInternal {
		return models.TransferBreakdown{Type: models.TransferInternal}
	}

	fee := e.cfg.ChainTransferFeeUSD
	eta := int(e.cfg.ChainTransferETA / time.Second)
	if opp.TransferType == models.TransferChain {
		if opp.Breakdown.Transfer.FeeUSD > 0 {
			fee = opp.Breakdown.Transfer.FeeUSD
		}
		if opp.Breakdown.Transfer.ETASeconds > 0 {
			eta = opp.Breakdown.Transfer.ETASeconds
		}
	}
	return models.TransferBreakdown{Type: models.TransferChain, FeeUSD: fee, ETASeconds: eta}
}
