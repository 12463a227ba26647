package risk

import (
	"sync"
	"time"

	"github.com/hetulpatel/cexarb/internal/models"
)

// Config holds the hard limits. Zero disables a limit except MaxLeverage,
// which defaults to 1.
type Config struct {
	MaxLeverage     float64
	MaxExposurePct  float64
	MaxDailyLossUSD float64
	MinNetROIPct    float64
	MaxQtyUSD       float64
}

// Validator is the reference risk gate. Daily PnL resets at UTC midnight.
type Validator struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	day      string
	dailyPnL float64
}

func NewValidator(cfg Config) *Validator {
	if cfg.MaxLeverage <= 0 {
		cfg.MaxLeverage = 1
	}
	return &Validator{cfg: cfg, now: time.Now}
}

func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// ValidateArbitrage checks the trade itself: size, expected return and the
// daily loss stop.
func (v *Validator) ValidateArbitrage(qtyUSD, netROIPct float64) (bool, models.RejectReason) {
	switch {
	case qtyUSD <= 0:
		return false, models.ReasonArbitrageRejected
	case netROIPct <= 0 || netROIPct < v.cfg.MinNetROIPct:
		return false, models.ReasonROIBelowThreshold
	case v.cfg.MaxQtyUSD > 0 && qtyUSD > v.cfg.MaxQtyUSD:
		return false, models.ReasonOverExposure
	case v.lossLimitHit():
		return false, models.ReasonRiskRejected
	}
	return true, models.ReasonNone
}

// ValidateOrder checks notional against equity, leverage and exposure.
func (v *Validator) ValidateOrder(equityUSD, orderValueUSD, leverage float64) (bool, models.RejectReason) {
	if leverage <= 0 {
		leverage = 1
	}
	switch {
	case equityUSD <= 0 || orderValueUSD <= 0:
		return false, models.ReasonRiskRejected
	case leverage > v.cfg.MaxLeverage:
		return false, models.ReasonRiskRejected
	case orderValueUSD > equityUSD*leverage:
		return false, models.ReasonOverExposure
	case v.cfg.MaxExposurePct > 0 && orderValueUSD > equityUSD*v.cfg.MaxExposurePct/100:
		return false, models.ReasonOverExposure
	case v.lossLimitHit():
		return false, models.ReasonRiskRejected
	}
	return true, models.ReasonNone
}

func (v *Validator) RegisterPnL(delta float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rollLocked()
	v.dailyPnL += delta
}

func (v *Validator) DailyPnL() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rollLocked()
	return v.dailyPnL
}

func (v *Validator) lossLimitHit() bool {
	if v.cfg.MaxDailyLossUSD <= 0 {
		return false
	}
	return v.DailyPnL() <= -v.cfg.MaxDailyLossUSD
}

func (v *Validator) rollLocked() {
	day := v.now().UTC().Format("2006-01-02")
	if day != v.day {
		v.day = day
		v.dailyPnL = 0
	}
}
