package arb

import (
	"fmt"
	"time"
)

// VenueConfig holds the static assumptions made about one exchange.
type VenueConfig struct {
	Name        string
	TakerFeePct float64
	// SpreadBps widens the fetched price into an executable ask/bid.
	SpreadBps         float64
	SpreadBpsBySymbol map[string]float64
	// DepthUSD must be positive; BalanceUSD of zero means not tracked.
	DepthUSD              float64
	BalanceUSD            float64
	InternalTransfer      bool
	WithdrawalFeeUSD      float64
	WithdrawalFeeBySymbol map[string]float64
}

func (v VenueConfig) spreadBps(symbol string) float64 {
	if bps, ok := v.SpreadBpsBySymbol[symbol]; ok {
		return bps
	}
	return v.SpreadBps
}

func (v VenueConfig) withdrawalFee(symbol string) float64 {
	if fee, ok := v.WithdrawalFeeBySymbol[symbol]; ok {
		return fee
	}
	return v.WithdrawalFeeUSD
}

// Sizing bounds the suggested notional per opportunity.
type Sizing struct {
	BaseQtyUSD        float64
	QtyMinUSD         float64
	QtyMaxUSD         float64
	SlippageFactorPct float64
	// VolatilityBySymbol is a fraction (0.05 = 5%) that shrinks size.
	VolatilityBySymbol map[string]float64
}

type Config struct {
	Symbols          []string
	Venues           []VenueConfig
	Sizing           Sizing
	ChainTransferETA time.Duration
	FetchTimeout     time.Duration
	Concurrency      int
}

// Validate checks the static assumptions before any scan runs.
func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("scanner: at least one symbol is required")
	}
	if len(c.Venues) < 2 {
		return fmt.Errorf("scanner: at least two exchanges are required, got %d", len(c.Venues))
	}
	seen := make(map[string]bool, len(c.Venues))
	for _, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("scanner: exchange name is required")
		}
		if seen[v.Name] {
			return fmt.Errorf("scanner: duplicate exchange %q", v.Name)
		}
		seen[v.Name] = true
		if v.DepthUSD <= 0 {
			return fmt.Errorf("scanner: exchange %s depth_usd must be > 0", v.Name)
		}
		if v.TakerFeePct < 0 || v.SpreadBps < 0 || v.WithdrawalFeeUSD < 0 {
			return fmt.Errorf("scanner: exchange %s fees and spread must be >= 0", v.Name)
		}
	}
	s := c.Sizing
	if s.BaseQtyUSD <= 0 {
		return fmt.Errorf("scanner: base_qty_usd must be > 0")
	}
	if s.QtyMinUSD <= 0 || s.QtyMaxUSD < s.QtyMinUSD {
		return fmt.Errorf("scanner: need 0 < qty_min_usd <= qty_max_usd, got %.2f/%.2f", s.QtyMinUSD, s.QtyMaxUSD)
	}
	if s.SlippageFactorPct < 0 {
		return fmt.Errorf("scanner: slippage_factor_pct must be >= 0")
	}
	return nil
}
