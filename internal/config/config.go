package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hetulpatel/cexarb/internal/arb"
	"github.com/hetulpatel/cexarb/internal/auto"
	"github.com/hetulpatel/cexarb/internal/executor"
	"github.com/hetulpatel/cexarb/internal/models"
	"github.com/hetulpatel/cexarb/internal/ratelimit"
	"github.com/hetulpatel/cexarb/internal/risk"
	"github.com/hetulpatel/cexarb/internal/runtime"
)

const (
	SourceStatic = "static"
	SourceHTTP   = "http"
	SourceRedis  = "redis"
)

type Source struct {
	Kind      string             `yaml:"kind"`
	URL       string             `yaml:"url"`
	Field     string             `yaml:"field"`
	TimeoutMs int                `yaml:"timeout_ms"`
	Prices    map[string]float64 `yaml:"prices"`
}

type Exchange struct {
	TakerFeePct           float64            `yaml:"taker_fee_pct"`
	SpreadBps             float64            `yaml:"spread_bps"`
	SpreadBpsBySymbol     map[string]float64 `yaml:"spread_bps_by_symbol"`
	DepthUSD              float64            `yaml:"depth_usd"`
	BalanceUSD            float64            `yaml:"balance_usd"`
	InternalTransfer      bool               `yaml:"internal_transfer"`
	WithdrawalFeeUSD      float64            `yaml:"withdrawal_fee_usd"`
	WithdrawalFeeBySymbol map[string]float64 `yaml:"withdrawal_fee_by_symbol"`
	Source                Source             `yaml:"source"`
}

type Config struct {
	Symbols   []string            `yaml:"symbols"`
	Exchanges map[string]Exchange `yaml:"exchanges"`

	Sizing struct {
		BaseQtyUSD         float64            `yaml:"base_qty_usd"`
		QtyMinUSD          float64            `yaml:"qty_min_usd"`
		QtyMaxUSD          float64            `yaml:"qty_max_usd"`
		SlippageFactorPct  float64            `yaml:"slippage_factor_pct"`
		VolatilityBySymbol map[string]float64 `yaml:"volatility_by_symbol"`
	} `yaml:"sizing"`

	Priority map[string]float64 `yaml:"priority"`
	Filters  models.Filters     `yaml:"filters"`

	RateLimit struct {
		Enabled        bool `yaml:"enabled"`
		WindowSeconds  int  `yaml:"window_seconds"`
		MaxPerExchange int  `yaml:"max_per_exchange"`
		MaxPerSymbol   int  `yaml:"max_per_symbol"`
	} `yaml:"rate_limit"`

	Execution struct {
		AdminPINDigest          string  `yaml:"admin_pin_digest"`
		ChainTransferFeeUSD     float64 `yaml:"chain_transfer_fee_usd"`
		ChainTransferETASeconds int     `yaml:"chain_transfer_eta_seconds"`
		Leverage                float64 `yaml:"leverage"`
	} `yaml:"execution"`

	Risk struct {
		EquityUSD       float64 `yaml:"equity_usd"`
		MaxLeverage     float64 `yaml:"max_leverage"`
		MaxExposurePct  float64 `yaml:"max_exposure_pct"`
		MaxDailyLossUSD float64 `yaml:"max_daily_loss_usd"`
		MinNetROIPct    float64 `yaml:"min_net_roi_pct"`
		MaxQtyUSD       float64 `yaml:"max_qty_usd"`
	} `yaml:"risk"`

	Auto struct {
		AutoMode        bool   `yaml:"auto_mode"`
		ArbOn           bool   `yaml:"arb_on"`
		IntervalSeconds int    `yaml:"interval_seconds"`
		TickSeconds     int    `yaml:"tick_seconds"`
		Mode            string `yaml:"mode"`
		Transfer        string `yaml:"transfer"`
	} `yaml:"auto"`

	Scan struct {
		FetchTimeoutMs int `yaml:"fetch_timeout_ms"`
		Concurrency    int `yaml:"concurrency"`
		HistorySize    int `yaml:"history_size"`
	} `yaml:"scan"`

	Infra struct {
		Redis struct {
			Addr          string `yaml:"addr"`
			Password      string `yaml:"password"`
			DB            int    `yaml:"db"`
			Prefix        string `yaml:"prefix"`
			PricePrefix   string `yaml:"price_prefix"`
			GuardTTLHours int    `yaml:"guard_ttl_hours"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers         []string `yaml:"brokers"`
			ProposalsTopic  string   `yaml:"proposals_topic"`
			ExecutionsTopic string   `yaml:"executions_topic"`
		} `yaml:"kafka"`
		SQLitePath  string `yaml:"sqlite_path"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"infra"`
}

// Default returns a config with every tunable set; only symbols and
// exchanges must come from a file.
func Default() *Config {
	c := &Config{Filters: models.DefaultFilters()}
	c.Sizing.BaseQtyUSD = 100
	c.Sizing.QtyMinUSD = 10
	c.Sizing.QtyMaxUSD = 1000
	c.RateLimit.Enabled = true
	c.RateLimit.WindowSeconds = 60
	c.RateLimit.MaxPerExchange = 10
	c.RateLimit.MaxPerSymbol = 5
	c.Execution.ChainTransferETASeconds = 600
	c.Execution.Leverage = 1
	c.Risk.EquityUSD = 10_000
	c.Risk.MaxLeverage = 1
	c.Risk.MaxExposurePct = 25
	c.Auto.ArbOn = true
	c.Auto.IntervalSeconds = runtime.DefaultIntervalSeconds
	c.Auto.TickSeconds = 5
	c.Auto.Mode = string(models.ModeDry)
	c.Auto.Transfer = string(executor.TransferAuto)
	c.Scan.FetchTimeoutMs = 5000
	c.Scan.Concurrency = 8
	c.Scan.HistorySize = 500
	c.Infra.Redis.Prefix = "arb"
	c.Infra.Redis.PricePrefix = "prices"
	c.Infra.Redis.GuardTTLHours = 240
	return c
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	c.applyEnv()
	c.fillDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) fillDefaults() {
	for name, ex := range c.Exchanges {
		if ex.Source.Kind == "" {
			ex.Source.Kind = SourceStatic
		}
		c.Exchanges[name] = ex
	}
	if c.Scan.FetchTimeoutMs <= 0 || c.Scan.FetchTimeoutMs > 5000 {
		c.Scan.FetchTimeoutMs = 5000
	}
	if c.Scan.HistorySize <= 0 {
		c.Scan.HistorySize = 500
	}
	if c.Auto.TickSeconds <= 0 {
		c.Auto.TickSeconds = 5
	}
}

func (c *Config) Validate() error {
	if err := c.ScannerConfig().Validate(); err != nil {
		return err
	}
	for name, ex := range c.Exchanges {
		switch ex.Source.Kind {
		case SourceStatic, SourceRedis:
		case SourceHTTP:
			if ex.Source.URL == "" {
				return fmt.Errorf("exchange %s: http source needs a url", name)
			}
		default:
			return fmt.Errorf("exchange %s: unknown source kind %q", name, ex.Source.Kind)
		}
	}
	for symbol, p := range c.Priority {
		if p < 0 || p > 0.25 {
			return fmt.Errorf("priority for %s must be within [0, 0.25], got %v", symbol, p)
		}
	}
	if err := c.Filters.Validate(); err != nil {
		return err
	}
	mode := models.Mode(c.Auto.Mode)
	if !mode.Valid() {
		return fmt.Errorf("auto.mode %q is not one of dry, simulation, real", c.Auto.Mode)
	}
	if mode == models.ModeReal {
		return fmt.Errorf("auto.mode real is not allowed; real executions need a human confirmation")
	}
	switch executor.TransferPreference(c.Auto.Transfer) {
	case "", executor.TransferAuto, executor.TransferChain, executor.TransferInternal:
	default:
		return fmt.Errorf("auto.transfer %q is not one of auto, chain, internal", c.Auto.Transfer)
	}
	if c.Auto.IntervalSeconds < 0 || c.RateLimit.WindowSeconds < 0 {
		return fmt.Errorf("interval_seconds and window_seconds must be >= 0")
	}
	if c.Execution.ChainTransferFeeUSD < 0 {
		return fmt.Errorf("execution.chain_transfer_fee_usd must be >= 0")
	}
	return nil
}

// ExchangeNames returns configured exchanges in a stable order.
func (c *Config) ExchangeNames() []string {
	names := make([]string, 0, len(c.Exchanges))
	for name := range c.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) ScannerConfig() arb.Config {
	venues := make([]arb.VenueConfig, 0, len(c.Exchanges))
	for _, name := range c.ExchangeNames() {
		ex := c.Exchanges[name]
		venues = append(venues, arb.VenueConfig{
			Name:                  name,
			TakerFeePct:           ex.TakerFeePct,
			SpreadBps:             ex.SpreadBps,
			SpreadBpsBySymbol:     ex.SpreadBpsBySymbol,
			DepthUSD:              ex.DepthUSD,
			BalanceUSD:            ex.BalanceUSD,
			InternalTransfer:      ex.InternalTransfer,
			WithdrawalFeeUSD:      ex.WithdrawalFeeUSD,
			WithdrawalFeeBySymbol: ex.WithdrawalFeeBySymbol,
		})
	}
	return arb.Config{
		Symbols: c.Symbols,
		Venues:  venues,
		Sizing: arb.Sizing{
			BaseQtyUSD:         c.Sizing.BaseQtyUSD,
			QtyMinUSD:          c.Sizing.QtyMinUSD,
			QtyMaxUSD:          c.Sizing.QtyMaxUSD,
			SlippageFactorPct:  c.Sizing.SlippageFactorPct,
			VolatilityBySymbol: c.Sizing.VolatilityBySymbol,
		},
		ChainTransferETA: time.Duration(c.Execution.ChainTransferETASeconds) * time.Second,
		FetchTimeout:     time.Duration(c.Scan.FetchTimeoutMs) * time.Millisecond,
		Concurrency:      c.Scan.Concurrency,
	}
}

func (c *Config) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Enabled:        c.RateLimit.Enabled,
		Window:         time.Duration(c.RateLimit.WindowSeconds) * time.Second,
		MaxPerExchange: c.RateLimit.MaxPerExchange,
		MaxPerSymbol:   c.RateLimit.MaxPerSymbol,
	}
}

func (c *Config) ExecutorConfig() executor.Config {
	internal := make(map[string]bool, len(c.Exchanges))
	for name, ex := range c.Exchanges {
		internal[name] = ex.InternalTransfer
	}
	return executor.Config{
		AdminPINDigest:      c.Execution.AdminPINDigest,
		ChainTransferFeeUSD: c.Execution.ChainTransferFeeUSD,
		ChainTransferETA:    time.Duration(c.Execution.ChainTransferETASeconds) * time.Second,
		Leverage:            c.Execution.Leverage,
		EquityUSD:           c.Risk.EquityUSD,
		InternalTransfer:    internal,
	}
}

func (c *Config) RiskConfig() risk.Config {
	return risk.Config{
		MaxLeverage:     c.Risk.MaxLeverage,
		MaxExposurePct:  c.Risk.MaxExposurePct,
		MaxDailyLossUSD: c.Risk.MaxDailyLossUSD,
		MinNetROIPct:    c.Risk.MinNetROIPct,
		MaxQtyUSD:       c.Risk.MaxQtyUSD,
	}
}

func (c *Config) AutoConfig() auto.Config {
	return auto.Config{Mode: models.Mode(c.Auto.Mode), Transfer: executor.TransferPreference(c.Auto.Transfer)}
}

// InitialFlags seeds the flag store on first start.
func (c *Config) InitialFlags() runtime.Flags {
	return runtime.Flags{
		ArbOn:           c.Auto.ArbOn,
		AutoMode:        c.Auto.AutoMode,
		IntervalSeconds: c.Auto.IntervalSeconds,
		Filters:         c.Filters,
	}
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Auto.TickSeconds) * time.Second
}

func (c *Config) GuardTTL() time.Duration {
	return time.Duration(c.Infra.Redis.GuardTTLHours) * time.Hour
}
