package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hetulpatel/cexarb/internal/models"
)

func TestValidateArbitrage(t *testing.T) {
	v := NewValidator(Config{MinNetROIPct: 0.1, MaxQtyUSD: 1000})
	cases := []struct {
		name   string
		qty    float64
		roi    float64
		ok     bool
		reason models.RejectReason
	}{
		{"ok", 500, 0.5, true, models.ReasonNone},
		{"zero qty", 0, 0.5, false, models.ReasonArbitrageRejected},
		{"negative roi", 500, -0.2, false, models.ReasonROIBelowThreshold},
		{"below min roi", 500, 0.05, false, models.ReasonROIBelowThreshold},
		{"too large", 5000, 0.5, false, models.ReasonOverExposure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := v.ValidateArbitrage(tc.qty, tc.roi)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestValidateOrder(t *testing.T) {
	v := NewValidator(Config{MaxLeverage: 2, MaxExposurePct: 50})

	ok, _ := v.ValidateOrder(10_000, 4_000, 1)
	assert.True(t, ok)

	ok, reason := v.ValidateOrder(10_000, 6_000, 1)
	assert.False(t, ok)
	assert.Equal(t, models.ReasonOverExposure, reason)

	ok, reason = v.ValidateOrder(10_000, 100, 3)
	assert.False(t, ok)
	assert.Equal(t, models.ReasonRiskRejected, reason)

	ok, reason = v.ValidateOrder(0, 100, 1)
	assert.False(t, ok)
	assert.Equal(t, models.ReasonRiskRejected, reason)
}

func TestDailyLossStopResetsNextDay(t *testing.T) {
	now := time.Date(2026, 5, 4, 22, 0, 0, 0, time.UTC)
	v := NewValidator(Config{MaxDailyLossUSD: 50}).WithClock(func() time.Time { return now })

	v.RegisterPnL(-30)
	ok, _ := v.ValidateArbitrage(100, 1)
	assert.True(t, ok)

	v.RegisterPnL(-25)
	ok, reason := v.ValidateArbitrage(100, 1)
	assert.False(t, ok)
	assert.Equal(t, models.ReasonRiskRejected, reason)
	ok, _ = v.ValidateOrder(10_000, 100, 1)
	assert.False(t, ok)

	now = now.Add(3 * time.Hour)
	assert.Zero(t, v.DailyPnL())
	ok, _ = v.ValidateArbitrage(100, 1)
	assert.True(t, ok)
}
