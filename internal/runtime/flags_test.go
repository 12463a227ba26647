package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetulpatel/cexarb/internal/models"
)

func TestUpdateSavesValidFlags(t *testing.T) {
	store := NewMemoryStore(DefaultFlags())
	updated, err := Update(context.Background(), store, func(f *Flags) error {
		f.AutoMode = true
		f.Filters.TopK = 3
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.AutoMode)
	assert.False(t, updated.UpdatedAt.IsZero())

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, updated, loaded)
}

func TestUpdateKeepsStoreOnInvalidFlags(t *testing.T) {
	store := NewMemoryStore(DefaultFlags())
	_, err := Update(context.Background(), store, func(f *Flags) error {
		f.Filters.SortDir = "sideways"
		return nil
	})
	assert.ErrorIs(t, err, models.ErrInvalidFilters)

	boom := errors.New("boom")
	_, err = Update(context.Background(), store, func(*Flags) error { return boom })
	assert.ErrorIs(t, err, boom)

	loaded, _ := store.Load(context.Background())
	assert.Equal(t, DefaultFlags(), loaded)
}

func TestIntervalDefaults(t *testing.T) {
	assert.Equal(t, 30*time.Second, Flags{}.Interval())
	assert.Equal(t, 5*time.Second, Flags{IntervalSeconds: 5}.Interval())
}

func TestCounters(t *testing.T) {
	var c Counters
	now := time.Now()
	c.RecordScan(now, 3)
	c.RecordScan(now, 2)
	c.RecordExecution(models.ExecutionResult{Status: models.StatusFilled, PnLUSD: 1.5, CompletedAt: now})
	c.RecordExecution(models.ExecutionResult{Status: models.StatusRejected, PnLUSD: 9})
	c.RecordExecution(models.ExecutionResult{Status: models.StatusFailed})
	c.RecordDecision("executed")

	snap := c.Snapshot()
	assert.EqualValues(t, 2, snap.TotalScans)
	assert.EqualValues(t, 5, snap.TotalOpportunities)
	assert.EqualValues(t, 3, snap.TotalExecutions)
	assert.EqualValues(t, 1, snap.SuccessCount)
	assert.EqualValues(t, 2, snap.FailCount)
	assert.EqualValues(t, 1, snap.RejectedCount)
	assert.InDelta(t, 1.5, snap.TotalPnLUSD, 1e-9)
	assert.Equal(t, "executed", snap.LastDecision)
}
