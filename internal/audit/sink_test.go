package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetulpatel/cexarb/internal/models"
)

type failingSink struct{ err error }

func (f failingSink) RecordProposals(context.Context, []models.ProposalDecision) error {
	return f.err
}

func (f failingSink) RecordExecution(context.Context, models.ExecutionResult) error {
	return f.err
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	boom := errors.New("disk full")
	mem := &Memory{}
	f := NewFanout(failingSink{err: boom}, nil, mem)

	batch := []models.ProposalDecision{{Opportunity: models.Opportunity{ProposalID: "arb-1"}, Accepted: true}}
	err := f.RecordProposals(context.Background(), batch)
	assert.ErrorIs(t, err, boom)
	err = f.RecordExecution(context.Background(), models.ExecutionResult{ExecID: "e1"})
	assert.ErrorIs(t, err, boom)

	require.Len(t, mem.Proposals(), 1)
	assert.True(t, mem.Proposals()[0].Accepted)
	require.Len(t, mem.Executions(), 1)
}

func TestFanoutPassesBatchWhole(t *testing.T) {
	mem := &Memory{}
	f := NewFanout(mem)
	batch := []models.ProposalDecision{
		{Opportunity: models.Opportunity{ProposalID: "arb-1"}, Accepted: true},
		{Opportunity: models.Opportunity{ProposalID: "arb-2"}, Reason: models.ReasonROIBelowThreshold},
		{Opportunity: models.Opportunity{ProposalID: "arb-3"}, Reason: models.ReasonProfitBelowThreshold},
	}
	require.NoError(t, f.RecordProposals(context.Background(), batch))
	require.NoError(t, f.RecordProposals(context.Background(), nil))

	assert.Equal(t, 1, mem.Batches())
	assert.Len(t, mem.Proposals(), 3)
}

func TestFanoutNoSinks(t *testing.T) {
	f := NewFanout()
	assert.NoError(t, f.RecordExecution(context.Background(), models.ExecutionResult{}))
}
