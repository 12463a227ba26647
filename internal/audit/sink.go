// Package audit fans proposal and execution records out to every
// configured sink.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hetulpatel/cexarb/internal/models"
)

// Sink receives the proposals of one scan as a single batch, so a remote
// sink can write them in one round trip.
type Sink interface {
	RecordProposals(ctx context.Context, batch []models.ProposalDecision) error
	RecordExecution(ctx context.Context, r models.ExecutionResult) error
}

// Fanout writes to every sink and joins their errors. One failing sink does
// not stop the others.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	out := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			out.sinks = append(out.sinks, s)
		}
	}
	return out
}

func (f *Fanout) RecordProposals(ctx context.Context, batch []models.ProposalDecision) error {
	if len(batch) == 0 {
		return nil
	}
	var errs []error
	for i, s := range f.sinks {
		if err := s.RecordProposals(ctx, batch); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) RecordExecution(ctx context.Context, r models.ExecutionResult) error {
	var errs []error
	for i, s := range f.sinks {
		if err := s.RecordExecution(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Memory keeps everything in process. Tests read it back to see what the
// engine recorded.
type Memory struct {
	mu         sync.Mutex
	batches    int
	proposals  []models.ProposalDecision
	executions []models.ExecutionResult
}

func (m *Memory) RecordProposals(_ context.Context, batch []models.ProposalDecision) error {
	m.mu.Lock()
	m.batches++
	m.proposals = append(m.proposals, batch...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecordExecution(_ context.Context, r models.ExecutionResult) error {
	m.mu.Lock()
	m.executions = append(m.executions, r)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Proposals() []models.ProposalDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ProposalDecision(nil), m.proposals...)
}

// Batches is the number of RecordProposals calls received.
func (m *Memory) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

func (m *Memory) Executions() []models.ExecutionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ExecutionResult(nil), m.executions...)
}
