package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hetulpatel/cexarb/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type EventType string

const (
	EventProposal  EventType = "proposal"
	EventExecution EventType = "execution"
)

// Event is the envelope written to Kafka. Exactly one payload is set.
type Event struct {
	Type       EventType               `json:"type"`
	Accepted   *bool                   `json:"accepted,omitempty"`
	Reason     models.RejectReason     `json:"reason,omitempty"`
	Proposal   *models.Opportunity     `json:"proposal,omitempty"`
	Execution  *models.ExecutionResult `json:"execution,omitempty"`
	CapturedAt time.Time               `json:"captured_at"`
}

// Publisher streams audit events, proposals and executions on separate
// topics. A nil writer disables that stream.
type Publisher struct {
	proposals  MessageWriter
	executions MessageWriter
}

func NewPublisher(proposals, executions MessageWriter) *Publisher {
	return &Publisher{proposals: proposals, executions: executions}
}

// RecordProposals writes the whole batch with one WriteMessages call.
func (p *Publisher) RecordProposals(ctx context.Context, batch []models.ProposalDecision) error {
	if p == nil || p.proposals == nil || len(batch) == 0 {
		return nil
	}
	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(batch))
	for _, d := range batch {
		o := d.Opportunity
		accepted := d.Accepted
		ev := Event{Type: EventProposal, Accepted: &accepted, Reason: d.Reason, Proposal: &o, CapturedAt: now}
		key := fmt.Sprintf("%s-%s-%s", o.Symbol, o.BuyExchange, o.SellExchange)
		msg, err := encode(key, ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return p.proposals.WriteMessages(ctx, msgs...)
}

func (p *Publisher) RecordExecution(ctx context.Context, r models.ExecutionResult) error {
	if p == nil || p.executions == nil {
		return nil
	}
	ev := Event{Type: EventExecution, Reason: r.Reason, Execution: &r, CapturedAt: time.Now().UTC()}
	return publish(ctx, p.executions, r.ProposalID, ev)
}

func publish(ctx context.Context, w MessageWriter, key string, ev Event) error {
	msg, err := encode(key, ev)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, msg)
}

func encode(key string, ev Event) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	return kafka.Message{Key: []byte(key), Value: payload}, nil
}

// Decode parses a message written by Publisher.
func Decode(msg kafka.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
	}
	return ev, nil
}
