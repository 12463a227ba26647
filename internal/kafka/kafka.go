// Package kafka is the broker plumbing behind the audit stream: topic
// bootstrap, the writers the publisher batches into, and the reader the
// events command tails.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultBroker          = "kafka-broker:9092"
	DefaultProposalsTopic  = "arb.proposals"
	DefaultExecutionsTopic = "arb.executions"

	auditPartitions = 3

	// A scan hands the writer its whole batch at once, so there is nothing
	// to wait for once the call arrives.
	auditBatchTimeout = 5 * time.Millisecond
	auditBatchSize    = 500
)

// Topics names the two audit streams.
type Topics struct {
	Proposals  string
	Executions string
}

// WithDefaults fills unset topics with the package defaults.
func (t Topics) WithDefaults() Topics {
	if t.Proposals == "" {
		t.Proposals = DefaultProposalsTopic
	}
	if t.Executions == "" {
		t.Executions = DefaultExecutionsTopic
	}
	return t
}

func (t Topics) All() []string {
	return []string{t.Proposals, t.Executions}
}

// Brokers reads KAFKA_BROKERS as a comma-separated list.
func Brokers() []string {
	return ParseBrokers(os.Getenv("KAFKA_BROKERS"))
}

func ParseBrokers(raw string) []string {
	if raw == "" {
		raw = DefaultBroker
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// WaitForBroker dials the brokers in turn, once a second, until one answers.
func WaitForBroker(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastErr error
	for attempt := 0; ; attempt++ {
		addr := brokers[attempt%len(brokers)]
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = fmt.Errorf("%s: %w", addr, err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for broker: %w (last error: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}

// EnsureTopics creates the audit topics through the cluster controller.
// Topics that already exist are left alone.
func EnsureTopics(ctx context.Context, brokers []string, topics ...string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	if len(topics) == 0 {
		return nil
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get controller: %w", err)
	}
	ctrlConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrlConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     auditPartitions,
			ReplicationFactor: 1,
		})
	}
	if err := ctrlConn.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topics %s: %w", strings.Join(topics, ","), err)
	}
	return nil
}

// NewAuditWriter returns a synchronous writer for one audit topic. Messages
// are hashed by key so one venue pair, or one proposal's executions, stay
// ordered on a single partition.
func NewAuditWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    auditBatchSize,
		BatchTimeout: auditBatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewTailReader reads topic from the first offset under group.
func NewTailReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		Topic:             topic,
		GroupID:           group,
		MinBytes:          1,
		MaxBytes:          10e6,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		CommitInterval:    time.Second,
		StartOffset:       kafka.FirstOffset,
	})
}
