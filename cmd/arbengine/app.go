package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/hetulpatel/cexarb/internal/arb"
	"github.com/hetulpatel/cexarb/internal/audit"
	"github.com/hetulpatel/cexarb/internal/cache"
	"github.com/hetulpatel/cexarb/internal/config"
	"github.com/hetulpatel/cexarb/internal/engine"
	"github.com/hetulpatel/cexarb/internal/executor"
	"github.com/hetulpatel/cexarb/internal/kafka"
	"github.com/hetulpatel/cexarb/internal/logging"
	"github.com/hetulpatel/cexarb/internal/metrics"
	"github.com/hetulpatel/cexarb/internal/portfolio"
	"github.com/hetulpatel/cexarb/internal/queue"
	"github.com/hetulpatel/cexarb/internal/ratelimit"
	"github.com/hetulpatel/cexarb/internal/risk"
	"github.com/hetulpatel/cexarb/internal/runtime"
	sqlstore "github.com/hetulpatel/cexarb/internal/storage/sqlite"
)

// app holds everything one process wires together. Optional backends stay
// nil when their address is not configured.
type app struct {
	cfg      *config.Config
	engine   *engine.Engine
	recorder *metrics.Recorder
	ledger   *portfolio.Ledger
	store    *sqlstore.Store
	redis    *redis.Client
	writers  []*kafkago.Writer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, recorder: metrics.NewRecorder()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if addr := cfg.Infra.Redis.Addr; addr != "" {
		client, err := cache.NewClient(ctx, addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("redis %s: %w", addr, err)
		}
		a.redis = client
	} else if cfg.NeedsRedis() {
		return nil, fmt.Errorf("an exchange uses a redis price source but infra.redis.addr is empty")
	}

	var sinks []audit.Sink
	if path := cfg.Infra.SQLitePath; path != "" {
		store, err := sqlstore.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := store.CreateTables(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
		a.store = store
		sinks = append(sinks, store)
	}
	if brokers := cfg.Infra.Kafka.Brokers; len(brokers) > 0 {
		topics := auditTopics(cfg)
		proposals := kafka.NewAuditWriter(brokers, topics.Proposals)
		executions := kafka.NewAuditWriter(brokers, topics.Executions)
		a.writers = append(a.writers, proposals, executions)
		sinks = append(sinks, queue.NewPublisher(proposals, executions))
	}
	sink := audit.NewFanout(sinks...)

	var cmdable redis.Cmdable
	if a.redis != nil {
		cmdable = a.redis
	}
	sources, err := cfg.Sources(cmdable)
	if err != nil {
		return nil, err
	}
	scanner, err := arb.NewScanner(cfg.ScannerConfig(), sources,
		arb.WithPriority(arb.StaticPriority(cfg.Priority)),
		arb.WithAuditor(sink),
		arb.WithMetrics(a.recorder),
	)
	if err != nil {
		return nil, err
	}

	a.ledger = portfolio.NewLedger(cfg.Risk.EquityUSD)
	exec := executor.New(cfg.ExecutorConfig(), executor.Deps{
		Risk:      risk.NewValidator(cfg.RiskConfig()),
		Portfolio: a.ledger,
		Limiter:   ratelimit.New(cfg.LimiterConfig()),
		Auditor:   sink,
		Metrics:   a.recorder,
	})

	var (
		flags runtime.Store = runtime.NewMemoryStore(cfg.InitialFlags())
		guard cache.Guard   = cache.NewMemoryGuard(cfg.GuardTTL())
	)
	if a.redis != nil {
		if flags, err = cache.NewRedisFlagStore(a.redis, cfg.Infra.Redis.Prefix, cfg.InitialFlags()); err != nil {
			return nil, err
		}
		if guard, err = cache.NewRedisGuard(a.redis, cfg.GuardTTL(), cfg.Infra.Redis.Prefix+"_exec"); err != nil {
			return nil, err
		}
	}

	a.engine, err = engine.New(engine.Config{HistorySize: cfg.Scan.HistorySize, Auto: cfg.AutoConfig()}, engine.Deps{
		Scanner:  scanner,
		Executor: exec,
		Flags:    flags,
		Guard:    guard,
		Metrics:  a.recorder,
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// ensureTopics waits for the broker and creates the audit topics. Failures
// are logged; the writers retry on their own.
func (a *app) ensureTopics(ctx context.Context) {
	brokers := a.cfg.Infra.Kafka.Brokers
	if len(brokers) == 0 {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()
	if err := kafka.WaitForBroker(waitCtx, brokers); err != nil {
		logging.Errorf("[arbengine] wait for broker: %v", err)
		return
	}
	if err := kafka.EnsureTopics(waitCtx, brokers, auditTopics(a.cfg).All()...); err != nil {
		logging.Errorf("[arbengine] ensure topics warning: %v", err)
	}
}

func (a *app) Close() {
	for _, w := range a.writers {
		if err := w.Close(); err != nil {
			logging.Errorf("[arbengine] close kafka writer %s: %v", w.Topic, err)
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

func auditTopics(cfg *config.Config) kafka.Topics {
	return kafka.Topics{
		Proposals:  cfg.Infra.Kafka.ProposalsTopic,
		Executions: cfg.Infra.Kafka.ExecutionsTopic,
	}.WithDefaults()
}
