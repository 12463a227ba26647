package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hetulpatel/cexarb/internal/config"
	"github.com/hetulpatel/cexarb/internal/models"
)

func TestPickOpportunity(t *testing.T) {
	opps := []models.Opportunity{
		{ProposalID: "a", Symbol: "BTCUSDT", BuyExchange: "binance", SellExchange: "bybit"},
		{ProposalID: "b", Symbol: "ETHUSDT", BuyExchange: "okx", SellExchange: "bybit"},
		{ProposalID: "c", Symbol: "ETHUSDT", BuyExchange: "binance", SellExchange: "kraken"},
	}

	o, ok := pickOpportunity(opps, "", "", "")
	assert.True(t, ok)
	assert.Equal(t, "a", o.ProposalID)

	o, ok = pickOpportunity(opps, "ethusdt", "binance", "")
	assert.True(t, ok)
	assert.Equal(t, "c", o.ProposalID)

	_, ok = pickOpportunity(opps, "SOLUSDT", "", "")
	assert.False(t, ok)
}

func TestAuditTopicsFallBackToDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Infra.Kafka.ExecutionsTopic = "custom.executions"
	topics := auditTopics(cfg)
	assert.Equal(t, "arb.proposals", topics.Proposals)
	assert.Equal(t, "custom.executions", topics.Executions)
}
