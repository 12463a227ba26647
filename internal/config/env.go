package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// applyEnv overlays deployment settings that should not live in the file.
func (c *Config) applyEnv() {
	if raw := os.Getenv("ARB_SYMBOLS"); raw != "" {
		c.Symbols = splitList(raw)
	}
	c.Auto.AutoMode = envBool("ARB_AUTO_MODE", c.Auto.AutoMode)
	c.Auto.IntervalSeconds = envInt("ARB_INTERVAL_SECONDS", c.Auto.IntervalSeconds)
	c.Auto.Mode = envString("ARB_AUTO_EXECUTION_MODE", c.Auto.Mode)
	c.Execution.AdminPINDigest = envString("ARB_ADMIN_PIN_DIGEST", c.Execution.AdminPINDigest)
	c.Risk.EquityUSD = envFloat("ARB_EQUITY_USD", c.Risk.EquityUSD)

	c.Infra.Redis.Addr = envString("REDIS_ADDR", c.Infra.Redis.Addr)
	c.Infra.Redis.Password = envString("REDIS_PASSWORD", c.Infra.Redis.Password)
	c.Infra.Redis.DB = envInt("REDIS_DB", c.Infra.Redis.DB)
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		c.Infra.Kafka.Brokers = splitList(raw)
	}
	c.Infra.Kafka.ProposalsTopic = envString("ARB_PROPOSALS_TOPIC", c.Infra.Kafka.ProposalsTopic)
	c.Infra.Kafka.ExecutionsTopic = envString("ARB_EXECUTIONS_TOPIC", c.Infra.Kafka.ExecutionsTopic)
	c.Infra.SQLitePath = envString("SQLITE_PATH", c.Infra.SQLitePath)
	c.Infra.MetricsAddr = envString("METRICS_ADDR", c.Infra.MetricsAddr)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// EnvSQLitePath resolves the audit database for the maintenance commands:
// SQLITE_PATH, then infra.sqlite_path from the ARB_CONFIG file. The file is
// not validated, so it works before symbols or exchanges are set up. Empty
// means the store's default path.
func EnvSQLitePath() string {
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		return path
	}
	raw, err := os.ReadFile(os.Getenv("ARB_CONFIG"))
	if err != nil {
		return ""
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return ""
	}
	return c.Infra.SQLitePath
}
