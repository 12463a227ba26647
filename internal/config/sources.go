package config

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hetulpatel/cexarb/internal/exchanges"
)

// Sources builds one price source per configured exchange. client may be nil
// when no exchange reads from Redis.
func (c *Config) Sources(client redis.Cmdable) (exchanges.Registry, error) {
	reg := make(exchanges.Registry, len(c.Exchanges))
	for _, name := range c.ExchangeNames() {
		src := c.Exchanges[name].Source
		switch src.Kind {
		case SourceStatic, "":
			reg[name] = exchanges.NewStaticSource(name, src.Prices)
		case SourceHTTP:
			s, err := exchanges.NewHTTPSource(exchanges.HTTPConfig{
				Name:    name,
				URL:     src.URL,
				Field:   src.Field,
				Timeout: time.Duration(src.TimeoutMs) * time.Millisecond,
			})
			if err != nil {
				return nil, err
			}
			reg[name] = s
		case SourceRedis:
			if client == nil {
				return nil, fmt.Errorf("exchange %s reads prices from redis but infra.redis.addr is empty", name)
			}
			s, err := exchanges.NewRedisSource(name, client, c.Infra.Redis.PricePrefix)
			if err != nil {
				return nil, err
			}
			reg[name] = s
		default:
			return nil, fmt.Errorf("exchange %s: unknown source kind %q", name, src.Kind)
		}
	}
	return reg, nil
}

// NeedsRedis reports whether any component is configured to use Redis.
func (c *Config) NeedsRedis() bool {
	if c.Infra.Redis.Addr != "" {
		return true
	}
	for _, ex := range c.Exchanges {
		if ex.Source.Kind == SourceRedis {
			return true
		}
	}
	return false
}

// FeedSources returns an HTTP source for every Redis-backed exchange that
// names a feed url. The collector polls these and writes into the hashes
// the scanner's Redis sources read.
func (c *Config) FeedSources() (exchanges.Registry, error) {
	reg := make(exchanges.Registry)
	for _, name := range c.ExchangeNames() {
		src := c.Exchanges[name].Source
		if src.Kind != SourceRedis || src.URL == "" {
			continue
		}
		s, err := exchanges.NewHTTPSource(exchanges.HTTPConfig{
			Name:    name,
			URL:     src.URL,
			Field:   src.Field,
			Timeout: time.Duration(src.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
		reg[name] = s
	}
	return reg, nil
}
