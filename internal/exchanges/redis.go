package exchanges

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisSource reads prices that an external feed publishes into a hash per
// exchange: HSET <prefix>:<exchange> <symbol> <price>.
type RedisSource struct {
	name   string
	client redis.Cmdable
	key    string
}

func NewRedisSource(name string, client redis.Cmdable, prefix string) (*RedisSource, error) {
	if client == nil {
		return nil, fmt.Errorf("redis source %s: client is required", name)
	}
	if prefix == "" {
		prefix = "prices"
	}
	return &RedisSource{name: name, client: client, key: fmt.Sprintf("%s:%s", prefix, name)}, nil
}

func (s *RedisSource) Name() string {
	return s.name
}

func (s *RedisSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	raw, err := s.client.HGet(ctx, s.key, symbol).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%s %s: %w", s.name, symbol, ErrNoPrice)
	}
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %s: parse price %q: %w", s.name, symbol, raw, err)
	}
	return price, nil
}
