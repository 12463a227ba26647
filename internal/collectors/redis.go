package collectors

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWriter publishes quotes in the layout exchanges.RedisSource reads:
// HSET <prefix>:<exchange> <symbol> <price>. The hash expires after ttl so a
// dead collector stops feeding stale prices.
type RedisWriter struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisWriter(client redis.Cmdable, prefix string, ttl time.Duration) (*RedisWriter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = "prices"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisWriter{client: client, prefix: prefix, ttl: ttl}, nil
}

func (w *RedisWriter) key(exchange string) string {
	return fmt.Sprintf("%s:%s", w.prefix, exchange)
}

// Write stores quotes in one pipeline.
func (w *RedisWriter) Write(ctx context.Context, quotes []Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	pipe := w.client.TxPipeline()
	touched := make(map[string]bool)
	for _, q := range quotes {
		key := w.key(q.Exchange)
		pipe.HSet(ctx, key, q.Symbol, strconv.FormatFloat(q.Price, 'f', -1, 64))
		touched[key] = true
	}
	for key := range touched {
		pipe.Expire(ctx, key, w.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
