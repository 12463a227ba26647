package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hetulpatel/cexarb/internal/runtime"
)

// RedisFlagStore keeps runtime flags as one JSON document so every engine
// process and the CLI see the same switches.
type RedisFlagStore struct {
	client   redis.UniversalClient
	key      string
	defaults runtime.Flags
}

// NewRedisFlagStore stores flags under "<prefix>:flags". Load returns
// defaults until something is saved.
func NewRedisFlagStore(client redis.UniversalClient, prefix string, defaults runtime.Flags) (*RedisFlagStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = "arb"
	}
	return &RedisFlagStore{client: client, key: fmt.Sprintf("%s:flags", prefix), defaults: defaults}, nil
}

func (s *RedisFlagStore) Load(ctx context.Context) (runtime.Flags, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return s.defaults, nil
	}
	if err != nil {
		return runtime.Flags{}, err
	}
	flags := s.defaults
	if err := json.Unmarshal(raw, &flags); err != nil {
		return runtime.Flags{}, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return flags, nil
}

func (s *RedisFlagStore) Save(ctx context.Context, flags runtime.Flags) error {
	payload, err := json.Marshal(flags)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, payload, 0).Err()
}
