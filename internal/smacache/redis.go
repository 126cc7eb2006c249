package smacache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"ibkr-sma-scanner/internal/types"
)

// RedisStore keeps the cache in one hash: field ticker, value JSON record.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultTable
	}
	return &RedisStore{client: client, key: key}
}

func OpenRedis(ctx context.Context, addr, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStore(client, key), nil
}

func (s *RedisStore) Replace(ctx context.Context, records []types.SmaRecord) error {
	values := make([]any, 0, 2*len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.Ticker, err)
		}
		values = append(values, r.Ticker, string(b))
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace redis hash %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) LoadAll(ctx context.Context) ([]types.SmaRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read redis hash %s: %w", s.key, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("redis hash %q: %w", s.key, ErrCacheNotFound)
	}

	out := make([]types.SmaRecord, 0, len(fields))
	for ticker, raw := range fields {
		var rec types.SmaRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ticker, err)
		}
		if rec.Ticker == "" {
			rec.Ticker = ticker
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
