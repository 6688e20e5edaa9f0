package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisConnectTimeout = 5 * time.Second
	redisScanBatchSize  = 1000
)

// Redis stores each cart as a hash at <prefix><id> holding the state and
// the time of the last save.
type Redis struct {
	db     redis.UniversalClient
	prefix string
	clock  func() time.Time
}

// NewRedis connects to the server at url and checks it is reachable.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to parse connection url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("redis: server not ready: %w", err)
	}

	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{db: client, prefix: prefix, clock: time.Now}
}

func (r *Redis) key(id string) string {
	return r.prefix + id
}

func (r *Redis) Load(ctx context.Context, id string) (string, bool, error) {
	if err := checkID(id); err != nil {
		return "", false, err
	}

	state, err := r.db.HGet(ctx, r.key(id), "state").Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("redis: failed to load cart %s: %w", id, err)
	}

	return state, true, nil
}

func (r *Redis) Save(ctx context.Context, id, state string) error {
	if err := checkID(id); err != nil {
		return err
	}

	err := r.db.HSet(ctx, r.key(id),
		"state", state,
		"updated_at", r.clock().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: failed to save cart %s: %w", id, err)
	}

	return nil
}

// List scans keys under the prefix. SCAN never blocks the server, but carts
// saved during the scan may be missed.
func (r *Redis) List(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)

	iter := r.db.Scan(ctx, 0, r.prefix+"*", redisScanBatchSize).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		state, err := r.db.HGet(ctx, key, "state").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("redis: failed to list carts: %w", err)
		}

		out[strings.TrimPrefix(key, r.prefix)] = state
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: failed to list carts: %w", err)
	}

	return out, nil
}

func (r *Redis) Close() error {
	return r.db.Close()
}
