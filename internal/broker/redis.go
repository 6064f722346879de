package broker

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/pgsync-io/pgsync/internal/errs"
)

// RedisStore is the Store used when REDIS_CHECKPOINT is set (spec.md §3.6/§6). Grounded
// on the vperson-go-mysql-kafka example's gredis package (package-level client, a ping at
// startup, thin Set/Get/Delete wrappers over a single *redis.Client) — generalized to the
// v8 client's context-first API and to a struct rather than package globals, since a
// process may run more than one Sync's engine concurrently, each needing its own store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr/db and verifies reachability with a Ping, the way the
// teacher's gredis.Setup does before any traffic flows.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.Wrap(errs.BrokerUnavailable, "connect to redis checkpoint store", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, database, index string) (int64, bool, error) {
	val, err := s.client.Get(ctx, key(database, index)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errs.Wrap(errs.BrokerUnavailable, "read checkpoint", err)
	}
	txmin, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, errs.Wrap(errs.BrokerUnavailable, "parse checkpoint value", err)
	}
	return txmin, true, nil
}

func (s *RedisStore) Set(ctx context.Context, database, index string, txmin int64) error {
	if err := s.client.Set(ctx, key(database, index), txmin, 0).Err(); err != nil {
		return errs.Wrap(errs.BrokerUnavailable, "persist checkpoint", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
