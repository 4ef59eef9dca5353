package metastore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript claims key for token if unset or already held by token,
// refreshing the TTL either way. Returns 1 on success, 0 if another token
// holds the key.
var acquireScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == false or cur == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

// releaseScript deletes key only if still held by token.
var releaseScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

// RedisStore is the production Store backend. One client per process,
// shared across rooms; leases and manifests live in the same keyspace
// under distinct prefixes chosen by the caller.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-configured go-redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *RedisStore) AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	res, err := acquireScript.Run(ctx, s.rdb, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisStore) RenewLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.AcquireLease(ctx, key, token, ttl)
}

func (s *RedisStore) ReleaseLease(ctx context.Context, key, token string) error {
	_, err := releaseScript.Run(ctx, s.rdb, []string{key}, token).Int()
	return err
}

var _ Store = (*RedisStore)(nil)
