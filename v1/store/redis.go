package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var deleteIfEqualsScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Redis implements Store using a Redis backend. SET NX covers the atomic
// create, and the compare-and-delete runs as a Lua script so that the value
// check and the DEL are a single step on the server.
type Redis struct {
	client redis.Cmdable
}

// NewRedis returns a Redis store using the provided client.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

// SetIfAbsent implements Store.SetIfAbsent.
func (r *Redis) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis setnx: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// DeleteIfEquals implements Store.DeleteIfEquals.
func (r *Redis) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	n, err := deleteIfEqualsScript.Run(ctx, r.client, []string{key}, value).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: redis compare-and-delete: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}
