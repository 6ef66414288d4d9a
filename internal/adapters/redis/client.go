package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"optionsflow/internal/adapters/config"
	"optionsflow/pkg/errors"
)

const lockPrefix = "lock:"

// releaseLockScript deletes the lock only while it still carries the caller's token
const releaseLockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// ErrLockNotHeld is returned by ReleaseLock when the lock expired or passed to another holder
var ErrLockNotHeld = errors.New("lock not held")

var newLockToken = uuid.NewString

// Client wraps Redis client
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "failed to ping redis")
	}

	return &Client{rdb: rdb}, nil
}

// Client returns the underlying Redis client
func (c *Client) Client() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireLock acquires a distributed lock and returns the token that owns it.
// ok is false when another holder owns the lock.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := newLockToken()
	ok, err := c.rdb.SetNX(ctx, lockPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "acquire lock")
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases the lock if it is still owned by token
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	deleted, err := c.rdb.Eval(ctx, releaseLockScript, []string{lockPrefix + key}, token).Int64()
	if err != nil {
		return errors.Wrap(err, "release lock")
	}
	if deleted == 0 {
		return errors.Wrap(ErrLockNotHeld, key)
	}
	return nil
}
