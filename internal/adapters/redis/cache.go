package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// TryLock takes key for ttl if nobody holds it. The returned token must be
// passed to Unlock.
func (c *Cache) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "acquire lock")
	}
	return token, ok, nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases key only if it is still held with token.
func (c *Cache) Unlock(ctx context.Context, key, token string) error {
	err := unlockScript.Run(ctx, c.client, []string{"lock:" + key}, token).Err()
	return errors.Wrap(err, "release lock")
}

func (c *Cache) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, "seen:"+key, 1, ttl).Result()
	return ok, errors.Wrap(err, "mark seen")
}

func (c *Cache) Forget(ctx context.Context, key string) error {
	return errors.Wrap(c.client.Del(ctx, "seen:"+key).Err(), "forget seen")
}
