package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript returns 1 when the detection is admitted and records it; 0 when
// the previous admission is still inside the window.
var admitScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
local now = tonumber(ARGV[1])
if prev and (now - tonumber(prev)) < tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1`)

// RedisSkipCache shares the skip map across API replicas.
type RedisSkipCache struct {
	rdb    *redis.Client
	window time.Duration
	ttl    time.Duration
	prefix string
}

func NewRedisSkipCache(rdb *redis.Client, window, ttl time.Duration) *RedisSkipCache {
	if window <= 0 {
		window = DefaultSkipWindow
	}
	if ttl < window {
		ttl = window
	}
	return &RedisSkipCache{rdb: rdb, window: window, ttl: ttl, prefix: "skip:"}
}

func (c *RedisSkipCache) Admit(ctx context.Context, key string, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	res, err := admitScript.Run(ctx, c.rdb, []string{c.prefix + key},
		now.UnixMilli(), c.window.Milliseconds(), c.ttl.Milliseconds()).Int64()
	if err != nil {
		return true, fmt.Errorf("skip cache: %w", err)
	}
	return res == 1, nil
}
