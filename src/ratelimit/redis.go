package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/launchpad-claims/src/metrics"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
)

// Every key is checked before any is written, so a blocked attempt charges
// nothing. SET ... PX opens a window, INCR keeps its expiry. Returns the
// 1-based index of the first exhausted key, 0 when allowed.
var checkScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	local attempts = redis.call("GET", key)
	if attempts and tonumber(attempts) >= tonumber(ARGV[1]) then
		return i
	end
end
for _, key in ipairs(KEYS) do
	if redis.call("EXISTS", key) == 1 then
		redis.call("INCR", key)
	else
		redis.call("SET", key, 1, "PX", ARGV[2])
	end
end
return 0`)

type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLimiter(rdb *redis.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix}
}

func (rl *RedisLimiter) Check(ctx context.Context, identifier string, maxAttempts int, window time.Duration) (bool, error) {
	blocked, err := rl.CheckAll(ctx, []string{identifier}, maxAttempts, window)
	return blocked == "" && err == nil, err
}

func (rl *RedisLimiter) CheckAll(ctx context.Context, identifiers []string, maxAttempts int, window time.Duration) (string, error) {
	if len(identifiers) == 0 {
		return "", nil
	}
	keys := make([]string, len(identifiers))
	for i, id := range identifiers {
		keys[i] = rl.prefix + model.NormalizeKey(id)
	}
	ms := clampWindow(window).Milliseconds()
	res, err := checkScript.Run(ctx, rl.rdb, keys, maxAttempts, ms).Int()
	if err != nil {
		return "", errors.Wrapf(err, "failed checking rate limit for %v", identifiers)
	}
	blocked := ""
	if res > 0 && res <= len(identifiers) {
		blocked = identifiers[res-1]
	}
	metrics.RecordRateLimit(blocked == "")
	return blocked, nil
}
