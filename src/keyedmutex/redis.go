package keyedmutex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/onemorebsmith/launchpad-claims/src/metrics"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultRedisHold = 30 * time.Second
const defaultRedisRetry = 25 * time.Millisecond

// only the owner of the token may delete the key
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker shares exclusion between processes. Every lease carries a redis
// expiry of MaxHold, so a crashed holder frees the key on its own. Waiters poll,
// arrival order is not preserved.
type RedisLocker struct {
	rdb    *redis.Client
	opts   Options
	retry  time.Duration
	logger *zap.Logger
}

func NewRedisLocker(rdb *redis.Client, opts Options, logger *zap.Logger) *RedisLocker {
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if opts.MaxHold <= 0 {
		opts.MaxHold = defaultRedisHold
	}
	return &RedisLocker{
		rdb:    rdb,
		opts:   opts,
		retry:  defaultRedisRetry,
		logger: logger.With(zap.String("component", "redis_locker"), zap.String("namespace", opts.Namespace)),
	}
}

func (rl *RedisLocker) redisKey(key string) string {
	return fmt.Sprintf("lock:%s:%s", rl.opts.Namespace, model.NormalizeKey(key))
}

func (rl *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	rkey := rl.redisKey(key)
	token := uuid.NewString()
	start := time.Now()
	ticker := time.NewTicker(rl.retry)
	defer ticker.Stop()
	for {
		ok, err := rl.rdb.SetNX(ctx, rkey, token, rl.opts.MaxHold).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.Wrapf(ctxErr, "gave up waiting for lock %s", rkey)
			}
			return nil, errors.Wrapf(err, "failed acquiring lock %s", rkey)
		}
		if ok {
			metrics.RecordLockWait(rl.opts.Namespace, time.Since(start))
			return &redisLease{locker: rl, key: rkey, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "gave up waiting for lock %s", rkey)
		case <-ticker.C:
		}
	}
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
	once   sync.Once
}

func (l *redisLease) Release() {
	l.once.Do(func() {
		// detached from the caller, a cancelled request must still free the key
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		deleted, err := releaseScript.Run(ctx, l.locker.rdb, []string{l.key}, l.token).Int()
		if err != nil {
			l.locker.logger.Error("failed releasing lock", zap.String("key", l.key), zap.Error(err))
			return
		}
		if deleted == 0 {
			l.locker.logger.Warn("lock expired before release", zap.String("key", l.key))
			metrics.RecordLockExpired(l.locker.opts.Namespace)
		}
	})
}
