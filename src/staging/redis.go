package staging

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/launchpad-claims/src/metrics"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
)

// RedisStore keeps JSON encoded records under stage:<namespace>:<key> with a
// PX equal to the TTL, so every process sharing the redis sees one staging area.
// A sorted set scored by creation time indexes the namespace for Sweep.
type RedisStore[T any] struct {
	rdb    *redis.Client
	ns     model.StageNamespace
	ttl    time.Duration
	prefix string
	index  string
	now    func() time.Time
}

func NewRedisStore[T any](rdb *redis.Client, ns model.StageNamespace, ttl time.Duration) *RedisStore[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore[T]{
		rdb:    rdb,
		ns:     ns,
		ttl:    ttl,
		prefix: "stage:" + string(ns) + ":",
		index:  "stage_index:" + string(ns),
		now:    time.Now,
	}
}

func (s *RedisStore[T]) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore[T]) Namespace() model.StageNamespace {
	return s.ns
}

func (s *RedisStore[T]) Put(ctx context.Context, key string, payload T) (*model.Staged[T], error) {
	staged := &model.Staged[T]{Key: key, Payload: payload, CreatedAt: s.now()}
	data, err := json.Marshal(staged)
	if err != nil {
		return nil, errors.Wrapf(err, "failed encoding staged %s", s.ns)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(key), data, s.ttl)
		pipe.ZAdd(ctx, s.index, &redis.Z{Score: float64(staged.CreatedAt.UnixMilli()), Member: key})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed staging %s %s", s.ns, key)
	}
	metrics.RecordStaged(string(s.ns))
	return staged, nil
}

func (s *RedisStore[T]) Get(ctx context.Context, key string) (*model.Staged[T], error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading staged %s %s", s.ns, key)
	}
	staged := &model.Staged[T]{}
	if err := json.Unmarshal(val, staged); err != nil {
		return nil, errors.Wrapf(err, "failed decoding staged %s %s", s.ns, key)
	}
	// redis expiry has millisecond granularity, the local clock decides the edge
	if staged.Expired(s.now(), s.ttl) {
		return nil, nil
	}
	return staged, nil
}

func (s *RedisStore[T]) Delete(ctx context.Context, key string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(key))
		pipe.ZRem(ctx, s.index, key)
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed deleting staged %s %s", s.ns, key)
	}
	return del.Val() > 0, nil
}

// Sweep drops every indexed record created more than ttl ago. Redis may have
// expired the record itself already; the index entry still counts as evicted.
func (s *RedisStore[T]) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl).UnixMilli()
	expired, err := s.rdb.ZRangeByScore(ctx, s.index, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "failed scanning %s index", s.ns)
	}
	if len(expired) == 0 {
		return 0, nil
	}
	keys := make([]string, len(expired))
	members := make([]interface{}, len(expired))
	for i, key := range expired {
		keys[i] = s.key(key)
		members[i] = key
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.index, members...)
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "failed sweeping %s", s.ns)
	}
	return len(expired), nil
}
