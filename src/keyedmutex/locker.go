// Package keyedmutex provides per-key mutual exclusion. Distinct keys never
// contend; callers on the same key are served in arrival order.
package keyedmutex

import (
	"context"
)

// Lease is held until Release. Release may be called more than once; only the
// first call has an effect.
type Lease interface {
	Release()
}

type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// WithLock runs fn while holding key and releases on every exit path, panics included.
func WithLock(ctx context.Context, locker Locker, key string, fn func(ctx context.Context) error) error {
	lease, err := locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(ctx)
}
