package keyedmutex

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/onemorebsmith/launchpad-claims/src/metrics"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Options struct {
	Namespace string
	// MaxHold force expires a lease held longer than this and hands the key to
	// the next waiter. Zero disables expiry.
	MaxHold time.Duration
}

// KeyedMutex is the in-process Locker. Waiters for a key queue FIFO; a waiter
// whose context ends leaves the queue without ever holding the key.
type KeyedMutex struct {
	opts    Options
	logger  *zap.Logger
	mu      sync.Mutex
	entries map[string]*entry
	tickets uint64
	now     func() time.Time
}

type entry struct {
	holder     uint64
	acquiredAt time.Time
	expiry     *time.Timer
	waiters    list.List
}

type waiter struct {
	ticket  uint64
	ready   chan struct{}
	granted bool
}

type lease struct {
	km     *KeyedMutex
	key    string
	ticket uint64
	once   sync.Once
}

func (l *lease) Release() {
	l.once.Do(func() {
		l.km.release(l.key, l.ticket)
	})
}

func New(opts Options, logger *zap.Logger) *KeyedMutex {
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	return &KeyedMutex{
		opts:    opts,
		logger:  logger.With(zap.String("component", "keyedmutex"), zap.String("namespace", opts.Namespace)),
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (km *KeyedMutex) Acquire(ctx context.Context, key string) (Lease, error) {
	key = model.NormalizeKey(key)
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "lock %s not attempted", key)
	}
	start := km.now()

	km.mu.Lock()
	km.tickets++
	ticket := km.tickets
	e, exists := km.entries[key]
	if !exists {
		e = &entry{}
		km.entries[key] = e
		km.grantLocked(key, e, ticket)
		km.mu.Unlock()
		metrics.RecordLockWait(km.opts.Namespace, 0)
		return &lease{km: km, key: key, ticket: ticket}, nil
	}
	w := &waiter{ticket: ticket, ready: make(chan struct{})}
	elem := e.waiters.PushBack(w)
	km.mu.Unlock()

	select {
	case <-w.ready:
		metrics.RecordLockWait(km.opts.Namespace, km.now().Sub(start))
		return &lease{km: km, key: key, ticket: ticket}, nil
	case <-ctx.Done():
		km.mu.Lock()
		if w.granted {
			// handed the key between ctx firing and us taking the mutex, pass it on
			km.releaseLocked(key, ticket)
		} else {
			e.waiters.Remove(elem)
		}
		km.mu.Unlock()
		return nil, errors.Wrapf(ctx.Err(), "gave up waiting for lock %s", key)
	}
}

// held reports whether anyone currently owns key
func (km *KeyedMutex) held(key string) bool {
	km.mu.Lock()
	defer km.mu.Unlock()
	_, exists := km.entries[model.NormalizeKey(key)]
	return exists
}

// waiting is the number of callers queued behind the current holder of key
func (km *KeyedMutex) waiting(key string) int {
	km.mu.Lock()
	defer km.mu.Unlock()
	e, exists := km.entries[model.NormalizeKey(key)]
	if !exists {
		return 0
	}
	return e.waiters.Len()
}

func (km *KeyedMutex) grantLocked(key string, e *entry, ticket uint64) {
	e.holder = ticket
	e.acquiredAt = km.now()
	if km.opts.MaxHold > 0 {
		e.expiry = time.AfterFunc(km.opts.MaxHold, func() {
			km.expire(key, ticket)
		})
	}
}

func (km *KeyedMutex) release(key string, ticket uint64) {
	km.mu.Lock()
	defer km.mu.Unlock()
	km.releaseLocked(key, ticket)
}

func (km *KeyedMutex) releaseLocked(key string, ticket uint64) {
	e, exists := km.entries[key]
	if !exists || e.holder != ticket {
		return // force expired earlier, the key belongs to someone else now
	}
	km.handoffLocked(key, e)
}

func (km *KeyedMutex) handoffLocked(key string, e *entry) {
	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}
	front := e.waiters.Front()
	if front == nil {
		delete(km.entries, key)
		return
	}
	w := e.waiters.Remove(front).(*waiter)
	w.granted = true
	km.grantLocked(key, e, w.ticket)
	close(w.ready)
}

func (km *KeyedMutex) expire(key string, ticket uint64) {
	km.mu.Lock()
	defer km.mu.Unlock()
	e, exists := km.entries[key]
	if !exists || e.holder != ticket {
		return
	}
	km.logger.Warn("force expiring abandoned lock",
		zap.String("key", key),
		zap.Duration("held", km.now().Sub(e.acquiredAt)),
		zap.Int("waiting", e.waiters.Len()))
	metrics.RecordLockExpired(km.opts.Namespace)
	km.handoffLocked(key, e)
}
