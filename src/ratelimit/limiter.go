// Package ratelimit throttles verification attempts with fixed windows.
//
// A window opens on the first attempt and closes windowMs later; it never
// slides. Near a boundary a caller can land maxAttempts at the end of one
// window and maxAttempts-1 more at the start of the next, so up to
// 2*maxAttempts-1 attempts fit in a short span. That is accepted for an abuse
// deterrent and is not a hard cap.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/onemorebsmith/launchpad-claims/src/metrics"
	"github.com/onemorebsmith/launchpad-claims/src/model"
)

type Limiter interface {
	// Check records an attempt for identifier and reports whether it is allowed.
	// A blocked attempt leaves the window untouched.
	Check(ctx context.Context, identifier string, maxAttempts int, window time.Duration) (bool, error)
	// CheckAll records one attempt against every identifier, or against none
	// when any of them is exhausted. It returns the first blocked identifier,
	// "" when the attempt was allowed.
	CheckAll(ctx context.Context, identifiers []string, maxAttempts int, window time.Duration) (string, error)
}

// MinWindow is the shortest window either limiter opens; redis expiries are
// whole milliseconds.
const MinWindow = time.Millisecond

func clampWindow(window time.Duration) time.Duration {
	if window < MinWindow {
		return MinWindow
	}
	return window
}

// Identifier builds a composite key, e.g. Identifier("verify", wallet, ip)
func Identifier(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = model.NormalizeKey(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, ":")
}

type Window struct {
	Identifier string
	Attempts   int
	ResetAt    time.Time
}

// MemoryLimiter keeps windows in process. Expired windows are replaced lazily
// on the next attempt, nothing sweeps them.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*Window
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*Window),
		now:     time.Now,
	}
}

func (ml *MemoryLimiter) Check(ctx context.Context, identifier string, maxAttempts int, window time.Duration) (bool, error) {
	blocked, err := ml.CheckAll(ctx, []string{identifier}, maxAttempts, window)
	return blocked == "" && err == nil, err
}

func (ml *MemoryLimiter) CheckAll(_ context.Context, identifiers []string, maxAttempts int, window time.Duration) (string, error) {
	blocked := ml.check(identifiers, maxAttempts, clampWindow(window))
	metrics.RecordRateLimit(blocked == "")
	return blocked, nil
}

func (ml *MemoryLimiter) check(identifiers []string, maxAttempts int, window time.Duration) string {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := ml.now()
	for _, id := range identifiers {
		w, exists := ml.windows[model.NormalizeKey(id)]
		if exists && now.Before(w.ResetAt) && w.Attempts >= maxAttempts {
			return id
		}
	}
	for _, id := range identifiers {
		key := model.NormalizeKey(id)
		w, exists := ml.windows[key]
		if !exists || !now.Before(w.ResetAt) {
			ml.windows[key] = &Window{
				Identifier: key,
				Attempts:   1,
				ResetAt:    now.Add(window),
			}
			continue
		}
		w.Attempts++
	}
	return ""
}

// Window returns a copy of the current window for identifier, if any
func (ml *MemoryLimiter) Window(identifier string) (Window, bool) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	w, exists := ml.windows[model.NormalizeKey(identifier)]
	if !exists {
		return Window{}, false
	}
	return *w, true
}
