package staging

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/launchpad-claims/src/metrics"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"go.uber.org/zap"
)

// Staging groups the three independent namespaces. Claim, presale claim and
// presale launch keys never collide with each other.
type Staging struct {
	Claims          Store[model.ClaimTransaction]
	PresaleClaims   Store[model.PresaleClaimTransaction]
	PresaleLaunches Store[model.PresaleLaunchTransaction]
}

func NewMemoryStaging(ttl time.Duration) *Staging {
	return &Staging{
		Claims:          NewMemoryStore[model.ClaimTransaction](model.StageClaim, ttl),
		PresaleClaims:   NewMemoryStore[model.PresaleClaimTransaction](model.StagePresaleClaim, ttl),
		PresaleLaunches: NewMemoryStore[model.PresaleLaunchTransaction](model.StagePresaleLaunch, ttl),
	}
}

func NewRedisStaging(rdb *redis.Client, ttl time.Duration) *Staging {
	return &Staging{
		Claims:          NewRedisStore[model.ClaimTransaction](rdb, model.StageClaim, ttl),
		PresaleClaims:   NewRedisStore[model.PresaleClaimTransaction](rdb, model.StagePresaleClaim, ttl),
		PresaleLaunches: NewRedisStore[model.PresaleLaunchTransaction](rdb, model.StagePresaleLaunch, ttl),
	}
}

type sweepable interface {
	Namespace() model.StageNamespace
	Sweep(ctx context.Context) (int, error)
}

func (s *Staging) stores() []sweepable {
	return []sweepable{s.Claims, s.PresaleClaims, s.PresaleLaunches}
}

// SweepAll runs one sweep over every namespace and returns the total evicted.
// A failing namespace is logged and does not stop the others.
func (s *Staging) SweepAll(ctx context.Context, logger *zap.Logger) int {
	total := 0
	for _, store := range s.stores() {
		evicted, err := store.Sweep(ctx)
		if err != nil {
			logger.Error("failed sweeping staged transactions",
				zap.String("namespace", string(store.Namespace())), zap.Error(err))
			continue
		}
		if evicted > 0 {
			metrics.RecordSwept(string(store.Namespace()), evicted)
			logger.Info("evicted expired staged transactions",
				zap.String("namespace", string(store.Namespace())), zap.Int("count", evicted))
		}
		total += evicted
	}
	return total
}

// StartSweeper blocks, sweeping every delay until ctx ends.
func (s *Staging) StartSweeper(ctx context.Context, delay time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	logger = logger.Named("sweeper")
	for {
		select {
		case <-ticker.C:
			logger.Debug("sweeping staged transactions")
			s.SweepAll(ctx, logger)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
