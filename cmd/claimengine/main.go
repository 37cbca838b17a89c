package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/launchpad-claims/src/audit"
	"github.com/onemorebsmith/launchpad-claims/src/challenge"
	"github.com/onemorebsmith/launchpad-claims/src/claims"
	"github.com/onemorebsmith/launchpad-claims/src/common"
	"github.com/onemorebsmith/launchpad-claims/src/eligibility"
	"github.com/onemorebsmith/launchpad-claims/src/emissions"
	"github.com/onemorebsmith/launchpad-claims/src/keyedmutex"
	"github.com/onemorebsmith/launchpad-claims/src/metrics"
	"github.com/onemorebsmith/launchpad-claims/src/postgres"
	"github.com/onemorebsmith/launchpad-claims/src/ratelimit"
	"github.com/onemorebsmith/launchpad-claims/src/staging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

func main() {
	pwd, _ := os.Getwd()
	fullPath := path.Join(pwd, "config.yaml")
	log.Printf("loading config @ `%s`", fullPath)
	rawCfg, err := os.ReadFile(fullPath)
	if err != nil {
		log.Printf("config file not found: %s", err)
		os.Exit(1)
	}
	cfg := claims.Config{}
	if err := yaml.Unmarshal(rawCfg, &cfg); err != nil {
		log.Printf("failed parsing config file: %s", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection`)
	flag.StringVar(&cfg.RedisConfig, "redis", cfg.RedisConfig, "address of the shared redis, empty keeps locks and staging in-process")
	flag.StringVar(&cfg.OracleURL, "oracle", cfg.OracleURL, "base url of the emission indexer")
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2114`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `(rarely used) if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level, default `info`")
	flag.Parse()
	cfg = cfg.WithDefaults()

	log.Println("----------------------------------")
	log.Printf("initializing claim engine")
	log.Printf("\tredis:           %s", cfg.RedisConfig)
	log.Printf("\toracle:          %s", cfg.OracleURL)
	log.Printf("\tprom:            %s", cfg.PromPort)
	log.Printf("\thealth check:    %s", cfg.HealthCheckPort)
	log.Printf("\tclaim lock hold: %s", cfg.ClaimLockMaxHold.Std())
	log.Printf("\tverify lock:     %s", cfg.VerificationLockMaxHold.Std())
	log.Printf("\tstage ttl:       %s", cfg.StageTTL.Std())
	log.Printf("\tsweep interval:  %s", cfg.SweepInterval.Std())
	log.Printf("\tverify limit:    %d per %s", cfg.VerificationMaxAttempts, cfg.VerificationWindow.Std())
	log.Printf("\tchallenge ttl:   %s", cfg.ChallengeTTL.Std())
	log.Println("----------------------------------")

	logger := common.ConfigureZap(common.ParseLevel(cfg.LogLevel))
	postgres.ConfigurePostgres(cfg.PostgresConfig)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := postgres.EnsureSchema(ctx); err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.RedisConfig != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisConfig, DB: 0})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.String("addr", cfg.RedisConfig), zap.Error(err))
		}
		defer rdb.Close()
	} else {
		logger.Warn("no redis configured, locks and staged transactions are process local")
	}

	// the request layer that calls svc lives outside this module, this binary
	// only sweeps staged transactions and flushes audit on exit. Without an
	// identity provider social verification answers with a configuration fault.
	store := postgres.Store{}
	stage := newStaging(rdb, cfg)
	svc := claims.NewService(cfg, claims.Dependencies{
		Oracle:     newOracle(cfg, logger),
		Splits:     store,
		Presale:    store,
		Launches:   store,
		Limiter:    newLimiter(rdb),
		Staging:    stage,
		Audit:      audit.NewRecorder(logger, audit.NewZapSink(logger), audit.PostgresSink{}),
		Challenges: challenge.NewService(cfg.ChallengeTTL.Std()),
	}.WithLocks(newLockers(rdb, cfg, logger)), logger)

	if cfg.PromPort != "" {
		metrics.StartPromServer(logger, cfg.PromPort)
	}
	if cfg.HealthCheckPort != "" {
		go beginReadyzHandler(cfg, rdb)
	}

	logger.Info("claim engine running")
	if err := stage.StartSweeper(ctx, cfg.SweepInterval.Std(), logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sweeper stopped", zap.Error(err))
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("audit writes still pending at shutdown", zap.Error(err))
	}
}

func newOracle(cfg claims.Config, logger *zap.Logger) eligibility.EmissionOracle {
	if cfg.OracleURL == "" {
		logger.Warn("no oracle configured, every token reports zero emissions")
		return emissions.NewStaticOracle()
	}
	return emissions.NewClient(cfg.OracleURL, nil, logger)
}

func newLimiter(rdb *redis.Client) ratelimit.Limiter {
	if rdb == nil {
		return ratelimit.NewMemoryLimiter()
	}
	return ratelimit.NewRedisLimiter(rdb, "")
}

func newStaging(rdb *redis.Client, cfg claims.Config) *staging.Staging {
	if rdb == nil {
		return staging.NewMemoryStaging(cfg.StageTTL.Std())
	}
	return staging.NewRedisStaging(rdb, cfg.StageTTL.Std())
}

func newLockers(rdb *redis.Client, cfg claims.Config, logger *zap.Logger) claims.Lockers {
	claimOpts, presaleOpts, launchOpts, verifyOpts := claims.LockOptions(cfg)
	build := func(opts keyedmutex.Options) keyedmutex.Locker {
		if rdb == nil {
			return keyedmutex.New(opts, logger)
		}
		return keyedmutex.NewRedisLocker(rdb, opts, logger)
	}
	return claims.Lockers{
		Claim:        build(claimOpts),
		Presale:      build(presaleOpts),
		Launch:       build(launchOpts),
		Verification: build(verifyOpts),
	}
}

func beginReadyzHandler(cfg claims.Config, rdb *redis.Client) {
	http.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := postgres.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
			return
		}
		if rdb != nil {
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(errors.Wrap(err, "failed pinging redis").Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	http.ListenAndServe(cfg.HealthCheckPort, nil)
}
