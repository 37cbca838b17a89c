package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var lockWaitLabels = []string{"namespace"}
var lockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "claims_lock_wait_seconds",
	Help:    "Time spent waiting to acquire a keyed lock",
	Buckets: []float64{.001, .005, .025, .1, .5, 1, 5, 15, 30, 60},
}, lockWaitLabels)

var lockExpiredLabels = []string{"namespace"}
var lockExpired = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "claims_lock_force_expired",
	Help: "Number of locks force expired after exceeding their max hold duration",
}, lockExpiredLabels)

var rateLimitLabels = []string{"decision"}
var rateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "claims_ratelimit_decisions",
	Help: "Rate limiter decisions by outcome",
}, rateLimitLabels)

var stagingLabels = []string{"namespace"}
var stagedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "claims_staged_transactions",
	Help: "Number of transactions put into staging",
}, stagingLabels)

var sweptCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "claims_swept_transactions",
	Help: "Number of staged transactions evicted by the sweeper",
}, stagingLabels)

var auditLabels = []string{"type"}
var auditFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "claims_audit_write_failures",
	Help: "Audit events that failed to persist",
}, auditLabels)

var eligibilityLabels = []string{"result"}
var eligibilityCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "claims_eligibility_computations",
	Help: "Eligibility computations by result",
}, eligibilityLabels)

func RecordLockWait(namespace string, waited time.Duration) {
	lockWait.WithLabelValues(namespace).Observe(waited.Seconds())
}

func RecordLockExpired(namespace string) {
	lockExpired.WithLabelValues(namespace).Inc()
}

func RecordRateLimit(allowed bool) {
	if allowed {
		rateLimitDecisions.WithLabelValues("allowed").Inc()
		return
	}
	rateLimitDecisions.WithLabelValues("blocked").Inc()
}

func RecordStaged(namespace string) {
	stagedCounter.WithLabelValues(namespace).Inc()
}

func RecordSwept(namespace string, count int) {
	sweptCounter.WithLabelValues(namespace).Add(float64(count))
}

func RecordAuditFailure(eventType string) {
	auditFailures.WithLabelValues(eventType).Inc()
}

func RecordEligibility(result string) {
	eligibilityCounter.WithLabelValues(result).Inc()
}

func StartPromServer(log *zap.Logger, port string) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Info("hosting prom stats on " + port + "/metrics")
		if err := http.ListenAndServe(port, nil); err != nil {
			log.Error("error serving prom metrics", zap.Error(err))
		}
	}()
}
