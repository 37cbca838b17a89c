// Package audit records verification and claim lifecycle events. Writes run
// detached from the caller: a slow or broken sink never fails, delays or rolls
// back the operation being audited.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onemorebsmith/launchpad-claims/src/metrics"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/onemorebsmith/launchpad-claims/src/postgres"
	"go.uber.org/zap"
)

const DefaultWriteTimeout = 5 * time.Second

type Sink interface {
	Write(ctx context.Context, event *model.AuditEvent) error
}

type Recorder struct {
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewRecorder(logger *zap.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:   sinks,
		logger:  logger.Named("audit"),
		timeout: DefaultWriteTimeout,
		now:     time.Now,
	}
}

// Record stamps the event and hands it to every sink in the background.
func (r *Recorder) Record(event model.AuditEvent) {
	if event.Id == "" {
		event.Id = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now().UTC()
	}
	for _, sink := range r.sinks {
		r.wg.Add(1)
		go r.write(sink, event)
	}
}

func (r *Recorder) write(sink Sink, event model.AuditEvent) {
	defer r.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			r.fail(&event, fmt.Errorf("audit sink panicked: %v", p))
		}
	}()
	// not the caller's context; a cancelled request still gets its audit row
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := sink.Write(ctx, &event); err != nil {
		r.fail(&event, err)
	}
}

func (r *Recorder) fail(event *model.AuditEvent, err error) {
	metrics.RecordAuditFailure(string(event.Type))
	r.logger.Error("failed writing audit event",
		zap.String("id", event.Id),
		zap.String("type", string(event.Type)),
		zap.String("flow", event.Flow),
		zap.Error(err))
}

// Flush waits for in-flight writes or for ctx to end.
func (r *Recorder) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ZapSink writes events to the structured log.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("audit_log")}
}

func (s *ZapSink) Write(_ context.Context, event *model.AuditEvent) error {
	fields := []zap.Field{
		zap.String("id", event.Id),
		zap.String("type", string(event.Type)),
		zap.String("flow", event.Flow),
		zap.Time("timestamp", event.Timestamp),
	}
	fields = appendOptional(fields, "token", event.TokenAddress)
	fields = appendOptional(fields, "wallet", event.WalletAddress)
	fields = appendOptional(fields, "twitter", event.TwitterHandle)
	fields = appendOptional(fields, "github", event.GithubHandle)
	fields = appendOptional(fields, "ip", event.IPAddress)
	fields = appendOptional(fields, "user_agent", event.UserAgent)
	fields = appendOptional(fields, "error", event.ErrorMessage)
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}
	s.logger.Info("audit", fields...)
	return nil
}

func appendOptional(fields []zap.Field, key string, val *string) []zap.Field {
	if val == nil {
		return fields
	}
	return append(fields, zap.String(key, *val))
}

// PostgresSink appends events to the audit_events table.
type PostgresSink struct{}

func (PostgresSink) Write(ctx context.Context, event *model.AuditEvent) error {
	return postgres.PutAuditEvent(ctx, event)
}
