// Package claims runs the claim, presale claim, presale launch and social
// verification flows. Each flow takes its key's lock, does its reads and
// staging while holding it, releases, then audits whatever happened.
package claims

import (
	"context"
	"time"

	"github.com/onemorebsmith/launchpad-claims/src/audit"
	"github.com/onemorebsmith/launchpad-claims/src/challenge"
	"github.com/onemorebsmith/launchpad-claims/src/eligibility"
	"github.com/onemorebsmith/launchpad-claims/src/keyedmutex"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/onemorebsmith/launchpad-claims/src/ratelimit"
	"github.com/onemorebsmith/launchpad-claims/src/staging"
	"go.uber.org/zap"
)

const (
	FlowClaim                = "claim"
	FlowClaimConfirm         = "claim_confirm"
	FlowPresaleClaim         = "presale_claim"
	FlowPresaleClaimConfirm  = "presale_claim_confirm"
	FlowPresaleLaunch        = "presale_launch"
	FlowPresaleLaunchConfirm = "presale_launch_confirm"
	FlowSocialVerification   = "social_verification"
)

type LaunchStore interface {
	// GetTokenLaunch returns nil without error for an unknown token
	GetTokenLaunch(ctx context.Context, tokenAddress string) (*model.TokenLaunch, error)
}

// IdentityVerifier checks a third party credential (an OAuth linked social
// account) against the handles the wallet signed for.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, credential string, walletAddress string, handles model.SocialHandles) (bool, error)
}

type Dependencies struct {
	Oracle            eligibility.EmissionOracle
	Splits            eligibility.SplitStore
	Presale           eligibility.PresaleStore
	Launches          LaunchStore
	ClaimLocks        keyedmutex.Locker
	PresaleLocks      keyedmutex.Locker
	LaunchLocks       keyedmutex.Locker
	VerificationLocks keyedmutex.Locker
	Limiter           ratelimit.Limiter
	Staging           *staging.Staging
	Audit             *audit.Recorder
	Challenges        *challenge.Service
	// nil leaves social verification unavailable
	Identity          IdentityVerifier
}

// Lockers are the four lock namespaces. Claim and presale claim locks are
// keyed by token, verification locks by wallet.
type Lockers struct {
	Claim        keyedmutex.Locker
	Presale      keyedmutex.Locker
	Launch       keyedmutex.Locker
	Verification keyedmutex.Locker
}

func (d Dependencies) WithLocks(l Lockers) Dependencies {
	d.ClaimLocks = l.Claim
	d.PresaleLocks = l.Presale
	d.LaunchLocks = l.Launch
	d.VerificationLocks = l.Verification
	return d
}

// ClientInfo is request metadata carried into audit events.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type Service struct {
	cfg    Config
	deps   Dependencies
	engine *eligibility.Engine
	logger *zap.Logger
	now    func() time.Time
	newKey func() string
}

func NewService(cfg Config, deps Dependencies, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg.WithDefaults(),
		deps:   deps,
		engine: eligibility.NewEngine(deps.Oracle, deps.Splits, deps.Presale, logger),
		logger: logger.Named("claims"),
		now:    time.Now,
		newKey: newStageKey,
	}
}

// LockOptions builds the options for each lock namespace the service uses.
func LockOptions(cfg Config) (claim, presale, launch, verification keyedmutex.Options) {
	cfg = cfg.WithDefaults()
	claim = keyedmutex.Options{Namespace: "claim", MaxHold: cfg.ClaimLockMaxHold.Std()}
	presale = keyedmutex.Options{Namespace: "presale_claim", MaxHold: cfg.ClaimLockMaxHold.Std()}
	launch = keyedmutex.Options{Namespace: "presale_launch", MaxHold: cfg.ClaimLockMaxHold.Std()}
	verification = keyedmutex.Options{Namespace: "verification", MaxHold: cfg.VerificationLockMaxHold.Std()}
	return
}

type auditFields struct {
	flow     string
	token    string
	wallet   string
	handles  model.SocialHandles
	client   ClientInfo
	err      error
	metadata map[string]any
}

func (s *Service) record(eventType model.AuditEventType, f auditFields) {
	if s.deps.Audit == nil {
		return
	}
	event := model.AuditEvent{
		Type:          eventType,
		Flow:          f.flow,
		TokenAddress:  model.StrPtr(f.token),
		WalletAddress: model.StrPtr(f.wallet),
		TwitterHandle: model.StrPtr(f.handles.Twitter),
		GithubHandle:  model.StrPtr(f.handles.Github),
		IPAddress:     model.StrPtr(f.client.IPAddress),
		UserAgent:     model.StrPtr(f.client.UserAgent),
		Metadata:      f.metadata,
	}
	if f.err != nil {
		event.ErrorMessage = model.StrPtr(f.err.Error())
		if event.Metadata == nil {
			event.Metadata = map[string]any{}
		}
		event.Metadata["reason"] = string(Reason(f.err))
	}
	s.deps.Audit.Record(event)
}

// outcome records success or failure for a finished flow
func (s *Service) outcome(f auditFields) {
	if f.err != nil {
		s.record(model.AuditFailure, f)
		return
	}
	s.record(model.AuditSuccess, f)
}

// Shutdown waits for pending audit writes.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.deps.Audit == nil {
		return nil
	}
	return s.deps.Audit.Flush(ctx)
}
