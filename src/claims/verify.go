package claims

import (
	"context"
	"strings"
	"time"

	"github.com/onemorebsmith/launchpad-claims/src/challenge"
	"github.com/onemorebsmith/launchpad-claims/src/keyedmutex"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/onemorebsmith/launchpad-claims/src/ratelimit"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type VerifyRequest struct {
	WalletAddress string
	Message       string
	Signature     string
	// credential from the identity provider, e.g. an OAuth access token
	Credential    string
	Client        ClientInfo
}

type VerificationResult struct {
	WalletAddress string
	Handles       model.SocialHandles
	Nonce         string
	VerifiedAt    time.Time
}

// IssueChallenge returns a fresh message for the wallet to sign.
func (s *Service) IssueChallenge(_ context.Context, walletAddress string, handles model.SocialHandles) (*model.Challenge, error) {
	if s.deps.Challenges == nil {
		return nil, errors.Wrap(ErrConfiguration, "challenge service not initialized")
	}
	c, err := s.deps.Challenges.Generate(walletAddress, handles)
	if errors.Is(err, challenge.ErrMalformed) {
		return nil, errors.Wrap(ErrInvalidRequest, err.Error())
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// VerifySocial proves wallet ownership through a signed challenge and checks
// the linked social handles with the identity provider. Attempts are limited
// per wallet and per client IP.
func (s *Service) VerifySocial(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	fields := auditFields{flow: FlowSocialVerification, wallet: req.WalletAddress, client: req.Client}
	if s.deps.Identity == nil || s.deps.Challenges == nil {
		err := errors.Wrap(ErrConfiguration, "identity verification not initialized")
		fields.err = err
		s.outcome(fields)
		return nil, err
	}
	if req.WalletAddress == "" || req.Message == "" || req.Signature == "" {
		err := errors.Wrap(ErrInvalidRequest, "wallet, message and signature required")
		fields.err = err
		s.outcome(fields)
		return nil, err
	}

	if err := s.checkRate(ctx, fields); err != nil {
		return nil, err
	}
	s.record(model.AuditAttempt, fields)

	var result *VerificationResult
	err := keyedmutex.WithLock(ctx, s.deps.VerificationLocks, req.WalletAddress, func(ctx context.Context) error {
		parsed, err := s.deps.Challenges.VerifyChallenge(req.Message, req.Signature, req.WalletAddress)
		if parsed != nil {
			fields.handles = parsed.Handles
		}
		if err != nil {
			return errors.Wrap(ErrAuthentication, err.Error())
		}
		ok, err := s.deps.Identity.VerifyIdentity(ctx, req.Credential, req.WalletAddress, parsed.Handles)
		if err != nil {
			return errors.Wrap(err, "identity provider failed")
		}
		if !ok {
			return errors.Wrap(ErrAuthentication, "identity provider rejected credential")
		}
		result = &VerificationResult{
			WalletAddress: req.WalletAddress,
			Handles:       parsed.Handles,
			Nonce:         parsed.Nonce,
			VerifiedAt:    s.now().UTC(),
		}
		return nil
	})

	fields.err = err
	if result != nil {
		fields.metadata = map[string]any{"nonce": result.Nonce}
		s.logger.Info("verified wallet",
			zap.String("wallet", result.WalletAddress),
			zap.String("twitter", result.Handles.Twitter),
			zap.String("github", result.Handles.Github))
	}
	s.outcome(fields)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkRate counts the attempt against the wallet and the client IP together.
// When either window is exhausted neither is charged, and the blocked
// identifier is audited.
func (s *Service) checkRate(ctx context.Context, fields auditFields) error {
	identifiers := []string{ratelimit.Identifier("verify", "wallet", fields.wallet)}
	if fields.client.IPAddress != "" {
		identifiers = append(identifiers, ratelimit.Identifier("verify", "ip", fields.client.IPAddress))
	}
	blocked, err := s.deps.Limiter.CheckAll(ctx, identifiers, s.cfg.VerificationMaxAttempts, s.cfg.VerificationWindow.Std())
	if err != nil {
		err = errors.Wrap(err, "rate limiter unavailable")
		fields.err = err
		s.outcome(fields)
		return err
	}
	if blocked != "" {
		err := errors.Wrapf(ErrRateLimited, "limit of %d attempts per %s reached",
			s.cfg.VerificationMaxAttempts, s.cfg.VerificationWindow.Std())
		fields.err = err
		fields.metadata = map[string]any{"identifier": blocked}
		s.record(model.AuditRateLimitExceeded, fields)
		return err
	}
	return nil
}
