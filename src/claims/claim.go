package claims

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onemorebsmith/launchpad-claims/src/keyedmutex"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ClaimRequest struct {
	TokenAddress  string
	WalletAddress string
	Client        ClientInfo
}

type PreparedClaim struct {
	StageKey    string
	Transaction model.ClaimTransaction
	ExpiresAt   time.Time
}

type PreparedPresaleClaim struct {
	StageKey    string
	Transaction model.PresaleClaimTransaction
	ExpiresAt   time.Time
}

func newStageKey() string {
	return uuid.NewString()
}

func (r *ClaimRequest) validate() error {
	r.TokenAddress = strings.TrimSpace(r.TokenAddress)
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
	if r.TokenAddress == "" || r.WalletAddress == "" {
		return errors.Wrap(ErrInvalidRequest, "token and wallet address required")
	}
	return nil
}

func (s *Service) launch(ctx context.Context, tokenAddress string) (*model.TokenLaunch, error) {
	launch, err := s.deps.Launches.GetTokenLaunch(ctx, tokenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching launch for %s", tokenAddress)
	}
	if launch == nil {
		return nil, errors.Wrapf(ErrNotFound, "token %s has not launched", tokenAddress)
	}
	return launch, nil
}

// GetEligibility computes what a wallet could claim right now without taking
// a lock or staging anything.
func (s *Service) GetEligibility(ctx context.Context, tokenAddress, walletAddress string) (*model.WalletEligibility, error) {
	req := ClaimRequest{TokenAddress: tokenAddress, WalletAddress: walletAddress}
	if err := req.validate(); err != nil {
		return nil, err
	}
	launch, err := s.launch(ctx, req.TokenAddress)
	if err != nil {
		return nil, err
	}
	return s.engine.ComputeWalletEligibility(ctx, req.TokenAddress, req.WalletAddress, launch.LaunchTime)
}

// PrepareClaim computes eligibility under the token's claim lock and stages a
// transaction for the full available amount. At most one of these runs per
// token at a time.
func (s *Service) PrepareClaim(ctx context.Context, req ClaimRequest) (*PreparedClaim, error) {
	fields := auditFields{flow: FlowClaim, token: req.TokenAddress, wallet: req.WalletAddress, client: req.Client}
	if err := req.validate(); err != nil {
		fields.err = err
		s.outcome(fields)
		return nil, err
	}
	s.record(model.AuditAttempt, fields)

	var prepared *PreparedClaim
	err := keyedmutex.WithLock(ctx, s.deps.ClaimLocks, req.TokenAddress, func(ctx context.Context) error {
		launch, err := s.launch(ctx, req.TokenAddress)
		if err != nil {
			return err
		}
		elig, err := s.engine.ComputeWalletEligibility(ctx, req.TokenAddress, req.WalletAddress, launch.LaunchTime)
		if err != nil {
			return err
		}
		if !elig.CanClaim() {
			return errors.Wrapf(ErrNothingToClaim, "wallet %s has nothing to claim for %s", req.WalletAddress, req.TokenAddress)
		}
		tx := model.ClaimTransaction{
			TokenAddress:  req.TokenAddress,
			WalletAddress: req.WalletAddress,
			Amount:        elig.AvailableToClaimForWallet,
			Eligibility:   *elig,
		}
		staged, err := s.deps.Staging.Claims.Put(ctx, s.newKey(), tx)
		if err != nil {
			return err
		}
		prepared = &PreparedClaim{
			StageKey:    staged.Key,
			Transaction: staged.Payload,
			ExpiresAt:   staged.CreatedAt.Add(s.cfg.StageTTL.Std()),
		}
		return nil
	})

	fields.err = err
	if prepared != nil {
		fields.metadata = map[string]any{"amount": prepared.Transaction.Amount.Dec(), "stage_key": prepared.StageKey}
		s.logger.Info("staged claim",
			zap.String("token", req.TokenAddress),
			zap.String("wallet", req.WalletAddress),
			zap.String("amount", prepared.Transaction.Amount.Dec()))
	}
	s.outcome(fields)
	if err != nil {
		return nil, err
	}
	return prepared, nil
}

// ConfirmClaim hands back the staged claim and drops it from staging. The
// debit itself happens wherever the transaction lands.
func (s *Service) ConfirmClaim(ctx context.Context, stageKey, walletAddress string, client ClientInfo) (*model.ClaimTransaction, error) {
	fields := auditFields{flow: FlowClaimConfirm, wallet: walletAddress, client: client}
	staged, err := s.deps.Staging.Claims.Get(ctx, stageKey)
	if err == nil && staged == nil {
		err = errors.Wrapf(ErrNotFound, "no staged claim %s", stageKey)
	}
	if err == nil {
		fields.token = staged.Payload.TokenAddress
		err = s.checkOwner(staged.Payload.WalletAddress, walletAddress)
	}
	if err == nil {
		err = s.remove(ctx, s.deps.Staging.Claims.Delete, stageKey)
	}
	fields.err = err
	s.outcome(fields)
	if err != nil {
		return nil, err
	}
	return &staged.Payload, nil
}

// PreparePresaleClaim mirrors PrepareClaim against presale allocations. It has
// its own lock namespace so it never waits on a regular claim for the token.
func (s *Service) PreparePresaleClaim(ctx context.Context, req ClaimRequest) (*PreparedPresaleClaim, error) {
	fields := auditFields{flow: FlowPresaleClaim, token: req.TokenAddress, wallet: req.WalletAddress, client: req.Client}
	if err := req.validate(); err != nil {
		fields.err = err
		s.outcome(fields)
		return nil, err
	}
	s.record(model.AuditAttempt, fields)

	var prepared *PreparedPresaleClaim
	err := keyedmutex.WithLock(ctx, s.deps.PresaleLocks, req.TokenAddress, func(ctx context.Context) error {
		elig, err := s.engine.ComputePresaleEligibility(ctx, req.TokenAddress, req.WalletAddress)
		if err != nil {
			return err
		}
		if elig.AvailableToClaim.IsZero() {
			return errors.Wrapf(ErrNothingToClaim, "wallet %s has no presale balance for %s", req.WalletAddress, req.TokenAddress)
		}
		tx := model.PresaleClaimTransaction{
			TokenAddress:  req.TokenAddress,
			WalletAddress: req.WalletAddress,
			Amount:        elig.AvailableToClaim,
			Eligibility:   *elig,
		}
		staged, err := s.deps.Staging.PresaleClaims.Put(ctx, s.newKey(), tx)
		if err != nil {
			return err
		}
		prepared = &PreparedPresaleClaim{
			StageKey:    staged.Key,
			Transaction: staged.Payload,
			ExpiresAt:   staged.CreatedAt.Add(s.cfg.StageTTL.Std()),
		}
		return nil
	})

	fields.err = err
	if prepared != nil {
		fields.metadata = map[string]any{"amount": prepared.Transaction.Amount.Dec(), "stage_key": prepared.StageKey}
	}
	s.outcome(fields)
	if err != nil {
		return nil, err
	}
	return prepared, nil
}

func (s *Service) ConfirmPresaleClaim(ctx context.Context, stageKey, walletAddress string, client ClientInfo) (*model.PresaleClaimTransaction, error) {
	fields := auditFields{flow: FlowPresaleClaimConfirm, wallet: walletAddress, client: client}
	staged, err := s.deps.Staging.PresaleClaims.Get(ctx, stageKey)
	if err == nil && staged == nil {
		err = errors.Wrapf(ErrNotFound, "no staged presale claim %s", stageKey)
	}
	if err == nil {
		fields.token = staged.Payload.TokenAddress
		err = s.checkOwner(staged.Payload.WalletAddress, walletAddress)
	}
	if err == nil {
		err = s.remove(ctx, s.deps.Staging.PresaleClaims.Delete, stageKey)
	}
	fields.err = err
	s.outcome(fields)
	if err != nil {
		return nil, err
	}
	return &staged.Payload, nil
}

func (s *Service) checkOwner(stagedFor, caller string) error {
	if strings.TrimSpace(caller) != stagedFor {
		return errors.Wrap(ErrAuthentication, "staged transaction belongs to another wallet")
	}
	return nil
}

// remove deletes a staged record; losing a race with the sweeper reads as not found
func (s *Service) remove(ctx context.Context, del func(ctx context.Context, key string) (bool, error), key string) error {
	deleted, err := del(ctx, key)
	if err != nil {
		return err
	}
	if !deleted {
		return errors.Wrapf(ErrNotFound, "staged transaction %s already gone", key)
	}
	return nil
}
