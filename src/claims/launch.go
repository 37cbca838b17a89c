package claims

import (
	"context"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/onemorebsmith/launchpad-claims/src/eligibility"
	"github.com/onemorebsmith/launchpad-claims/src/keyedmutex"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
)

type PresaleLaunchRequest struct {
	TokenAddress  string
	CreatorWallet string
	Name          string
	Symbol        string
	TotalRaised   *uint256.Int
	Contributors  []model.EmissionSplit
	Client        ClientInfo
}

type PreparedLaunch struct {
	StageKey    string
	Transaction model.PresaleLaunchTransaction
	ExpiresAt   time.Time
}

func (r *PresaleLaunchRequest) validate() error {
	r.TokenAddress = strings.TrimSpace(r.TokenAddress)
	r.CreatorWallet = strings.TrimSpace(r.CreatorWallet)
	r.Name = strings.TrimSpace(r.Name)
	r.Symbol = strings.TrimSpace(r.Symbol)
	if r.TokenAddress == "" || r.CreatorWallet == "" {
		return errors.Wrap(ErrInvalidRequest, "token and creator wallet required")
	}
	if r.Name == "" || r.Symbol == "" {
		return errors.Wrap(ErrInvalidRequest, "name and symbol required")
	}
	if r.TotalRaised == nil {
		r.TotalRaised = uint256.NewInt(0)
	}
	// sum in basis points so 33.3 + 66.7 lands on exactly 10000
	total := uint64(0)
	seen := map[string]bool{}
	for i, c := range r.Contributors {
		wallet := strings.TrimSpace(c.WalletAddress)
		if wallet == "" {
			return errors.Wrapf(ErrInvalidRequest, "contributor %d has no wallet", i)
		}
		if seen[wallet] {
			return errors.Wrapf(ErrInvalidRequest, "contributor %s listed twice", wallet)
		}
		seen[wallet] = true
		if c.SplitPercentage <= 0 || c.SplitPercentage > 100 {
			return errors.Wrapf(ErrInvalidRequest, "contributor %s split %v out of range", wallet, c.SplitPercentage)
		}
		total += eligibility.SplitBasisPoints(c.SplitPercentage)
		r.Contributors[i].TokenAddress = r.TokenAddress
		r.Contributors[i].WalletAddress = wallet
	}
	if total > 10000 {
		return errors.Wrapf(ErrInvalidRequest, "contributor splits sum to %.2f%%", float64(total)/100)
	}
	return nil
}

// StagePresaleLaunch holds the launch parameters for a token that has not
// launched yet until the creator confirms the on-chain launch.
func (s *Service) StagePresaleLaunch(ctx context.Context, req PresaleLaunchRequest) (*PreparedLaunch, error) {
	fields := auditFields{flow: FlowPresaleLaunch, token: req.TokenAddress, wallet: req.CreatorWallet, client: req.Client}
	if err := req.validate(); err != nil {
		fields.err = err
		s.outcome(fields)
		return nil, err
	}
	s.record(model.AuditAttempt, fields)

	var prepared *PreparedLaunch
	err := keyedmutex.WithLock(ctx, s.deps.LaunchLocks, req.TokenAddress, func(ctx context.Context) error {
		existing, err := s.deps.Launches.GetTokenLaunch(ctx, req.TokenAddress)
		if err != nil {
			return errors.Wrapf(err, "failed fetching launch for %s", req.TokenAddress)
		}
		if existing != nil {
			return errors.Wrapf(ErrInvalidRequest, "token %s already launched", req.TokenAddress)
		}
		tx := model.PresaleLaunchTransaction{
			TokenAddress:  req.TokenAddress,
			CreatorWallet: req.CreatorWallet,
			Name:          req.Name,
			Symbol:        req.Symbol,
			TotalRaised:   req.TotalRaised,
			Contributors:  req.Contributors,
		}
		staged, err := s.deps.Staging.PresaleLaunches.Put(ctx, s.newKey(), tx)
		if err != nil {
			return err
		}
		prepared = &PreparedLaunch{
			StageKey:    staged.Key,
			Transaction: staged.Payload,
			ExpiresAt:   staged.CreatedAt.Add(s.cfg.StageTTL.Std()),
		}
		return nil
	})

	fields.err = err
	if prepared != nil {
		fields.metadata = map[string]any{
			"stage_key":    prepared.StageKey,
			"total_raised": prepared.Transaction.TotalRaised.Dec(),
			"contributors": len(prepared.Transaction.Contributors),
		}
	}
	s.outcome(fields)
	if err != nil {
		return nil, err
	}
	return prepared, nil
}

func (s *Service) ConfirmPresaleLaunch(ctx context.Context, stageKey, creatorWallet string, client ClientInfo) (*model.PresaleLaunchTransaction, error) {
	fields := auditFields{flow: FlowPresaleLaunchConfirm, wallet: creatorWallet, client: client}
	staged, err := s.deps.Staging.PresaleLaunches.Get(ctx, stageKey)
	if err == nil && staged == nil {
		err = errors.Wrapf(ErrNotFound, "no staged launch %s", stageKey)
	}
	if err == nil {
		fields.token = staged.Payload.TokenAddress
		err = s.checkOwner(staged.Payload.CreatorWallet, creatorWallet)
	}
	if err == nil {
		err = s.remove(ctx, s.deps.Staging.PresaleLaunches.Delete, stageKey)
	}
	fields.err = err
	s.outcome(fields)
	if err != nil {
		return nil, err
	}
	return &staged.Payload, nil
}
