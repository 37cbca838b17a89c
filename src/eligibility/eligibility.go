// Package eligibility derives how much of a token's unlocked emissions a wallet
// may withdraw right now. Amounts are smallest-unit integers; no floating point
// touches an amount. Every division truncates and every multiply comes first.
package eligibility

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/onemorebsmith/launchpad-claims/src/metrics"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	claimerNumerator   = 9
	claimerDenominator = 10
	bpsDenominator     = 10000
	creatorSplit       = 100.0
)

type EmissionOracle interface {
	GetGlobalEmissionState(ctx context.Context, tokenAddress string, launchTime time.Time) (*model.GlobalEmissionState, error)
}

// SplitStore reads the split table. GetWalletSplit returns nil without error
// when no row exists; GetCreatorWallet returns "" for an unknown token.
type SplitStore interface {
	GetWalletSplit(ctx context.Context, tokenAddress, walletAddress string) (*model.EmissionSplit, error)
	GetCreatorWallet(ctx context.Context, tokenAddress string) (string, error)
	GetAllSplits(ctx context.Context, tokenAddress string) ([]model.EmissionSplit, error)
	GetTotalClaimed(ctx context.Context, tokenAddress, walletAddress string) (*uint256.Int, error)
}

// PresaleStore reads presale allocations. A nil allocation means the wallet
// did not take part.
type PresaleStore interface {
	GetPresaleAllocation(ctx context.Context, tokenAddress, walletAddress string) (*uint256.Int, error)
	GetPresaleClaimed(ctx context.Context, tokenAddress, walletAddress string) (*uint256.Int, error)
}

type Engine struct {
	oracle  EmissionOracle
	splits  SplitStore
	presale PresaleStore
	logger  *zap.Logger
}

func NewEngine(oracle EmissionOracle, splits SplitStore, presale PresaleStore, logger *zap.Logger) *Engine {
	return &Engine{
		oracle:  oracle,
		splits:  splits,
		presale: presale,
		logger:  logger.With(zap.String("component", "eligibility")),
	}
}

// ComputeWalletEligibility never fails for business reasons: a wallet with no
// share gets a zero amount alongside the populated global figures.
func (e *Engine) ComputeWalletEligibility(ctx context.Context, tokenAddress, walletAddress string, launchTime time.Time) (*model.WalletEligibility, error) {
	global, err := e.oracle.GetGlobalEmissionState(ctx, tokenAddress, launchTime)
	if err != nil {
		metrics.RecordEligibility("error")
		return nil, errors.Wrapf(err, "failed fetching emission state for %s", tokenAddress)
	}
	globalMax := orZero(global.MaxClaimableNow)
	globalAvailable := orZero(global.AvailableToClaim)

	split, err := e.resolveSplit(ctx, tokenAddress, walletAddress)
	if err != nil {
		metrics.RecordEligibility("error")
		return nil, err
	}

	claimed, err := e.splits.GetTotalClaimed(ctx, tokenAddress, walletAddress)
	if err != nil {
		metrics.RecordEligibility("error")
		return nil, errors.Wrapf(err, "failed fetching claimed total for %s/%s", tokenAddress, walletAddress)
	}
	claimed = orZero(claimed)

	result := &model.WalletEligibility{
		TokenAddress:              tokenAddress,
		WalletAddress:             walletAddress,
		AvailableToClaimForWallet: uint256.NewInt(0),
		SplitPercentage:           split,
		AlreadyClaimed:            claimed,
		GlobalAvailable:           globalAvailable,
		GlobalMax:                 globalMax,
	}
	if split == 0 {
		metrics.RecordEligibility("no_split")
		return result, nil
	}

	result.AvailableToClaimForWallet = WalletAmount(globalMax, globalAvailable, claimed, split)
	if result.CanClaim() {
		metrics.RecordEligibility("eligible")
	} else {
		metrics.RecordEligibility("exhausted")
	}
	e.logger.Debug("computed eligibility",
		zap.String("token", tokenAddress),
		zap.String("wallet", walletAddress),
		zap.Float64("split", split),
		zap.String("available", result.AvailableToClaimForWallet.Dec()))
	return result, nil
}

// resolveSplit picks the explicit split when positive. The creator only
// receives the implicit 100% while the token has no split rows at all.
func (e *Engine) resolveSplit(ctx context.Context, tokenAddress, walletAddress string) (float64, error) {
	explicit, err := e.splits.GetWalletSplit(ctx, tokenAddress, walletAddress)
	if err != nil {
		return 0, errors.Wrapf(err, "failed fetching split for %s/%s", tokenAddress, walletAddress)
	}
	if explicit != nil && explicit.SplitPercentage > 0 {
		return explicit.SplitPercentage, nil
	}

	creator, err := e.splits.GetCreatorWallet(ctx, tokenAddress)
	if err != nil {
		return 0, errors.Wrapf(err, "failed fetching creator for %s", tokenAddress)
	}
	// base58 addresses are case sensitive
	if creator == "" || strings.TrimSpace(creator) != strings.TrimSpace(walletAddress) {
		return 0, nil
	}
	all, err := e.splits.GetAllSplits(ctx, tokenAddress)
	if err != nil {
		return 0, errors.Wrapf(err, "failed fetching splits for %s", tokenAddress)
	}
	if len(all) == 0 {
		return creatorSplit, nil
	}
	return 0, nil
}

// SplitBasisPoints scales a one-decimal percentage to an integer out of 10000.
func SplitBasisPoints(split float64) uint64 {
	if split <= 0 || math.IsNaN(split) {
		return 0
	}
	bps := math.Round(split * 100)
	if bps > bpsDenominator {
		return bpsDenominator
	}
	return uint64(bps)
}

// WalletAmount is the claimable amount for a wallet holding split percent of
// the claimer side emissions:
//
//	min(max(0, max*9/10*bps/10000 - claimed), available*9/10*bps/10000)
func WalletAmount(globalMax, globalAvailable, claimed *uint256.Int, split float64) *uint256.Int {
	bps := uint256.NewInt(SplitBasisPoints(split))
	if bps.IsZero() {
		return uint256.NewInt(0)
	}

	walletMax := share(globalMax, bps)
	available := new(uint256.Int)
	if walletMax.Gt(claimed) {
		available.Sub(walletMax, claimed)
	}

	shareOfAvailable := share(globalAvailable, bps)
	if shareOfAvailable.Lt(available) {
		return shareOfAvailable
	}
	return available
}

// share is floor(floor(amount*9/10)*bps/10000). MulDivOverflow keeps a 512 bit
// intermediate and neither quotient can exceed its input.
func share(amount, bps *uint256.Int) *uint256.Int {
	claimers, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(claimerNumerator), uint256.NewInt(claimerDenominator))
	out, _ := new(uint256.Int).MulDivOverflow(claimers, bps, uint256.NewInt(bpsDenominator))
	return out
}

// ComputePresaleEligibility is max(0, allocation - claimed). Wallets outside
// the presale get zero.
func (e *Engine) ComputePresaleEligibility(ctx context.Context, tokenAddress, walletAddress string) (*model.PresaleEligibility, error) {
	if e.presale == nil {
		return nil, errors.New("presale store not configured")
	}
	allocation, err := e.presale.GetPresaleAllocation(ctx, tokenAddress, walletAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching presale allocation for %s/%s", tokenAddress, walletAddress)
	}
	claimed, err := e.presale.GetPresaleClaimed(ctx, tokenAddress, walletAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching presale claimed for %s/%s", tokenAddress, walletAddress)
	}
	allocation, claimed = orZero(allocation), orZero(claimed)

	available := new(uint256.Int)
	if allocation.Gt(claimed) {
		available.Sub(allocation, claimed)
	}
	return &model.PresaleEligibility{
		TokenAddress:     tokenAddress,
		WalletAddress:    walletAddress,
		Allocation:       allocation,
		AlreadyClaimed:   claimed,
		AvailableToClaim: available,
	}, nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(v)
}
