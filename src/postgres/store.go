package postgres

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/onemorebsmith/launchpad-claims/src/model"
)

// Store exposes the package functions as the split, presale and launch
// lookups the claim engine consumes.
type Store struct{}

func (Store) GetWalletSplit(ctx context.Context, tokenAddress, walletAddress string) (*model.EmissionSplit, error) {
	return GetWalletSplit(ctx, tokenAddress, walletAddress)
}

func (Store) GetCreatorWallet(ctx context.Context, tokenAddress string) (string, error) {
	return GetCreatorWallet(ctx, tokenAddress)
}

func (Store) GetAllSplits(ctx context.Context, tokenAddress string) ([]model.EmissionSplit, error) {
	return GetAllSplits(ctx, tokenAddress)
}

func (Store) GetTotalClaimed(ctx context.Context, tokenAddress, walletAddress string) (*uint256.Int, error) {
	return GetTotalClaimed(ctx, tokenAddress, walletAddress)
}

func (Store) GetPresaleAllocation(ctx context.Context, tokenAddress, walletAddress string) (*uint256.Int, error) {
	return GetPresaleAllocation(ctx, tokenAddress, walletAddress)
}

func (Store) GetPresaleClaimed(ctx context.Context, tokenAddress, walletAddress string) (*uint256.Int, error) {
	return GetPresaleClaimed(ctx, tokenAddress, walletAddress)
}

func (Store) GetTokenLaunch(ctx context.Context, tokenAddress string) (*model.TokenLaunch, error) {
	return GetTokenLaunch(ctx, tokenAddress)
}
