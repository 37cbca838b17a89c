package postgres

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
)

func GetTokenLaunch(ctx context.Context, tokenAddress string) (*model.TokenLaunch, error) {
	var launch *model.TokenLaunch
	return launch, DoQuery(ctx, func(conn *pgx.Conn) error {
		found := &model.TokenLaunch{}
		err := conn.QueryRow(ctx,
			`SELECT token_address, creator_wallet, launch_time FROM token_launches WHERE token_address = $1`,
			tokenAddress).Scan(&found.TokenAddress, &found.CreatorWallet, &found.LaunchTime)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "failed fetching launch for %s", tokenAddress)
		}
		launch = found
		return nil
	})
}

func GetCreatorWallet(ctx context.Context, tokenAddress string) (string, error) {
	launch, err := GetTokenLaunch(ctx, tokenAddress)
	if err != nil || launch == nil {
		return "", err
	}
	return launch.CreatorWallet, nil
}

func GetWalletSplit(ctx context.Context, tokenAddress, walletAddress string) (*model.EmissionSplit, error) {
	var split *model.EmissionSplit
	return split, DoQuery(ctx, func(conn *pgx.Conn) error {
		var pct float64
		err := conn.QueryRow(ctx,
			`SELECT split_percentage::float8 FROM emission_splits WHERE token_address = $1 AND wallet_address = $2`,
			tokenAddress, walletAddress).Scan(&pct)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "failed fetching split for %s/%s", tokenAddress, walletAddress)
		}
		split = &model.EmissionSplit{TokenAddress: tokenAddress, WalletAddress: walletAddress, SplitPercentage: pct}
		return nil
	})
}

func GetAllSplits(ctx context.Context, tokenAddress string) ([]model.EmissionSplit, error) {
	var splits []model.EmissionSplit
	return splits, DoQuery(ctx, func(conn *pgx.Conn) error {
		cur, err := conn.Query(ctx,
			`SELECT wallet_address, split_percentage::float8 FROM emission_splits
				WHERE token_address = $1 ORDER BY wallet_address`, tokenAddress)
		if err != nil {
			return errors.Wrapf(err, "failed fetching splits for %s", tokenAddress)
		}
		defer cur.Close()
		for cur.Next() {
			split := model.EmissionSplit{TokenAddress: tokenAddress}
			if err := cur.Scan(&split.WalletAddress, &split.SplitPercentage); err != nil {
				return errors.Wrap(err, "failed scanning split row")
			}
			splits = append(splits, split)
		}
		return cur.Err()
	})
}

func GetTotalClaimed(ctx context.Context, tokenAddress, walletAddress string) (*uint256.Int, error) {
	return sumAmount(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM claims WHERE token_address = $1 AND wallet_address = $2`,
		tokenAddress, walletAddress)
}

func sumAmount(ctx context.Context, query string, args ...any) (*uint256.Int, error) {
	var total *uint256.Int
	return total, DoQuery(ctx, func(conn *pgx.Conn) error {
		var raw string
		if err := conn.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
			return errors.Wrap(err, "failed summing amounts")
		}
		parsed, err := uint256.FromDecimal(raw)
		if err != nil {
			return errors.Wrapf(err, "amount %q does not fit uint256", raw)
		}
		total = parsed
		return nil
	})
}
