package postgres

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// GetPresaleAllocation returns nil when the wallet has no allocation row
func GetPresaleAllocation(ctx context.Context, tokenAddress, walletAddress string) (*uint256.Int, error) {
	var allocation *uint256.Int
	return allocation, DoQuery(ctx, func(conn *pgx.Conn) error {
		var raw string
		err := conn.QueryRow(ctx,
			`SELECT allocation::text FROM presale_allocations WHERE token_address = $1 AND wallet_address = $2`,
			tokenAddress, walletAddress).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "failed fetching presale allocation for %s/%s", tokenAddress, walletAddress)
		}
		parsed, err := uint256.FromDecimal(raw)
		if err != nil {
			return errors.Wrapf(err, "allocation %q does not fit uint256", raw)
		}
		allocation = parsed
		return nil
	})
}

func GetPresaleClaimed(ctx context.Context, tokenAddress, walletAddress string) (*uint256.Int, error) {
	return sumAmount(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM presale_claims WHERE token_address = $1 AND wallet_address = $2`,
		tokenAddress, walletAddress)
}
