package model

import (
	"time"

	"github.com/holiman/uint256"
)

type StageNamespace string

const (
	StageClaim         StageNamespace = "claim"
	StagePresaleClaim  StageNamespace = "presale_claim"
	StagePresaleLaunch StageNamespace = "presale_launch"
)

// Staged - a prepared transaction awaiting external confirmation
type Staged[T any] struct {
	Key       string    `json:"key"`
	Payload   T         `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the record has outlived ttl at now. Age equal to ttl is still live.
func (s *Staged[T]) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

type ClaimTransaction struct {
	TokenAddress  string            `json:"tokenAddress"`
	WalletAddress string            `json:"walletAddress"`
	Amount        *uint256.Int      `json:"amount"`
	Eligibility   WalletEligibility `json:"eligibility"`
}

type PresaleClaimTransaction struct {
	TokenAddress  string             `json:"tokenAddress"`
	WalletAddress string             `json:"walletAddress"`
	Amount        *uint256.Int       `json:"amount"`
	Eligibility   PresaleEligibility `json:"eligibility"`
}

type PresaleLaunchTransaction struct {
	TokenAddress  string          `json:"tokenAddress"`
	CreatorWallet string          `json:"creatorWallet"`
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol"`
	TotalRaised   *uint256.Int    `json:"totalRaised"`
	Contributors  []EmissionSplit `json:"contributors"`
}
