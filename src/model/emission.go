package model

import (
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// EmissionSplit - share of the claimer side emissions routed to one wallet for one token.
// SplitPercentage is 0-100 with one decimal of precision (33.3).
type EmissionSplit struct {
	TokenAddress    string
	WalletAddress   string
	SplitPercentage float64
}

// GlobalEmissionState - oracle snapshot for a token, in the token's smallest unit.
// AvailableToClaim never exceeds MaxClaimableNow.
type GlobalEmissionState struct {
	MaxClaimableNow  *uint256.Int `json:"maxClaimableNow"`
	AvailableToClaim *uint256.Int `json:"availableToClaim"`
}

// TokenLaunch - the subset of a launch record the claim engine needs
type TokenLaunch struct {
	TokenAddress  string
	CreatorWallet string
	LaunchTime    time.Time
}

type WalletEligibility struct {
	TokenAddress              string       `json:"tokenAddress"`
	WalletAddress             string       `json:"walletAddress"`
	AvailableToClaimForWallet *uint256.Int `json:"availableToClaimForWallet"`
	SplitPercentage           float64      `json:"splitPercentage"`
	AlreadyClaimed            *uint256.Int `json:"alreadyClaimed"`
	GlobalAvailable           *uint256.Int `json:"globalAvailable"`
	GlobalMax                 *uint256.Int `json:"globalMax"`
}

// CanClaim is true when there is a non-zero amount to withdraw
func (we *WalletEligibility) CanClaim() bool {
	return we.AvailableToClaimForWallet != nil && !we.AvailableToClaimForWallet.IsZero()
}

type PresaleEligibility struct {
	TokenAddress     string       `json:"tokenAddress"`
	WalletAddress    string       `json:"walletAddress"`
	Allocation       *uint256.Int `json:"allocation"`
	AlreadyClaimed   *uint256.Int `json:"alreadyClaimed"`
	AvailableToClaim *uint256.Int `json:"availableToClaim"`
}

// NormalizeKey is the case-folded form every lock and rate-limit key goes through.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
