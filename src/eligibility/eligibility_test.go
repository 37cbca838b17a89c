package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"
	"github.com/onemorebsmith/launchpad-claims/src/common"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var logger = common.ConfigureZap(zap.DebugLevel)

const (
	token   = "TokenMint111"
	creator = "CreatorWa11et"
	wallet  = "HolderWa11et"
)

type fakeOracle struct {
	state *model.GlobalEmissionState
	err   error
	calls int
}

func (f *fakeOracle) GetGlobalEmissionState(_ context.Context, _ string, _ time.Time) (*model.GlobalEmissionState, error) {
	f.calls++
	return f.state, f.err
}

type fakeSplits struct {
	creator string
	splits  []model.EmissionSplit
	claimed map[string]*uint256.Int
}

func (f *fakeSplits) GetWalletSplit(_ context.Context, token, wallet string) (*model.EmissionSplit, error) {
	for i := range f.splits {
		if f.splits[i].TokenAddress == token && f.splits[i].WalletAddress == wallet {
			return &f.splits[i], nil
		}
	}
	return nil, nil
}

func (f *fakeSplits) GetCreatorWallet(_ context.Context, _ string) (string, error) {
	return f.creator, nil
}

func (f *fakeSplits) GetAllSplits(_ context.Context, _ string) ([]model.EmissionSplit, error) {
	return f.splits, nil
}

func (f *fakeSplits) GetTotalClaimed(_ context.Context, _, wallet string) (*uint256.Int, error) {
	return f.claimed[wallet], nil
}

type fakePresale struct {
	allocation map[string]*uint256.Int
	claimed    map[string]*uint256.Int
}

func (f *fakePresale) GetPresaleAllocation(_ context.Context, _, wallet string) (*uint256.Int, error) {
	return f.allocation[wallet], nil
}

func (f *fakePresale) GetPresaleClaimed(_ context.Context, _, wallet string) (*uint256.Int, error) {
	return f.claimed[wallet], nil
}

func state(max, available uint64) *model.GlobalEmissionState {
	return &model.GlobalEmissionState{
		MaxClaimableNow:  uint256.NewInt(max),
		AvailableToClaim: uint256.NewInt(available),
	}
}

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func TestExampleSplit(t *testing.T) {
	splits := &fakeSplits{
		creator: creator,
		splits:  []model.EmissionSplit{{TokenAddress: token, WalletAddress: wallet, SplitPercentage: 33.3}},
	}
	engine := NewEngine(&fakeOracle{state: state(1_000_000, 1_000_000)}, splits, nil, logger)
	res, err := engine.ComputeWalletEligibility(context.Background(), token, wallet, time.Now())
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	expected := &model.WalletEligibility{
		TokenAddress:              token,
		WalletAddress:             wallet,
		AvailableToClaimForWallet: u(299_700),
		SplitPercentage:           33.3,
		AlreadyClaimed:            u(0),
		GlobalAvailable:           u(1_000_000),
		GlobalMax:                 u(1_000_000),
	}
	if d := cmp.Diff(expected, res); d != "" {
		t.Fatalf("eligibility mismatch: %s", d)
	}
}

func TestCreatorSplitResolution(t *testing.T) {
	oracle := &fakeOracle{state: state(1000, 1000)}
	splits := &fakeSplits{creator: creator}
	engine := NewEngine(oracle, splits, nil, logger)
	ctx := context.Background()

	res, err := engine.ComputeWalletEligibility(ctx, token, creator, time.Now())
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	if res.SplitPercentage != 100 {
		t.Fatalf("expected creator to hold 100%%, got %v", res.SplitPercentage)
	}
	if !res.AvailableToClaimForWallet.Eq(u(900)) {
		t.Fatalf("expected 900, got %s", res.AvailableToClaimForWallet.Dec())
	}

	// any split row revokes the implicit creator share
	splits.splits = []model.EmissionSplit{{TokenAddress: token, WalletAddress: wallet, SplitPercentage: 50}}
	res, err = engine.ComputeWalletEligibility(ctx, token, creator, time.Now())
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	if res.SplitPercentage != 0 || res.CanClaim() {
		t.Fatalf("expected creator to hold nothing, got %+v", res)
	}
	if !res.GlobalMax.Eq(u(1000)) || !res.GlobalAvailable.Eq(u(1000)) {
		t.Fatalf("global figures missing on zero result: %+v", res)
	}

	// an explicit zero row is the same as no row
	splits.splits = append(splits.splits, model.EmissionSplit{TokenAddress: token, WalletAddress: creator, SplitPercentage: 0})
	res, err = engine.ComputeWalletEligibility(ctx, token, creator, time.Now())
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	if res.SplitPercentage != 0 {
		t.Fatalf("expected 0 split, got %v", res.SplitPercentage)
	}

	splits.splits[1].SplitPercentage = 10
	res, err = engine.ComputeWalletEligibility(ctx, token, creator, time.Now())
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	if res.SplitPercentage != 10 || !res.AvailableToClaimForWallet.Eq(u(90)) {
		t.Fatalf("expected explicit creator split, got %+v", res)
	}
}

func TestNonCreatorWithoutSplit(t *testing.T) {
	engine := NewEngine(&fakeOracle{state: state(1000, 1000)}, &fakeSplits{creator: creator}, nil, logger)
	res, err := engine.ComputeWalletEligibility(context.Background(), token, wallet, time.Now())
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	if res.SplitPercentage != 0 || res.CanClaim() {
		t.Fatalf("expected nothing, got %+v", res)
	}
}

func TestCreatorMatchIsCaseSensitive(t *testing.T) {
	engine := NewEngine(&fakeOracle{state: state(1000, 1000)}, &fakeSplits{creator: creator}, nil, logger)
	res, err := engine.ComputeWalletEligibility(context.Background(), token, "creatorwa11et", time.Now())
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	if res.SplitPercentage != 0 {
		t.Fatalf("expected differently cased address to be a stranger, got %v", res.SplitPercentage)
	}
}

func TestWalletAmount(t *testing.T) {
	tests := []struct {
		name      string
		max       uint64
		available uint64
		claimed   uint64
		split     float64
		expected  uint64
	}{
		{"example", 1_000_000, 1_000_000, 0, 33.3, 299_700},
		{"lifetime cap binds", 1_000_000, 1_000_000, 299_000, 33.3, 700},
		{"claimed past allocation", 1_000_000, 1_000_000, 400_000, 33.3, 0},
		{"current pool binds", 1_000_000, 100_000, 0, 50, 45_000},
		{"truncates", 7, 7, 0, 33.3, 1},
		{"zero split", 1000, 1000, 0, 0, 0},
		{"negative split", 1000, 1000, 0, -5, 0},
		{"over 100 clamps", 1000, 1000, 0, 150, 900},
		{"empty pool", 0, 0, 0, 100, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := WalletAmount(u(tc.max), u(tc.available), u(tc.claimed), tc.split)
			if !got.Eq(u(tc.expected)) {
				t.Fatalf("expected %d, got %s", tc.expected, got.Dec())
			}
		})
	}
}

func TestWalletAmountNeverExceedsAvailable(t *testing.T) {
	for _, split := range []float64{0.1, 1, 12.5, 33.3, 50, 99.9, 100} {
		for _, available := range []uint64{0, 1, 9, 10, 11, 999, 123_456_789} {
			for _, claimed := range []uint64{0, 1, 500, 1_000_000} {
				got := WalletAmount(u(1_000_000_000), u(available), u(claimed), split)
				if got.Gt(u(available)) {
					t.Fatalf("split %v available %d claimed %d gave %s", split, available, claimed, got.Dec())
				}
			}
		}
	}
}

func TestWalletAmountLargeValues(t *testing.T) {
	max := new(uint256.Int).Not(uint256.NewInt(0)) // 2^256-1
	got := WalletAmount(max, max, u(0), 100)
	expected, _ := new(uint256.Int).MulDivOverflow(max, u(9), u(10))
	if !got.Eq(expected) {
		t.Fatalf("expected %s, got %s", expected.Dec(), got.Dec())
	}
}

func TestSplitBasisPoints(t *testing.T) {
	for split, expected := range map[float64]uint64{
		33.3:  3330,
		0.1:   10,
		12.35: 1235,
		100:   10000,
		0:     0,
	} {
		if got := SplitBasisPoints(split); got != expected {
			t.Fatalf("%v: expected %d, got %d", split, expected, got)
		}
	}
}

func TestIdempotent(t *testing.T) {
	splits := &fakeSplits{
		creator: creator,
		splits:  []model.EmissionSplit{{TokenAddress: token, WalletAddress: wallet, SplitPercentage: 12.5}},
		claimed: map[string]*uint256.Int{wallet: u(10)},
	}
	engine := NewEngine(&fakeOracle{state: state(5000, 3000)}, splits, nil, logger)
	first, err := engine.ComputeWalletEligibility(context.Background(), token, wallet, time.Now())
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	second, err := engine.ComputeWalletEligibility(context.Background(), token, wallet, time.Now())
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	if d := cmp.Diff(first, second); d != "" {
		t.Fatalf("results differ: %s", d)
	}
}

func TestOracleFailurePropagates(t *testing.T) {
	boom := errors.New("indexer down")
	engine := NewEngine(&fakeOracle{err: boom}, &fakeSplits{}, nil, logger)
	if _, err := engine.ComputeWalletEligibility(context.Background(), token, wallet, time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected oracle error, got %v", err)
	}
}

func TestPresaleEligibility(t *testing.T) {
	presale := &fakePresale{
		allocation: map[string]*uint256.Int{wallet: u(1000), creator: u(100)},
		claimed:    map[string]*uint256.Int{wallet: u(250), creator: u(150)},
	}
	engine := NewEngine(&fakeOracle{}, &fakeSplits{}, presale, logger)
	ctx := context.Background()

	res, err := engine.ComputePresaleEligibility(ctx, token, wallet)
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	expected := &model.PresaleEligibility{
		TokenAddress:     token,
		WalletAddress:    wallet,
		Allocation:       u(1000),
		AlreadyClaimed:   u(250),
		AvailableToClaim: u(750),
	}
	if d := cmp.Diff(expected, res); d != "" {
		t.Fatalf("presale mismatch: %s", d)
	}

	res, err = engine.ComputePresaleEligibility(ctx, token, creator)
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	if !res.AvailableToClaim.IsZero() {
		t.Fatalf("over-claimed wallet should have 0, got %s", res.AvailableToClaim.Dec())
	}

	res, err = engine.ComputePresaleEligibility(ctx, token, "stranger")
	if err != nil {
		t.Fatalf("compute failed: %s", err)
	}
	if !res.AvailableToClaim.IsZero() || !res.Allocation.IsZero() {
		t.Fatalf("stranger should have nothing, got %+v", res)
	}
}
