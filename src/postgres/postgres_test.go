package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/onemorebsmith/launchpad-claims/src/model"
)

var pgAvailable bool

func TestMain(m *testing.M) {
	ConfigureDockerConnection()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := Ping(ctx); err == nil {
		pgAvailable = EnsureSchema(ctx) == nil
	}
	cancel()
	os.Exit(m.Run())
}

func requirePostgres(t *testing.T) {
	t.Helper()
	if !pgAvailable {
		t.Skip("postgres unavailable at localhost:5432")
	}
}

const fixtures = `
DELETE FROM token_launches WHERE token_address = 'TestToken';
DELETE FROM emission_splits WHERE token_address = 'TestToken';
DELETE FROM claims WHERE token_address = 'TestToken';
DELETE FROM presale_allocations WHERE token_address = 'TestToken';
DELETE FROM presale_claims WHERE token_address = 'TestToken';
INSERT INTO token_launches(token_address, creator_wallet, launch_time) VALUES ('TestToken', 'Creator', '2024-03-01T12:00:00Z');
INSERT INTO emission_splits(token_address, wallet_address, split_percentage) VALUES
	('TestToken', 'A', 33.3), ('TestToken', 'B', 66.7);
INSERT INTO claims(token_address, wallet_address, amount) VALUES
	('TestToken', 'A', 100), ('TestToken', 'A', 250),
	('TestToken', 'B', 115792089237316195423570985008687907853269984665640564039457584007913129639935);
INSERT INTO presale_allocations(token_address, wallet_address, allocation) VALUES ('TestToken', 'A', 5000);
INSERT INTO presale_claims(token_address, wallet_address, amount) VALUES ('TestToken', 'A', 1200);
`

func TestSplitQueries(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	DoExecOrDie(ctx, fixtures)

	launch, err := GetTokenLaunch(ctx, "TestToken")
	if err != nil {
		t.Fatal(err)
	}
	expectedLaunch := &model.TokenLaunch{
		TokenAddress:  "TestToken",
		CreatorWallet: "Creator",
		LaunchTime:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if d := cmp.Diff(expectedLaunch, launch); d != "" {
		t.Fatalf("launch mismatch: %s", d)
	}
	if missing, err := GetTokenLaunch(ctx, "NoSuchToken"); err != nil || missing != nil {
		t.Fatalf("expected nil launch, got %+v %v", missing, err)
	}

	splits, err := GetAllSplits(ctx, "TestToken")
	if err != nil {
		t.Fatal(err)
	}
	expectedSplits := []model.EmissionSplit{
		{TokenAddress: "TestToken", WalletAddress: "A", SplitPercentage: 33.3},
		{TokenAddress: "TestToken", WalletAddress: "B", SplitPercentage: 66.7},
	}
	if d := cmp.Diff(expectedSplits, splits); d != "" {
		t.Fatalf("splits mismatch: %s", d)
	}

	split, err := GetWalletSplit(ctx, "TestToken", "Creator")
	if err != nil || split != nil {
		t.Fatalf("expected no creator split, got %+v %v", split, err)
	}

	claimed, err := GetTotalClaimed(ctx, "TestToken", "A")
	if err != nil {
		t.Fatal(err)
	}
	if !claimed.Eq(uint256.NewInt(350)) {
		t.Fatalf("expected 350 claimed, got %s", claimed.Dec())
	}
	claimed, err = GetTotalClaimed(ctx, "TestToken", "B")
	if err != nil {
		t.Fatal(err)
	}
	if !claimed.Eq(new(uint256.Int).Not(uint256.NewInt(0))) {
		t.Fatalf("expected max uint256, got %s", claimed.Dec())
	}
	claimed, err = GetTotalClaimed(ctx, "TestToken", "Nobody")
	if err != nil || !claimed.IsZero() {
		t.Fatalf("expected zero claimed, got %v %v", claimed, err)
	}
}

func TestPresaleQueries(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	DoExecOrDie(ctx, fixtures)

	allocation, err := GetPresaleAllocation(ctx, "TestToken", "A")
	if err != nil || !allocation.Eq(uint256.NewInt(5000)) {
		t.Fatalf("expected 5000 allocation, got %v %v", allocation, err)
	}
	if missing, err := GetPresaleAllocation(ctx, "TestToken", "B"); err != nil || missing != nil {
		t.Fatalf("expected nil allocation, got %v %v", missing, err)
	}
	claimed, err := GetPresaleClaimed(ctx, "TestToken", "A")
	if err != nil || !claimed.Eq(uint256.NewInt(1200)) {
		t.Fatalf("expected 1200 claimed, got %v %v", claimed, err)
	}
}

func TestAuditRoundTrip(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	wallet := "AuditWallet" + uuid.NewString()
	event := &model.AuditEvent{
		Id:            uuid.NewString(),
		Type:          model.AuditRateLimitExceeded,
		Flow:          "social_verification",
		WalletAddress: &wallet,
		ErrorMessage:  model.StrPtr("too many attempts"),
		Metadata:      map[string]any{"attempts": 6},
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := PutAuditEvent(ctx, event); err != nil {
		t.Fatal(err)
	}
	events, err := getAuditEvents(ctx, wallet, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.Id != event.Id || got.Type != event.Type || got.Flow != event.Flow || got.TokenAddress != nil {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "too many attempts" {
		t.Fatalf("error message lost: %+v", got.ErrorMessage)
	}
	if !got.Timestamp.Equal(event.Timestamp) {
		t.Fatalf("timestamp mismatch %s vs %s", got.Timestamp, event.Timestamp)
	}
}
