package challenge

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/google/go-cmp/cmp"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testService(now *time.Time) *Service {
	svc := NewService(DefaultTTL)
	svc.now = func() time.Time { return *now }
	svc.salt = func() ([]byte, error) { return make([]byte, saltSize), nil }
	return svc
}

func testWallet(t *testing.T) (string, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed generating key: %s", err)
	}
	return base58.Encode(pub), priv
}

func sign(priv ed25519.PrivateKey, message string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(message)))
}

func TestMessageLayout(t *testing.T) {
	now := epoch
	svc := testService(&now)
	c, err := svc.Generate("Wa11et", model.SocialHandles{Twitter: "@alice", Github: "bob"})
	if err != nil {
		t.Fatalf("generate failed: %s", err)
	}
	expected := strings.Join([]string{
		IntentLine,
		"",
		DisclaimerLine,
		"",
		"Wallet: Wa11et",
		"Twitter: @alice",
		"GitHub: @bob",
		"Nonce: " + c.Nonce,
		"Expires: 2024-03-01T12:10:00.000Z",
	}, "\n")
	if d := cmp.Diff(expected, c.Message); d != "" {
		t.Fatalf("message mismatch: %s", d)
	}
	if !c.ExpiresAt.Equal(epoch.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", c.ExpiresAt)
	}
	if len(c.Nonce) != NonceLength {
		t.Fatalf("nonce length %d", len(c.Nonce))
	}
}

func TestMessageOmitsUnlinkedHandles(t *testing.T) {
	now := epoch
	c, err := testService(&now).Generate("w", model.SocialHandles{Github: "bob"})
	if err != nil {
		t.Fatalf("generate failed: %s", err)
	}
	if strings.Contains(c.Message, "Twitter") {
		t.Fatalf("twitter line present: %s", c.Message)
	}
	if !strings.Contains(c.Message, "\nGitHub: @bob\n") {
		t.Fatalf("github line missing: %s", c.Message)
	}
}

func TestNoncesDiffer(t *testing.T) {
	svc := NewService(DefaultTTL)
	a, err := svc.Generate("w", model.SocialHandles{})
	if err != nil {
		t.Fatalf("generate failed: %s", err)
	}
	b, err := svc.Generate("w", model.SocialHandles{})
	if err != nil {
		t.Fatalf("generate failed: %s", err)
	}
	if a.Nonce == b.Nonce {
		t.Fatalf("nonce repeated: %s", a.Nonce)
	}
}

func TestGenerateRequiresWallet(t *testing.T) {
	if _, err := NewService(0).Generate("  ", model.SocialHandles{}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestGenerateRejectsLineBreaks(t *testing.T) {
	now := epoch
	svc := testService(&now)
	for name, tc := range map[string]struct {
		wallet  string
		handles model.SocialHandles
	}{
		"twitter": {"w", model.SocialHandles{Twitter: "alice\nGitHub: @bob"}},
		"github":  {"w", model.SocialHandles{Github: "bob\r"}},
		"wallet":  {"w\nNonce: 0000000000000000", model.SocialHandles{}},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Generate(tc.wallet, tc.handles); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	now := epoch
	c, err := testService(&now).Generate("w", model.SocialHandles{Twitter: "alice"})
	if err != nil {
		t.Fatalf("generate failed: %s", err)
	}
	parsed, err := Parse(c.Message)
	if err != nil {
		t.Fatalf("parse failed: %s", err)
	}
	expected := &Parsed{
		Wallet:    "w",
		Handles:   model.SocialHandles{Twitter: "alice"},
		Nonce:     c.Nonce,
		ExpiresAt: c.ExpiresAt,
	}
	if d := cmp.Diff(expected, parsed); d != "" {
		t.Fatalf("parsed mismatch: %s", d)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, msg := range []string{
		"",
		"hello",
		IntentLine + "\n\n" + DisclaimerLine + "\n\nWallet: w\nNonce: xyz\nExpires: 2024-03-01T12:10:00.000Z",
		IntentLine + "\n\n" + DisclaimerLine + "\n\nWallet: w\nNonce: 0123456789abcdef\nExpires: tomorrow",
	} {
		if _, err := Parse(msg); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", msg, err)
		}
	}
}

func TestVerify(t *testing.T) {
	wallet, priv := testWallet(t)
	msg := "hello"
	sig := sign(priv, msg)
	if !Verify(msg, sig, wallet) {
		t.Fatalf("valid signature rejected")
	}
	if Verify(msg+"!", sig, wallet) {
		t.Fatalf("tampered message accepted")
	}
	other, _ := testWallet(t)
	if Verify(msg, sig, other) {
		t.Fatalf("signature accepted for wrong wallet")
	}
	if Verify(msg, "not base64!!", wallet) {
		t.Fatalf("bad base64 accepted")
	}
	if Verify(msg, sig, "0OIl") {
		t.Fatalf("invalid base58 wallet accepted")
	}
	if Verify(msg, base64.StdEncoding.EncodeToString([]byte("short")), wallet) {
		t.Fatalf("short signature accepted")
	}
}

func TestVerifyChallenge(t *testing.T) {
	wallet, priv := testWallet(t)
	now := epoch
	svc := testService(&now)
	c, err := svc.Generate(wallet, model.SocialHandles{Twitter: "alice"})
	if err != nil {
		t.Fatalf("generate failed: %s", err)
	}
	sig := sign(priv, c.Message)

	parsed, err := svc.VerifyChallenge(c.Message, sig, wallet)
	if err != nil {
		t.Fatalf("verify failed: %s", err)
	}
	if parsed.Handles.Twitter != "alice" {
		t.Fatalf("unexpected handles %+v", parsed.Handles)
	}

	other, otherPriv := testWallet(t)
	if _, err := svc.VerifyChallenge(c.Message, sign(otherPriv, c.Message), other); !errors.Is(err, ErrWalletMismatch) {
		t.Fatalf("expected ErrWalletMismatch, got %v", err)
	}
	if _, err := svc.VerifyChallenge(c.Message, sign(otherPriv, c.Message), wallet); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	// still valid exactly at expiry
	now = c.ExpiresAt
	if _, err := svc.VerifyChallenge(c.Message, sig, wallet); err != nil {
		t.Fatalf("verify at expiry failed: %s", err)
	}
	now = c.ExpiresAt.Add(time.Millisecond)
	if _, err := svc.VerifyChallenge(c.Message, sig, wallet); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}
