// Package challenge issues signed, time boxed ownership statements for wallets
// and verifies detached ed25519 signatures over them.
//
// The message text is the wire contract with signing wallets. Its layout, line
// by line:
//
//	Sign this message to verify ownership of your wallet.
//
//	This request will not trigger a blockchain transaction or cost any gas fees.
//
//	Wallet: <address>
//	Twitter: @<handle>   (only when linked)
//	GitHub: @<handle>    (only when linked)
//	Nonce: <16 hex chars>
//	Expires: <ISO-8601 UTC, millisecond precision>
package challenge

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	IntentLine     = "Sign this message to verify ownership of your wallet."
	DisclaimerLine = "This request will not trigger a blockchain transaction or cost any gas fees."

	walletPrefix  = "Wallet: "
	twitterPrefix = "Twitter: @"
	githubPrefix  = "GitHub: @"
	noncePrefix   = "Nonce: "
	expiresPrefix = "Expires: "

	NonceLength = 16
	DefaultTTL  = 10 * time.Minute
	saltSize    = 16
)

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	ErrMalformed      = errors.New("malformed challenge message")
	ErrExpired        = errors.New("challenge expired")
	ErrWalletMismatch = errors.New("challenge issued for a different wallet")
	ErrBadSignature   = errors.New("signature does not match wallet")
)

type Service struct {
	ttl  time.Duration
	now  func() time.Time
	salt func() ([]byte, error)
}

func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		ttl:  ttl,
		now:  time.Now,
		salt: randomSalt,
	}
}

func randomSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "failed reading random salt")
	}
	return salt, nil
}

// Generate builds a fresh challenge for wallet, embedding any linked handles.
func (s *Service) Generate(wallet string, handles model.SocialHandles) (*model.Challenge, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, errors.Wrap(ErrMalformed, "wallet address required")
	}
	// each field owns exactly one line of the signed message
	for _, field := range []string{wallet, handles.Twitter, handles.Github} {
		if strings.ContainsAny(field, "\r\n") {
			return nil, errors.Wrap(ErrMalformed, "wallet and handles must be single line")
		}
	}
	now := s.now()
	salt, err := s.salt()
	if err != nil {
		return nil, err
	}
	nonce := makeNonce(wallet, now, salt)
	expiresAt := now.Add(s.ttl).UTC().Truncate(time.Millisecond)
	return &model.Challenge{
		Nonce:     nonce,
		Message:   FormatMessage(wallet, handles, nonce, expiresAt),
		ExpiresAt: expiresAt,
	}, nil
}

// 16 hex chars is enough to stop replays inside one challenge lifetime, it is
// not a long term unique id.
func makeNonce(wallet string, now time.Time, salt []byte) string {
	buf := make([]byte, 0, len(wallet)+8+len(salt))
	buf = append(buf, wallet...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(now.UnixNano()))
	buf = append(buf, salt...)
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:])[:NonceLength]
}

func FormatMessage(wallet string, handles model.SocialHandles, nonce string, expiresAt time.Time) string {
	lines := []string{
		IntentLine,
		"",
		DisclaimerLine,
		"",
		walletPrefix + wallet,
	}
	if h := cleanHandle(handles.Twitter); h != "" {
		lines = append(lines, twitterPrefix+h)
	}
	if h := cleanHandle(handles.Github); h != "" {
		lines = append(lines, githubPrefix+h)
	}
	lines = append(lines,
		noncePrefix+nonce,
		expiresPrefix+expiresAt.UTC().Format(isoLayout),
	)
	return strings.Join(lines, "\n")
}

func cleanHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

type Parsed struct {
	Wallet    string
	Handles   model.SocialHandles
	Nonce     string
	ExpiresAt time.Time
}

// Parse recovers the fields of a message produced by FormatMessage.
func Parse(message string) (*Parsed, error) {
	lines := strings.Split(message, "\n")
	if len(lines) < 7 || lines[0] != IntentLine || lines[1] != "" || lines[2] != DisclaimerLine || lines[3] != "" {
		return nil, ErrMalformed
	}
	if !strings.HasPrefix(lines[4], walletPrefix) {
		return nil, errors.Wrap(ErrMalformed, "missing wallet line")
	}
	parsed := &Parsed{Wallet: strings.TrimPrefix(lines[4], walletPrefix)}

	rest := lines[5:]
	if strings.HasPrefix(rest[0], twitterPrefix) {
		parsed.Handles.Twitter = strings.TrimPrefix(rest[0], twitterPrefix)
		rest = rest[1:]
	}
	if len(rest) > 0 && strings.HasPrefix(rest[0], githubPrefix) {
		parsed.Handles.Github = strings.TrimPrefix(rest[0], githubPrefix)
		rest = rest[1:]
	}
	if len(rest) != 2 || !strings.HasPrefix(rest[0], noncePrefix) || !strings.HasPrefix(rest[1], expiresPrefix) {
		return nil, errors.Wrap(ErrMalformed, "missing nonce or expiry")
	}
	parsed.Nonce = strings.TrimPrefix(rest[0], noncePrefix)
	if len(parsed.Nonce) != NonceLength {
		return nil, errors.Wrapf(ErrMalformed, "nonce must be %d chars", NonceLength)
	}
	if _, err := hex.DecodeString(parsed.Nonce); err != nil {
		return nil, errors.Wrap(ErrMalformed, "nonce is not hex")
	}
	expiresAt, err := time.Parse(isoLayout, strings.TrimPrefix(rest[1], expiresPrefix))
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "unparsable expiry")
	}
	parsed.ExpiresAt = expiresAt
	return parsed, nil
}

// Verify checks a base64 detached ed25519 signature over message. The wallet
// address is the base58 public key. Any decoding problem is simply false.
func Verify(message, signatureBase64, wallet string) bool {
	pub := base58.Decode(strings.TrimSpace(wallet))
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureBase64))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}

// VerifyChallenge validates a signed challenge end to end. Expiry is decided before the
// signature is looked at.
func (s *Service) VerifyChallenge(message, signatureBase64, wallet string) (*Parsed, error) {
	parsed, err := Parse(message)
	if err != nil {
		return nil, err
	}
	if s.now().After(parsed.ExpiresAt) {
		return parsed, ErrExpired
	}
	if parsed.Wallet != strings.TrimSpace(wallet) {
		return parsed, ErrWalletMismatch
	}
	if !Verify(message, signatureBase64, wallet) {
		return parsed, ErrBadSignature
	}
	return parsed, nil
}
