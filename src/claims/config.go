package claims

import (
	"time"

	"github.com/onemorebsmith/launchpad-claims/src/common"
)

const (
	DefaultClaimLockMaxHold        = 2 * time.Minute
	DefaultVerificationLockMaxHold = 30 * time.Second
	DefaultStageTTL                = 15 * time.Minute
	DefaultSweepInterval           = time.Minute
	DefaultVerificationMaxAttempts = 5
	DefaultVerificationWindow      = 15 * time.Minute
	DefaultChallengeTTL            = 10 * time.Minute
)

type Config struct {
	common.CommonConfig     `yaml:",inline"`
	ClaimLockMaxHold        common.Duration `yaml:"claim_lock_max_hold"`
	VerificationLockMaxHold common.Duration `yaml:"verification_lock_max_hold"`
	StageTTL                common.Duration `yaml:"stage_ttl"`
	SweepInterval           common.Duration `yaml:"sweep_interval"`
	VerificationMaxAttempts int             `yaml:"verification_max_attempts"`
	VerificationWindow      common.Duration `yaml:"verification_window"`
	ChallengeTTL            common.Duration `yaml:"challenge_ttl"`
}

// WithDefaults fills every unset tunable.
func (c Config) WithDefaults() Config {
	c.ClaimLockMaxHold = common.Duration(c.ClaimLockMaxHold.OrDefault(DefaultClaimLockMaxHold))
	c.VerificationLockMaxHold = common.Duration(c.VerificationLockMaxHold.OrDefault(DefaultVerificationLockMaxHold))
	c.StageTTL = common.Duration(c.StageTTL.OrDefault(DefaultStageTTL))
	c.SweepInterval = common.Duration(c.SweepInterval.OrDefault(DefaultSweepInterval))
	c.VerificationWindow = common.Duration(c.VerificationWindow.OrDefault(DefaultVerificationWindow))
	c.ChallengeTTL = common.Duration(c.ChallengeTTL.OrDefault(DefaultChallengeTTL))
	if c.VerificationMaxAttempts <= 0 {
		c.VerificationMaxAttempts = DefaultVerificationMaxAttempts
	}
	return c
}
