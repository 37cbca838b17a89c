package claims

import (
	"github.com/pkg/errors"
)

var (
	ErrConfiguration  = errors.New("service misconfigured")
	ErrAuthentication = errors.New("authentication failed")
	ErrRateLimited    = errors.New("too many attempts")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrNothingToClaim = errors.New("nothing to claim")
)

type FailureReason string

const (
	ReasonConfiguration  FailureReason = "configuration"
	ReasonAuthentication FailureReason = "authentication"
	ReasonRateLimited    FailureReason = "rate_limited"
	ReasonInvalidRequest FailureReason = "invalid_request"
	ReasonNotFound       FailureReason = "not_found"
	ReasonNothingToClaim FailureReason = "nothing_to_claim"
	ReasonInternal       FailureReason = "internal"
)

var reasons = []struct {
	err    error
	reason FailureReason
}{
	{ErrConfiguration, ReasonConfiguration},
	{ErrAuthentication, ReasonAuthentication},
	{ErrRateLimited, ReasonRateLimited},
	{ErrInvalidRequest, ReasonInvalidRequest},
	{ErrNotFound, ReasonNotFound},
	{ErrNothingToClaim, ReasonNothingToClaim},
}

// Reason maps an error from this package to the failure reason a caller can
// branch on. Anything unrecognised, store and oracle faults included, is internal.
func Reason(err error) FailureReason {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}
