package model

import (
	"encoding/json"
	"time"
)

type AuditEventType string

const ( // needs to match `audit_event_type` in pg
	AuditAttempt           AuditEventType = "attempt"
	AuditSuccess           AuditEventType = "success"
	AuditFailure           AuditEventType = "failure"
	AuditRateLimitExceeded AuditEventType = "rate_limit_exceeded"
)

type AuditEvent struct {
	Id            string
	Type          AuditEventType
	Flow          string
	TokenAddress  *string
	WalletAddress *string
	TwitterHandle *string
	GithubHandle  *string
	IPAddress     *string
	UserAgent     *string
	ErrorMessage  *string
	Metadata      map[string]any
	Timestamp     time.Time
}

// MetadataJSON encodes the free-form payload for the jsonb column, nil when empty.
func (ae *AuditEvent) MetadataJSON() ([]byte, error) {
	if len(ae.Metadata) == 0 {
		return nil, nil
	}
	return json.Marshal(ae.Metadata)
}

// StrPtr turns "" into nil so optional audit columns stay NULL
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
