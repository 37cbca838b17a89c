package model

import "time"

type SocialHandles struct {
	Twitter string `json:"twitter,omitempty"`
	Github  string `json:"github,omitempty"`
}

// Challenge - everything needed to re-verify lives in Message; nothing is stored server side.
type Challenge struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}
