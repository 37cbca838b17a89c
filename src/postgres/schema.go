package postgres

import (
	"context"

	"github.com/pkg/errors"
)

// amounts are smallest-unit integers up to 2^256, numeric(78,0) holds them exactly
const schema = `
DO $$ BEGIN
	CREATE TYPE audit_event_type AS ENUM ('attempt', 'success', 'failure', 'rate_limit_exceeded');
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;

CREATE TABLE IF NOT EXISTS token_launches (
	token_address  TEXT PRIMARY KEY,
	creator_wallet TEXT NOT NULL,
	launch_time    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS emission_splits (
	token_address    TEXT NOT NULL,
	wallet_address   TEXT NOT NULL,
	split_percentage NUMERIC(4,1) NOT NULL CHECK (split_percentage >= 0 AND split_percentage <= 100),
	PRIMARY KEY (token_address, wallet_address)
);

CREATE TABLE IF NOT EXISTS claims (
	id             BIGSERIAL PRIMARY KEY,
	token_address  TEXT NOT NULL,
	wallet_address TEXT NOT NULL,
	amount         NUMERIC(78,0) NOT NULL,
	tx_signature   TEXT,
	claimed_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS claims_token_wallet ON claims (token_address, wallet_address);

CREATE TABLE IF NOT EXISTS presale_allocations (
	token_address  TEXT NOT NULL,
	wallet_address TEXT NOT NULL,
	allocation     NUMERIC(78,0) NOT NULL,
	PRIMARY KEY (token_address, wallet_address)
);

CREATE TABLE IF NOT EXISTS presale_claims (
	id             BIGSERIAL PRIMARY KEY,
	token_address  TEXT NOT NULL,
	wallet_address TEXT NOT NULL,
	amount         NUMERIC(78,0) NOT NULL,
	tx_signature   TEXT,
	claimed_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS presale_claims_token_wallet ON presale_claims (token_address, wallet_address);

CREATE TABLE IF NOT EXISTS audit_events (
	id             UUID PRIMARY KEY,
	event_type     audit_event_type NOT NULL,
	flow           TEXT NOT NULL,
	token_address  TEXT,
	wallet_address TEXT,
	twitter_handle TEXT,
	github_handle  TEXT,
	ip_address     TEXT,
	user_agent     TEXT,
	error_message  TEXT,
	metadata       JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func EnsureSchema(ctx context.Context) error {
	return errors.Wrap(DoExec(ctx, schema), "failed creating schema")
}
