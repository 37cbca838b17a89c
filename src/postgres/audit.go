package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
)

func PutAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	metadata, err := event.MetadataJSON()
	if err != nil {
		return errors.Wrap(err, "failed encoding audit metadata")
	}
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT into audit_events(id, event_type, flow, token_address, wallet_address, twitter_handle,
					github_handle, ip_address, user_agent, error_message, metadata, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			event.Id, string(event.Type), event.Flow, event.TokenAddress, event.WalletAddress, event.TwitterHandle,
			event.GithubHandle, event.IPAddress, event.UserAgent, event.ErrorMessage, metadata, event.Timestamp.UTC())
		if err != nil {
			return errors.Wrapf(err, "failed to record audit event %s", event.Id)
		}
		return nil
	})
}

// getAuditEvents returns the most recent events for a wallet, newest first
func getAuditEvents(ctx context.Context, walletAddress string, limit int) ([]model.AuditEvent, error) {
	var events []model.AuditEvent
	return events, DoQuery(ctx, func(conn *pgx.Conn) error {
		cur, err := conn.Query(ctx,
			`SELECT id::text, event_type::text, flow, token_address, error_message, created_at FROM audit_events
				WHERE wallet_address = $1 ORDER BY created_at DESC LIMIT $2`, walletAddress, limit)
		if err != nil {
			return errors.Wrapf(err, "failed fetching audit events for %s", walletAddress)
		}
		defer cur.Close()
		for cur.Next() {
			event := model.AuditEvent{WalletAddress: &walletAddress}
			var eventType string
			if err := cur.Scan(&event.Id, &eventType, &event.Flow, &event.TokenAddress, &event.ErrorMessage, &event.Timestamp); err != nil {
				return errors.Wrap(err, "failed scanning audit row")
			}
			event.Type = model.AuditEventType(eventType)
			events = append(events, event)
		}
		return cur.Err()
	})
}
