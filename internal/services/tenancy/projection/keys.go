package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/agent"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

// AgentKeysName is the tracking name of the API key lookup table.
const AgentKeysName = "agent_keys"

// NewAgentKeys projects agent API keys into the api_keys table.
func NewAgentKeys(store storage.ReadModelStore) Projection {
	r := NewRouter()
	Handle(r, event.KindAgentAPIKeyIssued, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, p event.AgentAPIKeyIssued) error {
		return putIssuedKey(ctx, tx, evt, p.Key)
	})
	Handle(r, event.KindAgentAPIKeyRotated, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, p event.AgentAPIKeyRotated) error {
		if err := revokeKey(ctx, tx, evt, p.RevokedKeyID); err != nil {
			return err
		}
		return putIssuedKey(ctx, tx, evt, p.Key)
	})
	Handle(r, event.KindAgentAPIKeyRevoked, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, p event.AgentAPIKeyRevoked) error {
		return revokeKey(ctx, tx, evt, p.KeyID)
	})

	return &readModel{
		name:   AgentKeysName,
		store:  store,
		router: r,
		clear:  store.TruncateAPIKeys,
	}
}

func putIssuedKey(ctx context.Context, tx storage.ReadModelTx, evt event.Event, key event.APIKey) error {
	current, err := tx.GetAPIKey(ctx, key.KeyID)
	switch {
	case err == nil && current.Version >= evt.OriginatorVersion:
		return nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return err
	}
	return tx.PutAPIKey(ctx, storage.APIKeyRecord{
		KeyID:      key.KeyID,
		AgentID:    evt.OriginatorID,
		TenantID:   evt.TenantID,
		Prefix:     key.Prefix,
		SecretHash: key.SecretHash,
		Status:     string(agent.KeyActive),
		IssuedAt:   evt.Timestamp,
		Version:    evt.OriginatorVersion,
	})
}

func revokeKey(ctx context.Context, tx storage.ReadModelTx, evt event.Event, keyID string) error {
	rec, err := tx.GetAPIKey(ctx, keyID)
	if err != nil {
		return fmt.Errorf("api key %s: %w", keyID, err)
	}
	if rec.Version >= evt.OriginatorVersion {
		return nil
	}
	revokedAt := evt.Timestamp
	rec.Status = string(agent.KeyRevoked)
	rec.RevokedAt = &revokedAt
	rec.Version = evt.OriginatorVersion
	return tx.PutAPIKey(ctx, rec)
}
