package projection

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

// UserDirectoryName is the tracking name of the user directory.
const UserDirectoryName = "user_directory"

// NewUserDirectory projects users into the users table.
func NewUserDirectory(store storage.ReadModelStore) Projection {
	r := NewRouter()
	Handle(r, event.KindUserCreated, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, p event.UserCreated) error {
		current, err := tx.GetUser(ctx, evt.OriginatorID)
		switch {
		case err == nil && current.Version >= evt.OriginatorVersion:
			return nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return err
		}
		return tx.PutUser(ctx, storage.UserRecord{
			ID:          evt.OriginatorID,
			TenantID:    evt.TenantID,
			Subject:     p.Subject,
			Email:       p.Email,
			DisplayName: p.DisplayName,
			Version:     evt.OriginatorVersion,
			CreatedAt:   evt.Timestamp,
			UpdatedAt:   evt.Timestamp,
		})
	})
	Handle(r, event.KindUserDisplayNameChanged, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, p event.UserDisplayNameChanged) error {
		return updateUser(ctx, tx, evt, func(rec *storage.UserRecord) {
			rec.DisplayName = p.DisplayName
		})
	})
	Handle(r, event.KindUserPreferencesUpdated, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, p event.UserPreferencesUpdated) error {
		return updateUser(ctx, tx, evt, func(rec *storage.UserRecord) {
			if rec.Preferences == nil && len(p.Set) > 0 {
				rec.Preferences = make(map[string]string, len(p.Set))
			}
			maps.Copy(rec.Preferences, p.Set)
			for _, key := range p.Removed {
				delete(rec.Preferences, key)
			}
		})
	})

	return &readModel{
		name:   UserDirectoryName,
		store:  store,
		router: r,
		clear:  store.TruncateUsers,
	}
}

func updateUser(ctx context.Context, tx storage.ReadModelTx, evt event.Event, mutate func(*storage.UserRecord)) error {
	rec, err := tx.GetUser(ctx, evt.OriginatorID)
	if err != nil {
		return fmt.Errorf("user %s: %w", evt.OriginatorID, err)
	}
	if rec.Version >= evt.OriginatorVersion {
		return nil
	}
	mutate(&rec)
	rec.Version = evt.OriginatorVersion
	rec.UpdatedAt = evt.Timestamp
	return tx.PutUser(ctx, rec)
}
