package projection

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/tenant"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

// TenantDirectoryName is the tracking name of the tenant directory.
const TenantDirectoryName = "tenant_directory"

// NewTenantDirectory projects tenants into the tenants table.
func NewTenantDirectory(store storage.ReadModelStore) Projection {
	r := NewRouter()
	Handle(r, event.KindTenantCreated, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, p event.TenantCreated) error {
		current, err := tx.GetTenant(ctx, evt.OriginatorID)
		switch {
		case err == nil && current.Version >= evt.OriginatorVersion:
			return nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return err
		}
		return tx.PutTenant(ctx, storage.TenantRecord{
			ID:        evt.OriginatorID,
			Slug:      p.Slug,
			Name:      p.Name,
			Status:    string(tenant.StatusProvisioning),
			Version:   evt.OriginatorVersion,
			CreatedAt: evt.Timestamp,
			UpdatedAt: evt.Timestamp,
		})
	})
	Handle(r, event.KindTenantActivated, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, _ event.TenantActivated) error {
		return updateTenant(ctx, tx, evt, func(rec *storage.TenantRecord) {
			rec.Status = string(tenant.StatusActive)
		})
	})
	Handle(r, event.KindTenantSuspended, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, p event.TenantSuspended) error {
		return updateTenant(ctx, tx, evt, func(rec *storage.TenantRecord) {
			rec.Status = string(tenant.StatusSuspended)
			rec.SuspensionReason = p.Reason
		})
	})
	Handle(r, event.KindTenantReactivated, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, _ event.TenantReactivated) error {
		return updateTenant(ctx, tx, evt, func(rec *storage.TenantRecord) {
			rec.Status = string(tenant.StatusActive)
			rec.SuspensionReason = ""
		})
	})
	Handle(r, event.KindTenantDecommissioned, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, _ event.TenantDecommissioned) error {
		return updateTenant(ctx, tx, evt, func(rec *storage.TenantRecord) {
			rec.Status = string(tenant.StatusDecommissioned)
		})
	})
	Handle(r, event.KindTenantConfigUpdated, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, p event.TenantConfigUpdated) error {
		return updateTenant(ctx, tx, evt, func(rec *storage.TenantRecord) {
			rec.Config = maps.Clone(p.Config)
		})
	})
	Handle(r, event.KindTenantMetadataMerged, func(ctx context.Context, tx storage.ReadModelTx, evt event.Event, p event.TenantMetadataMerged) error {
		return updateTenant(ctx, tx, evt, func(rec *storage.TenantRecord) {
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]string, len(p.Metadata))
			}
			maps.Copy(rec.Metadata, p.Metadata)
		})
	})

	return &readModel{
		name:   TenantDirectoryName,
		store:  store,
		router: r,
		clear:  store.TruncateTenants,
	}
}

func updateTenant(ctx context.Context, tx storage.ReadModelTx, evt event.Event, mutate func(*storage.TenantRecord)) error {
	rec, err := tx.GetTenant(ctx, evt.OriginatorID)
	if err != nil {
		return fmt.Errorf("tenant %s: %w", evt.OriginatorID, err)
	}
	if rec.Version >= evt.OriginatorVersion {
		return nil
	}
	mutate(&rec)
	rec.Version = evt.OriginatorVersion
	rec.UpdatedAt = evt.Timestamp
	return tx.PutTenant(ctx, rec)
}
