package tenant

import (
	"maps"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/aggregate"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
)

var folds = aggregate.FoldTable[Tenant]{
	event.KindTenantCreated: aggregate.On(func(t *Tenant, e event.TenantCreated) {
		t.Slug = e.Slug
		t.Name = e.Name
		t.Status = StatusProvisioning
	}),
	event.KindTenantActivated: aggregate.On(func(t *Tenant, _ event.TenantActivated) {
		t.Status = StatusActive
	}),
	event.KindTenantSuspended: aggregate.On(func(t *Tenant, e event.TenantSuspended) {
		t.Status = StatusSuspended
		t.SuspensionReason = e.Reason
	}),
	event.KindTenantReactivated: aggregate.On(func(t *Tenant, _ event.TenantReactivated) {
		t.Status = StatusActive
		t.SuspensionReason = ""
	}),
	event.KindTenantDecommissioned: aggregate.On(func(t *Tenant, _ event.TenantDecommissioned) {
		t.Status = StatusDecommissioned
	}),
	event.KindTenantConfigUpdated: aggregate.On(func(t *Tenant, e event.TenantConfigUpdated) {
		t.Config = maps.Clone(e.Config)
	}),
	event.KindTenantMetadataMerged: aggregate.On(func(t *Tenant, e event.TenantMetadataMerged) {
		if t.Metadata == nil {
			t.Metadata = make(map[string]string, len(e.Metadata))
		}
		maps.Copy(t.Metadata, e.Metadata)
	}),
	// Audit only.
	event.KindTenantDataDeleted: aggregate.On(func(*Tenant, event.TenantDataDeleted) {}),
}

// Fold implements aggregate.Entity.
func (t *Tenant) Fold(evt event.Event) error {
	return folds.Fold(t, evt)
}

// FoldedKinds lists the event kinds a tenant folds.
func FoldedKinds() []event.Kind { return folds.Kinds() }
