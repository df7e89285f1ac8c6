package projection

import (
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

// UpstreamEvents names the event log every projection follows.
const UpstreamEvents = "events"

// Factory binds a projection to a read-model store.
type Factory func(store storage.ReadModelStore) Projection

// Registration binds a projection to the log it follows.
type Registration struct {
	// Projection is bound to the store passed to Registrations. Rebuilds
	// clear through it.
	Projection Projection
	// New binds the same projection to another store, such as the
	// connection a runner opens for itself.
	New      Factory
	Upstream string
	Topics   []event.Kind
}

// Registrations returns the compiled list of projections over store.
func Registrations(store storage.ReadModelStore) []Registration {
	factories := []Factory{
		NewTenantDirectory,
		NewAgentKeys,
		NewUserDirectory,
	}
	out := make([]Registration, 0, len(factories))
	for _, factory := range factories {
		p := factory(store)
		out = append(out, Registration{
			Projection: p,
			New:        factory,
			Upstream:   UpstreamEvents,
			Topics:     p.Topics(),
		})
	}
	return out
}
