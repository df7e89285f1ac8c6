// Package aggregate holds the shared event-sourcing mechanics of the tenancy
// aggregates: versioned roots, event recording and replay, and repositories
// that persist pending events under optimistic concurrency.
package aggregate

import (
	"fmt"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/command"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
)

// Root is the identity and version bookkeeping embedded by every aggregate.
type Root struct {
	ID       string
	Version  uint64
	TenantID string

	pending []event.Event
}

// Base lets embedding types satisfy Entity.
func (r *Root) Base() *Root { return r }

// Pending returns the events recorded since the last successful save.
func (r *Root) Pending() []event.Event {
	out := make([]event.Event, len(r.pending))
	copy(out, r.pending)
	return out
}

// PersistedVersion is the version the event log holds for this aggregate.
func (r *Root) PersistedVersion() uint64 {
	return r.Version - uint64(len(r.pending))
}

func (r *Root) markSaved() {
	r.pending = nil
}

// Entity is an aggregate that folds its own events.
type Entity interface {
	Base() *Root
	// Fold mutates state for one event. It must not touch Root fields.
	Fold(evt event.Event) error
}

// Record stamps payload as the aggregate's next event, applies it and queues
// it for persistence. The returned event is the immutable value appended.
func Record(e Entity, meta command.Meta, payload event.Payload) (event.Event, error) {
	root := e.Base()
	if root.ID == "" {
		return event.Event{}, fmt.Errorf("record %s: aggregate id is required", payload.Kind())
	}
	evt := event.Event{
		OriginatorID:      root.ID,
		OriginatorVersion: root.Version + 1,
		Timestamp:         meta.Timestamp(),
		TenantID:          root.TenantID,
		CorrelationID:     meta.CorrelationID,
		CausationID:       meta.CausationID,
		UserID:            meta.UserID,
		Kind:              payload.Kind(),
		Payload:           payload,
	}
	if err := Apply(e, evt); err != nil {
		return event.Event{}, err
	}
	root.pending = append(root.pending, evt)
	return evt, nil
}

// Apply folds one event into e, enforcing contiguous versions. The first
// event fixes the aggregate's identity and tenant.
func Apply(e Entity, evt event.Event) error {
	root := e.Base()
	if evt.OriginatorVersion != root.Version+1 {
		return fmt.Errorf("apply %s: version %d does not follow %d", evt.Kind, evt.OriginatorVersion, root.Version)
	}
	if root.Version > 0 && evt.OriginatorID != root.ID {
		return fmt.Errorf("apply %s: event for %s applied to %s", evt.Kind, evt.OriginatorID, root.ID)
	}
	if evt.Payload == nil || evt.Payload.Kind() != evt.Kind {
		return fmt.Errorf("apply %s: payload does not match kind", evt.Kind)
	}
	if err := e.Fold(evt); err != nil {
		return fmt.Errorf("apply %s: %w", evt.Kind, err)
	}
	if root.Version == 0 {
		root.ID = evt.OriginatorID
		root.TenantID = evt.TenantID
	}
	root.Version = evt.OriginatorVersion
	return nil
}

// Rehydrate replays stored history into a fresh entity.
func Rehydrate(e Entity, history []event.Event) error {
	for _, evt := range history {
		if err := Apply(e, evt); err != nil {
			return err
		}
	}
	return nil
}

// PayloadAs extracts a typed payload from evt.
func PayloadAs[P event.Payload](evt event.Event) (P, error) {
	payload, ok := evt.Payload.(P)
	if !ok {
		var zero P
		return zero, fmt.Errorf("payload %T is not %T", evt.Payload, zero)
	}
	return payload, nil
}
