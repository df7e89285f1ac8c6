// Package projection maintains the tenancy read models from the event log.
//
// Each projection owns its tables and a tracking row. Read-model writes and
// the tracking update for a notification commit in one transaction, so a
// replay after a crash either sees both or neither.
package projection

import (
	"context"
	"fmt"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

// Tracking names the position a projection reaches after one notification.
type Tracking struct {
	ProjectionName string
	NotificationID uint64
}

// Recorder persists tracking positions.
type Recorder interface {
	InsertTracking(ctx context.Context, projection string, notificationID uint64) error
}

// Projection consumes notifications into a read model.
type Projection interface {
	Name() string
	// Topics lists the event kinds that mutate the read model.
	Topics() []event.Kind
	// Process applies one notification and records tracking atomically.
	Process(ctx context.Context, n event.Notification, tracking Tracking) error
	// ClearReadModel drops every row the projection owns. Tracking is untouched.
	ClearReadModel(ctx context.Context) error
}

// readModel is the shared Projection implementation: a router over a
// transactional store plus the tables it clears.
type readModel struct {
	name   string
	store  storage.ReadModelStore
	router *Router
	clear  func(ctx context.Context) error
}

func (p *readModel) Name() string { return p.name }

func (p *readModel) Topics() []event.Kind { return p.router.Kinds() }

func (p *readModel) Process(ctx context.Context, n event.Notification, tracking Tracking) error {
	if tracking.ProjectionName != p.name {
		return fmt.Errorf("projection %s: tracking belongs to %q", p.name, tracking.ProjectionName)
	}
	return p.store.InTx(ctx, func(tx storage.ReadModelTx) error {
		if err := p.router.Route(ctx, tx, n.Event); err != nil {
			return fmt.Errorf("projection %s: notification %d: %w", p.name, n.ID, err)
		}
		return record(ctx, tx, tracking)
	})
}

func (p *readModel) ClearReadModel(ctx context.Context) error {
	return p.clear(ctx)
}

func record(ctx context.Context, r Recorder, tracking Tracking) error {
	if err := r.InsertTracking(ctx, tracking.ProjectionName, tracking.NotificationID); err != nil {
		return fmt.Errorf("record tracking %s@%d: %w", tracking.ProjectionName, tracking.NotificationID, err)
	}
	return nil
}
