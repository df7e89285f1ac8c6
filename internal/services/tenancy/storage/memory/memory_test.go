package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

func TestEventLogAppendChecksVersion(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()
	first := event.Event{OriginatorID: "t1", OriginatorVersion: 1, Kind: event.KindTenantActivated, Payload: event.TenantActivated{}}

	if err := log.Append(ctx, "t1", 0, []event.Event{first}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(ctx, "t1", 0, []event.Event{first}); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("stale append err = %v, want ErrVersionConflict", err)
	}
	last, err := log.LastNotificationID(ctx)
	if err != nil || last != 1 {
		t.Fatalf("last = %d, %v; want 1", last, err)
	}
}

func TestEventLogReadSincePages(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()
	for i := uint64(1); i <= 3; i++ {
		evt := event.Event{OriginatorID: "u1", OriginatorVersion: i, Kind: event.KindUserDisplayNameChanged, Payload: event.UserDisplayNameChanged{}}
		if err := log.Append(ctx, "u1", i-1, []event.Event{evt}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	got, err := log.ReadSince(ctx, 1, 1)
	if err != nil {
		t.Fatalf("read since: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("page = %+v, want notification 2", got)
	}
	rest, _ := log.ReadSince(ctx, 3, 10)
	if len(rest) != 0 {
		t.Fatalf("expected empty tail, got %d", len(rest))
	}
}

func TestReservationsReleaseKeepsConfirmed(t *testing.T) {
	ctx := context.Background()
	store := NewReservations()
	if err := store.InsertUnique(ctx, storage.Reservation{Namespace: "slug", Key: "acme"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.UpdateConfirm(ctx, "slug", "acme", "t1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := store.DeleteIfUnconfirmed(ctx, "slug", "acme"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := store.SelectConfirmed(ctx, "slug", "acme"); err != nil {
		t.Fatalf("confirmed row should survive release: %v", err)
	}
	if err := store.UpdateConfirm(ctx, "slug", "acme", "t2"); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("reconfirm err = %v, want ErrDuplicateKey", err)
	}
}
