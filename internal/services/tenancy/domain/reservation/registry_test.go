package reservation

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage/memory"
)

func TestReserveConflictsOnUnconfirmedKey(t *testing.T) {
	ctx := context.Background()
	reg := NewSlugRegistry(memory.NewReservations())
	if err := reg.Reserve(ctx, "acme-corp", "acme-corp"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	err := reg.Reserve(ctx, "acme-corp", "acme-corp")
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	var coded *apperrors.Error
	if !errors.As(err, &coded) || coded.Metadata["key"] != "acme-corp" {
		t.Fatalf("conflict does not name the key: %v", err)
	}
}

func TestReleaseSemantics(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReservations()
	reg := NewSubjectRegistry(store)

	if err := reg.Release(ctx, "never-reserved"); err != nil {
		t.Fatalf("release missing: %v", err)
	}

	if err := reg.Reserve(ctx, "sub-1", "acme"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := reg.Release(ctx, "sub-1"); err != nil {
		t.Fatalf("release unconfirmed: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("rows = %d after release, want 0", store.Len())
	}

	if err := reg.Reserve(ctx, "sub-1", "acme"); err != nil {
		t.Fatalf("reserve again: %v", err)
	}
	if err := reg.Confirm(ctx, "sub-1", "user-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := reg.Release(ctx, "sub-1"); err != nil {
		t.Fatalf("release confirmed: %v", err)
	}
	owner, found, err := reg.Lookup(ctx, "sub-1")
	if err != nil || !found || owner != "user-1" {
		t.Fatalf("lookup = %q %v %v, want user-1", owner, found, err)
	}
}

func TestLookupIgnoresUnconfirmed(t *testing.T) {
	ctx := context.Background()
	reg := NewSubjectRegistry(memory.NewReservations())
	if err := reg.Reserve(ctx, "sub-1", "acme"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, found, err := reg.Lookup(ctx, "sub-1"); err != nil || found {
		t.Fatalf("lookup unconfirmed = found %v err %v", found, err)
	}
}

func TestConfirmMissingIsNotFound(t *testing.T) {
	reg := NewSubjectRegistry(memory.NewReservations())
	if err := reg.Confirm(context.Background(), "sub-1", "user-1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestNamespacesAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReservations()
	if err := NewSlugRegistry(store).Reserve(ctx, "same", "t"); err != nil {
		t.Fatalf("slug reserve: %v", err)
	}
	if err := NewSubjectRegistry(store).Reserve(ctx, "same", "t"); err != nil {
		t.Fatalf("subject reserve: %v", err)
	}
}

func TestDecommissionFreesConfirmedSlug(t *testing.T) {
	ctx := context.Background()
	reg := NewSlugRegistry(memory.NewReservations())
	if err := reg.Reserve(ctx, "acme-corp", "acme-corp"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := reg.Confirm(ctx, "acme-corp", "t-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := reg.Decommission(ctx, "acme-corp"); err != nil {
		t.Fatalf("decommission: %v", err)
	}
	if err := reg.Reserve(ctx, "acme-corp", "acme-corp"); err != nil {
		t.Fatalf("reserve after decommission: %v", err)
	}
}

func TestEmptyKeyIsValidationError(t *testing.T) {
	reg := NewSubjectRegistry(memory.NewReservations())
	if err := reg.Reserve(context.Background(), "  ", "t"); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

type failingStore struct {
	storage.ReservationStore
	err error
}

func (f failingStore) InsertUnique(context.Context, storage.Reservation) error { return f.err }

func TestReservePropagatesInfrastructureErrors(t *testing.T) {
	boom := errors.New("disk full")
	reg := NewSubjectRegistry(failingStore{err: boom})
	err := reg.Reserve(context.Background(), "sub-1", "t")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped disk error", err)
	}
	if errors.Is(err, apperrors.ErrConflict) {
		t.Fatal("infrastructure failure must not look like a conflict")
	}
}
