package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/aggregate"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/command"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/reservation"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/tenant"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/user"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage/memory"
)

type countingRegistry struct {
	Reservations
	reserves atomic.Int32
	lookups  atomic.Int32
	releases atomic.Int32
}

func (c *countingRegistry) Reserve(ctx context.Context, key, tenantID string) error {
	c.reserves.Add(1)
	return c.Reservations.Reserve(ctx, key, tenantID)
}

func (c *countingRegistry) Lookup(ctx context.Context, key string) (string, bool, error) {
	c.lookups.Add(1)
	return c.Reservations.Lookup(ctx, key)
}

func (c *countingRegistry) Release(ctx context.Context, key string) error {
	c.releases.Add(1)
	return c.Reservations.Release(ctx, key)
}

type userFixture struct {
	log          *memory.EventLog
	reservations *memory.Reservations
	registry     *countingRegistry
	provisioner  *Orchestrator[UserAttrs]
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	f := &userFixture{log: memory.NewEventLog(), reservations: memory.NewReservations()}
	f.registry = &countingRegistry{Reservations: reservation.NewSubjectRegistry(f.reservations)}
	users := aggregate.NewRepository(f.log, user.New)
	var seq atomic.Int32
	newID := func() (string, error) { return fmt.Sprintf("user-%d", seq.Add(1)), nil }
	f.provisioner = NewUserProvisioner(f.registry, users, newID, Config{Attempts: 5, BaseDelay: 10 * time.Millisecond})
	f.provisioner.Logf = t.Logf
	return f
}

var ada = UserAttrs{Email: "ada@example.com", DisplayName: "Ada"}

func TestEnsureExistsSecondCallTakesFastPath(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)

	first, err := f.provisioner.EnsureExists(ctx, command.Meta{}, "sub-123", "acme-corp", ada)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	second, err := f.provisioner.EnsureExists(ctx, command.Meta{}, "sub-123", "acme-corp", ada)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if first != second {
		t.Fatalf("ids differ: %q vs %q", first, second)
	}
	if got := f.registry.reserves.Load(); got != 1 {
		t.Fatalf("reserve calls = %d, want 1", got)
	}
	if last, _ := f.log.LastNotificationID(ctx); last != 1 {
		t.Fatalf("events appended = %d, want 1", last)
	}
}

func TestEnsureExistsConcurrentCallersConverge(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ids[i], errs[i] = f.provisioner.EnsureExists(ctx, command.Meta{}, "sub-123", "acme-corp", ada)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got %q, want %q", i, ids[i], ids[0])
		}
	}
	if n := f.reservations.Unconfirmed(); n != 0 {
		t.Fatalf("dangling unconfirmed reservations = %d", n)
	}
	if last, _ := f.log.LastNotificationID(ctx); last != 1 {
		t.Fatalf("users created = %d, want 1", last)
	}
}

func TestEnsureExistsRejectsOtherTenant(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)
	if _, err := f.provisioner.EnsureExists(ctx, command.Meta{}, "sub-123", "acme-corp", ada); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	_, err := f.provisioner.EnsureExists(ctx, command.Meta{}, "sub-123", "globex", ada)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestEnsureExistsReleasesOnCreateFailure(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)

	_, err := f.provisioner.EnsureExists(ctx, command.Meta{}, "sub-123", "acme-corp", UserAttrs{DisplayName: "  "})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want the original validation error", err)
	}
	if f.reservations.Len() != 0 {
		t.Fatalf("reservation left behind: %d rows", f.reservations.Len())
	}
	if got := f.registry.releases.Load(); got != 1 {
		t.Fatalf("releases = %d, want 1", got)
	}
}

func TestEnsureExistsReleasesOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	reservations := memory.NewReservations()
	boom := errors.New("event log unavailable")
	o := &Orchestrator[UserAttrs]{
		Reservations: reservation.NewSubjectRegistry(reservations),
		OwnerTenant:  func(context.Context, string) (string, error) { return "", errors.New("unused") },
		Create: func(context.Context, command.Meta, string, string, UserAttrs) (string, error) {
			return "", boom
		},
	}
	_, err := o.EnsureExists(ctx, command.Meta{}, "sub-1", "acme", ada)
	if err != boom {
		t.Fatalf("err = %v, want original error unchanged", err)
	}
	if reservations.Len() != 0 {
		t.Fatal("expected reservation released")
	}
}

func TestEnsureExistsReleasesOnPanic(t *testing.T) {
	reservations := memory.NewReservations()
	o := &Orchestrator[UserAttrs]{
		Reservations: reservation.NewSubjectRegistry(reservations),
		Create: func(context.Context, command.Meta, string, string, UserAttrs) (string, error) {
			panic("constructor bug")
		},
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_, _ = o.EnsureExists(context.Background(), command.Meta{}, "sub-1", "acme", ada)
	}()
	if reservations.Len() != 0 {
		t.Fatal("expected reservation released after panic")
	}
}

type stuckRegistry struct {
	lookups atomic.Int32
}

func (s *stuckRegistry) Reserve(context.Context, string, string) error {
	return apperrors.New(apperrors.CodeConflict, "taken")
}
func (s *stuckRegistry) Confirm(context.Context, string, string) error { return nil }
func (s *stuckRegistry) Release(context.Context, string) error         { return nil }
func (s *stuckRegistry) Lookup(context.Context, string) (string, bool, error) {
	s.lookups.Add(1)
	return "", false, nil
}

func TestEnsureExistsGivesUpAfterBoundedLookups(t *testing.T) {
	reg := &stuckRegistry{}
	o := &Orchestrator[UserAttrs]{Reservations: reg, Config: Config{Attempts: 5, BaseDelay: time.Millisecond}}

	_, err := o.EnsureExists(context.Background(), command.Meta{}, "sub-1", "acme", ada)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("err = %v, want original conflict", err)
	}
	// fast path + five retries
	if got := reg.lookups.Load(); got != 6 {
		t.Fatalf("lookups = %d, want 6", got)
	}
}

func TestEnsureExistsBackoffHonorsCancellation(t *testing.T) {
	reg := &stuckRegistry{}
	o := &Orchestrator[UserAttrs]{Reservations: reg, Config: Config{Attempts: 5, BaseDelay: time.Hour}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.EnsureExists(ctx, command.Meta{}, "sub-1", "acme", ada)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Attempts != 5 || cfg.BaseDelay != 50*time.Millisecond {
		t.Fatalf("default config = %+v", cfg)
	}
}

func TestTenantProvisionerKeysBySlug(t *testing.T) {
	ctx := context.Background()
	log := memory.NewEventLog()
	tenants := aggregate.NewRepository(log, tenant.New)
	slugs := reservation.NewSlugRegistry(memory.NewReservations())
	o := NewTenantProvisioner(slugs, tenants, func() (string, error) { return "t-1", nil }, DefaultConfig())

	id, err := o.EnsureExists(ctx, command.Meta{}, "acme-corp", "acme-corp", TenantAttrs{Name: "Acme"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	loaded, err := tenants.Load(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Slug != "acme-corp" || loaded.TenantID != "acme-corp" || loaded.Status != tenant.StatusProvisioning {
		t.Fatalf("tenant = %+v", loaded)
	}
	owner, found, _ := slugs.Lookup(ctx, "acme-corp")
	if !found || owner != id {
		t.Fatalf("slug owner = %q %v, want %q", owner, found, id)
	}

	if _, err := o.EnsureExists(ctx, command.Meta{}, "other-co", "acme-corp", TenantAttrs{Name: "Other"}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("mismatched tenant id err = %v, want validation", err)
	}
}
