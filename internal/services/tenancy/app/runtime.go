// Package app wires the tenancy core: stores, registries, repositories,
// provisioners and the projection runners.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/platform/id"
	"github.com/louisbranch/tenantcore/internal/platform/timeouts"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/aggregate"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/agent"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/command"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/provisioning"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/reservation"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/tenant"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/user"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/projection"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage/postgres"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage/sqlite"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/subscription"
)

// Reservation backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

const (
	defaultEventsDB      = "data/tenancy-events.db"
	defaultProjectionsDB = "data/tenancy-projections.db"
	defaultMaxRunners    = 8
)

// Config controls runtime startup.
type Config struct {
	EventsDBPath       string
	ProjectionsDBPath  string
	ReservationBackend string
	PostgresDSN        string
	PollInterval       time.Duration
	StopTimeout        time.Duration
	MaxRunners         int
	BatchSize          int
	Port               int
	Provisioning       provisioning.Config
	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

func (c Config) normalized() Config {
	if strings.TrimSpace(c.EventsDBPath) == "" {
		c.EventsDBPath = defaultEventsDB
	}
	if strings.TrimSpace(c.ProjectionsDBPath) == "" {
		c.ProjectionsDBPath = defaultProjectionsDB
	}
	if strings.TrimSpace(c.ReservationBackend) == "" {
		c.ReservationBackend = BackendSQLite
	}
	if c.MaxRunners == 0 {
		c.MaxRunners = defaultMaxRunners
	}
	if c.Logf == nil {
		c.Logf = log.Printf
	}
	return c
}

// Runtime holds the wired tenancy services.
type Runtime struct {
	Tenants *aggregate.Repository[*tenant.Tenant]
	Agents  *aggregate.Repository[*agent.Agent]
	Users   *aggregate.Repository[*user.User]

	Slugs    *reservation.SlugRegistry
	Subjects *reservation.Registry

	TenantProvisioner *provisioning.Orchestrator[provisioning.TenantAttrs]
	UserProvisioner   *provisioning.Orchestrator[provisioning.UserAttrs]

	// ReadModels serves the projected tenants, users and API keys.
	ReadModels storage.ReadModelStore
	Runners    *subscription.Manager

	rebuilder   subscription.Rebuilder
	events      *sqlite.EventStore
	projections *sqlite.ProjectionStore
	pg          *postgres.ReservationStore
	logf        func(format string, args ...any)
}

// Bootstrap opens the stores and wires every service. Runners are created
// stopped. Any storage failure aborts startup.
func Bootstrap(ctx context.Context, cfg Config) (_ *Runtime, err error) {
	cfg = cfg.normalized()
	rt := &Runtime{logf: cfg.Logf}
	defer func() {
		if err != nil {
			if closeErr := rt.Close(); closeErr != nil {
				cfg.Logf("tenancy: close after failed bootstrap: %v", closeErr)
			}
		}
	}()

	rt.events, err = sqlite.OpenEvents(cfg.EventsDBPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "open event store", err)
	}
	rt.projections, err = sqlite.OpenProjections(cfg.ProjectionsDBPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "open projection store", err)
	}

	var reservations storage.ReservationStore
	switch cfg.ReservationBackend {
	case BackendSQLite:
		reservations = rt.events
	case BackendPostgres:
		openCtx, cancel := context.WithTimeout(ctx, timeouts.StoreOpen)
		defer cancel()
		rt.pg, err = postgres.Connect(openCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeUnavailable, "connect reservation store", err)
		}
		if err = rt.pg.EnsureSchema(openCtx); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeUnavailable, "prepare reservation store", err)
		}
		reservations = rt.pg
	default:
		return nil, fmt.Errorf("unknown reservation backend %q", cfg.ReservationBackend)
	}

	rt.Tenants = aggregate.NewRepository(rt.events, tenant.New)
	rt.Agents = aggregate.NewRepository(rt.events, agent.New)
	rt.Users = aggregate.NewRepository(rt.events, user.New)
	rt.Slugs = reservation.NewSlugRegistry(reservations)
	rt.Subjects = reservation.NewSubjectRegistry(reservations)

	provCfg := cfg.Provisioning
	if provCfg == (provisioning.Config{}) {
		provCfg = provisioning.DefaultConfig()
	}
	rt.TenantProvisioner = provisioning.NewTenantProvisioner(rt.Slugs, rt.Tenants, id.NewID, provCfg)
	rt.TenantProvisioner.Logf = cfg.Logf
	rt.UserProvisioner = provisioning.NewUserProvisioner(rt.Subjects, rt.Users, id.NewID, provCfg)
	rt.UserProvisioner.Logf = cfg.Logf

	rt.ReadModels = rt.projections
	rt.rebuilder = subscription.Rebuilder{Tracking: rt.projections}
	runnerCfg := subscription.Config{
		PollInterval: cfg.PollInterval,
		StopTimeout:  cfg.StopTimeout,
		BatchSize:    cfg.BatchSize,
		Logf:         cfg.Logf,
	}
	var runners []*subscription.Runner
	for _, reg := range projection.Registrations(rt.projections) {
		connect := connector(cfg.EventsDBPath, cfg.ProjectionsDBPath, rt.events.Notifier(), reg.New)
		runners = append(runners, subscription.NewRunner(reg.Projection, reg.Upstream, connect, runnerCfg))
	}
	rt.Runners = subscription.NewManager(runners, cfg.MaxRunners, cfg.Logf)
	return rt, nil
}

// connector gives each runner its own event reader, projection connection
// and wake-up subscription. The projection the runner drives is bound to that
// connection, so its read-model writes and tracking commit through a handle no
// other runner shares.
func connector(eventsPath, projectionsPath string, notifier *sqlite.Notifier, bind projection.Factory) subscription.Connector {
	return func(context.Context) (subscription.Resources, error) {
		events, err := sqlite.OpenEventsReader(eventsPath)
		if err != nil {
			return subscription.Resources{}, err
		}
		store, err := sqlite.OpenProjections(projectionsPath)
		if err != nil {
			_ = events.Close()
			return subscription.Resources{}, err
		}
		wake, unsubscribe := notifier.Subscribe()
		return subscription.Resources{
			Events:        events,
			Tracking:      store,
			Projection:    bind(store),
			Notifications: wake,
			Close: func() error {
				unsubscribe()
				return errors.Join(events.Close(), store.Close())
			},
		}, nil
	}
}

// Start starts every projection runner.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.Runners.Start(ctx)
}

// Stop stops every projection runner in reverse order.
func (rt *Runtime) Stop(ctx context.Context) error {
	return rt.Runners.Stop(ctx)
}

// Rebuild stops the named runner, clears its read model, rewinds its
// tracking and starts it again to replay the log.
func (rt *Runtime) Rebuild(ctx context.Context, name string) error {
	r, ok := rt.Runners.Runner(name)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("projection %q is not running in this process", name),
			map[string]string{"projection": name})
	}
	if err := r.Stop(ctx); err != nil {
		return err
	}
	if err := rt.rebuilder.Rebuild(ctx, r); err != nil {
		return err
	}
	return r.Start(ctx)
}

// DecommissionTenant retires the tenant and frees its slug. The aggregate is
// saved first so a failed slug release can be retried; both steps tolerate
// an already retired tenant.
func (rt *Runtime) DecommissionTenant(ctx context.Context, meta command.Meta, tenantID string) error {
	t, err := rt.Tenants.Load(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := t.Decommission(meta); err != nil {
		return err
	}
	if err := rt.Tenants.Save(ctx, t); err != nil {
		return err
	}
	return rt.Slugs.Decommission(ctx, t.Slug)
}

// Close releases the stores. Runners must be stopped first.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.events != nil {
		errs = append(errs, rt.events.Close())
	}
	if rt.projections != nil {
		errs = append(errs, rt.projections.Close())
	}
	rt.pg.Close()
	return errors.Join(errs...)
}
