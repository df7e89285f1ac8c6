// Package provisioning implements idempotent "ensure exists" creation of
// aggregates that own a globally unique natural key.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/platform/otel"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/command"
)

const (
	defaultAttempts  = 5
	defaultBaseDelay = 50 * time.Millisecond
)

// Reservations is the registry protocol the orchestrator drives.
type Reservations interface {
	Reserve(ctx context.Context, key, tenantID string) error
	Confirm(ctx context.Context, key, ownerRef string) error
	Release(ctx context.Context, key string) error
	Lookup(ctx context.Context, key string) (string, bool, error)
}

// Config bounds the race-resolution lookups after a lost reservation.
type Config struct {
	// Attempts is the number of lookups after a conflict.
	Attempts int
	// BaseDelay is multiplied by the attempt number before each lookup.
	BaseDelay time.Duration
}

// DefaultConfig returns 5 attempts at 50ms, 100ms, ... 250ms.
func DefaultConfig() Config {
	return Config{Attempts: defaultAttempts, BaseDelay: defaultBaseDelay}
}

// Orchestrator ensures exactly one aggregate exists per natural key.
type Orchestrator[A any] struct {
	Reservations Reservations
	// OwnerTenant loads an existing owner and returns its tenant id.
	OwnerTenant func(ctx context.Context, ownerID string) (string, error)
	// Create constructs and persists a new owner, returning its id.
	Create func(ctx context.Context, meta command.Meta, key, tenantID string, attrs A) (string, error)
	Config Config
	// Logf reports failed compensations; defaults to log.Printf.
	Logf func(format string, args ...any)
}

// EnsureExists returns the id of the aggregate owning key, creating it under
// tenantID if none exists. Safe to call concurrently for the same key.
func (o *Orchestrator[A]) EnsureExists(ctx context.Context, meta command.Meta, key, tenantID string, attrs A) (string, error) {
	ctx, span := otel.Tracer("tenancy/provisioning").Start(ctx, "provisioning.EnsureExists", trace.WithAttributes(
		attribute.String("tenancy.key", key),
		attribute.String("tenancy.tenant_id", tenantID),
	))
	defer span.End()

	id, path, err := o.ensure(ctx, meta, key, tenantID, attrs)
	span.SetAttributes(attribute.String("tenancy.provisioning.path", path))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return id, nil
}

func (o *Orchestrator[A]) ensure(ctx context.Context, meta command.Meta, key, tenantID string, attrs A) (string, string, error) {
	if id, found, err := o.existing(ctx, key, tenantID); err != nil || found {
		return id, "fast", err
	}

	reserveErr := o.Reservations.Reserve(ctx, key, tenantID)
	if errors.Is(reserveErr, apperrors.ErrConflict) {
		id, err := o.awaitWinner(ctx, key, tenantID, reserveErr)
		return id, "race", err
	}
	if reserveErr != nil {
		return "", "reserve", reserveErr
	}

	id, err := o.createReserved(ctx, meta, key, tenantID, attrs)
	return id, "create", err
}

// existing resolves the confirmed owner of key, rejecting a tenant mismatch.
func (o *Orchestrator[A]) existing(ctx context.Context, key, tenantID string) (string, bool, error) {
	ownerID, found, err := o.Reservations.Lookup(ctx, key)
	if err != nil || !found {
		return "", false, err
	}
	ownerTenant, err := o.OwnerTenant(ctx, ownerID)
	if err != nil {
		return "", false, fmt.Errorf("load owner %s: %w", ownerID, err)
	}
	if ownerTenant != tenantID {
		return "", false, apperrors.WithMetadata(
			apperrors.CodeConflict,
			fmt.Sprintf("%q already provisioned under a different tenant", key),
			map[string]string{"key": key},
		)
	}
	return ownerID, true, nil
}

// awaitWinner polls for the concurrent winner's confirmation.
func (o *Orchestrator[A]) awaitWinner(ctx context.Context, key, tenantID string, conflict error) (string, error) {
	cfg := o.config()
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := sleep(ctx, cfg.BaseDelay*time.Duration(attempt)); err != nil {
			return "", err
		}
		id, found, err := o.existing(ctx, key, tenantID)
		if err != nil {
			return "", err
		}
		if found {
			return id, nil
		}
	}
	return "", conflict
}

// createReserved persists the owner while key is reserved. Any failure
// before persistence completes releases the reservation.
func (o *Orchestrator[A]) createReserved(ctx context.Context, meta command.Meta, key, tenantID string, attrs A) (id string, err error) {
	persisted := false
	defer func() {
		if persisted {
			return
		}
		// Runs on error and on panic.
		if relErr := o.Reservations.Release(context.WithoutCancel(ctx), key); relErr != nil {
			o.logf("provisioning: release %q after failed create: %v", key, relErr)
		}
	}()

	id, err = o.Create(ctx, meta, key, tenantID, attrs)
	if err != nil {
		return "", err
	}
	persisted = true

	if err := o.Reservations.Confirm(ctx, key, id); err != nil {
		return "", fmt.Errorf("confirm %q for %s: %w", key, id, err)
	}
	return id, nil
}

func (o *Orchestrator[A]) config() Config {
	cfg := o.Config
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	return cfg
}

func (o *Orchestrator[A]) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
