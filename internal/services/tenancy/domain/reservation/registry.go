// Package reservation manufactures global uniqueness for natural keys such as
// tenant slugs and external identity subjects.
//
// A key is reserved before its owning aggregate is persisted, confirmed once
// the aggregate is durable, and released if creation fails.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

// Namespaces partition the reservation table.
const (
	NamespaceSlug    = "slug"
	NamespaceSubject = "subject"
)

// Registry runs the reservation protocol for one namespace.
type Registry struct {
	store     storage.ReservationStore
	namespace string
	now       func() time.Time
}

// NewRegistry builds a registry over store for namespace.
func NewRegistry(store storage.ReservationStore, namespace string) *Registry {
	return &Registry{store: store, namespace: namespace, now: time.Now}
}

// NewSubjectRegistry builds the external-subject registry.
func NewSubjectRegistry(store storage.ReservationStore) *Registry {
	return NewRegistry(store, NamespaceSubject)
}

// Reserve claims key for tenantID. A key held by any row, confirmed or not,
// yields a CONFLICT naming the key.
func (r *Registry) Reserve(ctx context.Context, key, tenantID string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	err = r.store.InsertUnique(ctx, storage.Reservation{
		Namespace:  r.namespace,
		Key:        key,
		TenantID:   tenantID,
		ReservedAt: r.now().UTC(),
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return apperrors.WrapWithMetadata(
			apperrors.CodeConflict,
			fmt.Sprintf("%s %q is already reserved", r.namespace, key),
			map[string]string{"namespace": r.namespace, "key": key},
			err,
		)
	}
	if err != nil {
		return fmt.Errorf("reserve %s %q: %w", r.namespace, key, err)
	}
	return nil
}

// Confirm binds key to ownerRef once the owner is durable.
func (r *Registry) Confirm(ctx context.Context, key, ownerRef string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if strings.TrimSpace(ownerRef) == "" {
		return apperrors.New(apperrors.CodeValidation, "reservation owner is required")
	}
	err = r.store.UpdateConfirm(ctx, r.namespace, key, ownerRef)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.WrapWithMetadata(
			apperrors.CodeNotFound,
			fmt.Sprintf("%s %q has no reservation to confirm", r.namespace, key),
			map[string]string{"namespace": r.namespace, "key": key},
			err,
		)
	case errors.Is(err, storage.ErrDuplicateKey):
		return apperrors.WrapWithMetadata(
			apperrors.CodeConflict,
			fmt.Sprintf("%s %q is confirmed to another owner", r.namespace, key),
			map[string]string{"namespace": r.namespace, "key": key},
			err,
		)
	case err != nil:
		return fmt.Errorf("confirm %s %q: %w", r.namespace, key, err)
	}
	return nil
}

// Release drops an unconfirmed reservation. Missing and confirmed rows are
// left alone.
func (r *Registry) Release(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if err := r.store.DeleteIfUnconfirmed(ctx, r.namespace, key); err != nil {
		return fmt.Errorf("release %s %q: %w", r.namespace, key, err)
	}
	return nil
}

// Lookup returns the confirmed owner of key.
func (r *Registry) Lookup(ctx context.Context, key string) (string, bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", false, err
	}
	row, err := r.store.SelectConfirmed(ctx, r.namespace, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s %q: %w", r.namespace, key, err)
	}
	return row.OwnerRef, true, nil
}

// SlugRegistry is the slug registry; retired slugs can be freed for reuse.
type SlugRegistry struct {
	*Registry
}

// NewSlugRegistry builds the slug registry.
func NewSlugRegistry(store storage.ReservationStore) *SlugRegistry {
	return &SlugRegistry{Registry: NewRegistry(store, NamespaceSlug)}
}

// Decommission deletes the slug's reservation in any state.
func (r *SlugRegistry) Decommission(ctx context.Context, slug string) error {
	slug, err := normalizeKey(slug)
	if err != nil {
		return err
	}
	if err := r.store.DeleteUnconditional(ctx, r.namespace, slug); err != nil {
		return fmt.Errorf("decommission %s %q: %w", r.namespace, slug, err)
	}
	return nil
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", apperrors.New(apperrors.CodeValidation, "reservation key is required")
	}
	return key, nil
}
