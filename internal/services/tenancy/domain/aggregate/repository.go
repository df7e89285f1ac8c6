package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

// Repository loads and saves one aggregate type from an event log.
type Repository[T Entity] struct {
	Log storage.EventLog
	// New returns an empty entity to replay into.
	New func() T
}

// NewRepository wires a repository for T.
func NewRepository[T Entity](log storage.EventLog, newEntity func() T) *Repository[T] {
	return &Repository[T]{Log: log, New: newEntity}
}

// Load rebuilds the aggregate from its history.
func (r *Repository[T]) Load(ctx context.Context, id string) (T, error) {
	var zero T
	history, err := r.Log.Load(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return zero, fmt.Errorf("load %s: %w", id, err)
	}
	if len(history) == 0 {
		return zero, apperrors.WithMetadata(apperrors.CodeNotFound, "aggregate not found", map[string]string{"id": id})
	}
	entity := r.New()
	if err := Rehydrate(entity, history); err != nil {
		return zero, fmt.Errorf("rehydrate %s: %w", id, err)
	}
	return entity, nil
}

// Save appends pending events, expecting the log to hold exactly the
// version the aggregate was loaded at.
func (r *Repository[T]) Save(ctx context.Context, entity T) error {
	root := entity.Base()
	pending := root.pending
	if len(pending) == 0 {
		return nil
	}
	expected := root.PersistedVersion()
	if err := r.Log.Append(ctx, root.ID, expected, pending); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return apperrors.WrapWithMetadata(
				apperrors.CodeConcurrencyConflict,
				fmt.Sprintf("aggregate %s changed since version %d", root.ID, expected),
				map[string]string{"id": root.ID, "expected_version": strconv.FormatUint(expected, 10)},
				err,
			)
		}
		return fmt.Errorf("save %s: %w", root.ID, err)
	}
	root.markSaved()
	return nil
}
