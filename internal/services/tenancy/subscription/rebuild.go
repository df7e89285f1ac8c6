package subscription

import (
	"context"
	"fmt"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

// Rebuilder rewinds a stopped runner's projection to the start of the log.
type Rebuilder struct {
	Tracking storage.TrackingStore
}

// Rebuild clears the read model and resets tracking to zero. The runner must
// be stopped and is left stopped; the caller restarts it to replay.
func (b Rebuilder) Rebuild(ctx context.Context, r *Runner) error {
	if state := r.State(); state != Stopped {
		return apperrors.WithMetadata(apperrors.CodeInvalidStateTransition,
			fmt.Sprintf("rebuild %s: runner is %s", r.Name(), state),
			map[string]string{"runner": r.Name(), "state": state.String()})
	}
	if err := r.Projection().ClearReadModel(ctx); err != nil {
		return fmt.Errorf("rebuild %s: clear read model: %w", r.Name(), err)
	}
	if err := b.Tracking.ResetTracking(ctx, r.Name()); err != nil {
		return fmt.Errorf("rebuild %s: reset tracking: %w", r.Name(), err)
	}
	return nil
}
