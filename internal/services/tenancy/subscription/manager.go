package subscription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
)

// Manager starts and stops a capped group of runners together.
type Manager struct {
	runners []*Runner
	logf    func(format string, args ...any)
}

// NewManager keeps the first maxRunners runners and logs a warning naming
// the dropped ones. A non-positive maxRunners disables the cap.
func NewManager(runners []*Runner, maxRunners int, logf func(format string, args ...any)) *Manager {
	if logf == nil {
		logf = log.Printf
	}
	if maxRunners > 0 && len(runners) > maxRunners {
		dropped := make([]string, 0, len(runners)-maxRunners)
		for _, r := range runners[maxRunners:] {
			dropped = append(dropped, r.Name())
		}
		err := apperrors.WithMetadata(apperrors.CodeResourceExhausted,
			fmt.Sprintf("%d runners requested, cap is %d", len(runners), maxRunners),
			map[string]string{"dropped": strings.Join(dropped, ",")})
		logf("subscription: warning: %s: %v; dropping %s", err.Code, err, strings.Join(dropped, ", "))
		runners = runners[:maxRunners]
	}
	return &Manager{
		runners: append([]*Runner(nil), runners...),
		logf:    logf,
	}
}

// Start starts every runner in order. If one fails, the runners already
// started are stopped in reverse order and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	for i, r := range m.runners {
		if err := r.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := m.runners[j].Stop(ctx); stopErr != nil {
					m.logf("subscription: rollback stop %s: %v", m.runners[j].Name(), stopErr)
				}
			}
			return fmt.Errorf("start runner %s: %w", r.Name(), err)
		}
	}
	return nil
}

// Stop stops every runner in reverse start order.
func (m *Manager) Stop(ctx context.Context) error {
	var errs []error
	for i := len(m.runners) - 1; i >= 0; i-- {
		if err := m.runners[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop runner %s: %w", m.runners[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Runner looks up a runner by projection name.
func (m *Manager) Runner(name string) (*Runner, bool) {
	for _, r := range m.runners {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

// Runners returns the managed runners in start order.
func (m *Manager) Runners() []*Runner {
	return append([]*Runner(nil), m.runners...)
}
