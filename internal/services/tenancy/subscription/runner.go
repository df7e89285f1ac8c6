// Package subscription drives projections from the event log in the
// background, one runner per projection.
package subscription

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/platform/otel"
	"github.com/louisbranch/tenantcore/internal/platform/timeouts"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/projection"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

const defaultBatchSize = 256

// State is a runner lifecycle state.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Resources are the per-runner handles acquired on Start and released on Stop.
type Resources struct {
	Events   storage.EventReader
	Tracking storage.PositionReader
	// Projection is the runner's projection bound to its own connection, so
	// read-model writes and tracking commit through a handle no other runner
	// uses. Nil falls back to the projection the runner was created with.
	Projection projection.Projection
	// Notifications wakes the loop after appends. Nil means poll only.
	Notifications <-chan struct{}
	Close         func() error
}

// Connector acquires fresh resources for one runner.
type Connector func(ctx context.Context) (Resources, error)

// Config tunes a runner.
type Config struct {
	PollInterval time.Duration
	StopTimeout  time.Duration
	BatchSize    int
	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = timeouts.RunnerPoll
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = timeouts.RunnerStop
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Logf == nil {
		c.Logf = log.Printf
	}
	return c
}

// Runner feeds one projection from one upstream log.
type Runner struct {
	projection projection.Projection
	upstream   string
	connect    Connector
	cfg        Config

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	res    Resources
}

// NewRunner creates a stopped runner.
func NewRunner(p projection.Projection, upstream string, connect Connector, cfg Config) *Runner {
	return &Runner{
		projection: p,
		upstream:   upstream,
		connect:    connect,
		cfg:        cfg.normalized(),
	}
}

// Name returns the projection name.
func (r *Runner) Name() string { return r.projection.Name() }

// Projection returns the projection the runner drives.
func (r *Runner) Projection() projection.Projection { return r.projection }

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start acquires resources and launches the background loop. A catch-up
// pass runs before the loop first waits. Start on a runner that is not
// stopped fails.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Stopped {
		state := r.state
		r.mu.Unlock()
		return apperrors.WithMetadata(apperrors.CodeInvalidStateTransition,
			fmt.Sprintf("runner %s is %s", r.Name(), state),
			map[string]string{"runner": r.Name(), "state": state.String()})
	}
	r.state = Starting
	r.mu.Unlock()

	res, err := r.connect(ctx)
	if err != nil {
		r.setState(Stopped)
		return apperrors.Wrap(apperrors.CodeUnavailable, fmt.Sprintf("connect runner %s", r.Name()), err)
	}
	if res.Projection != nil && res.Projection.Name() != r.Name() {
		if res.Close != nil {
			_ = res.Close()
		}
		r.setState(Stopped)
		return fmt.Errorf("connect runner %s: resources project %s", r.Name(), res.Projection.Name())
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.res = res
	r.state = Running
	r.mu.Unlock()

	go r.loop(loopCtx, res, done)
	return nil
}

// Stop cancels the loop and waits up to StopTimeout for it to drain, then
// releases resources. A loop that outlives the wait keeps the runner
// STOPPING until it exits, so Start and Rebuild are refused meanwhile. Stop
// on a runner that is not running is a no-op.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Running {
		state := r.state
		r.mu.Unlock()
		r.cfg.Logf("subscription: stop %s ignored: runner is %s", r.Name(), state)
		return nil
	}
	r.state = Stopping
	cancel, done, res := r.cancel, r.done, r.res
	r.mu.Unlock()

	cancel()
	timer := time.NewTimer(r.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		r.release(res)
		return nil
	case <-timer.C:
		r.cfg.Logf("subscription: warning: runner %s (upstream %s) did not stop within %s", r.Name(), r.upstream, r.cfg.StopTimeout)
	case <-ctx.Done():
		r.cfg.Logf("subscription: warning: stop %s (upstream %s) abandoned: %v", r.Name(), r.upstream, ctx.Err())
	}
	go func() {
		<-done
		r.release(res)
	}()
	return nil
}

// release closes the loop's resources and marks the runner stopped. It runs
// only after the loop has exited.
func (r *Runner) release(res Resources) {
	if res.Close != nil {
		if err := res.Close(); err != nil {
			r.cfg.Logf("subscription: close %s resources: %v", r.Name(), err)
		}
	}
	r.mu.Lock()
	r.cancel = nil
	r.done = nil
	r.res = Resources{}
	r.state = Stopped
	r.mu.Unlock()
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Runner) loop(ctx context.Context, res Resources, done chan struct{}) {
	defer close(done)

	r.catchUp(ctx, res)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-res.Notifications:
		case <-ticker.C:
		}
		r.catchUp(ctx, res)
	}
}

// catchUp processes every notification past the stored position. Errors end
// the pass; the next wake resumes from the last committed position.
func (r *Runner) catchUp(ctx context.Context, res Resources) {
	ctx, span := otel.Tracer("tenancy/subscription").Start(ctx, "subscription.CatchUp", trace.WithAttributes(
		attribute.String("tenancy.projection", r.Name()),
		attribute.String("tenancy.upstream", r.upstream),
	))
	defer span.End()

	processed, err := r.drain(ctx, res)
	span.SetAttributes(attribute.Int("tenancy.subscription.processed", processed))
	if err != nil && ctx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.cfg.Logf("subscription: %s (upstream %s): %v", r.Name(), r.upstream, err)
	}
}

func (r *Runner) drain(ctx context.Context, res Resources) (int, error) {
	name := r.Name()
	p := r.projection
	if res.Projection != nil {
		p = res.Projection
	}
	after, err := res.Tracking.Position(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("read position: %w", err)
	}
	processed := 0
	for {
		batch, err := res.Events.ReadSince(ctx, after, r.cfg.BatchSize)
		if err != nil {
			return processed, fmt.Errorf("read events after %d: %w", after, err)
		}
		for _, n := range batch {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if err := p.Process(ctx, n, projection.Tracking{ProjectionName: name, NotificationID: n.ID}); err != nil {
				return processed, err
			}
			after = n.ID
			processed++
		}
		if len(batch) < r.cfg.BatchSize {
			return processed, nil
		}
	}
}
