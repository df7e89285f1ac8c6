package subscription

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/projection"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage/memory"
)

type fakeTracking struct {
	mu        sync.Mutex
	positions map[string]uint64
	resets    []string
}

func newFakeTracking() *fakeTracking {
	return &fakeTracking{positions: make(map[string]uint64)}
}

func (f *fakeTracking) Position(_ context.Context, name string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions[name], nil
}

func (f *fakeTracking) ResetTracking(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[name] = 0
	f.resets = append(f.resets, name)
	return nil
}

func (f *fakeTracking) set(name string, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[name] = id
}

type fakeProjection struct {
	name     string
	tracking *fakeTracking
	// fail, when set, is consulted before each notification is applied.
	fail func(n event.Notification) error
	// block, when set, stalls Process until closed.
	block chan struct{}

	mu        sync.Mutex
	seen      []uint64
	cleared   int
	active    int
	maxActive int
}

func (p *fakeProjection) Name() string { return p.name }

func (p *fakeProjection) Topics() []event.Kind { return []event.Kind{event.KindTenantCreated} }

func (p *fakeProjection) Process(_ context.Context, n event.Notification, tracking projection.Tracking) error {
	p.mu.Lock()
	p.active++
	p.maxActive = max(p.maxActive, p.active)
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if p.block != nil {
		<-p.block
	}
	if p.fail != nil {
		if err := p.fail(n); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.seen = append(p.seen, n.ID)
	p.mu.Unlock()
	p.tracking.set(tracking.ProjectionName, tracking.NotificationID)
	return nil
}

func (p *fakeProjection) ClearReadModel(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
	p.seen = nil
	return nil
}

func (p *fakeProjection) inFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *fakeProjection) peakConcurrency() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}

func (p *fakeProjection) processed() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.seen...)
}

type logBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (l *logBuffer) logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *logBuffer) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

// appendTenants creates one tenant stream per name in log.
func appendTenants(t *testing.T, log *memory.EventLog, names ...string) {
	t.Helper()
	for _, name := range names {
		p := event.TenantCreated{Slug: name, Name: name}
		err := log.Append(context.Background(), name, 0, []event.Event{{
			OriginatorID:      name,
			OriginatorVersion: 1,
			Timestamp:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			TenantID:          name,
			Kind:              p.Kind(),
			Payload:           p,
		}})
		if err != nil {
			t.Fatalf("append %s: %v", name, err)
		}
	}
}

func staticConnector(log *memory.EventLog, tracking *fakeTracking, wake <-chan struct{}, closed *[]string, name string, mu *sync.Mutex) Connector {
	return func(context.Context) (Resources, error) {
		return Resources{
			Events:        log,
			Tracking:      tracking,
			Notifications: wake,
			Close: func() error {
				if closed != nil {
					mu.Lock()
					*closed = append(*closed, name)
					mu.Unlock()
				}
				return nil
			},
		}, nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
