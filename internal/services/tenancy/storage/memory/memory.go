// Package memory provides in-process event log and reservation stores for
// tests and single-process embedding.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

// EventLog stores events in memory.
type EventLog struct {
	mu      sync.Mutex
	streams map[string][]event.Event
	log     []event.Notification
}

// NewEventLog creates an empty in-memory event log.
func NewEventLog() *EventLog {
	return &EventLog{streams: make(map[string][]event.Event)}
}

// Append implements storage.EventLog.
func (l *EventLog) Append(ctx context.Context, originatorID string, expectedVersion uint64, events []event.Event) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	originatorID = strings.TrimSpace(originatorID)
	if originatorID == "" {
		return errors.New("originator id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	stream := l.streams[originatorID]
	if uint64(len(stream)) != expectedVersion {
		return storage.ErrVersionConflict
	}
	for i, evt := range events {
		if evt.OriginatorID != originatorID || evt.OriginatorVersion != expectedVersion+uint64(i)+1 {
			return storage.ErrVersionConflict
		}
	}
	for _, evt := range events {
		stream = append(stream, evt)
		l.log = append(l.log, event.Notification{ID: uint64(len(l.log)) + 1, Event: evt})
	}
	l.streams[originatorID] = stream
	return nil
}

// Load implements storage.EventLog.
func (l *EventLog) Load(ctx context.Context, originatorID string) ([]event.Event, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	stream, ok := l.streams[originatorID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]event.Event, len(stream))
	copy(out, stream)
	return out, nil
}

// ReadSince implements storage.EventReader.
func (l *EventLog) ReadSince(ctx context.Context, after uint64, limit int) ([]event.Notification, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if after >= uint64(len(l.log)) {
		return nil, nil
	}
	rest := l.log[after:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]event.Notification, len(rest))
	copy(out, rest)
	return out, nil
}

// LastNotificationID implements storage.EventReader.
func (l *EventLog) LastNotificationID(ctx context.Context) (uint64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.log)), nil
}

type reservationKey struct {
	namespace string
	key       string
}

// Reservations stores reservation rows in memory.
type Reservations struct {
	mu   sync.Mutex
	rows map[reservationKey]storage.Reservation
}

// NewReservations creates an empty in-memory reservation store.
func NewReservations() *Reservations {
	return &Reservations{rows: make(map[reservationKey]storage.Reservation)}
}

// InsertUnique implements storage.ReservationStore.
func (r *Reservations) InsertUnique(ctx context.Context, res storage.Reservation) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := reservationKey{res.Namespace, res.Key}
	if _, exists := r.rows[k]; exists {
		return storage.ErrDuplicateKey
	}
	res.OwnerRef = ""
	res.Confirmed = false
	r.rows[k] = res
	return nil
}

// UpdateConfirm implements storage.ReservationStore.
func (r *Reservations) UpdateConfirm(ctx context.Context, namespace, key, ownerRef string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := reservationKey{namespace, key}
	row, ok := r.rows[k]
	if !ok {
		return storage.ErrNotFound
	}
	if row.Confirmed && row.OwnerRef != ownerRef {
		return storage.ErrDuplicateKey
	}
	row.OwnerRef = ownerRef
	row.Confirmed = true
	r.rows[k] = row
	return nil
}

// DeleteIfUnconfirmed implements storage.ReservationStore.
func (r *Reservations) DeleteIfUnconfirmed(ctx context.Context, namespace, key string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := reservationKey{namespace, key}
	if row, ok := r.rows[k]; ok && !row.Confirmed {
		delete(r.rows, k)
	}
	return nil
}

// DeleteUnconditional implements storage.ReservationStore.
func (r *Reservations) DeleteUnconditional(ctx context.Context, namespace, key string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, reservationKey{namespace, key})
	return nil
}

// SelectConfirmed implements storage.ReservationStore.
func (r *Reservations) SelectConfirmed(ctx context.Context, namespace, key string) (storage.Reservation, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.Reservation{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[reservationKey{namespace, key}]
	if !ok || !row.Confirmed {
		return storage.Reservation{}, storage.ErrNotFound
	}
	return row, nil
}

// Len returns the number of rows in any state.
func (r *Reservations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Unconfirmed returns the number of rows not yet confirmed.
func (r *Reservations) Unconfirmed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if !row.Confirmed {
			n++
		}
	}
	return n
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

var (
	_ storage.EventLog         = (*EventLog)(nil)
	_ storage.ReservationStore = (*Reservations)(nil)
)
