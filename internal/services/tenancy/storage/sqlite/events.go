package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage/sqlite/migrations"
)

// EventStore is the event log and reservation table of one sqlite file.
type EventStore struct {
	sqlDB    *sql.DB
	notifier *Notifier
}

// OpenEventsOption customizes an EventStore.
type OpenEventsOption func(*EventStore)

// WithNotifier shares n instead of a private notifier.
func WithNotifier(n *Notifier) OpenEventsOption {
	return func(s *EventStore) {
		if n != nil {
			s.notifier = n
		}
	}
}

// OpenEvents opens the event store at path, applying migrations.
func OpenEvents(path string, opts ...OpenEventsOption) (*EventStore, error) {
	sqlDB, err := openDB(path, migrations.EventsFS, "events")
	if err != nil {
		return nil, err
	}
	store := &EventStore{sqlDB: sqlDB, notifier: NewNotifier()}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Notifier returns the notifier signalled after each append.
func (s *EventStore) Notifier() *Notifier { return s.notifier }

// Close closes the underlying database. Nil-safe.
func (s *EventStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append implements storage.EventLog.
func (s *EventStore) Append(ctx context.Context, originatorID string, expectedVersion uint64, events []event.Event) error {
	originatorID = strings.TrimSpace(originatorID)
	if originatorID == "" {
		return fmt.Errorf("originator id is required")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer rollback(tx)

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(originator_version), 0) FROM events WHERE originator_id = ?`,
		originatorID,
	).Scan(&current); err != nil {
		return fmt.Errorf("read aggregate version: %w", err)
	}
	if uint64(current) != expectedVersion {
		return storage.ErrVersionConflict
	}

	for i, evt := range events {
		if evt.OriginatorID != originatorID || evt.OriginatorVersion != expectedVersion+uint64(i)+1 {
			return fmt.Errorf("append %s: event %d does not continue the stream: %w", originatorID, i, storage.ErrVersionConflict)
		}
		payload, err := event.Encode(evt.Payload)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (
				originator_id, originator_version, kind, tenant_id,
				correlation_id, causation_id, user_id, occurred_at, payload_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			evt.OriginatorID,
			int64(evt.OriginatorVersion),
			string(evt.Kind),
			evt.TenantID,
			evt.CorrelationID,
			evt.CausationID,
			evt.UserID,
			toMillis(evt.Timestamp),
			payload,
		)
		if err != nil {
			if isConstraintError(err) {
				return storage.ErrVersionConflict
			}
			return fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	s.notifier.Notify()
	return nil
}

// Load implements storage.EventLog.
func (s *EventStore) Load(ctx context.Context, originatorID string) ([]event.Event, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE originator_id = ? ORDER BY originator_version`,
		originatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	notifications, err := scanNotifications(rows)
	if err != nil {
		return nil, err
	}
	if len(notifications) == 0 {
		return nil, storage.ErrNotFound
	}
	events := make([]event.Event, len(notifications))
	for i, n := range notifications {
		events[i] = n.Event
	}
	return events, nil
}

// ReadSince implements storage.EventReader.
func (s *EventStore) ReadSince(ctx context.Context, after uint64, limit int) ([]event.Notification, error) {
	return readSince(ctx, s.sqlDB, after, limit)
}

// LastNotificationID implements storage.EventReader.
func (s *EventStore) LastNotificationID(ctx context.Context) (uint64, error) {
	return lastNotificationID(ctx, s.sqlDB)
}

const eventColumns = `notification_id, originator_id, originator_version, kind, tenant_id,
	correlation_id, causation_id, user_id, occurred_at, payload_json`

func readSince(ctx context.Context, q queryer, after uint64, limit int) ([]event.Notification, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE notification_id > ? ORDER BY notification_id LIMIT ?`,
		int64(after), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return scanNotifications(rows)
}

func lastNotificationID(ctx context.Context, q queryer) (uint64, error) {
	var last int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(notification_id), 0) FROM events`).Scan(&last); err != nil {
		return 0, fmt.Errorf("read last notification id: %w", err)
	}
	return uint64(last), nil
}

func scanNotifications(rows *sql.Rows) ([]event.Notification, error) {
	defer rows.Close()
	var out []event.Notification
	for rows.Next() {
		var (
			id, version, occurredAt int64
			kind                    string
			payload                 []byte
			evt                     event.Event
		)
		if err := rows.Scan(&id, &evt.OriginatorID, &version, &kind, &evt.TenantID,
			&evt.CorrelationID, &evt.CausationID, &evt.UserID, &occurredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.OriginatorVersion = uint64(version)
		evt.Kind = event.Kind(kind)
		evt.Timestamp = fromMillis(occurredAt)
		decoded, err := event.Decode(evt.Kind, payload)
		if err != nil {
			return nil, fmt.Errorf("notification %d: %w", id, err)
		}
		evt.Payload = decoded
		out = append(out, event.Notification{ID: uint64(id), Event: evt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// EventReader is a read-only handle on the event log, one per subscriber.
type EventReader struct {
	sqlDB *sql.DB
}

// OpenEventsReader opens a separate handle for reading notifications. The
// writer must have created the schema.
func OpenEventsReader(path string) (*EventReader, error) {
	sqlDB, err := openDB(path, nil, "")
	if err != nil {
		return nil, err
	}
	return &EventReader{sqlDB: sqlDB}, nil
}

// ReadSince implements storage.EventReader.
func (r *EventReader) ReadSince(ctx context.Context, after uint64, limit int) ([]event.Notification, error) {
	return readSince(ctx, r.sqlDB, after, limit)
}

// LastNotificationID implements storage.EventReader.
func (r *EventReader) LastNotificationID(ctx context.Context) (uint64, error) {
	return lastNotificationID(ctx, r.sqlDB)
}

// Close closes the handle. Nil-safe.
func (r *EventReader) Close() error {
	if r == nil || r.sqlDB == nil {
		return nil
	}
	return r.sqlDB.Close()
}

var (
	_ storage.EventLog    = (*EventStore)(nil)
	_ storage.EventReader = (*EventReader)(nil)
)
