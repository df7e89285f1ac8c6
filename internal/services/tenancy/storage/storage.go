// Package storage declares the persistence contracts the tenancy core consumes
// and the records its read models hold.
package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrDuplicateKey indicates a native uniqueness constraint rejected a write.
var ErrDuplicateKey = apperrors.New(apperrors.CodeConflict, "duplicate key")

// ErrVersionConflict indicates the stored aggregate version moved past the
// version the writer expected.
var ErrVersionConflict = apperrors.New(apperrors.CodeConcurrencyConflict, "aggregate version conflict")

// EventLog is the append-only per-aggregate store with a global sequence.
type EventLog interface {
	// Append writes events for one aggregate if its stored version equals
	// expectedVersion. Returns ErrVersionConflict otherwise.
	Append(ctx context.Context, originatorID string, expectedVersion uint64, events []event.Event) error
	// Load returns an aggregate's history in version order.
	Load(ctx context.Context, originatorID string) ([]event.Event, error)
	EventReader
}

// EventReader reads the global log in notification order.
type EventReader interface {
	// ReadSince returns up to limit notifications with ID greater than after.
	ReadSince(ctx context.Context, after uint64, limit int) ([]event.Notification, error)
	// LastNotificationID returns the highest assigned notification ID, or 0.
	LastNotificationID(ctx context.Context) (uint64, error)
}

// Reservation is one claimed uniqueness key.
type Reservation struct {
	Namespace  string
	Key        string
	TenantID   string
	OwnerRef   string
	ReservedAt time.Time
	Confirmed  bool
}

// ReservationStore persists uniqueness reservations keyed by (namespace, key).
type ReservationStore interface {
	// InsertUnique claims a key. Returns ErrDuplicateKey when any row holds it.
	InsertUnique(ctx context.Context, r Reservation) error
	// UpdateConfirm binds an unconfirmed row to ownerRef. Returns ErrNotFound
	// when no row exists and ErrDuplicateKey when another owner confirmed it.
	UpdateConfirm(ctx context.Context, namespace, key, ownerRef string) error
	// DeleteIfUnconfirmed removes an unconfirmed row; absent rows are not an error.
	DeleteIfUnconfirmed(ctx context.Context, namespace, key string) error
	// DeleteUnconditional removes a row in any state; absent rows are not an error.
	DeleteUnconditional(ctx context.Context, namespace, key string) error
	// SelectConfirmed returns a confirmed row or ErrNotFound.
	SelectConfirmed(ctx context.Context, namespace, key string) (Reservation, error)
}

// PositionReader reads a projection's tracking position.
type PositionReader interface {
	// Position returns the last processed notification ID, or 0.
	Position(ctx context.Context, projection string) (uint64, error)
}

// TrackingStore reads and resets projection positions.
type TrackingStore interface {
	PositionReader
	// ResetTracking rewinds a projection to zero.
	ResetTracking(ctx context.Context, projection string) error
}

// ReadModelStore owns the projection tables and their tracking rows.
type ReadModelStore interface {
	TrackingStore
	// InTx runs fn in one transaction; read-model writes and tracking commit together.
	InTx(ctx context.Context, fn func(ReadModelTx) error) error

	TruncateTenants(ctx context.Context) error
	TruncateAPIKeys(ctx context.Context) error
	TruncateUsers(ctx context.Context) error

	GetTenant(ctx context.Context, id string) (TenantRecord, error)
	ListTenants(ctx context.Context) ([]TenantRecord, error)
	GetUser(ctx context.Context, id string) (UserRecord, error)
	ListUsers(ctx context.Context, tenantID string) ([]UserRecord, error)
	ListAPIKeys(ctx context.Context, agentID string) ([]APIKeyRecord, error)
}

// ReadModelTx is the write surface available inside InTx.
type ReadModelTx interface {
	// InsertTracking advances a projection position; it never moves backwards.
	InsertTracking(ctx context.Context, projection string, notificationID uint64) error

	GetTenant(ctx context.Context, id string) (TenantRecord, error)
	PutTenant(ctx context.Context, r TenantRecord) error
	GetUser(ctx context.Context, id string) (UserRecord, error)
	PutUser(ctx context.Context, r UserRecord) error
	GetAPIKey(ctx context.Context, keyID string) (APIKeyRecord, error)
	PutAPIKey(ctx context.Context, r APIKeyRecord) error
}

// TenantRecord is the tenant directory row.
type TenantRecord struct {
	ID               string
	Slug             string
	Name             string
	Status           string
	SuspensionReason string
	Config           map[string]string
	Metadata         map[string]string
	Version          uint64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserRecord is the user directory row.
type UserRecord struct {
	ID          string
	TenantID    string
	Subject     string
	Email       string
	DisplayName string
	Preferences map[string]string
	Version     uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// APIKeyRecord is one agent key as seen by authentication lookups.
type APIKeyRecord struct {
	KeyID      string
	AgentID    string
	TenantID   string
	Prefix     string
	SecretHash string
	Status     string
	IssuedAt   time.Time
	RevokedAt  *time.Time
	Version    uint64
}
