package event

import "time"

// Kind tags an event with what happened, e.g. "tenant.suspended".
type Kind string

// AggregateType names the aggregate family that emits a kind.
type AggregateType string

const (
	AggregateTenant AggregateType = "tenant"
	AggregateAgent  AggregateType = "agent"
	AggregateUser   AggregateType = "user"
)

// Payload is the kind-specific body of an event.
type Payload interface {
	Kind() Kind
	sealed()
}

// Event is one immutable fact appended to an aggregate's history.
type Event struct {
	OriginatorID      string
	OriginatorVersion uint64
	Timestamp         time.Time
	TenantID          string
	CorrelationID     string
	CausationID       string
	UserID            string
	Kind              Kind
	Payload           Payload
}

// Notification is an event paired with its position in the global log.
type Notification struct {
	ID    uint64
	Event Event
}
