// Package command carries the caller identity and clock that every aggregate
// command threads into the events it records.
package command

import "time"

// Meta is passed explicitly to each command; nothing is read from ambient state.
type Meta struct {
	// UserID identifies the acting user, if any.
	UserID string
	// CorrelationID groups events caused by one request.
	CorrelationID string
	// CausationID names the message that caused this command.
	CausationID string
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Timestamp returns the command time in UTC at millisecond precision, the
// resolution at which event logs persist it.
func (m Meta) Timestamp() time.Time {
	now := m.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Truncate(time.Millisecond)
}
