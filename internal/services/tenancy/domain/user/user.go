// Package user implements the user profile aggregate. Identity claims are
// fixed at creation; display name and preferences change by command.
package user

import (
	"maps"
	"net/mail"
	"sort"
	"strings"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/aggregate"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/command"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
)

// User is the user profile aggregate.
type User struct {
	aggregate.Root

	Subject     string
	Email       string
	DisplayName string
	Preferences map[string]string
}

// New returns an empty user for replay.
func New() *User { return &User{} }

// Create registers a user for an external identity subject.
func Create(meta command.Meta, id, tenantID, subject, email, displayName string) (*User, error) {
	id = strings.TrimSpace(id)
	tenantID = strings.TrimSpace(tenantID)
	subject = strings.TrimSpace(subject)
	email = strings.TrimSpace(email)
	displayName = strings.TrimSpace(displayName)
	switch {
	case id == "":
		return nil, aggregate.Invalid("user id is required")
	case tenantID == "":
		return nil, aggregate.Invalid("user tenant id is required")
	case subject == "":
		return nil, aggregate.Invalid("user subject is required")
	case displayName == "":
		return nil, aggregate.Invalid("display name is required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, aggregate.Invalid("email %q is invalid", email)
		}
	}
	u := &User{Root: aggregate.Root{ID: id, TenantID: tenantID}}
	if _, err := aggregate.Record(u, meta, event.UserCreated{
		Subject:     subject,
		Email:       email,
		DisplayName: displayName,
	}); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangeDisplayName sets the trimmed display name.
func (u *User) ChangeDisplayName(meta command.Meta, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return aggregate.Invalid("display name is required")
	}
	if name == u.DisplayName {
		return nil
	}
	_, err := aggregate.Record(u, meta, event.UserDisplayNameChanged{DisplayName: name})
	return err
}

// UpdatePreferences merges changes into the preference map. A nil value
// removes its key.
func (u *User) UpdatePreferences(meta command.Meta, changes map[string]*string) error {
	set := make(map[string]string)
	var removed []string
	for k, v := range changes {
		if strings.TrimSpace(k) == "" {
			return aggregate.Invalid("preference keys must not be empty")
		}
		current, exists := u.Preferences[k]
		switch {
		case v == nil && exists:
			removed = append(removed, k)
		case v != nil && (!exists || current != *v):
			set[k] = *v
		}
	}
	if len(set) == 0 && len(removed) == 0 {
		return nil
	}
	sort.Strings(removed)
	payload := event.UserPreferencesUpdated{Removed: removed}
	if len(set) > 0 {
		payload.Set = set
	}
	_, err := aggregate.Record(u, meta, payload)
	return err
}

var folds = aggregate.FoldTable[User]{
	event.KindUserCreated: aggregate.On(func(u *User, e event.UserCreated) {
		u.Subject = e.Subject
		u.Email = e.Email
		u.DisplayName = e.DisplayName
	}),
	event.KindUserDisplayNameChanged: aggregate.On(func(u *User, e event.UserDisplayNameChanged) {
		u.DisplayName = e.DisplayName
	}),
	event.KindUserPreferencesUpdated: aggregate.On(func(u *User, e event.UserPreferencesUpdated) {
		if u.Preferences == nil {
			u.Preferences = make(map[string]string, len(e.Set))
		}
		maps.Copy(u.Preferences, e.Set)
		for _, k := range e.Removed {
			delete(u.Preferences, k)
		}
	}),
}

// Fold implements aggregate.Entity.
func (u *User) Fold(evt event.Event) error {
	return folds.Fold(u, evt)
}

// FoldedKinds lists the event kinds a user folds.
func FoldedKinds() []event.Kind { return folds.Kinds() }
