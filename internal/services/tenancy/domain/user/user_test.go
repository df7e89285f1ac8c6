package user

import (
	"errors"
	"reflect"
	"testing"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/aggregate"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/command"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
)

func ptr(s string) *string { return &s }

func mustUser(t *testing.T) *User {
	t.Helper()
	u, err := Create(command.Meta{}, "u-1", "acme-corp", "sub-123", "ada@example.com", "  Ada  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return u
}

func TestCreateTrimsDisplayName(t *testing.T) {
	u := mustUser(t)
	if u.DisplayName != "Ada" || u.Subject != "sub-123" || u.Version != 1 {
		t.Fatalf("user = %+v", u)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name                  string
		subject, email, label string
	}{
		{name: "missing subject", subject: " ", email: "a@example.com", label: "Ada"},
		{name: "blank display name", subject: "s", email: "a@example.com", label: "   "},
		{name: "bad email", subject: "s", email: "not-an-email", label: "Ada"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(command.Meta{}, "u-1", "acme-corp", tt.subject, tt.email, tt.label)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

func TestChangeDisplayName(t *testing.T) {
	u := mustUser(t)
	if err := u.ChangeDisplayName(command.Meta{}, "   "); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("blank err = %v, want validation", err)
	}
	if err := u.ChangeDisplayName(command.Meta{}, " Ada "); err != nil || u.Version != 1 {
		t.Fatalf("same name: err %v version %d", err, u.Version)
	}
	if err := u.ChangeDisplayName(command.Meta{}, " Grace "); err != nil {
		t.Fatalf("change: %v", err)
	}
	if u.DisplayName != "Grace" || u.Version != 2 {
		t.Fatalf("user = %q v%d", u.DisplayName, u.Version)
	}
}

func TestUpdatePreferencesMergesAndRemoves(t *testing.T) {
	u := mustUser(t)
	if err := u.UpdatePreferences(command.Meta{}, map[string]*string{"theme": ptr("dark"), "lang": ptr("en")}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := u.UpdatePreferences(command.Meta{}, map[string]*string{"theme": ptr("dark"), "lang": nil, "ghost": nil}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(u.Preferences, map[string]string{"theme": "dark"}) {
		t.Fatalf("preferences = %v", u.Preferences)
	}
	pending := u.Pending()
	last := pending[len(pending)-1].Payload.(event.UserPreferencesUpdated)
	if len(last.Set) != 0 || !reflect.DeepEqual(last.Removed, []string{"lang"}) {
		t.Fatalf("payload = %+v, want only lang removed", last)
	}
	if u.Version != 3 {
		t.Fatalf("version = %d, want 3", u.Version)
	}
}

func TestUpdatePreferencesUnchangedIsNoop(t *testing.T) {
	u := mustUser(t)
	if err := u.UpdatePreferences(command.Meta{}, map[string]*string{"theme": ptr("dark")}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := u.UpdatePreferences(command.Meta{}, map[string]*string{"theme": ptr("dark"), "gone": nil}); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if u.Version != 2 || len(u.Pending()) != 2 {
		t.Fatalf("version = %d pending = %d, want 2/2", u.Version, len(u.Pending()))
	}
}

func TestRehydrate(t *testing.T) {
	u := mustUser(t)
	_ = u.ChangeDisplayName(command.Meta{}, "Grace")
	_ = u.UpdatePreferences(command.Meta{}, map[string]*string{"theme": ptr("light")})

	replayed := New()
	if err := aggregate.Rehydrate(replayed, u.Pending()); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if replayed.DisplayName != "Grace" || replayed.Preferences["theme"] != "light" || replayed.Version != 3 {
		t.Fatalf("replayed = %+v", replayed)
	}
}

func TestFoldCoversEveryUserKind(t *testing.T) {
	if missing := folds.MissingKinds(event.AggregateUser); len(missing) != 0 {
		t.Fatalf("user fold table missing %v", missing)
	}
	if got, want := len(FoldedKinds()), len(event.KindsOf(event.AggregateUser)); got != want {
		t.Fatalf("folded kinds = %d, want %d", got, want)
	}
}
