package agent

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/aggregate"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/command"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
)

var issuedAt = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func testMeta() command.Meta {
	return command.Meta{Now: func() time.Time { return issuedAt }}
}

func mustAgent(t *testing.T) *Agent {
	t.Helper()
	a, err := Create(testMeta(), "a-1", "acme-corp", "billing-bot")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return a
}

func mustKeyed(t *testing.T) *Agent {
	t.Helper()
	a := mustAgent(t)
	if err := a.IssueAPIKey(testMeta(), NewKey{ID: "k1", Prefix: "tc_1", SecretHash: "h1"}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	return a
}

func TestCreateStartsActive(t *testing.T) {
	a := mustAgent(t)
	if a.Status != StatusActive || a.Version != 1 || a.TenantID != "acme-corp" {
		t.Fatalf("agent = %+v", a)
	}
}

func TestRotateEmitsSingleEvent(t *testing.T) {
	a := mustKeyed(t)
	before := len(a.Pending())

	if err := a.RotateAPIKey(testMeta(), NewKey{ID: "k2", Prefix: "tc_2", SecretHash: "h2"}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	pending := a.Pending()
	if got := len(pending) - before; got != 1 {
		t.Fatalf("rotation emitted %d events, want 1", got)
	}
	rotated := pending[len(pending)-1]
	if rotated.Kind != event.KindAgentAPIKeyRotated || rotated.OriginatorVersion != 3 {
		t.Fatalf("rotation event = %s v%d", rotated.Kind, rotated.OriginatorVersion)
	}

	old, _ := a.Key("k1")
	if old.Status != KeyRevoked || old.RevokedAt == nil || !old.RevokedAt.Equal(issuedAt) {
		t.Fatalf("old key = %+v, want revoked", old)
	}
	active, ok := a.ActiveKey()
	if !ok || active.ID != "k2" {
		t.Fatalf("active key = %+v, want k2", active)
	}
	if a.Version != 3 {
		t.Fatalf("version = %d, want 3", a.Version)
	}
}

func TestRotateWithoutActiveKeyFails(t *testing.T) {
	a := mustAgent(t)
	err := a.RotateAPIKey(testMeta(), NewKey{ID: "k2", Prefix: "tc_2", SecretHash: "h2"})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if a.Version != 1 {
		t.Fatalf("version = %d after failed rotation", a.Version)
	}
}

func TestKeyChangesRequireActiveAgent(t *testing.T) {
	a := mustKeyed(t)
	if err := a.Suspend(testMeta(), "compromised"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := a.RotateAPIKey(testMeta(), NewKey{ID: "k2", Prefix: "p", SecretHash: "h"}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("rotate while suspended err = %v, want validation", err)
	}
	if err := a.IssueAPIKey(testMeta(), NewKey{ID: "k3", Prefix: "p", SecretHash: "h"}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("issue while suspended err = %v, want validation", err)
	}
	if err := a.RevokeAPIKey(testMeta(), "k1"); err != nil {
		t.Fatalf("revoke while suspended: %v", err)
	}
}

func TestIssueRejectsSecondActiveKey(t *testing.T) {
	a := mustKeyed(t)
	if err := a.IssueAPIKey(testMeta(), NewKey{ID: "k2", Prefix: "p", SecretHash: "h"}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestIssueRejectsReusedKeyID(t *testing.T) {
	a := mustKeyed(t)
	if err := a.RevokeAPIKey(testMeta(), "k1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := a.IssueAPIKey(testMeta(), NewKey{ID: "k1", Prefix: "p", SecretHash: "h"}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestRevoke(t *testing.T) {
	a := mustKeyed(t)
	if err := a.RevokeAPIKey(testMeta(), "missing"); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("unknown key err = %v, want validation", err)
	}
	if err := a.RevokeAPIKey(testMeta(), "k1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	version := a.Version
	if err := a.RevokeAPIKey(testMeta(), "k1"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if a.Version != version {
		t.Fatalf("second revoke bumped version to %d", a.Version)
	}
	if _, ok := a.ActiveKey(); ok {
		t.Fatal("expected no active key after revoke")
	}
}

func TestLifecycleReentryAndTransitions(t *testing.T) {
	meta := testMeta()
	a := mustAgent(t)
	if err := a.Reactivate(meta); err != nil || a.Version != 1 {
		t.Fatalf("reactivate active: err %v version %d", err, a.Version)
	}
	if err := a.Suspend(meta, "quota"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := a.Suspend(meta, "again"); err != nil || a.Version != 2 || a.SuspensionReason != "quota" {
		t.Fatalf("suspend suspended: err %v version %d reason %q", err, a.Version, a.SuspensionReason)
	}
	if err := a.Reactivate(meta); err != nil || a.Status != StatusActive || a.SuspensionReason != "" {
		t.Fatalf("reactivate: err %v agent %+v", err, a)
	}
	if a.Version != 3 {
		t.Fatalf("version = %d, want 3", a.Version)
	}
}

func TestRehydrateRestoresKeys(t *testing.T) {
	a := mustKeyed(t)
	if err := a.RotateAPIKey(testMeta(), NewKey{ID: "k2", Prefix: "tc_2", SecretHash: "h2"}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	replayed := New()
	if err := aggregate.Rehydrate(replayed, a.Pending()); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if len(replayed.Keys) != 2 || replayed.Keys[0].Status != KeyRevoked || replayed.Keys[1].Status != KeyActive {
		t.Fatalf("replayed keys = %+v", replayed.Keys)
	}
}

func TestFoldCoversEveryAgentKind(t *testing.T) {
	if missing := folds.MissingKinds(event.AggregateAgent); len(missing) != 0 {
		t.Fatalf("agent fold table missing %v", missing)
	}
	if got, want := len(FoldedKinds()), len(event.KindsOf(event.AggregateAgent)); got != want {
		t.Fatalf("folded kinds = %d, want %d", got, want)
	}
}
