// Package agent implements the machine-agent aggregate and its API keys.
//
// An agent holds at most one active key. Rotation revokes the active key and
// activates its replacement in a single event.
package agent

import (
	"strings"
	"time"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/aggregate"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/command"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
)

// Status is an agent lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// KeyStatus is the state of one API key.
type KeyStatus string

const (
	KeyActive  KeyStatus = "ACTIVE"
	KeyRevoked KeyStatus = "REVOKED"
)

const aggregateName = "agent"

// APIKey is key material already hashed by the caller.
type APIKey struct {
	ID         string
	Prefix     string
	SecretHash string
	Status     KeyStatus
	IssuedAt   time.Time
	RevokedAt  *time.Time
}

// NewKey is the caller-supplied material for a key to issue.
type NewKey struct {
	ID         string
	Prefix     string
	SecretHash string
}

// Agent is the agent aggregate.
type Agent struct {
	aggregate.Root

	Name             string
	Status           Status
	SuspensionReason string
	Keys             []APIKey
}

// New returns an empty agent for replay.
func New() *Agent { return &Agent{} }

// Create registers an ACTIVE agent under tenantID.
func Create(meta command.Meta, id, tenantID, name string) (*Agent, error) {
	id = strings.TrimSpace(id)
	tenantID = strings.TrimSpace(tenantID)
	name = strings.TrimSpace(name)
	switch {
	case id == "":
		return nil, aggregate.Invalid("agent id is required")
	case tenantID == "":
		return nil, aggregate.Invalid("agent tenant id is required")
	case name == "":
		return nil, aggregate.Invalid("agent name is required")
	}
	a := &Agent{Root: aggregate.Root{ID: id, TenantID: tenantID}}
	if _, err := aggregate.Record(a, meta, event.AgentCreated{Name: name}); err != nil {
		return nil, err
	}
	return a, nil
}

// Suspend disables the agent.
func (a *Agent) Suspend(meta command.Meta, reason string) error {
	if a.Status == StatusSuspended {
		return nil
	}
	if a.Status != StatusActive {
		return aggregate.InvalidTransition(aggregateName, "suspend", string(a.Status), string(StatusActive))
	}
	_, err := aggregate.Record(a, meta, event.AgentSuspended{Reason: strings.TrimSpace(reason)})
	return err
}

// Reactivate re-enables a suspended agent.
func (a *Agent) Reactivate(meta command.Meta) error {
	if a.Status == StatusActive {
		return nil
	}
	if a.Status != StatusSuspended {
		return aggregate.InvalidTransition(aggregateName, "reactivate", string(a.Status), string(StatusSuspended))
	}
	_, err := aggregate.Record(a, meta, event.AgentReactivated{})
	return err
}

// IssueAPIKey adds the agent's first active key.
func (a *Agent) IssueAPIKey(meta command.Meta, key NewKey) error {
	if err := a.validateKeyChange(key); err != nil {
		return err
	}
	if _, ok := a.ActiveKey(); ok {
		return aggregate.Invalid("agent %s already has an active key; rotate it instead", a.ID)
	}
	_, err := aggregate.Record(a, meta, event.AgentAPIKeyIssued{Key: keyPayload(key)})
	return err
}

// RotateAPIKey revokes the active key and activates key in one event.
func (a *Agent) RotateAPIKey(meta command.Meta, key NewKey) error {
	if err := a.validateKeyChange(key); err != nil {
		return err
	}
	active, ok := a.ActiveKey()
	if !ok {
		return aggregate.Invalid("agent %s has no active key to rotate", a.ID)
	}
	_, err := aggregate.Record(a, meta, event.AgentAPIKeyRotated{
		RevokedKeyID: active.ID,
		Key:          keyPayload(key),
	})
	return err
}

// RevokeAPIKey revokes one key. Revoking a revoked key is a no-op.
func (a *Agent) RevokeAPIKey(meta command.Meta, keyID string) error {
	key, ok := a.Key(keyID)
	if !ok {
		return aggregate.Invalid("agent %s has no key %q", a.ID, keyID)
	}
	if key.Status == KeyRevoked {
		return nil
	}
	_, err := aggregate.Record(a, meta, event.AgentAPIKeyRevoked{KeyID: key.ID})
	return err
}

// ActiveKey returns the active key, if any.
func (a *Agent) ActiveKey() (APIKey, bool) {
	for _, k := range a.Keys {
		if k.Status == KeyActive {
			return k, true
		}
	}
	return APIKey{}, false
}

// Key returns the key with the given id.
func (a *Agent) Key(id string) (APIKey, bool) {
	for _, k := range a.Keys {
		if k.ID == id {
			return k, true
		}
	}
	return APIKey{}, false
}

func (a *Agent) validateKeyChange(key NewKey) error {
	if a.Status != StatusActive {
		return aggregate.Invalid("agent %s is %s; keys change only while %s", a.ID, a.Status, StatusActive)
	}
	if strings.TrimSpace(key.ID) == "" || strings.TrimSpace(key.Prefix) == "" || strings.TrimSpace(key.SecretHash) == "" {
		return aggregate.Invalid("api key id, prefix and secret hash are required")
	}
	if _, exists := a.Key(key.ID); exists {
		return aggregate.Invalid("api key %q already exists", key.ID)
	}
	return nil
}

func keyPayload(key NewKey) event.APIKey {
	return event.APIKey{
		KeyID:      strings.TrimSpace(key.ID),
		Prefix:     strings.TrimSpace(key.Prefix),
		SecretHash: key.SecretHash,
	}
}
