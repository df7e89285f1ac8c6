package agent

import (
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/aggregate"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
)

var folds = aggregate.FoldTable[Agent]{
	event.KindAgentCreated:     aggregate.OnEvent(foldCreated),
	event.KindAgentSuspended:   aggregate.OnEvent(foldSuspended),
	event.KindAgentReactivated: aggregate.OnEvent(foldReactivated),
	event.KindAgentAPIKeyIssued: aggregate.OnEvent(func(a *Agent, evt event.Event, p event.AgentAPIKeyIssued) {
		a.addKey(p.Key, evt)
	}),
	event.KindAgentAPIKeyRotated: aggregate.OnEvent(func(a *Agent, evt event.Event, p event.AgentAPIKeyRotated) {
		a.revokeKey(p.RevokedKeyID, evt)
		a.addKey(p.Key, evt)
	}),
	event.KindAgentAPIKeyRevoked: aggregate.OnEvent(func(a *Agent, evt event.Event, p event.AgentAPIKeyRevoked) {
		a.revokeKey(p.KeyID, evt)
	}),
}

func foldCreated(a *Agent, _ event.Event, p event.AgentCreated) {
	a.Name = p.Name
	a.Status = StatusActive
}

func foldSuspended(a *Agent, _ event.Event, p event.AgentSuspended) {
	a.Status = StatusSuspended
	a.SuspensionReason = p.Reason
}

func foldReactivated(a *Agent, _ event.Event, _ event.AgentReactivated) {
	a.Status = StatusActive
	a.SuspensionReason = ""
}

func (a *Agent) addKey(k event.APIKey, evt event.Event) {
	a.Keys = append(a.Keys, APIKey{
		ID:         k.KeyID,
		Prefix:     k.Prefix,
		SecretHash: k.SecretHash,
		Status:     KeyActive,
		IssuedAt:   evt.Timestamp,
	})
}

func (a *Agent) revokeKey(id string, evt event.Event) {
	for i := range a.Keys {
		if a.Keys[i].ID == id && a.Keys[i].Status == KeyActive {
			at := evt.Timestamp
			a.Keys[i].Status = KeyRevoked
			a.Keys[i].RevokedAt = &at
		}
	}
}

// Fold implements aggregate.Entity.
func (a *Agent) Fold(evt event.Event) error {
	return folds.Fold(a, evt)
}

// FoldedKinds lists the event kinds an agent folds.
func FoldedKinds() []event.Kind { return folds.Kinds() }
