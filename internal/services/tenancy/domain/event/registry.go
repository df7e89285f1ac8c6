package event

import (
	"encoding/json"
	"fmt"
)

// Definition describes one event kind.
type Definition struct {
	Kind      Kind
	Aggregate AggregateType
	decode    func([]byte) (Payload, error)
}

var definitions = []Definition{
	define[TenantCreated](KindTenantCreated, AggregateTenant),
	define[TenantActivated](KindTenantActivated, AggregateTenant),
	define[TenantSuspended](KindTenantSuspended, AggregateTenant),
	define[TenantReactivated](KindTenantReactivated, AggregateTenant),
	define[TenantDecommissioned](KindTenantDecommissioned, AggregateTenant),
	define[TenantConfigUpdated](KindTenantConfigUpdated, AggregateTenant),
	define[TenantMetadataMerged](KindTenantMetadataMerged, AggregateTenant),
	define[TenantDataDeleted](KindTenantDataDeleted, AggregateTenant),

	define[AgentCreated](KindAgentCreated, AggregateAgent),
	define[AgentSuspended](KindAgentSuspended, AggregateAgent),
	define[AgentReactivated](KindAgentReactivated, AggregateAgent),
	define[AgentAPIKeyIssued](KindAgentAPIKeyIssued, AggregateAgent),
	define[AgentAPIKeyRotated](KindAgentAPIKeyRotated, AggregateAgent),
	define[AgentAPIKeyRevoked](KindAgentAPIKeyRevoked, AggregateAgent),

	define[UserCreated](KindUserCreated, AggregateUser),
	define[UserDisplayNameChanged](KindUserDisplayNameChanged, AggregateUser),
	define[UserPreferencesUpdated](KindUserPreferencesUpdated, AggregateUser),
}

var byKind = func() map[Kind]Definition {
	m := make(map[Kind]Definition, len(definitions))
	for _, def := range definitions {
		if _, dup := m[def.Kind]; dup {
			panic(fmt.Sprintf("event kind %s defined twice", def.Kind))
		}
		m[def.Kind] = def
	}
	return m
}()

func define[P Payload](kind Kind, aggregate AggregateType) Definition {
	return Definition{
		Kind:      kind,
		Aggregate: aggregate,
		decode: func(raw []byte) (Payload, error) {
			var payload P
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &payload); err != nil {
					return nil, err
				}
			}
			return payload, nil
		},
	}
}

// Definitions returns every known event kind in declaration order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// KindsOf returns the kinds emitted by one aggregate type.
func KindsOf(aggregate AggregateType) []Kind {
	var kinds []Kind
	for _, def := range definitions {
		if def.Aggregate == aggregate {
			kinds = append(kinds, def.Kind)
		}
	}
	return kinds
}

// Lookup returns the definition of kind.
func Lookup(kind Kind) (Definition, bool) {
	def, ok := byKind[kind]
	return def, ok
}

// Encode marshals a payload for storage.
func Encode(payload Payload) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is required")
	}
	if _, ok := byKind[payload.Kind()]; !ok {
		return nil, fmt.Errorf("unknown event kind %q", payload.Kind())
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", payload.Kind(), err)
	}
	return raw, nil
}

// Decode unmarshals a stored payload of the given kind.
func Decode(kind Kind, raw []byte) (Payload, error) {
	def, ok := byKind[kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	payload, err := def.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return payload, nil
}
