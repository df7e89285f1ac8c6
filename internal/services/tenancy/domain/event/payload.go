package event

const (
	KindTenantCreated        Kind = "tenant.created"
	KindTenantActivated      Kind = "tenant.activated"
	KindTenantSuspended      Kind = "tenant.suspended"
	KindTenantReactivated    Kind = "tenant.reactivated"
	KindTenantDecommissioned Kind = "tenant.decommissioned"
	KindTenantConfigUpdated  Kind = "tenant.config_updated"
	KindTenantMetadataMerged Kind = "tenant.metadata_merged"
	KindTenantDataDeleted    Kind = "tenant.data_deleted"

	KindAgentCreated       Kind = "agent.created"
	KindAgentSuspended     Kind = "agent.suspended"
	KindAgentReactivated   Kind = "agent.reactivated"
	KindAgentAPIKeyIssued  Kind = "agent.api_key_issued"
	KindAgentAPIKeyRotated Kind = "agent.api_key_rotated"
	KindAgentAPIKeyRevoked Kind = "agent.api_key_revoked"

	KindUserCreated            Kind = "user.created"
	KindUserDisplayNameChanged Kind = "user.display_name_changed"
	KindUserPreferencesUpdated Kind = "user.preferences_updated"
)

// TenantCreated starts a tenant in PROVISIONING.
type TenantCreated struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type TenantActivated struct{}

type TenantSuspended struct {
	Reason string `json:"reason"`
}

type TenantReactivated struct{}

type TenantDecommissioned struct{}

// TenantConfigUpdated replaces the tenant configuration wholesale.
type TenantConfigUpdated struct {
	Config map[string]string `json:"config"`
}

// TenantMetadataMerged carries only the keys whose values changed.
type TenantMetadataMerged struct {
	Metadata map[string]string `json:"metadata"`
}

// TenantDataDeleted records an audit-only erasure on a decommissioned tenant.
type TenantDataDeleted struct {
	Category string `json:"category"`
}

type AgentCreated struct {
	Name string `json:"name"`
}

type AgentSuspended struct {
	Reason string `json:"reason,omitempty"`
}

type AgentReactivated struct{}

// APIKey describes key material as the caller hashed it.
type APIKey struct {
	KeyID      string `json:"key_id"`
	Prefix     string `json:"prefix"`
	SecretHash string `json:"secret_hash"`
}

type AgentAPIKeyIssued struct {
	Key APIKey `json:"key"`
}

// AgentAPIKeyRotated revokes RevokedKeyID and activates Key in one step.
type AgentAPIKeyRotated struct {
	RevokedKeyID string `json:"revoked_key_id"`
	Key          APIKey `json:"key"`
}

type AgentAPIKeyRevoked struct {
	KeyID string `json:"key_id"`
}

type UserCreated struct {
	Subject     string `json:"subject"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type UserDisplayNameChanged struct {
	DisplayName string `json:"display_name"`
}

// UserPreferencesUpdated sets and removes preference keys.
type UserPreferencesUpdated struct {
	Set     map[string]string `json:"set,omitempty"`
	Removed []string          `json:"removed,omitempty"`
}

func (TenantCreated) Kind() Kind        { return KindTenantCreated }
func (TenantActivated) Kind() Kind      { return KindTenantActivated }
func (TenantSuspended) Kind() Kind      { return KindTenantSuspended }
func (TenantReactivated) Kind() Kind    { return KindTenantReactivated }
func (TenantDecommissioned) Kind() Kind { return KindTenantDecommissioned }
func (TenantConfigUpdated) Kind() Kind  { return KindTenantConfigUpdated }
func (TenantMetadataMerged) Kind() Kind { return KindTenantMetadataMerged }
func (TenantDataDeleted) Kind() Kind    { return KindTenantDataDeleted }

func (AgentCreated) Kind() Kind       { return KindAgentCreated }
func (AgentSuspended) Kind() Kind     { return KindAgentSuspended }
func (AgentReactivated) Kind() Kind   { return KindAgentReactivated }
func (AgentAPIKeyIssued) Kind() Kind  { return KindAgentAPIKeyIssued }
func (AgentAPIKeyRotated) Kind() Kind { return KindAgentAPIKeyRotated }
func (AgentAPIKeyRevoked) Kind() Kind { return KindAgentAPIKeyRevoked }

func (UserCreated) Kind() Kind            { return KindUserCreated }
func (UserDisplayNameChanged) Kind() Kind { return KindUserDisplayNameChanged }
func (UserPreferencesUpdated) Kind() Kind { return KindUserPreferencesUpdated }

func (TenantCreated) sealed()        {}
func (TenantActivated) sealed()      {}
func (TenantSuspended) sealed()      {}
func (TenantReactivated) sealed()    {}
func (TenantDecommissioned) sealed() {}
func (TenantConfigUpdated) sealed()  {}
func (TenantMetadataMerged) sealed() {}
func (TenantDataDeleted) sealed()    {}

func (AgentCreated) sealed()       {}
func (AgentSuspended) sealed()     {}
func (AgentReactivated) sealed()   {}
func (AgentAPIKeyIssued) sealed()  {}
func (AgentAPIKeyRotated) sealed() {}
func (AgentAPIKeyRevoked) sealed() {}

func (UserCreated) sealed()            {}
func (UserDisplayNameChanged) sealed() {}
func (UserPreferencesUpdated) sealed() {}
