// Package tenant implements the tenant lifecycle aggregate.
//
//	PROVISIONING -> ACTIVE <-> SUSPENDED
//	any non-terminal state -> DECOMMISSIONED (terminal)
package tenant

import (
	"maps"
	"regexp"
	"strings"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/aggregate"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/command"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
)

// Status is a tenant lifecycle state.
type Status string

const (
	StatusProvisioning   Status = "PROVISIONING"
	StatusActive         Status = "ACTIVE"
	StatusSuspended      Status = "SUSPENDED"
	StatusDecommissioned Status = "DECOMMISSIONED"
)

const aggregateName = "tenant"

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,61}[a-z0-9])$`)

// Tenant is the tenant aggregate. Its TenantID is its slug.
type Tenant struct {
	aggregate.Root

	Slug             string
	Name             string
	Status           Status
	SuspensionReason string
	Config           map[string]string
	Metadata         map[string]string
}

// New returns an empty tenant for replay.
func New() *Tenant { return &Tenant{} }

// ValidSlug reports whether slug is usable as a tenant slug.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// Create starts a tenant in PROVISIONING.
func Create(meta command.Meta, id, slug, name string) (*Tenant, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return nil, aggregate.Invalid("tenant id is required")
	}
	if !ValidSlug(slug) {
		return nil, aggregate.Invalid("tenant slug %q is invalid", slug)
	}
	if name == "" {
		return nil, aggregate.Invalid("tenant name is required")
	}
	t := &Tenant{Root: aggregate.Root{ID: id, TenantID: slug}}
	if _, err := aggregate.Record(t, meta, event.TenantCreated{Slug: slug, Name: name}); err != nil {
		return nil, err
	}
	return t, nil
}

// Activate moves a provisioning tenant to ACTIVE.
func (t *Tenant) Activate(meta command.Meta) error {
	if t.Status == StatusActive {
		return nil
	}
	if err := t.require("activate", StatusProvisioning); err != nil {
		return err
	}
	_, err := aggregate.Record(t, meta, event.TenantActivated{})
	return err
}

// Suspend moves an active tenant to SUSPENDED with a reason.
func (t *Tenant) Suspend(meta command.Meta, reason string) error {
	if t.Status == StatusSuspended {
		return nil
	}
	if err := t.require("suspend", StatusActive); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return aggregate.Invalid("suspension reason is required")
	}
	_, err := aggregate.Record(t, meta, event.TenantSuspended{Reason: reason})
	return err
}

// Reactivate returns a suspended tenant to ACTIVE.
func (t *Tenant) Reactivate(meta command.Meta) error {
	if t.Status == StatusActive {
		return nil
	}
	if err := t.require("reactivate", StatusSuspended); err != nil {
		return err
	}
	_, err := aggregate.Record(t, meta, event.TenantReactivated{})
	return err
}

// Decommission retires the tenant permanently.
func (t *Tenant) Decommission(meta command.Meta) error {
	if t.Status == StatusDecommissioned {
		return nil
	}
	if err := t.require("decommission", StatusProvisioning, StatusActive, StatusSuspended); err != nil {
		return err
	}
	_, err := aggregate.Record(t, meta, event.TenantDecommissioned{})
	return err
}

// UpdateConfig replaces the tenant configuration.
func (t *Tenant) UpdateConfig(meta command.Meta, config map[string]string) error {
	if err := t.require("update config of", StatusActive); err != nil {
		return err
	}
	if len(config) == 0 {
		return aggregate.Invalid("tenant config must not be empty")
	}
	if maps.Equal(t.Config, config) {
		return nil
	}
	_, err := aggregate.Record(t, meta, event.TenantConfigUpdated{Config: maps.Clone(config)})
	return err
}

// MergeMetadata adds or overwrites metadata keys.
func (t *Tenant) MergeMetadata(meta command.Meta, metadata map[string]string) error {
	if err := t.require("merge metadata into", StatusActive); err != nil {
		return err
	}
	changed := make(map[string]string)
	for k, v := range metadata {
		if strings.TrimSpace(k) == "" {
			return aggregate.Invalid("metadata keys must not be empty")
		}
		if current, ok := t.Metadata[k]; !ok || current != v {
			changed[k] = v
		}
	}
	if len(changed) == 0 {
		return nil
	}
	_, err := aggregate.Record(t, meta, event.TenantMetadataMerged{Metadata: changed})
	return err
}

// RecordDataDeleted audits an erasure of one data category. It is the only
// command a decommissioned tenant accepts and changes no state.
func (t *Tenant) RecordDataDeleted(meta command.Meta, category string) error {
	if err := t.require("record data deletion for", StatusDecommissioned); err != nil {
		return err
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return aggregate.Invalid("data category is required")
	}
	_, err := aggregate.Record(t, meta, event.TenantDataDeleted{Category: category})
	return err
}

func (t *Tenant) require(action string, allowed ...Status) error {
	for _, s := range allowed {
		if t.Status == s {
			return nil
		}
	}
	expected := make([]string, len(allowed))
	for i, s := range allowed {
		expected[i] = string(s)
	}
	return aggregate.InvalidTransition(aggregateName, action, string(t.Status), expected...)
}
