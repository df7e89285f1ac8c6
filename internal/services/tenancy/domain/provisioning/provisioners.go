package provisioning

import (
	"context"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/aggregate"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/command"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/tenant"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/user"
)

// IDFunc allocates aggregate ids.
type IDFunc func() (string, error)

// TenantAttrs are the creation inputs of a tenant keyed by slug.
type TenantAttrs struct {
	Name string
}

// UserAttrs are the creation inputs of a user keyed by external subject.
type UserAttrs struct {
	Email       string
	DisplayName string
}

// NewTenantProvisioner ensures one tenant per slug. A tenant's tenant id is
// its slug, so callers pass the slug as both key and tenant id.
func NewTenantProvisioner(slugs Reservations, tenants *aggregate.Repository[*tenant.Tenant], newID IDFunc, cfg Config) *Orchestrator[TenantAttrs] {
	return &Orchestrator[TenantAttrs]{
		Reservations: slugs,
		OwnerTenant: func(ctx context.Context, ownerID string) (string, error) {
			t, err := tenants.Load(ctx, ownerID)
			if err != nil {
				return "", err
			}
			return t.TenantID, nil
		},
		Create: func(ctx context.Context, meta command.Meta, slug, tenantID string, attrs TenantAttrs) (string, error) {
			if tenantID != slug {
				return "", apperrors.New(apperrors.CodeValidation, "tenant id must equal the tenant slug")
			}
			id, err := newID()
			if err != nil {
				return "", err
			}
			t, err := tenant.Create(meta, id, slug, attrs.Name)
			if err != nil {
				return "", err
			}
			if err := tenants.Save(ctx, t); err != nil {
				return "", err
			}
			return t.ID, nil
		},
		Config: cfg,
	}
}

// NewUserProvisioner ensures one user per external subject.
func NewUserProvisioner(subjects Reservations, users *aggregate.Repository[*user.User], newID IDFunc, cfg Config) *Orchestrator[UserAttrs] {
	return &Orchestrator[UserAttrs]{
		Reservations: subjects,
		OwnerTenant: func(ctx context.Context, ownerID string) (string, error) {
			u, err := users.Load(ctx, ownerID)
			if err != nil {
				return "", err
			}
			return u.TenantID, nil
		},
		Create: func(ctx context.Context, meta command.Meta, subject, tenantID string, attrs UserAttrs) (string, error) {
			id, err := newID()
			if err != nil {
				return "", err
			}
			u, err := user.Create(meta, id, tenantID, subject, attrs.Email, attrs.DisplayName)
			if err != nil {
				return "", err
			}
			if err := users.Save(ctx, u); err != nil {
				return "", err
			}
			return u.ID, nil
		},
		Config: cfg,
	}
}
