package tenant

import (
	"context"
	"fmt"

	"contentplane/pkg/client"
	"contentplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Activities struct {
	tenants     repository.Repository[Tenant]
	memberships repository.Repository[Membership]
	fanout      client.Fanout
	node        *snowflake.Node
}

type ActivitiesParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Fanout client.Fanout
}

func NewActivities(p ActivitiesParams) *Activities {
	return &Activities{
		tenants:     repository.ProvideStore[Tenant](p.DB),
		memberships: repository.ProvideStore[Membership](p.DB),
		fanout:      p.Fanout,
		node:        p.Node,
	}
}

// ProvisionWorkspace creates the tenant's external workspace and records its
// credential. The credential is recorded exactly once: a tenant that already
// holds a workspace key is returned as-is, so retries and replays never
// provision twice.
func (a *Activities) ProvisionWorkspace(ctx context.Context, tenantID string) (string, error) {
	tenant, err := a.tenants.FindOne(ctx, &Tenant{ID: tenantID})
	if err != nil {
		return "", fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	if tenant == nil {
		return "", fmt.Errorf("tenant %s not found", tenantID)
	}

	if tenant.Provisioned() {
		zap.L().Info("workspace already provisioned", zap.String("tenant_id", tenantID), zap.String("workspace_key", tenant.WorkspaceKey))
		return tenant.WorkspaceKey, nil
	}

	cred, err := a.fanout.ProvisionWorkspace(ctx, tenant.Slug)
	if err != nil {
		return "", fmt.Errorf("provision workspace for tenant %s: %w", tenantID, err)
	}

	if err := a.tenants.Update(ctx, tenantID, map[string]interface{}{
		"workspace_key":    cred.WorkspaceKey,
		"workspace_secret": cred.Secret,
	}); err != nil {
		return "", fmt.Errorf("record workspace credential: %w", err)
	}

	zap.L().Info("workspace provisioned", zap.String("tenant_id", tenantID), zap.String("workspace_key", cred.WorkspaceKey))
	return cred.WorkspaceKey, nil
}

type MembershipLink struct {
	UserID   string
	TenantID string
}

// LinkMember joins the user into one tenant's workspace. Idempotent: an
// existing linked membership short-circuits.
func (a *Activities) LinkMember(ctx context.Context, link MembershipLink) error {
	existing, err := a.memberships.FindOne(ctx, &Membership{UserID: link.UserID, TenantID: link.TenantID})
	if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}
	if existing != nil && existing.Status == MembershipLinked {
		return nil
	}

	tenant, err := a.tenants.FindOne(ctx, &Tenant{ID: link.TenantID})
	if err != nil {
		return fmt.Errorf("load tenant %s: %w", link.TenantID, err)
	}
	if tenant == nil || !tenant.Provisioned() {
		return fmt.Errorf("tenant %s has no provisioned workspace", link.TenantID)
	}

	memberRef, err := a.fanout.LinkMember(ctx, tenant.WorkspaceKey, link.UserID)
	if err != nil {
		return fmt.Errorf("link member %s into tenant %s: %w", link.UserID, link.TenantID, err)
	}

	if existing != nil {
		return a.memberships.Update(ctx, existing.ID, map[string]interface{}{
			"member_ref": memberRef,
			"status":     MembershipLinked,
		})
	}

	return a.memberships.Create(ctx, &Membership{
		ID:        a.node.Generate().String(),
		UserID:    link.UserID,
		TenantID:  link.TenantID,
		MemberRef: memberRef,
		Status:    MembershipLinked,
	})
}

// UnlinkMember removes the user from one tenant's workspace. A membership that
// was never linked is a no-op.
func (a *Activities) UnlinkMember(ctx context.Context, link MembershipLink) error {
	existing, err := a.memberships.FindOne(ctx, &Membership{UserID: link.UserID, TenantID: link.TenantID})
	if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}
	if existing == nil || existing.Status == MembershipUnlinked {
		return nil
	}

	tenant, err := a.tenants.FindOne(ctx, &Tenant{ID: link.TenantID})
	if err != nil {
		return fmt.Errorf("load tenant %s: %w", link.TenantID, err)
	}
	if tenant == nil {
		return fmt.Errorf("tenant %s not found", link.TenantID)
	}

	if err := a.fanout.UnlinkMember(ctx, tenant.WorkspaceKey, existing.MemberRef); err != nil {
		return fmt.Errorf("unlink member %s from tenant %s: %w", link.UserID, link.TenantID, err)
	}

	return a.memberships.Update(ctx, existing.ID, map[string]interface{}{
		"status": MembershipUnlinked,
	})
}
