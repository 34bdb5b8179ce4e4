package tenant

import (
	pkgworkflow "contentplane/pkg/workflow"

	"go.temporal.io/sdk/workflow"
)

// ProvisionWorkflow drives the external-workspace setup for one tenant. The
// activity itself guards against double provisioning, so the workflow is a
// plain at-least-once envelope around it.
func ProvisionWorkflow(ctx workflow.Context, tenantID string) (string, error) {
	ctx = workflow.WithActivityOptions(ctx, pkgworkflow.DefaultActivityOptions())

	var a *Activities
	var workspaceKey string
	if err := workflow.ExecuteActivity(ctx, a.ProvisionWorkspace, tenantID).Get(ctx, &workspaceKey); err != nil {
		return "", err
	}

	return workspaceKey, nil
}

// MembershipSyncWorkflow links and unlinks a user's memberships across the
// affected tenants. Each linkage is dispatched as its own activity so the
// operations retry independently; ordering across tenants is not significant
// and the activities run concurrently.
func MembershipSyncWorkflow(ctx workflow.Context, change MembershipChange) error {
	ctx = workflow.WithActivityOptions(ctx, pkgworkflow.DefaultActivityOptions())
	logger := workflow.GetLogger(ctx)

	var a *Activities
	futures := make([]workflow.Future, 0, len(change.Added)+len(change.Removed))

	for _, tenantID := range change.Added {
		futures = append(futures, workflow.ExecuteActivity(ctx, a.LinkMember, MembershipLink{
			UserID:   change.UserID,
			TenantID: tenantID,
		}))
	}

	for _, tenantID := range change.Removed {
		futures = append(futures, workflow.ExecuteActivity(ctx, a.UnlinkMember, MembershipLink{
			UserID:   change.UserID,
			TenantID: tenantID,
		}))
	}

	var firstErr error
	for _, f := range futures {
		if err := f.Get(ctx, nil); err != nil {
			logger.Error("membership linkage failed", "user_id", change.UserID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
