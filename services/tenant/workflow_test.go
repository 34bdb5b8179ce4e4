package tenant

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func TestProvisionWorkflow(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()

	var a *Activities
	env.OnActivity(a.ProvisionWorkspace, mock.Anything, "tenant-1").Return("ws-demo", nil)

	env.ExecuteWorkflow(ProvisionWorkflow, "tenant-1")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var key string
	require.NoError(t, env.GetWorkflowResult(&key))
	require.Equal(t, "ws-demo", key)
}

func TestMembershipSyncWorkflowLinksAndUnlinks(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()

	var a *Activities
	env.OnActivity(a.LinkMember, mock.Anything, MembershipLink{UserID: "user-1", TenantID: "tenant-a"}).Return(nil)
	env.OnActivity(a.LinkMember, mock.Anything, MembershipLink{UserID: "user-1", TenantID: "tenant-b"}).Return(nil)
	env.OnActivity(a.UnlinkMember, mock.Anything, MembershipLink{UserID: "user-1", TenantID: "tenant-c"}).Return(nil)

	env.ExecuteWorkflow(MembershipSyncWorkflow, MembershipChange{
		UserID:  "user-1",
		Added:   []string{"tenant-a", "tenant-b"},
		Removed: []string{"tenant-c"},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestMembershipSyncWorkflowSurfacesFirstError(t *testing.T) {
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()

	var a *Activities
	env.OnActivity(a.LinkMember, mock.Anything, MembershipLink{UserID: "user-1", TenantID: "tenant-a"}).Return(errors.New("workspace unreachable"))
	env.OnActivity(a.UnlinkMember, mock.Anything, MembershipLink{UserID: "user-1", TenantID: "tenant-b"}).Return(nil)

	env.ExecuteWorkflow(MembershipSyncWorkflow, MembershipChange{
		UserID:  "user-1",
		Added:   []string{"tenant-a"},
		Removed: []string{"tenant-b"},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	// The failing link must not block the unlink from running.
	env.AssertCalled(t, "UnlinkMember", mock.Anything, MembershipLink{UserID: "user-1", TenantID: "tenant-b"})
}
