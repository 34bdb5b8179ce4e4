package tenant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"contentplane/pkg/client"
	"contentplane/pkg/repository"
	"contentplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeFanout struct {
	provisionCalls int
	provisionErr   error
	linkCalls      int
	linkErr        error
	unlinkCalls    int
	unlinkedRefs   []string
}

func (f *fakeFanout) ProvisionWorkspace(ctx context.Context, handle string) (client.WorkspaceCredential, error) {
	f.provisionCalls++
	if f.provisionErr != nil {
		return client.WorkspaceCredential{}, f.provisionErr
	}
	return client.WorkspaceCredential{
		WorkspaceKey: "ws-" + handle,
		Secret:       "secret-" + handle,
	}, nil
}

func (f *fakeFanout) ListChannels(ctx context.Context, workspaceKey string) ([]client.Channel, error) {
	return nil, nil
}

func (f *fakeFanout) Publish(ctx context.Context, req client.PublishRequest) error {
	return nil
}

func (f *fakeFanout) LinkMember(ctx context.Context, workspaceKey, userRef string) (string, error) {
	f.linkCalls++
	if f.linkErr != nil {
		return "", f.linkErr
	}
	return fmt.Sprintf("member-%s-%d", userRef, f.linkCalls), nil
}

func (f *fakeFanout) UnlinkMember(ctx context.Context, workspaceKey, memberRef string) error {
	f.unlinkCalls++
	f.unlinkedRefs = append(f.unlinkedRefs, memberRef)
	return nil
}

func newTestActivities(t *testing.T, fanout *fakeFanout) (*Activities, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Tenant{}, &Membership{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Activities{
		tenants:     repository.ProvideStore[Tenant](db),
		memberships: repository.ProvideStore[Membership](db),
		fanout:      fanout,
		node:        node,
	}, db
}

func TestProvisionWorkspaceRecordsCredential(t *testing.T) {
	fanout := &fakeFanout{}
	a, db := newTestActivities(t, fanout)
	require.NoError(t, db.Create(&Tenant{ID: "tenant-1", Name: "Demo", Slug: "demo", Status: Active}).Error)

	key, err := a.ProvisionWorkspace(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Equal(t, "ws-demo", key)
	require.Equal(t, 1, fanout.provisionCalls)

	var stored Tenant
	require.NoError(t, db.First(&stored, "id = ?", "tenant-1").Error)
	require.Equal(t, "ws-demo", stored.WorkspaceKey)
	require.Equal(t, "secret-demo", stored.WorkspaceSecret)
}

func TestProvisionWorkspaceIdempotent(t *testing.T) {
	fanout := &fakeFanout{}
	a, db := newTestActivities(t, fanout)
	require.NoError(t, db.Create(&Tenant{
		ID: "tenant-1", Name: "Demo", Slug: "demo", Status: Active,
		WorkspaceKey: "ws-existing", WorkspaceSecret: "secret-existing",
	}).Error)

	key, err := a.ProvisionWorkspace(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Equal(t, "ws-existing", key)
	require.Zero(t, fanout.provisionCalls, "a provisioned tenant never reaches the provider again")
}

func TestProvisionWorkspaceProviderError(t *testing.T) {
	fanout := &fakeFanout{provisionErr: errors.New("upstream down")}
	a, db := newTestActivities(t, fanout)
	require.NoError(t, db.Create(&Tenant{ID: "tenant-1", Name: "Demo", Slug: "demo", Status: Active}).Error)

	_, err := a.ProvisionWorkspace(context.Background(), "tenant-1")
	require.Error(t, err)

	var stored Tenant
	require.NoError(t, db.First(&stored, "id = ?", "tenant-1").Error)
	require.Empty(t, stored.WorkspaceKey)
}

func TestLinkMemberCreatesMembership(t *testing.T) {
	fanout := &fakeFanout{}
	a, db := newTestActivities(t, fanout)
	require.NoError(t, db.Create(&Tenant{
		ID: "tenant-1", Name: "Demo", Slug: "demo", Status: Active, WorkspaceKey: "ws-demo",
	}).Error)

	require.NoError(t, a.LinkMember(context.Background(), MembershipLink{UserID: "user-1", TenantID: "tenant-1"}))
	require.Equal(t, 1, fanout.linkCalls)

	var stored Membership
	require.NoError(t, db.First(&stored, "user_id = ? AND tenant_id = ?", "user-1", "tenant-1").Error)
	require.Equal(t, MembershipLinked, stored.Status)
	require.NotEmpty(t, stored.MemberRef)
}

func TestLinkMemberIdempotent(t *testing.T) {
	fanout := &fakeFanout{}
	a, db := newTestActivities(t, fanout)
	require.NoError(t, db.Create(&Tenant{
		ID: "tenant-1", Name: "Demo", Slug: "demo", Status: Active, WorkspaceKey: "ws-demo",
	}).Error)
	require.NoError(t, db.Create(&Membership{
		ID: "m-1", UserID: "user-1", TenantID: "tenant-1", MemberRef: "member-old", Status: MembershipLinked,
	}).Error)

	require.NoError(t, a.LinkMember(context.Background(), MembershipLink{UserID: "user-1", TenantID: "tenant-1"}))
	require.Zero(t, fanout.linkCalls)
}

func TestLinkMemberRelinksAfterUnlink(t *testing.T) {
	fanout := &fakeFanout{}
	a, db := newTestActivities(t, fanout)
	require.NoError(t, db.Create(&Tenant{
		ID: "tenant-1", Name: "Demo", Slug: "demo", Status: Active, WorkspaceKey: "ws-demo",
	}).Error)
	require.NoError(t, db.Create(&Membership{
		ID: "m-1", UserID: "user-1", TenantID: "tenant-1", MemberRef: "member-old", Status: MembershipUnlinked,
	}).Error)

	require.NoError(t, a.LinkMember(context.Background(), MembershipLink{UserID: "user-1", TenantID: "tenant-1"}))
	require.Equal(t, 1, fanout.linkCalls)

	var stored Membership
	require.NoError(t, db.First(&stored, "id = ?", "m-1").Error)
	require.Equal(t, MembershipLinked, stored.Status)
}

func TestUnlinkMemberMarksUnlinked(t *testing.T) {
	fanout := &fakeFanout{}
	a, db := newTestActivities(t, fanout)
	require.NoError(t, db.Create(&Tenant{
		ID: "tenant-1", Name: "Demo", Slug: "demo", Status: Active, WorkspaceKey: "ws-demo",
	}).Error)
	require.NoError(t, db.Create(&Membership{
		ID: "m-1", UserID: "user-1", TenantID: "tenant-1", MemberRef: "member-1", Status: MembershipLinked,
	}).Error)

	require.NoError(t, a.UnlinkMember(context.Background(), MembershipLink{UserID: "user-1", TenantID: "tenant-1"}))
	require.Equal(t, []string{"member-1"}, fanout.unlinkedRefs)

	var stored Membership
	require.NoError(t, db.First(&stored, "id = ?", "m-1").Error)
	require.Equal(t, MembershipUnlinked, stored.Status)
}

func TestUnlinkMemberUnknownIsNoop(t *testing.T) {
	fanout := &fakeFanout{}
	a, _ := newTestActivities(t, fanout)

	require.NoError(t, a.UnlinkMember(context.Background(), MembershipLink{UserID: "user-1", TenantID: "tenant-1"}))
	require.Zero(t, fanout.unlinkCalls)
}
