package post

import (
	"context"
	"errors"
	"testing"
	"time"

	"contentplane/pkg/client"
	"contentplane/pkg/config"
	"contentplane/pkg/repository"
	"contentplane/services/tenant"
	"contentplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeStudio struct {
	calls int
	ref   string
	err   error
}

func (f *fakeStudio) Generate(ctx context.Context, req client.GenerateRequest) (string, error) {
	f.calls++
	return f.ref, f.err
}

type fakeFanout struct {
	channels   []client.Channel
	publishErr error
	published  []client.PublishRequest
}

func (f *fakeFanout) ProvisionWorkspace(ctx context.Context, handle string) (client.WorkspaceCredential, error) {
	return client.WorkspaceCredential{}, nil
}

func (f *fakeFanout) ListChannels(ctx context.Context, workspaceKey string) ([]client.Channel, error) {
	return f.channels, nil
}

func (f *fakeFanout) Publish(ctx context.Context, req client.PublishRequest) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, req)
	return nil
}

func (f *fakeFanout) LinkMember(ctx context.Context, workspaceKey, userRef string) (string, error) {
	return "", nil
}

func (f *fakeFanout) UnlinkMember(ctx context.Context, workspaceKey, memberRef string) error {
	return nil
}

type fakeNotifier struct {
	err      error
	notified []string
}

func (f *fakeNotifier) Notify(ctx context.Context, topic string, payload map[string]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.notified = append(f.notified, topic)
	return nil
}

type fakeMedia struct{}

func (f *fakeMedia) PublicURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	return "https://media.test/" + objectKey, nil
}

type activityFixture struct {
	activities *Activities
	db         *gorm.DB
	posts      repository.Repository[Post]
	attempts   repository.Repository[PublicationAttempt]
	tenants    *tenant.Service
	studio     *fakeStudio
	fanout     *fakeFanout
	notifier   *fakeNotifier
}

func newActivityFixture(t *testing.T) *activityFixture {
	t.Helper()

	db := testutil.NewTestDB(t, &Post{}, &PublicationAttempt{}, &tenant.Tenant{}, &tenant.Membership{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Billing.ImageGenerationCost = 1
	cfg.Billing.VideoGenerationCost = 5

	tenants := tenant.NewService(tenant.ServiceParams{DB: db, Node: node})
	studio := &fakeStudio{ref: "generated/post.png"}
	fanout := &fakeFanout{channels: []client.Channel{{ID: "ch-1", Identifier: "page"}}}
	notifier := &fakeNotifier{}

	return &activityFixture{
		activities: &Activities{
			cfg:      cfg,
			node:     node,
			db:       db,
			posts:    repository.ProvideStore[Post](db),
			attempts: repository.ProvideStore[PublicationAttempt](db),
			tenants:  tenants,
			studio:   studio,
			fanout:   fanout,
			notifier: notifier,
			media:    &fakeMedia{},
		},
		db:       db,
		posts:    repository.ProvideStore[Post](db),
		attempts: repository.ProvideStore[PublicationAttempt](db),
		tenants:  tenants,
		studio:   studio,
		fanout:   fanout,
		notifier: notifier,
	}
}

func (f *activityFixture) seedTenant(t *testing.T, credit, multiplier int64) *tenant.Tenant {
	t.Helper()
	tn := &tenant.Tenant{
		ID:              "tenant-1",
		Name:            "Demo",
		Slug:            "demo",
		WorkspaceKey:    "ws-1",
		WorkspaceSecret: "secret",
		CreditBalance:   credit,
		CostMultiplier:  multiplier,
		Status:          tenant.Active,
	}
	require.NoError(t, f.db.Create(tn).Error)
	return tn
}

func (f *activityFixture) seedPost(t *testing.T, p *Post) *Post {
	t.Helper()
	if p.TenantID == "" {
		p.TenantID = "tenant-1"
	}
	if p.TemplateKind == "" {
		p.TemplateKind = TemplateGeneric
	}
	if p.MediaKind == "" {
		p.MediaKind = MediaImage
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if p.Recurrence == "" {
		p.Recurrence = RecurrenceNone
	}
	if len(p.CreativeData) == 0 {
		p.CreativeData = []byte(`{"headline":"Hi","caption":"There"}`)
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func TestGenerateCreativeDebitsAndStoresRef(t *testing.T) {
	f := newActivityFixture(t)
	f.seedTenant(t, 10, 2)
	f.seedPost(t, &Post{ID: "post-1", RawMediaRef: "raw/photo.jpg"})

	out, err := f.activities.GenerateCreative(context.Background(), "post-1")
	require.NoError(t, err)
	require.False(t, out.Skipped)
	require.Equal(t, "generated/post.png", out.MediaRef)
	require.Equal(t, 1, f.studio.calls)

	stored, err := f.posts.FindOne(context.Background(), &Post{ID: "post-1"})
	require.NoError(t, err)
	require.Equal(t, "generated/post.png", stored.GeneratedMediaRef)

	tn, err := f.tenants.GetTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Equal(t, int64(8), tn.CreditBalance, "image cost 1 at multiplier 2")
}

func TestGenerateCreativeVideoCostsMore(t *testing.T) {
	f := newActivityFixture(t)
	f.seedTenant(t, 10, 1)
	f.seedPost(t, &Post{ID: "post-1", RawMediaRef: "raw/clip.mp4", MediaKind: MediaVideo})

	_, err := f.activities.GenerateCreative(context.Background(), "post-1")
	require.NoError(t, err)

	tn, err := f.tenants.GetTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), tn.CreditBalance)
}

func TestGenerateCreativeInsufficientCredit(t *testing.T) {
	f := newActivityFixture(t)
	f.seedTenant(t, 3, 1)
	f.seedPost(t, &Post{ID: "post-1", RawMediaRef: "raw/clip.mp4", MediaKind: MediaVideo})

	out, err := f.activities.GenerateCreative(context.Background(), "post-1")
	require.NoError(t, err)
	require.True(t, out.Skipped)
	require.Equal(t, "insufficient credit", out.Reason)
	require.Zero(t, f.studio.calls, "the studio must not be called without an admitted debit")

	tn, err := f.tenants.GetTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), tn.CreditBalance, "a refused admission never decrements")
}

func TestGenerateCreativeChargesOncePerGeneration(t *testing.T) {
	f := newActivityFixture(t)
	f.seedTenant(t, 10, 1)
	f.seedPost(t, &Post{ID: "post-1", RawMediaRef: "raw/photo.jpg"})
	f.studio.err = errors.New("studio unavailable")

	_, err := f.activities.GenerateCreative(context.Background(), "post-1")
	require.Error(t, err)
	require.Equal(t, 1, f.studio.calls)

	stored, err := f.posts.FindOne(context.Background(), &Post{ID: "post-1"})
	require.NoError(t, err)
	require.NotNil(t, stored.GenerationChargedAt, "the charge lands with the debit, before the studio call")

	f.studio.err = nil
	out, err := f.activities.GenerateCreative(context.Background(), "post-1")
	require.NoError(t, err)
	require.False(t, out.Skipped)
	require.Equal(t, "generated/post.png", out.MediaRef)

	tn, err := f.tenants.GetTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Equal(t, int64(9), tn.CreditBalance, "one generation costs one debit across retries")
}

func TestGenerateCreativeIdempotentOnExistingRef(t *testing.T) {
	f := newActivityFixture(t)
	f.seedTenant(t, 10, 1)
	f.seedPost(t, &Post{ID: "post-1", RawMediaRef: "raw/photo.jpg", GeneratedMediaRef: "generated/earlier.png"})

	out, err := f.activities.GenerateCreative(context.Background(), "post-1")
	require.NoError(t, err)
	require.Equal(t, "generated/earlier.png", out.MediaRef)
	require.Zero(t, f.studio.calls)

	tn, err := f.tenants.GetTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Equal(t, int64(10), tn.CreditBalance, "a retry after success must not debit twice")
}

func TestGenerateCreativeWithoutRawMedia(t *testing.T) {
	f := newActivityFixture(t)
	f.seedTenant(t, 10, 1)
	f.seedPost(t, &Post{ID: "post-1"})

	out, err := f.activities.GenerateCreative(context.Background(), "post-1")
	require.NoError(t, err)
	require.True(t, out.Skipped)
	require.Zero(t, f.studio.calls)
}

func TestPublishPostBothDestinations(t *testing.T) {
	f := newActivityFixture(t)
	f.seedTenant(t, 10, 1)
	f.seedPost(t, &Post{ID: "post-1", Body: "hello", GeneratedMediaRef: "generated/post.png"})

	out, err := f.activities.PublishPost(context.Background(), "post-1")
	require.NoError(t, err)
	require.Equal(t, 2, out.Delivered)
	require.Equal(t, 2, out.Attempted)

	require.Len(t, f.fanout.published, 1)
	require.Equal(t, "ws-1", f.fanout.published[0].WorkspaceKey)
	require.Equal(t, []string{"ch-1"}, f.fanout.published[0].ChannelIDs)
	require.Equal(t, "https://media.test/generated/post.png", f.fanout.published[0].MediaURL)
	require.Equal(t, []string{"post.published"}, f.notifier.notified)

	attempts, err := f.attempts.Find(context.Background(), &PublicationAttempt{PostID: "post-1"})
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	for _, at := range attempts {
		require.Equal(t, OutcomeDelivered, at.Outcome)
	}
}

func TestPublishPostPartialDelivery(t *testing.T) {
	f := newActivityFixture(t)
	f.seedTenant(t, 10, 1)
	f.seedPost(t, &Post{ID: "post-1", Body: "hello"})
	f.fanout.publishErr = errors.New("rate limited")

	out, err := f.activities.PublishPost(context.Background(), "post-1")
	require.NoError(t, err)
	require.Equal(t, 1, out.Delivered)
	require.Equal(t, 2, out.Attempted)

	attempts, err := f.attempts.Find(context.Background(), &PublicationAttempt{PostID: "post-1"})
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	outcomes := map[string]string{}
	for _, at := range attempts {
		outcomes[at.Channel] = at.Outcome
	}
	require.Equal(t, OutcomeFailed, outcomes[ChannelAuto])
	require.Equal(t, OutcomeDelivered, outcomes[ChannelNotify])
}

func TestRecordOutcomeMonotonic(t *testing.T) {
	f := newActivityFixture(t)
	f.seedPost(t, &Post{ID: "post-1", Status: StatusPublished})

	require.NoError(t, f.activities.RecordOutcome(context.Background(), RecordOutcomeInput{
		PostID: "post-1",
		Status: StatusFailed,
		Reason: "late failure",
	}))

	stored, err := f.posts.FindOne(context.Background(), &Post{ID: "post-1"})
	require.NoError(t, err)
	require.Equal(t, StatusPublished, stored.Status)
	require.Empty(t, stored.StatusReason)
}

func TestRecordApprovalIdempotent(t *testing.T) {
	f := newActivityFixture(t)
	approvedAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	f.seedPost(t, &Post{ID: "post-1", RequiresApproval: true, ApprovedAt: &approvedAt, ApprovedBy: "alice"})

	require.NoError(t, f.activities.RecordApproval(context.Background(), RecordApprovalInput{
		PostID:     "post-1",
		ApprovedBy: "bob",
	}))

	stored, err := f.posts.FindOne(context.Background(), &Post{ID: "post-1"})
	require.NoError(t, err)
	require.Equal(t, "alice", stored.ApprovedBy, "the first recorded decision wins")
}

func TestArmRecurrenceAdvancesSchedule(t *testing.T) {
	f := newActivityFixture(t)
	past := time.Now().UTC().Add(-48 * time.Hour)
	f.seedPost(t, &Post{ID: "post-1", Recurrence: RecurrenceDaily, ScheduledAt: &past})

	next, err := f.activities.ArmRecurrence(context.Background(), "post-1")
	require.NoError(t, err)
	require.NotNil(t, next)
	require.True(t, next.After(time.Now().UTC()))

	stored, err := f.posts.FindOne(context.Background(), &Post{ID: "post-1"})
	require.NoError(t, err)
	require.Equal(t, StatusRecurring, stored.Status)
	require.WithinDuration(t, *next, *stored.ScheduledAt, time.Second)
}

func TestArmRecurrenceNoneIsNoop(t *testing.T) {
	f := newActivityFixture(t)
	f.seedPost(t, &Post{ID: "post-1"})

	next, err := f.activities.ArmRecurrence(context.Background(), "post-1")
	require.NoError(t, err)
	require.Nil(t, next)
}
