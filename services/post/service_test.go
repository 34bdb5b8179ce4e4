package post

import (
	"context"
	"testing"
	"time"

	"contentplane/pkg/repository"
	pkgworkflow "contentplane/pkg/workflow"
	"contentplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"gorm.io/gorm"
)

type fakeOrchestrator struct {
	startedIDs []string
	startErr   error
	signals    []string
	signalArg  interface{}
	signalErr  error
}

func (f *fakeOrchestrator) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.startedIDs = append(f.startedIDs, options.ID)
	return nil, nil
}

func (f *fakeOrchestrator) SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error {
	if f.signalErr != nil {
		return f.signalErr
	}
	f.signals = append(f.signals, workflowID)
	f.signalArg = arg
	return nil
}

type fakeSequence struct{ next string }

func (f *fakeSequence) NextPaymentReference(ctx context.Context, tenantID string) (string, error) {
	return f.next, nil
}

func (f *fakeSequence) NextPostCode(ctx context.Context, tenantID string) (string, error) {
	return f.next, nil
}

func newTestService(t *testing.T, tc *fakeOrchestrator) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Post{}, &PublicationAttempt{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Service{
		node:     node,
		posts:    repository.ProvideStore[Post](db),
		attempts: repository.ProvideStore[PublicationAttempt](db),
		seq:      &fakeSequence{next: "PST-20260831-0001"},
		tc:       tc,
	}, db
}

func TestCreatePostStartsCycle(t *testing.T) {
	tc := &fakeOrchestrator{}
	svc, _ := newTestService(t, tc)

	p, err := svc.CreatePost(context.Background(), CreatePostRequest{
		TenantID:     "tenant-1",
		Body:         "Grand opening this Friday",
		CreativeData: []byte(`{"headline":"Grand Opening"}`),
		RawMediaRef:  "raw/photo.jpg",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, p.Status)
	require.Equal(t, "PST-20260831-0001", p.Code)
	require.Equal(t, TemplateGeneric, p.TemplateKind)
	require.Equal(t, RecurrenceNone, p.Recurrence)

	require.Len(t, tc.startedIDs, 1)
	require.Equal(t, pkgworkflow.PostWorkflowID(p.ID), tc.startedIDs[0])
}

func TestCreatePostRecurringRequiresSchedule(t *testing.T) {
	tc := &fakeOrchestrator{}
	svc, _ := newTestService(t, tc)

	_, err := svc.CreatePost(context.Background(), CreatePostRequest{
		TenantID:   "tenant-1",
		Body:       "daily special",
		Recurrence: RecurrenceDaily,
	})
	require.Error(t, err)
	require.Empty(t, tc.startedIDs)
}

func TestCreatePostUnknownRecurrence(t *testing.T) {
	tc := &fakeOrchestrator{}
	svc, _ := newTestService(t, tc)

	_, err := svc.CreatePost(context.Background(), CreatePostRequest{
		TenantID:   "tenant-1",
		Body:       "hello",
		Recurrence: Recurrence("HOURLY"),
	})
	require.Error(t, err)
}

func TestStartCycleDuplicateTolerated(t *testing.T) {
	tc := &fakeOrchestrator{
		startErr: serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", ""),
	}
	svc, db := newTestService(t, tc)

	p := &Post{ID: "post-1", TenantID: "tenant-1", Status: StatusRecurring, Recurrence: RecurrenceDaily}
	require.NoError(t, db.Create(p).Error)

	require.NoError(t, svc.StartCycle(context.Background(), p))
}

func TestApproveSignalsOpenCycle(t *testing.T) {
	tc := &fakeOrchestrator{}
	svc, db := newTestService(t, tc)
	require.NoError(t, db.Create(&Post{ID: "post-1", TenantID: "tenant-1", Status: StatusPending, RequiresApproval: true}).Error)

	require.NoError(t, svc.Approve(context.Background(), "post-1", ApprovalRequest{
		Approved:   true,
		ApprovedBy: "alice",
	}))

	require.Len(t, tc.signals, 1)
	require.Equal(t, pkgworkflow.PostWorkflowID("post-1"), tc.signals[0])

	sig, ok := tc.signalArg.(ApprovalSignal)
	require.True(t, ok)
	require.True(t, sig.Approved)
	require.Equal(t, "alice", sig.ApprovedBy)
}

func TestApproveAfterCycleClosed(t *testing.T) {
	tc := &fakeOrchestrator{signalErr: serviceerror.NewNotFound("workflow execution not found")}
	svc, db := newTestService(t, tc)
	require.NoError(t, db.Create(&Post{ID: "post-1", TenantID: "tenant-1", Status: StatusFailed}).Error)

	err := svc.Approve(context.Background(), "post-1", ApprovalRequest{Approved: true, ApprovedBy: "alice"})
	require.NoError(t, err, "a decision against a closed cycle is dropped")
}

func TestListDueReturnsOnlyDuePosts(t *testing.T) {
	svc, db := newTestService(t, &fakeOrchestrator{})
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.NoError(t, db.Create([]*Post{
		{ID: "due-recurring", TenantID: "t", Status: StatusRecurring, Recurrence: RecurrenceDaily, ScheduledAt: &past},
		{ID: "due-queued", TenantID: "t", Status: StatusQueued, ScheduledAt: &past},
		{ID: "not-yet", TenantID: "t", Status: StatusRecurring, Recurrence: RecurrenceDaily, ScheduledAt: &future},
		{ID: "terminal", TenantID: "t", Status: StatusPublished, ScheduledAt: &past},
	}).Error)

	due, err := svc.ListDue(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, due, 2)

	ids := map[string]bool{}
	for _, p := range due {
		ids[p.ID] = true
	}
	require.True(t, ids["due-recurring"])
	require.True(t, ids["due-queued"])
}
