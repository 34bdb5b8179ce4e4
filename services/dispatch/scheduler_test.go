package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"contentplane/services/post"
	"contentplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return nil, nil
}

func TestSweepEnqueuesOnlyDuePosts(t *testing.T) {
	db := testutil.NewTestDB(t, &post.Post{}, &post.PublicationAttempt{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	require.NoError(t, db.Create([]*post.Post{
		{ID: "due-1", TenantID: "t1", Status: post.StatusRecurring, Recurrence: post.RecurrenceDaily, ScheduledAt: &past},
		{ID: "due-2", TenantID: "t2", Status: post.StatusQueued, ScheduledAt: &past},
		{ID: "future", TenantID: "t1", Status: post.StatusRecurring, Recurrence: post.RecurrenceDaily, ScheduledAt: &future},
		{ID: "done", TenantID: "t1", Status: post.StatusPublished, ScheduledAt: &past},
	}).Error)

	posts := post.NewService(post.ServiceParams{DB: db, Node: node})
	enqueuer := &fakeEnqueuer{}
	s := NewSweeper(posts, enqueuer)

	s.sweep(context.Background())

	require.Len(t, enqueuer.tasks, 2)
	seen := map[string]bool{}
	for _, task := range enqueuer.tasks {
		require.Equal(t, TaskStartCycle, task.Type())
		var payload StartCyclePayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		seen[payload.PostID] = true
	}
	require.True(t, seen["due-1"])
	require.True(t, seen["due-2"])
}

func TestSweepToleratesEnqueueFailure(t *testing.T) {
	db := testutil.NewTestDB(t, &post.Post{}, &post.PublicationAttempt{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	require.NoError(t, db.Create(&post.Post{
		ID: "due-1", TenantID: "t1", Status: post.StatusQueued, ScheduledAt: &past,
	}).Error)

	posts := post.NewService(post.ServiceParams{DB: db, Node: node})
	enqueuer := &fakeEnqueuer{err: errors.New("redis down")}
	s := NewSweeper(posts, enqueuer)

	// A broken queue must not panic or abort the loop.
	s.sweep(context.Background())
	require.Empty(t, enqueuer.tasks)
}
