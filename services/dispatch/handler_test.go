package dispatch

import (
	"context"
	"testing"

	"contentplane/services/post"
	"contentplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*TaskHandler, *post.Service) {
	t.Helper()
	db := testutil.NewTestDB(t, &post.Post{}, &post.PublicationAttempt{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&post.Post{ID: "done", TenantID: "t1", Status: post.StatusPublished}).Error)

	posts := post.NewService(post.ServiceParams{DB: db, Node: node})
	return NewTaskHandler(TaskHandlerParams{Posts: posts}), posts
}

func TestHandleStartCycleInvalidPayload(t *testing.T) {
	h, _ := newTestHandler(t)

	err := h.HandleStartCycle(context.Background(), asynq.NewTask(TaskStartCycle, []byte("not json")))
	require.Error(t, err)
}

func TestHandleStartCycleUnknownPost(t *testing.T) {
	h, _ := newTestHandler(t)

	task := NewStartCycleTask(StartCyclePayload{PostID: "missing", TenantID: "t1"})
	err := h.HandleStartCycle(context.Background(), task)
	require.Error(t, err)
}

func TestHandleStartCycleSkipsTerminalPost(t *testing.T) {
	h, _ := newTestHandler(t)

	// The post reached a terminal status between the sweep and the task run;
	// the handler drops it without touching the workflow client.
	task := NewStartCycleTask(StartCyclePayload{PostID: "done", TenantID: "t1"})
	require.NoError(t, h.HandleStartCycle(context.Background(), task))
}
