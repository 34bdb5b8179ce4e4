package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"contentplane/services/post"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type TaskHandler struct {
	posts *post.Service
}

type TaskHandlerParams struct {
	fx.In
	Posts *post.Service
}

func NewTaskHandler(p TaskHandlerParams) *TaskHandler {
	return &TaskHandler{posts: p.Posts}
}

// HandleStartCycle opens a distribution cycle for a due post. A cycle already
// in flight makes the start a no-op, so redundant tasks from overlapping
// sweeps are harmless.
func (h *TaskHandler) HandleStartCycle(ctx context.Context, t *asynq.Task) error {
	var payload StartCyclePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("post_id", payload.PostID),
		zap.String("tenant_id", payload.TenantID),
	)

	p, err := h.posts.GetPost(ctx, payload.PostID)
	if err != nil {
		zapLog.Error("failed to load due post", zap.Error(err))
		return err
	}

	if p.Status.Terminal() {
		zapLog.Info("skipping cycle for terminal post", zap.String("status", string(p.Status)))
		return nil
	}

	if err := h.posts.StartCycle(ctx, p); err != nil {
		zapLog.Error("failed to open distribution cycle", zap.Error(err))
		return err
	}

	zapLog.Info("distribution cycle opened")
	return nil
}

func registerTaskHandlers(mux *asynq.ServeMux, h *TaskHandler) {
	mux.HandleFunc(TaskStartCycle, h.HandleStartCycle)
}
