package dispatch

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskStartCycle asks a worker to open the next distribution cycle for a
	// due post.
	TaskStartCycle = "post:start_cycle"
)

type StartCyclePayload struct {
	PostID   string `json:"post_id"`
	TenantID string `json:"tenant_id"`
}

func NewStartCycleTask(p StartCyclePayload) *asynq.Task {
	payload, _ := json.Marshal(p)
	return asynq.NewTask(TaskStartCycle, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(60*time.Second),
		asynq.Queue("dispatch"),
	)
}
