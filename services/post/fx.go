package post

import (
	"go.temporal.io/sdk/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("post.module",
	fx.Provide(NewService),
)

var Worker = fx.Module("post.worker",
	fx.Provide(NewActivities),
	fx.Invoke(registerWorker),
)

func registerWorker(w worker.Worker, a *Activities) {
	w.RegisterWorkflow(CampaignWorkflow)
	w.RegisterActivity(a)
}
