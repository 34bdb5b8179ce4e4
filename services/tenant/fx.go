package tenant

import (
	"go.temporal.io/sdk/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.module",
	fx.Provide(NewService),
)

var Worker = fx.Module("tenant.worker",
	fx.Provide(NewActivities),
	fx.Invoke(registerWorker),
)

func registerWorker(w worker.Worker, a *Activities) {
	w.RegisterWorkflow(ProvisionWorkflow)
	w.RegisterWorkflow(MembershipSyncWorkflow)
	w.RegisterActivity(a)
}
