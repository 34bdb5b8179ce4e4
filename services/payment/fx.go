package payment

import (
	"go.temporal.io/sdk/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.module",
	fx.Provide(NewService),
)

var Worker = fx.Module("payment.worker",
	fx.Provide(NewActivities),
	fx.Invoke(registerWorker),
)

func registerWorker(w worker.Worker, a *Activities) {
	w.RegisterWorkflow(Workflow)
	w.RegisterActivity(a)
}
