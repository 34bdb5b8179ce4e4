package workflow

import (
	"context"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideWorker = fx.Module("temporal:worker",
	fx.Provide(NewWorker),
	fx.Invoke(StartWorker),
)

func NewWorker(c client.Client) worker.Worker {
	return worker.New(c, OrchestrationTaskQueue, worker.Options{})
}

// StartWorker runs the worker after every service has registered its workflows
// and activities on it.
func StartWorker(lc fx.Lifecycle, w worker.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := w.Start(); err != nil {
				zap.L().Error("failed to start Temporal worker", zap.Error(err))
				return err
			}
			zap.L().Info("Temporal worker started", zap.String("task_queue", OrchestrationTaskQueue))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.Stop()
			return nil
		},
	})
}
