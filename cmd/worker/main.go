package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"contentplane/pkg/client"
	"contentplane/pkg/config"
	"contentplane/pkg/db"
	"contentplane/pkg/gen"
	"contentplane/pkg/logger"
	pkgminio "contentplane/pkg/minio"
	"contentplane/pkg/otelcol"
	"contentplane/pkg/redis"
	"contentplane/pkg/sequence"
	"contentplane/pkg/task"
	"contentplane/pkg/workflow"
	"contentplane/services/dispatch"
	"contentplane/services/payment"
	"contentplane/services/post"
	"contentplane/services/tenant"
)

// The worker process hosts everything that executes: the orchestration
// worker, the queue consumers, and the dispatch sweep.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		task.Server,
		workflow.ProvideClient,
		workflow.ProvideWorker,
		client.Module,
		pkgminio.Client,

		tenant.Module,
		tenant.Worker,
		payment.Module,
		payment.Worker,
		post.Module,
		post.Worker,
		dispatch.Worker,

		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
