package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"contentplane/pkg/client"
	"contentplane/pkg/config"
	"contentplane/pkg/db"
	"contentplane/pkg/gen"
	"contentplane/pkg/health"
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

// The gateway process: HTTP surface plus the workflow client it starts and
// signals instances through. Workflow and queue execution live in cmd/worker.
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
		workflow.ProvideClient,
		client.Module,
		pkgminio.Client,
		health.Module,

		tenant.Module,
		payment.Module,
		post.Module,
		dispatch.Module,

		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
