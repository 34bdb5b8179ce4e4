package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"contentplane/pkg/config"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var ProvideClient = fx.Module("temporal",
	fx.Provide(NewClient),
	fx.Invoke(Close),
)

// OrchestrationTaskQueue carries every workflow and activity of the platform.
const OrchestrationTaskQueue = "CONTENT_ORCHESTRATION_TASK_QUEUE"

const (
	// SignalPaymentConfirmation delivers the charge provider's webhook into a
	// running payment workflow.
	SignalPaymentConfirmation = "payment-confirmation"
	// SignalPostApproval delivers a human approval decision into a running
	// campaign workflow. The same channel shape can carry a cancel decision.
	SignalPostApproval = "post-approval"

	// QueryStatus returns the workflow-visible state for diagnostics.
	QueryStatus = "status"
)

// PaymentWorkflowID derives the stable business key for a payment attempt.
// The substrate enforces at most one open instance per key.
func PaymentWorkflowID(paymentID string) string {
	return fmt.Sprintf("payment-%s", paymentID)
}

// PostWorkflowID derives the stable business key for a distributable content item.
func PostWorkflowID(postID string) string {
	return fmt.Sprintf("campaign-post-%s", postID)
}

func TenantProvisionWorkflowID(tenantID string) string {
	return fmt.Sprintf("tenant-provision-%s", tenantID)
}

func MembershipSyncWorkflowID(userID string) string {
	return fmt.Sprintf("membership-sync-%s", userID)
}

// DefaultActivityOptions is the retry envelope applied to every activity call
// unless the workflow overrides it. Transient provider errors are retried here;
// exhaustion surfaces to the workflow as an activity error.
func DefaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
}

func NewClient(cfg *config.Config) client.Client {
	var c client.Client
	var err error

	clientOptions := client.Options{
		HostPort:  cfg.Temporal.Addr,
		Namespace: cfg.Temporal.Namespace,
		ConnectionOptions: client.ConnectionOptions{
			KeepAliveTime:    30 * time.Second,
			KeepAliveTimeout: 30 * time.Second,
			DialOptions: []grpc.DialOption{
				grpc.WithTransportCredentials(
					insecure.NewCredentials(),
				),
			},
		},
		Logger: log.With(
			slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				AddSource: true,
				Level:     slog.LevelDebug,
			}))),
	}

	for i := 1; i <= 3; i++ {
		c, err = client.Dial(clientOptions)
		if err == nil {
			break
		}
		zap.L().Warn("retrying Temporal client connection", zap.Int("attempt", i), zap.Error(err))
		time.Sleep(2 * time.Second)
	}

	if err != nil {
		zap.L().Fatal("❌ failed to connect Temporal server after retries", zap.Error(err))
	}

	zap.L().Info("✅ Connected to Temporal server")
	return c
}

func Close(lc fx.Lifecycle, c client.Client) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			c.Close()
			return nil
		},
	})
}
