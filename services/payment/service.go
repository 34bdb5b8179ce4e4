package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"contentplane/pkg/config"
	"contentplane/pkg/errutil"
	"contentplane/pkg/repository"
	"contentplane/pkg/sequence"
	pkgworkflow "contentplane/pkg/workflow"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Orchestrator is the slice of the Temporal client the service needs.
type Orchestrator interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
}

type Service struct {
	node        *snowflake.Node
	seq         sequence.Generator
	payments    repository.Repository[PaymentAttempt]
	tc          Orchestrator
	confirmWait time.Duration
}

type ServiceParams struct {
	fx.In
	Config   *config.Config
	DB       *gorm.DB
	Node     *snowflake.Node
	Seq      sequence.Generator
	Temporal client.Client
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:        p.Node,
		seq:         p.Seq,
		payments:    repository.ProvideStore[PaymentAttempt](p.DB),
		tc:          p.Temporal,
		confirmWait: p.Config.Charge.ConfirmWait,
	}
}

type CollectRequest struct {
	TenantID   string `json:"tenant_id" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	PayerPhone string `json:"payer_phone" binding:"required"`
}

// Collect records a fresh PaymentAttempt and opens its workflow instance. The
// instance id is derived from the attempt id, so a duplicate start for the
// same attempt is tolerated as a no-op.
func (s *Service) Collect(ctx context.Context, req CollectRequest) (*PaymentAttempt, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	reference, err := s.seq.NextPaymentReference(ctx, req.TenantID)
	if err != nil {
		zapLog.Error("failed to issue payment reference", zap.Error(err))
		return nil, errutil.Internal("failed to issue payment reference", err)
	}

	attempt := &PaymentAttempt{
		ID:         s.node.Generate().String(),
		TenantID:   req.TenantID,
		Reference:  reference,
		Amount:     req.Amount,
		PayerPhone: req.PayerPhone,
		Status:     StatusPending,
	}

	if err := s.payments.Create(ctx, attempt); err != nil {
		zapLog.Error("failed to create payment attempt", zap.Error(err))
		return nil, errutil.Internal("failed to create payment attempt", err)
	}

	_, err = s.tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        pkgworkflow.PaymentWorkflowID(attempt.ID),
		TaskQueue: pkgworkflow.OrchestrationTaskQueue,
	}, Workflow, WorkflowInput{
		PaymentID:   attempt.ID,
		TenantID:    attempt.TenantID,
		Amount:      attempt.Amount,
		PayerPhone:  attempt.PayerPhone,
		Reference:   attempt.Reference,
		ConfirmWait: s.confirmWait,
	})

	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if err != nil && !errors.As(err, &already) {
		zapLog.Error("failed to start payment workflow", zap.String("payment_id", attempt.ID), zap.Error(err))
		return nil, errutil.Internal("failed to start payment workflow", err)
	}

	zapLog.Info("payment collection started",
		zap.String("payment_id", attempt.ID),
		zap.String("reference", attempt.Reference),
	)
	return attempt, nil
}

type CallbackRequest struct {
	CorrelationID string          `json:"correlation_id" binding:"required"`
	ResultCode    int             `json:"result_code"`
	Metadata      json.RawMessage `json:"metadata"`
}

// DeliverCallback routes a provider webhook into the owning workflow instance.
// A callback for an attempt whose instance already closed (reconciliation ran
// first, or the attempt is terminal) is swallowed: the guard is authoritative.
func (s *Service) DeliverCallback(ctx context.Context, req CallbackRequest, raw []byte) error {
	attempt, err := s.payments.FindOne(ctx, &PaymentAttempt{ProviderRef: req.CorrelationID})
	if err != nil {
		return errutil.Internal("failed to look up payment by correlation id", err)
	}
	if attempt == nil {
		return errutil.NotFound("no payment attempt for correlation id", nil)
	}

	err = s.tc.SignalWorkflow(ctx, pkgworkflow.PaymentWorkflowID(attempt.ID), "", pkgworkflow.SignalPaymentConfirmation, ConfirmationSignal{
		CorrelationID: req.CorrelationID,
		ResultCode:    req.ResultCode,
		Raw:           raw,
	})
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			zap.L().Info("late callback for closed payment workflow",
				zap.String("payment_id", attempt.ID),
				zap.String("correlation_id", req.CorrelationID),
			)
			return nil
		}
		return errutil.Internal("failed to signal payment workflow", err)
	}

	return nil
}

func (s *Service) GetAttempt(ctx context.Context, paymentID string) (*PaymentAttempt, error) {
	attempt, err := s.payments.FindOne(ctx, &PaymentAttempt{ID: paymentID})
	if err != nil {
		return nil, errutil.Internal("failed to get payment attempt", err)
	}
	if attempt == nil {
		return nil, errutil.NotFound("payment attempt not found", nil)
	}
	return attempt, nil
}
