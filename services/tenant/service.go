package tenant

import (
	"context"
	"errors"

	"contentplane/pkg/errutil"
	"contentplane/pkg/repository"
	pkgworkflow "contentplane/pkg/workflow"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
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
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	tenants repository.Repository[Tenant]
	tc      Orchestrator
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Temporal client.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:      p.DB,
		node:    p.Node,
		tenants: repository.ProvideStore[Tenant](p.DB),
	}
	if p.Temporal != nil {
		s.tc = p.Temporal
	}
	return s
}

type CreateTenantRequest struct {
	Name           string `json:"name" binding:"required"`
	Slug           string `json:"slug"`
	CreditBalance  int64  `json:"credit_balance"`
	CostMultiplier int64  `json:"cost_multiplier"`
}

// CreateTenant records the tenant and starts its provisioning workflow. The
// workflow id is derived from the tenant id, so a redundant start is a no-op.
func (s *Service) CreateTenant(ctx context.Context, req CreateTenantRequest) (*Tenant, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	slugName := req.Slug
	if slugName == "" {
		slugName = slug.Make(req.Name)
	}

	exist, err := s.tenants.FindOne(ctx, &Tenant{Slug: slugName})
	if err != nil {
		zapLog.Error("failed query get tenant by slug", zap.Error(err))
		return nil, errutil.Internal("failed to check existing tenant", err)
	}

	if exist != nil {
		zapLog.Warn("tenant already exists", zap.String("slug", slugName))
		return nil, errutil.Conflict("tenant already exists", nil)
	}

	multiplier := req.CostMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	tenant := &Tenant{
		ID:             s.node.Generate().String(),
		Name:           req.Name,
		Slug:           slugName,
		CreditBalance:  req.CreditBalance,
		CostMultiplier: multiplier,
		Status:         Active,
	}

	if err := s.tenants.Create(ctx, tenant); err != nil {
		zapLog.Error("failed to create tenant", zap.Error(err))
		return nil, errutil.Internal("failed to create tenant", err)
	}

	if err := s.startProvisioning(ctx, tenant.ID); err != nil {
		zapLog.Error("failed to start tenant provisioning", zap.String("tenant_id", tenant.ID), zap.Error(err))
		return nil, errutil.Internal("failed to start tenant provisioning", err)
	}

	return tenant, nil
}

func (s *Service) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	tenant, err := s.tenants.FindOne(ctx, &Tenant{ID: tenantID})
	if err != nil {
		zap.L().Error("failed query get tenant by id", zap.Error(err))
		return nil, errutil.Internal("failed to get tenant", err)
	}

	if tenant == nil {
		return nil, errutil.NotFound("tenant not found", nil)
	}

	return tenant, nil
}

func (s *Service) startProvisioning(ctx context.Context, tenantID string) error {
	if s.tc == nil {
		return nil
	}

	_, err := s.tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        pkgworkflow.TenantProvisionWorkflowID(tenantID),
		TaskQueue: pkgworkflow.OrchestrationTaskQueue,
	}, ProvisionWorkflow, tenantID)

	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}
	return err
}

type MembershipChange struct {
	UserID  string   `json:"user_id" binding:"required"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// SyncMemberships starts the roster-sync workflow for a user's membership
// changes. A redundant call for the same change while a sync is open is a
// no-op; a different change arriving in that window is dropped, and the
// caller has to resend it once the open sync closes.
func (s *Service) SyncMemberships(ctx context.Context, change MembershipChange) error {
	if s.tc == nil {
		return errutil.Internal("workflow client not configured", nil)
	}

	_, err := s.tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        pkgworkflow.MembershipSyncWorkflowID(change.UserID),
		TaskQueue: pkgworkflow.OrchestrationTaskQueue,
	}, MembershipSyncWorkflow, change)

	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		zap.L().Warn("membership change dropped, sync already running",
			zap.String("user_id", change.UserID),
			zap.Strings("added", change.Added),
			zap.Strings("removed", change.Removed),
		)
		return nil
	}
	return err
}

type DebitResult struct {
	Charged bool
	Cost    int64
	Balance int64
}

// DebitForGeneration is the single authoritative credit mutation. The
// multiplier-adjusted cost is compared and decremented in one statement so two
// concurrent generation requests can never interleave a read with a write.
// Insufficient balance is an admission refusal, not an error.
func (s *Service) DebitForGeneration(ctx context.Context, tenantID string, baseCost int64) (*DebitResult, error) {
	return s.debit(ctx, s.db, tenantID, baseCost)
}

// DebitInTx runs the same conditional debit inside a caller-owned transaction,
// so the caller can persist its own charge marker atomically with the debit.
func (s *Service) DebitInTx(ctx context.Context, tx *gorm.DB, tenantID string, baseCost int64) (*DebitResult, error) {
	return s.debit(ctx, tx, tenantID, baseCost)
}

func (s *Service) debit(ctx context.Context, db *gorm.DB, tenantID string, baseCost int64) (*DebitResult, error) {
	tx := db.WithContext(ctx).Model(&Tenant{}).
		Where("id = ? AND credit_balance >= ? * cost_multiplier", tenantID, baseCost).
		UpdateColumn("credit_balance", gorm.Expr("credit_balance - ? * cost_multiplier", baseCost))
	if tx.Error != nil {
		return nil, errutil.Internal("failed to debit tenant credit", tx.Error)
	}

	var tenant Tenant
	if err := db.WithContext(ctx).Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("tenant not found", nil)
		}
		return nil, errutil.Internal("failed to get tenant", err)
	}

	result := &DebitResult{
		Charged: tx.RowsAffected > 0,
		Cost:    baseCost * tenant.CostMultiplier,
		Balance: tenant.CreditBalance,
	}

	if !result.Charged {
		zap.L().Warn("generation admission refused, insufficient credit",
			zap.String("tenant_id", tenantID),
			zap.Int64("cost", result.Cost),
			zap.Int64("balance", result.Balance),
		)
	}

	return result, nil
}
