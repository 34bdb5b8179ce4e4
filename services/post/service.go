package post

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"contentplane/pkg/db/option"
	"contentplane/pkg/db/pagination"
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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Orchestrator is the slice of the Temporal client the service needs.
type Orchestrator interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
}

type Service struct {
	node     *snowflake.Node
	posts    repository.Repository[Post]
	attempts repository.Repository[PublicationAttempt]
	seq      sequence.Generator
	tc       Orchestrator
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Sequence sequence.Generator
	Temporal client.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		node:     p.Node,
		posts:    repository.ProvideStore[Post](p.DB),
		attempts: repository.ProvideStore[PublicationAttempt](p.DB),
		seq:      p.Sequence,
	}
	if p.Temporal != nil {
		s.tc = p.Temporal
	}
	return s
}

type CreatePostRequest struct {
	TenantID         string          `json:"tenant_id" binding:"required"`
	CampaignID       string          `json:"campaign_id"`
	Body             string          `json:"body" binding:"required"`
	TemplateKind     TemplateKind    `json:"template_kind"`
	CreativeData     json.RawMessage `json:"creative_data"`
	MediaKind        MediaKind       `json:"media_kind"`
	RawMediaRef      string          `json:"raw_media_ref"`
	RequiresApproval bool            `json:"requires_approval"`
	ScheduledAt      *time.Time      `json:"scheduled_at"`
	Recurrence       Recurrence      `json:"recurrence"`
}

// CreatePost records the post and opens its first distribution cycle. The
// cycle workflow id is derived from the post id, so a redundant create retry
// cannot fork a second cycle.
func (s *Service) CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	switch req.Recurrence {
	case "", RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
	default:
		return nil, errutil.ValidationFailed("unknown recurrence", nil)
	}
	if req.Recurrence != "" && req.Recurrence != RecurrenceNone && req.ScheduledAt == nil {
		return nil, errutil.ValidationFailed("recurring post requires a schedule", nil)
	}

	code, err := s.seq.NextPostCode(ctx, req.TenantID)
	if err != nil {
		zapLog.Error("failed to allocate post code", zap.Error(err))
		return nil, errutil.Internal("failed to allocate post code", err)
	}

	templateKind := req.TemplateKind
	if templateKind == "" {
		templateKind = TemplateGeneric
	}
	mediaKind := req.MediaKind
	if mediaKind == "" {
		mediaKind = MediaImage
	}
	recurrence := req.Recurrence
	if recurrence == "" {
		recurrence = RecurrenceNone
	}

	post := &Post{
		ID:               s.node.Generate().String(),
		TenantID:         req.TenantID,
		CampaignID:       req.CampaignID,
		Code:             code,
		Body:             req.Body,
		TemplateKind:     templateKind,
		CreativeData:     datatypes.JSON(req.CreativeData),
		MediaKind:        mediaKind,
		RawMediaRef:      req.RawMediaRef,
		Status:           StatusPending,
		RequiresApproval: req.RequiresApproval,
		ScheduledAt:      req.ScheduledAt,
		Recurrence:       recurrence,
	}

	if err := s.posts.Create(ctx, post); err != nil {
		zapLog.Error("failed to create post", zap.Error(err))
		return nil, errutil.Internal("failed to create post", err)
	}

	if err := s.StartCycle(ctx, post); err != nil {
		zapLog.Error("failed to start distribution cycle", zap.String("post_id", post.ID), zap.Error(err))
		return nil, errutil.Internal("failed to start distribution cycle", err)
	}

	return post, nil
}

// StartCycle opens a distribution cycle workflow for the post. An already
// running cycle makes the start a no-op, which is what both the create path
// and the dispatch sweep want.
func (s *Service) StartCycle(ctx context.Context, post *Post) error {
	if s.tc == nil {
		return errutil.Internal("workflow client not configured", nil)
	}

	_, err := s.tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        pkgworkflow.PostWorkflowID(post.ID),
		TaskQueue: pkgworkflow.OrchestrationTaskQueue,
	}, CampaignWorkflow, WorkflowInput{
		PostID:           post.ID,
		TenantID:         post.TenantID,
		RequiresApproval: post.RequiresApproval && !post.Approved(),
		ScheduledAt:      post.ScheduledAt,
		Recurrence:       post.Recurrence,
	})

	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		zap.L().Info("distribution cycle already open", zap.String("post_id", post.ID))
		return nil
	}
	return err
}

type ApprovalRequest struct {
	Approved   bool   `json:"approved"`
	ApprovedBy string `json:"approved_by" binding:"required"`
}

// Approve delivers an approval decision into the post's open cycle. A
// decision that arrives after the cycle closed is logged and dropped; the
// recorded post state already reflects the outcome the cycle settled on.
func (s *Service) Approve(ctx context.Context, postID string, req ApprovalRequest) error {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return err
	}

	if s.tc == nil {
		return errutil.Internal("workflow client not configured", nil)
	}

	err = s.tc.SignalWorkflow(ctx, pkgworkflow.PostWorkflowID(post.ID), "", pkgworkflow.SignalPostApproval, ApprovalSignal{
		Approved:   req.Approved,
		ApprovedBy: req.ApprovedBy,
	})

	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		zap.L().Warn("approval for a closed cycle ignored",
			zap.String("post_id", postID),
			zap.Bool("approved", req.Approved),
		)
		return nil
	}
	return err
}

func (s *Service) GetPost(ctx context.Context, postID string) (*Post, error) {
	post, err := s.posts.FindOne(ctx, &Post{ID: postID})
	if err != nil {
		zap.L().Error("failed query get post by id", zap.Error(err))
		return nil, errutil.Internal("failed to get post", err)
	}

	if post == nil {
		return nil, errutil.NotFound("post not found", nil)
	}

	return post, nil
}

// ListDue returns the re-entrant posts whose schedule has passed. The dispatch
// sweep feeds each one back through StartCycle.
func (s *Service) ListDue(ctx context.Context, now time.Time, limit int) ([]*Post, error) {
	return s.posts.Find(ctx, &Post{},
		option.WithWhere("status IN ? AND scheduled_at <= ?", []Status{StatusQueued, StatusRecurring}, now),
		option.WithSortBy(option.QuerySortBy{Field: "scheduled_at", OrderBy: "ASC"}),
		option.ApplyPagination(pagination.Pagination{Limit: limit}),
	)
}

// Attempts returns the publication history for a post, newest first.
func (s *Service) Attempts(ctx context.Context, postID string) ([]*PublicationAttempt, error) {
	return s.attempts.Find(ctx, &PublicationAttempt{PostID: postID},
		option.WithSortBy(option.QuerySortBy{Field: "created_at", OrderBy: "DESC"}),
	)
}
