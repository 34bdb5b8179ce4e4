package post

import (
	"context"
	"time"

	"contentplane/pkg/client"
	"contentplane/pkg/config"
	"contentplane/pkg/errutil"
	pkgminio "contentplane/pkg/minio"
	"contentplane/pkg/repository"
	"contentplane/services/tenant"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const mediaURLTTL = 24 * time.Hour

type Activities struct {
	cfg      *config.Config
	node     *snowflake.Node
	db       *gorm.DB
	posts    repository.Repository[Post]
	attempts repository.Repository[PublicationAttempt]
	tenants  *tenant.Service
	studio   client.CreativeStudio
	fanout   client.Fanout
	notifier client.Notifier
	media    pkgminio.MediaStore
}

type ActivitiesParams struct {
	fx.In
	Config   *config.Config
	Node     *snowflake.Node
	DB       *gorm.DB
	Tenants  *tenant.Service
	Studio   client.CreativeStudio
	Fanout   client.Fanout
	Notifier client.Notifier
	Media    pkgminio.MediaStore `optional:"true"`
}

func NewActivities(p ActivitiesParams) *Activities {
	return &Activities{
		cfg:      p.Config,
		node:     p.Node,
		db:       p.DB,
		posts:    repository.ProvideStore[Post](p.DB),
		attempts: repository.ProvideStore[PublicationAttempt](p.DB),
		tenants:  p.Tenants,
		studio:   p.Studio,
		fanout:   p.Fanout,
		notifier: p.Notifier,
		media:    p.Media,
	}
}

func (a *Activities) getPost(ctx context.Context, postID string) (*Post, error) {
	post, err := a.posts.FindOne(ctx, &Post{ID: postID})
	if err != nil {
		return nil, errutil.Internal("failed to load post", err)
	}
	if post == nil {
		return nil, errutil.NotFound("post not found", nil)
	}
	return post, nil
}

type GenerateOutput struct {
	MediaRef string `json:"media_ref"`
	Skipped  bool   `json:"skipped"`
	Reason   string `json:"reason,omitempty"`
}

// GenerateCreative produces the branded media for a post. Credit admission and
// the studio call live in the same activity so a retry after a crash replays
// through the same guards: a generated ref already on the record short-circuits
// before any second debit, and the charge marker written with the debit keeps
// a retry after a studio failure from charging again.
func (a *Activities) GenerateCreative(ctx context.Context, postID string) (*GenerateOutput, error) {
	post, err := a.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	if post.GeneratedMediaRef != "" {
		return &GenerateOutput{MediaRef: post.GeneratedMediaRef}, nil
	}

	if post.RawMediaRef == "" {
		return &GenerateOutput{Skipped: true, Reason: "no raw media attached"}, nil
	}

	baseCost := a.cfg.Billing.ImageGenerationCost
	if post.MediaKind == MediaVideo {
		baseCost = a.cfg.Billing.VideoGenerationCost
	}

	var cost int64
	if post.GenerationChargedAt == nil {
		debit, err := a.chargeGeneration(ctx, post, baseCost)
		if err != nil {
			return nil, err
		}
		if !debit.Charged {
			return &GenerateOutput{Skipped: true, Reason: "insufficient credit"}, nil
		}
		cost = debit.Cost
	} else {
		zap.L().Info("generation already charged, retrying studio dispatch",
			zap.String("post_id", postID),
			zap.Timep("charged_at", post.GenerationChargedAt),
		)
	}

	owner, err := a.tenants.GetTenant(ctx, post.TenantID)
	if err != nil {
		return nil, err
	}

	tmpl, err := buildTemplate(post.TemplateKind, post.CreativeData)
	if err != nil {
		return nil, err
	}

	ref, err := a.studio.Generate(ctx, client.GenerateRequest{
		MediaRef: post.RawMediaRef,
		Branding: client.Branding{TenantID: owner.ID, Name: owner.Name},
		Template: tmpl,
	})
	if err != nil {
		return nil, err
	}

	if err := a.posts.Update(ctx, postID, &Post{GeneratedMediaRef: ref}); err != nil {
		return nil, errutil.Internal("failed to record generated media", err)
	}

	zap.L().Info("creative generated",
		zap.String("post_id", postID),
		zap.String("media_ref", ref),
		zap.Int64("cost", cost),
	)
	return &GenerateOutput{MediaRef: ref}, nil
}

// chargeGeneration debits the tenant and stamps the charge marker on the post
// in one transaction. Either both land or neither does, so the marker is an
// exact record of whether this post's generation has been paid for.
func (a *Activities) chargeGeneration(ctx context.Context, post *Post, baseCost int64) (*tenant.DebitResult, error) {
	var debit *tenant.DebitResult
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := a.tenants.DebitInTx(ctx, tx, post.TenantID, baseCost)
		if err != nil {
			return err
		}
		debit = res
		if !res.Charged {
			return nil
		}

		chargedAt := time.Now().UTC()
		mark := tx.Model(&Post{}).
			Where("id = ? AND generation_charged_at IS NULL", post.ID).
			Update("generation_charged_at", chargedAt)
		if mark.Error != nil {
			return errutil.Internal("failed to record generation charge", mark.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return debit, nil
}

type ApprovalState struct {
	Approved   bool   `json:"approved"`
	ApprovedBy string `json:"approved_by,omitempty"`
}

// GetApprovalStatus reads the recorded approval decision. The workflow checks
// it before blocking on the approval signal, covering approvals delivered
// while the instance was between tasks.
func (a *Activities) GetApprovalStatus(ctx context.Context, postID string) (*ApprovalState, error) {
	post, err := a.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return &ApprovalState{Approved: post.Approved(), ApprovedBy: post.ApprovedBy}, nil
}

type RecordApprovalInput struct {
	PostID     string `json:"post_id"`
	ApprovedBy string `json:"approved_by"`
}

func (a *Activities) RecordApproval(ctx context.Context, in RecordApprovalInput) error {
	post, err := a.getPost(ctx, in.PostID)
	if err != nil {
		return err
	}
	if post.Approved() {
		return nil
	}

	now := time.Now().UTC()
	return a.posts.Update(ctx, in.PostID, &Post{ApprovedAt: &now, ApprovedBy: in.ApprovedBy})
}

type PublishOutput struct {
	Delivered int `json:"delivered"`
	Attempted int `json:"attempted"`
}

// PublishPost pushes the post to both destinations. Each destination is
// evaluated on its own: a notifier failure never rolls back a successful
// fanout delivery. Every destination attempt lands one row in the
// publication log.
func (a *Activities) PublishPost(ctx context.Context, postID string) (*PublishOutput, error) {
	post, err := a.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	owner, err := a.tenants.GetTenant(ctx, post.TenantID)
	if err != nil {
		return nil, err
	}

	mediaURL := ""
	mediaRef := post.GeneratedMediaRef
	if mediaRef == "" {
		mediaRef = post.RawMediaRef
	}
	if mediaRef != "" && a.media != nil {
		mediaURL, err = a.media.PublicURL(ctx, mediaRef, mediaURLTTL)
		if err != nil {
			return nil, errutil.BadGateway("failed to resolve media url", err)
		}
	}

	out := &PublishOutput{Attempted: 2}

	if err := a.publishChannels(ctx, owner, post, mediaURL); err != nil {
		a.logAttempt(ctx, postID, ChannelAuto, OutcomeFailed, err.Error())
		zap.L().Warn("fanout delivery failed", zap.String("post_id", postID), zap.Error(err))
	} else {
		a.logAttempt(ctx, postID, ChannelAuto, OutcomeDelivered, "")
		out.Delivered++
	}

	if err := a.notifier.Notify(ctx, "post.published", map[string]interface{}{
		"post_id":   post.ID,
		"tenant_id": post.TenantID,
		"body":      post.Body,
		"media_url": mediaURL,
	}); err != nil {
		a.logAttempt(ctx, postID, ChannelNotify, OutcomeFailed, err.Error())
		zap.L().Warn("notifier delivery failed", zap.String("post_id", postID), zap.Error(err))
	} else {
		a.logAttempt(ctx, postID, ChannelNotify, OutcomeDelivered, "")
		out.Delivered++
	}

	return out, nil
}

func (a *Activities) publishChannels(ctx context.Context, owner *tenant.Tenant, post *Post, mediaURL string) error {
	if !owner.Provisioned() {
		return errutil.Internal("tenant workspace not provisioned", nil)
	}

	channels, err := a.fanout.ListChannels(ctx, owner.WorkspaceKey)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID)
	}

	return a.fanout.Publish(ctx, client.PublishRequest{
		WorkspaceKey: owner.WorkspaceKey,
		Body:         post.Body,
		MediaURL:     mediaURL,
		ChannelIDs:   ids,
	})
}

func (a *Activities) logAttempt(ctx context.Context, postID, channel, outcome, detail string) {
	err := a.attempts.Create(ctx, &PublicationAttempt{
		ID:      a.node.Generate().String(),
		PostID:  postID,
		Channel: channel,
		Outcome: outcome,
		Detail:  detail,
	})
	if err != nil {
		zap.L().Error("failed to append publication attempt",
			zap.String("post_id", postID),
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

type RecordOutcomeInput struct {
	PostID string `json:"post_id"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// RecordOutcome writes the distribution status. Terminal statuses are
// monotonic: once a post is PUBLISHED or FAILED no later write may move it.
func (a *Activities) RecordOutcome(ctx context.Context, in RecordOutcomeInput) error {
	post, err := a.getPost(ctx, in.PostID)
	if err != nil {
		return err
	}

	if post.Status.Terminal() {
		if post.Status != in.Status {
			zap.L().Warn("ignoring status write against terminal post",
				zap.String("post_id", in.PostID),
				zap.String("current", string(post.Status)),
				zap.String("attempted", string(in.Status)),
			)
		}
		return nil
	}

	updates := map[string]interface{}{
		"status":        in.Status,
		"status_reason": in.Reason,
	}
	if err := a.posts.Update(ctx, in.PostID, updates); err != nil {
		return errutil.Internal("failed to record post outcome", err)
	}
	return nil
}

// ArmRecurrence advances the schedule to the first occurrence strictly after
// now and returns it. A post without recurrence returns nil and stays put.
func (a *Activities) ArmRecurrence(ctx context.Context, postID string) (*time.Time, error) {
	post, err := a.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	if post.Recurrence == "" || post.Recurrence == RecurrenceNone {
		return nil, nil
	}

	prev := time.Now().UTC()
	if post.ScheduledAt != nil {
		prev = *post.ScheduledAt
	}

	next, ok := NextRunAfter(prev, post.Recurrence, time.Now().UTC())
	if !ok {
		return nil, nil
	}

	updates := map[string]interface{}{
		"scheduled_at":  next,
		"status":        StatusRecurring,
		"status_reason": "",
	}
	if err := a.posts.Update(ctx, postID, updates); err != nil {
		return nil, errutil.Internal("failed to arm recurrence", err)
	}

	zap.L().Info("recurrence armed", zap.String("post_id", postID), zap.Time("next_run", next))
	return &next, nil
}
