package post

import (
	"time"

	pkgworkflow "contentplane/pkg/workflow"

	"go.temporal.io/sdk/workflow"
)

// ApprovalWindow bounds how long a post may sit waiting for a human decision
// before the campaign gives up.
const ApprovalWindow = 30 * 24 * time.Hour

type WorkflowInput struct {
	PostID           string     `json:"post_id"`
	TenantID         string     `json:"tenant_id"`
	RequiresApproval bool       `json:"requires_approval"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
	Recurrence       Recurrence `json:"recurrence"`
}

// ApprovalSignal is the payload of the approval decision signal.
type ApprovalSignal struct {
	Approved   bool   `json:"approved"`
	ApprovedBy string `json:"approved_by"`
}

type WorkflowResult struct {
	Status  Status     `json:"status"`
	Reason  string     `json:"reason,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

// CampaignWorkflow drives one distribution cycle of a post: creative
// generation, the approval gate, the scheduled wait, then publication to both
// destinations. A recurring post does not loop here; arming the next
// occurrence hands the post back to the dispatch sweep, which starts a fresh
// instance per cycle.
func CampaignWorkflow(ctx workflow.Context, input WorkflowInput) (*WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	state := "generating"

	if err := workflow.SetQueryHandler(ctx, pkgworkflow.QueryStatus, func() (string, error) {
		return state, nil
	}); err != nil {
		return nil, err
	}

	ctx = workflow.WithActivityOptions(ctx, pkgworkflow.DefaultActivityOptions())
	var a *Activities

	fail := func(reason string) (*WorkflowResult, error) {
		state = string(StatusFailed)
		err := workflow.ExecuteActivity(ctx, a.RecordOutcome, RecordOutcomeInput{
			PostID: input.PostID,
			Status: StatusFailed,
			Reason: reason,
		}).Get(ctx, nil)
		if err != nil {
			return nil, err
		}
		return &WorkflowResult{Status: StatusFailed, Reason: reason}, nil
	}

	var generated GenerateOutput
	if err := workflow.ExecuteActivity(ctx, a.GenerateCreative, input.PostID).Get(ctx, &generated); err != nil {
		logger.Error("creative generation failed", "post_id", input.PostID, "error", err)
		return fail("creative generation failed")
	}
	if generated.Skipped {
		logger.Info("creative generation skipped", "post_id", input.PostID, "reason", generated.Reason)
	}

	if input.RequiresApproval {
		state = "awaiting_approval"

		var approval ApprovalState
		if err := workflow.ExecuteActivity(ctx, a.GetApprovalStatus, input.PostID).Get(ctx, &approval); err != nil {
			return nil, err
		}

		if !approval.Approved {
			decision, decided := waitForApproval(ctx)
			if !decided {
				logger.Warn("approval window elapsed", "post_id", input.PostID)
				return fail("approval window elapsed")
			}
			if !decision.Approved {
				return fail("rejected by " + decision.ApprovedBy)
			}
			if err := workflow.ExecuteActivity(ctx, a.RecordApproval, RecordApprovalInput{
				PostID:     input.PostID,
				ApprovedBy: decision.ApprovedBy,
			}).Get(ctx, nil); err != nil {
				return nil, err
			}
		}
	}

	if input.ScheduledAt != nil {
		state = "scheduled"
		// The delay is recomputed from workflow time, so a post approved after
		// its slot publishes immediately instead of waiting a negative timer.
		if delay := input.ScheduledAt.Sub(workflow.Now(ctx)); delay > 0 {
			if err := workflow.Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	state = "publishing"
	var published PublishOutput
	if err := workflow.ExecuteActivity(ctx, a.PublishPost, input.PostID).Get(ctx, &published); err != nil {
		logger.Error("publication failed", "post_id", input.PostID, "error", err)
		return fail("publication failed")
	}

	switch {
	case published.Delivered == 0:
		return fail("no destination accepted the post")

	case published.Delivered < published.Attempted:
		state = string(StatusQueued)
		if err := workflow.ExecuteActivity(ctx, a.RecordOutcome, RecordOutcomeInput{
			PostID: input.PostID,
			Status: StatusQueued,
			Reason: "partial delivery",
		}).Get(ctx, nil); err != nil {
			return nil, err
		}
		return &WorkflowResult{Status: StatusQueued, Reason: "partial delivery"}, nil
	}

	if input.Recurrence != "" && input.Recurrence != RecurrenceNone {
		var next *time.Time
		if err := workflow.ExecuteActivity(ctx, a.ArmRecurrence, input.PostID).Get(ctx, &next); err != nil {
			return nil, err
		}
		if next != nil {
			state = string(StatusRecurring)
			return &WorkflowResult{Status: StatusRecurring, NextRun: next}, nil
		}
	}

	state = string(StatusPublished)
	if err := workflow.ExecuteActivity(ctx, a.RecordOutcome, RecordOutcomeInput{
		PostID: input.PostID,
		Status: StatusPublished,
	}).Get(ctx, nil); err != nil {
		return nil, err
	}
	return &WorkflowResult{Status: StatusPublished}, nil
}

// waitForApproval blocks on the approval signal up to ApprovalWindow. The
// second return is false when the window elapsed without a decision.
func waitForApproval(ctx workflow.Context) (ApprovalSignal, bool) {
	var decision ApprovalSignal
	decided := false

	selector := workflow.NewSelector(ctx)
	signalCh := workflow.GetSignalChannel(ctx, pkgworkflow.SignalPostApproval)
	selector.AddReceive(signalCh, func(c workflow.ReceiveChannel, _ bool) {
		c.Receive(ctx, &decision)
		decided = true
	})
	selector.AddFuture(workflow.NewTimer(ctx, ApprovalWindow), func(workflow.Future) {})
	selector.Select(ctx)

	return decision, decided
}
