package payment

import (
	"encoding/json"
	"time"

	"contentplane/pkg/client"
	pkgworkflow "contentplane/pkg/workflow"

	"go.temporal.io/sdk/workflow"
)

// ConfirmationWait is the default for how long a payment instance waits for
// the provider webhook before falling back to the reconciliation query.
// Deployments override it through the charge-provider config.
const ConfirmationWait = 5 * time.Minute

type WorkflowInput struct {
	PaymentID  string
	TenantID   string
	Amount     int64
	PayerPhone string
	Reference  string
	// ConfirmWait overrides ConfirmationWait when positive. Carried on the
	// input so a config change never alters an already-open instance.
	ConfirmWait time.Duration
}

// ConfirmationSignal is the webhook payload delivered into the workflow.
// ResultCode zero means the payer completed the charge. Raw is stored opaque
// on the attempt for audit.
type ConfirmationSignal struct {
	CorrelationID string
	ResultCode    int
	Raw           json.RawMessage
}

type WorkflowResult struct {
	Status Status
	Reason string
	// Via records which path produced the terminal status: "callback" or
	// "reconciliation".
	Via string
}

// Workflow drives one PaymentAttempt to a terminal status.
//
// initiating → awaiting_confirmation → {completed|failed}
//
// The charge is initiated at most once per instance: on replay the initiation
// activity's result is taken from history, and the activity itself refuses to
// re-issue a charge for an attempt that already holds a provider ref. After
// initiation the workflow races the confirmation signal against the wait
// budget; if the budget elapses the status-query guard runs exactly once and
// its verdict is authoritative, even if a late signal is still in flight.
func Workflow(ctx workflow.Context, in WorkflowInput) (*WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	state := StatusPending
	if err := workflow.SetQueryHandler(ctx, pkgworkflow.QueryStatus, func() (string, error) {
		return string(state), nil
	}); err != nil {
		return nil, err
	}

	ctx = workflow.WithActivityOptions(ctx, pkgworkflow.DefaultActivityOptions())
	var a *Activities

	var providerRef string
	if err := workflow.ExecuteActivity(ctx, a.InitiateCharge, in).Get(ctx, &providerRef); err != nil {
		logger.Error("charge initiation failed", "payment_id", in.PaymentID, "error", err)
		state = StatusFailed
		return finalize(ctx, in.PaymentID, &state, StatusFailed, "charge initiation failed", "")
	}

	state = StatusAwaitingConfirmation
	logger.Info("charge initiated, awaiting confirmation", "payment_id", in.PaymentID, "provider_ref", providerRef)

	wait := in.ConfirmWait
	if wait <= 0 {
		wait = ConfirmationWait
	}

	var sig ConfirmationSignal
	received := false

	selector := workflow.NewSelector(ctx)
	selector.AddReceive(workflow.GetSignalChannel(ctx, pkgworkflow.SignalPaymentConfirmation), func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, &sig)
		received = true
	})
	selector.AddFuture(workflow.NewTimer(ctx, wait), func(f workflow.Future) {})
	selector.Select(ctx)

	if received {
		status := StatusCompleted
		reason := "confirmed by provider callback"
		if sig.ResultCode != 0 {
			status = StatusFailed
			reason = "declined by provider callback"
		}

		if err := workflow.ExecuteActivity(ctx, a.RecordCallback, RecordCallbackInput{
			PaymentID: in.PaymentID,
			Signal:    sig,
		}).Get(ctx, nil); err != nil {
			logger.Error("failed to record callback payload", "payment_id", in.PaymentID, "error", err)
		}

		return finalize(ctx, in.PaymentID, &state, status, reason, "callback")
	}

	// Reconciliation guard: the webhook never arrived within budget. The
	// query result is authoritative from here on.
	logger.Info("confirmation window elapsed, querying provider", "payment_id", in.PaymentID)

	var probe client.ChargeState
	if err := workflow.ExecuteActivity(ctx, a.QueryChargeStatus, providerRef).Get(ctx, &probe); err != nil {
		logger.Error("reconciliation query failed", "payment_id", in.PaymentID, "error", err)
		return finalize(ctx, in.PaymentID, &state, StatusFailed, "reconciliation query failed", "reconciliation")
	}

	switch probe {
	case client.ChargeCompleted:
		return finalize(ctx, in.PaymentID, &state, StatusCompleted, "confirmed by reconciliation query", "reconciliation")
	case client.ChargeFailed:
		return finalize(ctx, in.PaymentID, &state, StatusFailed, "declined per reconciliation query", "reconciliation")
	default:
		// Still pending at the provider after the full budget: the attempt is
		// closed as failed rather than left open indefinitely.
		return finalize(ctx, in.PaymentID, &state, StatusFailed, "confirmation window elapsed", "reconciliation")
	}
}

func finalize(ctx workflow.Context, paymentID string, state *Status, status Status, reason, via string) (*WorkflowResult, error) {
	var a *Activities
	if err := workflow.ExecuteActivity(ctx, a.FinalizePayment, FinalizeInput{
		PaymentID: paymentID,
		Status:    status,
		Reason:    reason,
	}).Get(ctx, nil); err != nil {
		return nil, err
	}

	*state = status
	return &WorkflowResult{Status: status, Reason: reason, Via: via}, nil
}
