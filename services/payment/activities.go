package payment

import (
	"context"
	"fmt"

	"contentplane/pkg/client"
	"contentplane/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Activities struct {
	payments repository.Repository[PaymentAttempt]
	charger  client.ChargeProvider
}

type ActivitiesParams struct {
	fx.In
	DB      *gorm.DB
	Charger client.ChargeProvider
}

func NewActivities(p ActivitiesParams) *Activities {
	return &Activities{
		payments: repository.ProvideStore[PaymentAttempt](p.DB),
		charger:  p.Charger,
	}
}

// InitiateCharge asks the provider to collect from the payer and records the
// returned correlation id. An attempt that already holds a provider ref is
// returned as-is: together with workflow history replay this makes the charge
// at-most-once per payment id.
func (a *Activities) InitiateCharge(ctx context.Context, in WorkflowInput) (string, error) {
	attempt, err := a.payments.FindOne(ctx, &PaymentAttempt{ID: in.PaymentID})
	if err != nil {
		return "", fmt.Errorf("load payment attempt %s: %w", in.PaymentID, err)
	}
	if attempt == nil {
		return "", fmt.Errorf("payment attempt %s not found", in.PaymentID)
	}

	if attempt.ProviderRef != "" {
		zap.L().Info("charge already initiated",
			zap.String("payment_id", in.PaymentID),
			zap.String("provider_ref", attempt.ProviderRef),
		)
		return attempt.ProviderRef, nil
	}

	providerRef, err := a.charger.Initiate(ctx, in.PayerPhone, in.Amount, in.Reference)
	if err != nil {
		return "", fmt.Errorf("initiate charge for payment %s: %w", in.PaymentID, err)
	}

	if err := a.payments.Update(ctx, in.PaymentID, map[string]interface{}{
		"provider_ref": providerRef,
		"status":       StatusAwaitingConfirmation,
	}); err != nil {
		return "", fmt.Errorf("record provider ref: %w", err)
	}

	return providerRef, nil
}

// QueryChargeStatus is the reconciliation guard against the provider.
func (a *Activities) QueryChargeStatus(ctx context.Context, providerRef string) (client.ChargeState, error) {
	state, err := a.charger.QueryStatus(ctx, providerRef)
	if err != nil {
		return "", fmt.Errorf("query charge status %s: %w", providerRef, err)
	}
	return state, nil
}

type RecordCallbackInput struct {
	PaymentID string
	Signal    ConfirmationSignal
}

// RecordCallback stores the provider's raw webhook payload on the attempt.
func (a *Activities) RecordCallback(ctx context.Context, in RecordCallbackInput) error {
	return a.payments.Update(ctx, in.PaymentID, map[string]interface{}{
		"raw_callback": datatypes.JSON(in.Signal.Raw),
	})
}

type FinalizeInput struct {
	PaymentID string
	Status    Status
	Reason    string
}

// FinalizePayment writes the terminal status. Monotonic: a terminal attempt is
// never transitioned again, so a duplicate finalize after replay is a no-op.
func (a *Activities) FinalizePayment(ctx context.Context, in FinalizeInput) error {
	attempt, err := a.payments.FindOne(ctx, &PaymentAttempt{ID: in.PaymentID})
	if err != nil {
		return fmt.Errorf("load payment attempt %s: %w", in.PaymentID, err)
	}
	if attempt == nil {
		return fmt.Errorf("payment attempt %s not found", in.PaymentID)
	}

	if attempt.Status.Terminal() {
		if attempt.Status != in.Status {
			zap.L().Warn("refusing to overwrite terminal payment status",
				zap.String("payment_id", in.PaymentID),
				zap.String("current", string(attempt.Status)),
				zap.String("requested", string(in.Status)),
			)
		}
		return nil
	}

	if err := a.payments.Update(ctx, in.PaymentID, map[string]interface{}{
		"status": in.Status,
		"reason": in.Reason,
	}); err != nil {
		return fmt.Errorf("finalize payment %s: %w", in.PaymentID, err)
	}

	zap.L().Info("payment reached terminal status",
		zap.String("payment_id", in.PaymentID),
		zap.String("status", string(in.Status)),
		zap.String("reason", in.Reason),
	)
	return nil
}
