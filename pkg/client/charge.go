package client

import (
	"context"
	"fmt"

	"contentplane/pkg/config"
	"contentplane/pkg/errutil"

	"github.com/go-resty/resty/v2"
)

// ChargeState is the provider's view of a charge, as reported by its status
// query endpoint.
type ChargeState string

const (
	ChargeCompleted ChargeState = "completed"
	ChargeFailed    ChargeState = "failed"
	ChargePending   ChargeState = "pending"
)

// ChargeProvider is the narrow contract against the mobile-money gateway.
// Initiate returns the provider correlation id once the charge request is
// accepted; the result arrives later via webhook or the status query.
type ChargeProvider interface {
	Initiate(ctx context.Context, phone string, amount int64, reference string) (string, error)
	QueryStatus(ctx context.Context, providerRef string) (ChargeState, error)
}

type chargeHTTP struct {
	rc        *resty.Client
	shortCode string
	callback  string
}

func NewChargeProvider(cfg *config.Config) ChargeProvider {
	rc := resty.New().
		SetBaseURL(cfg.Charge.BaseURL).
		SetAuthToken(cfg.Charge.APIKey)

	return &chargeHTTP{
		rc:        rc,
		shortCode: cfg.Charge.ShortCode,
		callback:  cfg.Charge.CallbackURL,
	}
}

type initiateResponse struct {
	CorrelationID string `json:"correlation_id"`
	ResponseCode  string `json:"response_code"`
	Description   string `json:"description"`
}

func (c *chargeHTTP) Initiate(ctx context.Context, phone string, amount int64, reference string) (string, error) {
	var out initiateResponse
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"short_code":   c.shortCode,
			"phone":        phone,
			"amount":       amount,
			"reference":    reference,
			"callback_url": c.callback,
		}).
		SetResult(&out).
		Post("/charges")
	if err != nil {
		return "", fmt.Errorf("charge initiation request: %w", err)
	}

	if resp.IsError() {
		return "", errutil.BadGateway(fmt.Sprintf("charge provider returned %s", resp.Status()), nil)
	}

	if out.CorrelationID == "" {
		return "", errutil.BadGateway("charge provider accepted request without correlation id", nil)
	}

	return out.CorrelationID, nil
}

type statusResponse struct {
	State ChargeState `json:"state"`
}

func (c *chargeHTTP) QueryStatus(ctx context.Context, providerRef string) (ChargeState, error) {
	var out statusResponse
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/charges/%s", providerRef))
	if err != nil {
		return "", fmt.Errorf("charge status query: %w", err)
	}

	if resp.IsError() {
		return "", errutil.BadGateway(fmt.Sprintf("charge provider returned %s", resp.Status()), nil)
	}

	switch out.State {
	case ChargeCompleted, ChargeFailed, ChargePending:
		return out.State, nil
	default:
		return "", errutil.BadGateway(fmt.Sprintf("charge provider reported unknown state %q", out.State), nil)
	}
}
