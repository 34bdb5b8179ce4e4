package client

import (
	"context"
	"fmt"

	"contentplane/pkg/config"
	"contentplane/pkg/errutil"

	"github.com/go-resty/resty/v2"
)

// Notifier pushes a payload to a recipients topic. Used as the manual-channel
// fallback when content cannot go through the automated distribution path.
type Notifier interface {
	Notify(ctx context.Context, topic string, payload map[string]interface{}) error
}

type notifierHTTP struct {
	rc *resty.Client
}

func NewNotifier(cfg *config.Config) Notifier {
	return &notifierHTTP{
		rc: resty.New().SetBaseURL(cfg.Notifier.BaseURL),
	}
}

func (n *notifierHTTP) Notify(ctx context.Context, topic string, payload map[string]interface{}) error {
	resp, err := n.rc.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"topic":   topic,
			"payload": payload,
		}).
		Post("/notify")
	if err != nil {
		return fmt.Errorf("notify request: %w", err)
	}

	if resp.IsError() {
		return errutil.BadGateway(fmt.Sprintf("notifier returned %s", resp.Status()), nil)
	}

	return nil
}
