package client

import (
	"context"
	"fmt"

	"contentplane/pkg/config"
	"contentplane/pkg/errutil"

	"github.com/go-resty/resty/v2"
)

type Channel struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
}

type WorkspaceCredential struct {
	WorkspaceKey string `json:"workspace_key"`
	Secret       string `json:"secret"`
}

type PublishRequest struct {
	WorkspaceKey string   `json:"workspace_key"`
	Body         string   `json:"body"`
	MediaURL     string   `json:"media_url,omitempty"`
	ChannelIDs   []string `json:"channel_ids"`
}

// Fanout is the narrow contract against the social-distribution service. It
// also owns the external workspace that tenant provisioning creates.
type Fanout interface {
	ProvisionWorkspace(ctx context.Context, handle string) (WorkspaceCredential, error)
	ListChannels(ctx context.Context, workspaceKey string) ([]Channel, error)
	Publish(ctx context.Context, req PublishRequest) error
	LinkMember(ctx context.Context, workspaceKey, userRef string) (string, error)
	UnlinkMember(ctx context.Context, workspaceKey, memberRef string) error
}

type fanoutHTTP struct {
	rc *resty.Client
}

func NewFanout(cfg *config.Config) Fanout {
	return &fanoutHTTP{
		rc: resty.New().
			SetBaseURL(cfg.Fanout.BaseURL).
			SetAuthToken(cfg.Fanout.APIKey),
	}
}

func (f *fanoutHTTP) ProvisionWorkspace(ctx context.Context, handle string) (WorkspaceCredential, error) {
	var out WorkspaceCredential
	resp, err := f.rc.R().
		SetContext(ctx).
		SetBody(map[string]string{"handle": handle}).
		SetResult(&out).
		Post("/workspaces")
	if err != nil {
		return WorkspaceCredential{}, fmt.Errorf("workspace provisioning request: %w", err)
	}

	if resp.IsError() {
		return WorkspaceCredential{}, errutil.BadGateway(fmt.Sprintf("fanout returned %s", resp.Status()), nil)
	}

	if out.WorkspaceKey == "" {
		return WorkspaceCredential{}, errutil.BadGateway("fanout provisioned workspace without key", nil)
	}

	return out, nil
}

func (f *fanoutHTTP) ListChannels(ctx context.Context, workspaceKey string) ([]Channel, error) {
	var out []Channel
	resp, err := f.rc.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/workspaces/%s/channels", workspaceKey))
	if err != nil {
		return nil, fmt.Errorf("channel listing request: %w", err)
	}

	if resp.IsError() {
		return nil, errutil.BadGateway(fmt.Sprintf("fanout returned %s", resp.Status()), nil)
	}

	return out, nil
}

func (f *fanoutHTTP) Publish(ctx context.Context, req PublishRequest) error {
	resp, err := f.rc.R().
		SetContext(ctx).
		SetBody(req).
		Post("/publish")
	if err != nil {
		return fmt.Errorf("publish request: %w", err)
	}

	if resp.IsError() {
		return errutil.BadGateway(fmt.Sprintf("fanout returned %s", resp.Status()), nil)
	}

	return nil
}

func (f *fanoutHTTP) LinkMember(ctx context.Context, workspaceKey, userRef string) (string, error) {
	var out struct {
		MemberRef string `json:"member_ref"`
	}
	resp, err := f.rc.R().
		SetContext(ctx).
		SetBody(map[string]string{"user_ref": userRef}).
		SetResult(&out).
		Post(fmt.Sprintf("/workspaces/%s/members", workspaceKey))
	if err != nil {
		return "", fmt.Errorf("member link request: %w", err)
	}

	if resp.IsError() {
		return "", errutil.BadGateway(fmt.Sprintf("fanout returned %s", resp.Status()), nil)
	}

	return out.MemberRef, nil
}

func (f *fanoutHTTP) UnlinkMember(ctx context.Context, workspaceKey, memberRef string) error {
	resp, err := f.rc.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/workspaces/%s/members/%s", workspaceKey, memberRef))
	if err != nil {
		return fmt.Errorf("member unlink request: %w", err)
	}

	if resp.IsError() && resp.StatusCode() != 404 {
		return errutil.BadGateway(fmt.Sprintf("fanout returned %s", resp.Status()), nil)
	}

	return nil
}
