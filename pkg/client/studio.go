package client

import (
	"context"
	"fmt"

	"contentplane/pkg/config"
	"contentplane/pkg/errutil"

	"github.com/go-resty/resty/v2"
)

// TemplateData is the resolved creative payload sent to the studio. TemplateID
// discriminates the creative kind; Fields carries the kind-specific values.
type TemplateData struct {
	TemplateID string            `json:"template_id"`
	Fields     map[string]string `json:"fields"`
}

// GenerateRequest asks the studio to compose branded media from a raw media
// reference. The studio is idempotent per (MediaRef, Template).
type GenerateRequest struct {
	MediaRef string       `json:"media_ref"`
	Branding Branding     `json:"branding"`
	Template TemplateData `json:"template"`
}

type Branding struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// CreativeStudio is the narrow contract against the creative-generation
// service. Generate returns the generated-media object key.
type CreativeStudio interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type studioHTTP struct {
	rc *resty.Client
}

func NewCreativeStudio(cfg *config.Config) CreativeStudio {
	return &studioHTTP{
		rc: resty.New().
			SetBaseURL(cfg.Studio.BaseURL).
			SetAuthToken(cfg.Studio.APIKey),
	}
}

type generateResponse struct {
	GeneratedMediaRef string `json:"generated_media_ref"`
}

func (s *studioHTTP) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var out generateResponse
	resp, err := s.rc.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/generate")
	if err != nil {
		return "", fmt.Errorf("creative generation request: %w", err)
	}

	if resp.IsError() {
		return "", errutil.BadGateway(fmt.Sprintf("creative studio returned %s", resp.Status()), nil)
	}

	if out.GeneratedMediaRef == "" {
		return "", errutil.BadGateway("creative studio returned empty media ref", nil)
	}

	return out.GeneratedMediaRef, nil
}
