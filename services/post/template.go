package post

import (
	"encoding/json"
	"fmt"

	"contentplane/pkg/client"
	"contentplane/pkg/errutil"
)

// Creative payloads are a tagged union keyed by TemplateKind. Each variant is
// decoded from the post's CreativeData blob and flattened to the field map
// the studio renders from. Unknown kinds fail generation rather than fall
// through to a generic render.

type genericCreative struct {
	Headline string `json:"headline"`
	Caption  string `json:"caption"`
}

type realEstateCreative struct {
	Address   string `json:"address"`
	Price     string `json:"price"`
	Bedrooms  int    `json:"bedrooms"`
	Bathrooms int    `json:"bathrooms"`
	AgentName string `json:"agent_name"`
}

type sportsCreative struct {
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
	Venue    string `json:"venue"`
	Kickoff  string `json:"kickoff"`
}

func buildTemplate(kind TemplateKind, raw []byte) (client.TemplateData, error) {
	switch kind {
	case TemplateGeneric:
		var c genericCreative
		if err := json.Unmarshal(raw, &c); err != nil {
			return client.TemplateData{}, errutil.ValidationFailed("invalid generic creative data", err)
		}
		return client.TemplateData{
			TemplateID: "generic.v1",
			Fields: map[string]string{
				"headline": c.Headline,
				"caption":  c.Caption,
			},
		}, nil

	case TemplateRealEstate:
		var c realEstateCreative
		if err := json.Unmarshal(raw, &c); err != nil {
			return client.TemplateData{}, errutil.ValidationFailed("invalid real estate creative data", err)
		}
		if c.Address == "" {
			return client.TemplateData{}, errutil.ValidationFailed("real estate creative requires an address", nil)
		}
		return client.TemplateData{
			TemplateID: "real_estate.v1",
			Fields: map[string]string{
				"address":    c.Address,
				"price":      c.Price,
				"bedrooms":   fmt.Sprintf("%d", c.Bedrooms),
				"bathrooms":  fmt.Sprintf("%d", c.Bathrooms),
				"agent_name": c.AgentName,
			},
		}, nil

	case TemplateSports:
		var c sportsCreative
		if err := json.Unmarshal(raw, &c); err != nil {
			return client.TemplateData{}, errutil.ValidationFailed("invalid sports creative data", err)
		}
		if c.HomeTeam == "" || c.AwayTeam == "" {
			return client.TemplateData{}, errutil.ValidationFailed("sports creative requires both teams", nil)
		}
		return client.TemplateData{
			TemplateID: "sports.v1",
			Fields: map[string]string{
				"home_team": c.HomeTeam,
				"away_team": c.AwayTeam,
				"venue":     c.Venue,
				"kickoff":   c.Kickoff,
			},
		}, nil
	}

	return client.TemplateData{}, errutil.ValidationFailed(fmt.Sprintf("unknown template kind %q", kind), nil)
}
