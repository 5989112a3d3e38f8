package ixon

import (
	"context"
	"strings"

	"CapIot.ixonsync/internal/models"
)

func (c *Client) requestTags(ctx context.Context, href, generalToken string) ([]models.Tag, error) {
	const op = "get tags data"
	url := strings.NewReplacer("{agentId}", c.cfg.AgentID, "{deviceId}", c.cfg.DeviceID).Replace(href)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.companyHeaders(generalToken)).
		Get(url)
	if err := checkResponse(op, resp, err); err != nil {
		return nil, err
	}
	var out models.TagsResponse
	if err := decode(op, resp, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}
