package ixon

import (
	"context"

	"CapIot.ixonsync/internal/models"
)

// NewExportBody selects the raw values of the given tags on one device.
func NewExportBody(deviceID string, tags ...models.Tag) models.ExportBody {
	selection := make(map[string]models.ExportSelection, len(tags))
	for _, tag := range tags {
		selection[tag.Key()] = models.ExportSelection{
			Raw: []models.ExportRef{{Ref: tag.Name}},
		}
	}
	return models.ExportBody{deviceID: selection}
}

func (c *Client) requestExport(ctx context.Context, url, scopedToken, since string, tags []models.Tag) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/csv").
		SetHeader("Content-Type", "application/json").
		SetAuthToken(scopedToken).
		SetQueryParams(map[string]string{
			"timezone": c.cfg.Timezone,
			"from":     since,
		}).
		SetBody(NewExportBody(c.cfg.DeviceID, tags...)).
		Post(url)
	if err := checkResponse("get lsi data", resp, err); err != nil {
		return "", err
	}
	return string(resp.Body()), nil
}
