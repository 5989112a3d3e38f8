package ixon

import (
	"context"
	"fmt"

	"CapIot.ixonsync/internal/models"
)

// Resolve returns the href of the first link with the given relation.
func Resolve(doc *models.DiscoveryDocument, rel string) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("%s: %w", rel, ErrRelNotFound)
	}
	for _, link := range doc.Links {
		if link.Rel == rel {
			return link.Href, nil
		}
	}
	return "", fmt.Errorf("%s: %w", rel, ErrRelNotFound)
}

func (c *Client) fetchDiscovery(ctx context.Context) (*models.DiscoveryDocument, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.ixonHeaders()).
		Get(c.cfg.APIURL)
	if err := checkResponse("get discovery urls", resp, err); err != nil {
		return nil, err
	}
	var doc models.DiscoveryDocument
	if err := decode("get discovery urls", resp, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) fetchLSIDiscovery(ctx context.Context, generalToken string) (*models.DiscoveryDocument, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetAuthToken(generalToken).
		Get(c.cfg.LSIURL)
	if err := checkResponse("get lsi discovery urls", resp, err); err != nil {
		return nil, err
	}
	var doc models.DiscoveryDocument
	if err := decode("get lsi discovery urls", resp, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
