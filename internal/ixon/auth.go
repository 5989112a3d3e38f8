package ixon

import (
	"context"
	"errors"

	"CapIot.ixonsync/internal/models"
)

type accessTokenRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type authorizationTokenRequest struct {
	ExpiresIn int    `json:"expiresIn"`
	Agents    string `json:"agents"`
}

// requestGeneralToken exchanges the Basic credentials for an account-wide bearer token.
func (c *Client) requestGeneralToken(ctx context.Context, url string) (string, error) {
	const op = "get bearer token"
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.ixonHeaders()).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Basic "+c.cfg.BasicAuth).
		SetQueryParam("fields", "expiresIn,secretId").
		SetBody(accessTokenRequest{ExpiresIn: tokenExpires}).
		Post(url)
	if err := checkResponse(op, resp, err); err != nil {
		return "", err
	}
	var out models.AccessTokenResponse
	if err := decode(op, resp, &out); err != nil {
		return "", err
	}
	if out.Data.SecretID == "" {
		return "", errors.New(op + ": response has no secretId")
	}
	return out.Data.SecretID, nil
}

// requestScopedToken exchanges the general token for one scoped to the agent,
// accepted by the LSI export service.
func (c *Client) requestScopedToken(ctx context.Context, url, generalToken string) (string, error) {
	const op = "get lsi bearer token"
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.companyHeaders(generalToken)).
		SetBody(authorizationTokenRequest{ExpiresIn: tokenExpires, Agents: c.cfg.AgentID}).
		Post(url)
	if err := checkResponse(op, resp, err); err != nil {
		return "", err
	}
	var out models.AuthorizationTokenResponse
	if err := decode(op, resp, &out); err != nil {
		return "", err
	}
	if out.Data.Token == "" {
		return "", errors.New(op + ": response has no token")
	}
	return out.Data.Token, nil
}
