// Package ixon talks to the IXON Cloud API and its LSI data export service:
// discovery, token exchange, tag listing and CSV export.
package ixon

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	apiVersion   = "1"
	tokenExpires = 3600
)

// Discovery relations used by the sync pipelines.
const (
	RelAccessTokenList        = "AccessTokenList"
	RelAuthorizationTokenList = "AuthorizationTokenList"
	RelAgentDeviceDataTagList = "AgentDeviceDataTagList"
	RelDataExportMultiple     = "DataExportMultiple"
)

// ErrRelNotFound is returned when a discovery document has no link for a relation.
var ErrRelNotFound = errors.New("relation not found in discovery document")

// StatusError is a non-2xx answer from the remote API.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Config is what the client needs to know about the account and device.
type Config struct {
	APIURL    string
	LSIURL    string
	APIKey    string
	CompanyID string
	AgentID   string
	DeviceID  string
	// BasicAuth is the already base64-encoded "user::password" string.
	BasicAuth string
	Timezone  string
	Timeout   time.Duration
}

// Client is safe to share between runs. All per-run state lives in a Session.
type Client struct {
	cfg  Config
	http *resty.Client
}

func NewClient(cfg Config) *Client {
	http := resty.New()
	if cfg.Timeout > 0 {
		http.SetTimeout(cfg.Timeout)
	}
	return &Client{cfg: cfg, http: http}
}

// DeviceID is the device whose tags are synced.
func (c *Client) DeviceID() string {
	return c.cfg.DeviceID
}

func (c *Client) ixonHeaders() map[string]string {
	return map[string]string{
		"IXapi-Version":     apiVersion,
		"IXapi-Application": c.cfg.APIKey,
	}
}

func (c *Client) companyHeaders(bearer string) map[string]string {
	h := c.ixonHeaders()
	h["IXapi-Company"] = c.cfg.CompanyID
	h["Accept"] = "application/json"
	h["Content-Type"] = "application/json"
	h["Authorization"] = "Bearer " + bearer
	return h
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return &StatusError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

func decode(op string, resp *resty.Response, out any) error {
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
