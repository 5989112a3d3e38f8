package ixon

import (
	"context"

	"CapIot.ixonsync/internal/models"
)

// memo holds the outcome of a call made at most once per session.
type memo[T any] struct {
	done bool
	val  T
	err  error
}

func (m *memo[T]) get(fetch func() (T, error)) (T, error) {
	if !m.done {
		m.val, m.err = fetch()
		m.done = true
	}
	return m.val, m.err
}

// Session is the state of one pipeline run. Discovery documents and tokens
// are fetched on first use and never again, successful or not. A Session
// is not safe for concurrent use.
type Session struct {
	client *Client

	discovery    memo[*models.DiscoveryDocument]
	lsiDiscovery memo[*models.DiscoveryDocument]
	generalToken memo[string]
	scopedToken  memo[string]
}

func (c *Client) NewSession() *Session {
	return &Session{client: c}
}

// Resolve looks up a relation in the IXON root discovery document.
func (s *Session) Resolve(ctx context.Context, rel string) (string, error) {
	doc, err := s.discovery.get(func() (*models.DiscoveryDocument, error) {
		return s.client.fetchDiscovery(ctx)
	})
	if err != nil {
		return "", err
	}
	return Resolve(doc, rel)
}

// ResolveLSI looks up a relation in the LSI discovery document, which is
// only readable with a general token.
func (s *Session) ResolveLSI(ctx context.Context, rel string) (string, error) {
	doc, err := s.lsiDiscovery.get(func() (*models.DiscoveryDocument, error) {
		token, err := s.GeneralToken(ctx)
		if err != nil {
			return nil, err
		}
		return s.client.fetchLSIDiscovery(ctx, token)
	})
	if err != nil {
		return "", err
	}
	return Resolve(doc, rel)
}

// GeneralToken returns the account bearer token, valid for an hour.
func (s *Session) GeneralToken(ctx context.Context) (string, error) {
	return s.generalToken.get(func() (string, error) {
		url, err := s.Resolve(ctx, RelAccessTokenList)
		if err != nil {
			return "", err
		}
		return s.client.requestGeneralToken(ctx, url)
	})
}

// ScopedToken returns the agent-scoped token used by the export service.
func (s *Session) ScopedToken(ctx context.Context) (string, error) {
	return s.scopedToken.get(func() (string, error) {
		url, err := s.Resolve(ctx, RelAuthorizationTokenList)
		if err != nil {
			return "", err
		}
		general, err := s.GeneralToken(ctx)
		if err != nil {
			return "", err
		}
		return s.client.requestScopedToken(ctx, url, general)
	})
}

// ListTags returns the data tags of the configured device.
func (s *Session) ListTags(ctx context.Context) ([]models.Tag, error) {
	general, err := s.GeneralToken(ctx)
	if err != nil {
		return nil, err
	}
	href, err := s.Resolve(ctx, RelAgentDeviceDataTagList)
	if err != nil {
		return nil, err
	}
	return s.client.requestTags(ctx, href, general)
}

// ExportCSV fetches the raw values of tags from since onwards as CSV text,
// returned verbatim. The first column is "time".
func (s *Session) ExportCSV(ctx context.Context, since string, tags ...models.Tag) (string, error) {
	url, err := s.ResolveLSI(ctx, RelDataExportMultiple)
	if err != nil {
		return "", err
	}
	token, err := s.ScopedToken(ctx)
	if err != nil {
		return "", err
	}
	return s.client.requestExport(ctx, url, token, since, tags)
}
