package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/inconshreveable/log15/v3"
	"github.com/jpillora/backoff"

	"PokerPilot/poker"
)

const (
	defaultCacheTTL    = 5 * time.Minute
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
)

// Client talks to the Jira Cloud REST API v3 with basic auth, a bounded
// retry policy for transient failures and a short read cache.
type Client struct {
	baseURL          string
	email            string
	apiToken         string
	storyPointsField string

	httpClient  *http.Client
	cache       *ttlCache
	maxAttempts int
	log         log.Logger
}

func NewClient(baseURL, email, apiToken, storyPointsField string) *Client {
	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		email:            email,
		apiToken:         apiToken,
		storyPointsField: storyPointsField,
		httpClient:       &http.Client{Timeout: defaultTimeout},
		cache:            newTTLCache(defaultCacheTTL),
		maxAttempts:      defaultMaxAttempts,
		log:              log.New("module", "jira"),
	}
}

// WithToken returns a copy of the client using a different API token, for
// groups that carry their own Jira credentials. The cache is not shared.
func (c *Client) WithToken(apiToken string) *Client {
	clone := NewClient(c.baseURL, c.email, apiToken, c.storyPointsField)
	return clone
}

// Configured reports whether the client has enough settings to reach Jira.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.email != "" && c.apiToken != ""
}

// Myself is the connectivity check against /rest/api/3/myself.
func (c *Client) Myself(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "myself", nil)
	return err
}

// Search runs a JQL query via POST /rest/api/3/search.
func (c *Client) Search(ctx context.Context, jql string, maxResults int) ([]Issue, error) {
	cacheKey := fmt.Sprintf("search:%s:%d", jql, maxResults)
	if v, ok := c.cache.get(cacheKey); ok {
		return v.([]Issue), nil
	}

	body, err := json.Marshal(searchRequest{
		JQL:        jql,
		MaxResults: maxResults,
		Fields:     []string{"summary", "status"},
	})
	if err != nil {
		return nil, err
	}
	data, err := c.do(ctx, http.MethodPost, "search", body)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	c.cache.set(cacheKey, resp.Issues)
	return resp.Issues, nil
}

// Issue fetches a single issue by key.
func (c *Client) Issue(ctx context.Context, key string) (*Issue, error) {
	cacheKey := "issue:" + key
	if v, ok := c.cache.get(cacheKey); ok {
		issue := v.(Issue)
		return &issue, nil
	}

	data, err := c.do(ctx, http.MethodGet, "issue/"+key, nil)
	if err != nil {
		return nil, err
	}
	var issue Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		return nil, fmt.Errorf("decode issue %s: %w", key, err)
	}
	c.cache.set(cacheKey, issue)
	return &issue, nil
}

// UpdateStoryPoints writes the story points custom field on an issue.
// fieldID overrides the configured field when non-empty (per-project
// mappings). Cached reads for the issue are invalidated.
func (c *Client) UpdateStoryPoints(ctx context.Context, key string, points int, fieldID string) error {
	if fieldID == "" {
		fieldID = c.storyPointsField
	}
	body, err := json.Marshal(map[string]any{
		"fields": map[string]any{fieldID: points},
	})
	if err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodPut, "issue/"+key, body); err != nil {
		return err
	}
	c.cache.invalidate(key)
	c.log.Info("story points updated", "issue", key, "points", points, "field", fieldID)
	return nil
}

// BrowseURL is the human-facing link for an issue.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

// ResolveIssue implements poker.IssueResolver.
func (c *Client) ResolveIssue(ctx context.Context, key string) (poker.IssueRef, error) {
	issue, err := c.Issue(ctx, key)
	if err != nil {
		return poker.IssueRef{}, err
	}
	return poker.IssueRef{
		Key:     issue.Key,
		Summary: issue.Fields.Summary,
		URL:     c.BrowseURL(issue.Key),
	}, nil
}

// SearchIssues implements poker.IssueResolver.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) ([]poker.IssueRef, error) {
	issues, err := c.Search(ctx, jql, maxResults)
	if err != nil {
		return nil, err
	}
	refs := make([]poker.IssueRef, 0, len(issues))
	for _, issue := range issues {
		refs = append(refs, poker.IssueRef{
			Key:     issue.Key,
			Summary: issue.Fields.Summary,
			URL:     c.BrowseURL(issue.Key),
		})
	}
	return refs, nil
}

// do performs one API call with bounded jittered retries on transient
// failures. Non-429 4xx responses become PermanentError immediately.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	url := c.baseURL + "/rest/api/3/" + endpoint

	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 5 * time.Second, Jitter: true}
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return nil, &TransientError{Op: endpoint, Err: ctx.Err()}
			}
		}

		data, err := c.doOnce(ctx, method, url, endpoint, body)
		if err == nil {
			return data, nil
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			return nil, err
		}
		lastErr = err
		c.log.Warn("jira request failed, will retry", "endpoint", endpoint, "attempt", attempt, "err", err)
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, url, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &PermanentError{Op: endpoint, Message: err.Error()}
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: endpoint, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientError{Op: endpoint, Err: fmt.Errorf("status %s", resp.Status)}
	default:
		return nil, &PermanentError{
			Op:         endpoint,
			StatusCode: resp.StatusCode,
			Message:    errorText(data, resp.Status),
		}
	}
}

// errorText extracts Jira's own error wording so it can be reported to the
// user verbatim.
func errorText(data []byte, fallback string) string {
	var resp errorResponse
	if err := json.Unmarshal(data, &resp); err == nil {
		var parts []string
		parts = append(parts, resp.ErrorMessages...)
		for field, msg := range resp.Errors {
			parts = append(parts, field+": "+msg)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return fallback
}
