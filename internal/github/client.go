package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewClient creates a new GitHub client.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    c.BaseURL,
		HTTPClient: httpClient,
	}
}

// WithBaseURL returns a new client with a custom base URL (for testing or GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    baseURL,
		HTTPClient: c.HTTPClient,
	}
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

func newRequestBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// isRateLimited reports whether a response indicates rate limiting.
// GitHub uses 403 with X-RateLimit-Remaining: 0, or a plain 429.
func isRateLimited(resp *http.Response) bool {
	return resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0")
}

// retryAfter extracts the server-requested delay from a rate-limited
// response, or zero when the header is absent or unparseable.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// doRequest performs an HTTP request with authentication and retry.
// Transient failures (network errors, 5xx, rate limiting) are retried
// with exponential backoff; everything else fails immediately with a
// typed error.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, http.Header, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var respBody []byte
	var respHeader http.Header

	attempt := func() error {
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
		}

		const maxResponseSize = 50 * 1024 * 1024
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: failed to read response: %v", ErrRemoteUnavailable, err)
		}

		if isRateLimited(resp) {
			if delay := retryAfter(resp); delay > 0 {
				select {
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				case <-time.After(delay):
				}
			}
			return &RateLimitError{RetryAfter: retryAfter(resp)}
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, urlStr))
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(&AuthError{StatusCode: resp.StatusCode})
		case resp.StatusCode >= http.StatusInternalServerError:
			return &APIError{StatusCode: resp.StatusCode, Message: string(data)}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Message: string(data)})
		}

		respBody = data
		respHeader = resp.Header
		return nil
	}

	if err := backoff.Retry(attempt, backoff.WithContext(newRequestBackoff(), ctx)); err != nil {
		return nil, nil, err
	}
	return respBody, respHeader, nil
}

// linkNextPattern matches the "next" relation in GitHub Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// hasNextPage checks the Link header for a next page URL.
func hasNextPage(headers http.Header) bool {
	link := headers.Get("Link")
	if link == "" {
		return false
	}
	return linkNextPattern.MatchString(link)
}

// forEachPage fetches every page of a paginated collection endpoint,
// handing each raw page body to decode.
func (c *Client) forEachPage(ctx context.Context, path string, params map[string]string, decode func([]byte) error) error {
	page := 1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pageParams := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		for k, v := range params {
			pageParams[k] = v
		}

		urlStr := c.buildURL(path, pageParams)
		respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return err
		}
		if err := decode(respBody); err != nil {
			return err
		}

		if !hasNextPage(headers) {
			return nil
		}
		page++

		if page > MaxPages {
			return fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
	}
}

// FetchIssues retrieves issues with optional state filtering.
// state can be: "open", "closed", or "all".
// Pull requests are filtered out (GitHub returns them in the issues endpoint).
func (c *Client) FetchIssues(ctx context.Context, state string) ([]Issue, error) {
	if state == "" {
		state = "all"
	}
	if state != "all" && !IsValidState(state) {
		return nil, fmt.Errorf("invalid issue state %q, want open, closed, or all", state)
	}
	params := map[string]string{"state": state}

	var all []Issue
	err := c.forEachPage(ctx, "/repos/"+c.repoPath()+"/issues", params, func(body []byte) error {
		var issues []Issue
		if err := json.Unmarshal(body, &issues); err != nil {
			return fmt.Errorf("failed to parse issues response: %w", err)
		}
		for i := range issues {
			if issues[i].PullRequest == nil {
				all = append(all, issues[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issues: %w", err)
	}
	return all, nil
}

// CreateIssue creates a new issue.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels, assignees []string) (*Issue, error) {
	reqBody := map[string]interface{}{
		"title": title,
		"body":  body,
	}
	if len(labels) > 0 {
		reqBody["labels"] = labels
	}
	if len(assignees) > 0 {
		reqBody["assignees"] = assignees
	}

	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}
	return &issue, nil
}

// UpdateIssue updates an existing issue. GitHub uses PATCH for updates;
// only the fields present in updates are touched.
func (c *Client) UpdateIssue(ctx context.Context, number int, updates map[string]interface{}) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to update issue #%d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse update response: %w", err)
	}
	return &issue, nil
}

// FetchIssue retrieves a single issue by its number.
func (c *Client) FetchIssue(ctx context.Context, number int) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue #%d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse issue response: %w", err)
	}
	return &issue, nil
}

// FetchPullRequest retrieves a single pull request by number.
func (c *Client) FetchPullRequest(ctx context.Context, number int) (*PullRequest, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/pulls/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pull request #%d: %w", number, err)
	}

	var pr PullRequest
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, fmt.Errorf("failed to parse pull request response: %w", err)
	}
	return &pr, nil
}

// FetchReviews retrieves all reviews on a pull request.
func (c *Client) FetchReviews(ctx context.Context, number int) ([]Review, error) {
	var all []Review
	path := "/repos/" + c.repoPath() + "/pulls/" + strconv.Itoa(number) + "/reviews"
	err := c.forEachPage(ctx, path, nil, func(body []byte) error {
		var reviews []Review
		if err := json.Unmarshal(body, &reviews); err != nil {
			return fmt.Errorf("failed to parse reviews response: %w", err)
		}
		all = append(all, reviews...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reviews for #%d: %w", number, err)
	}
	return all, nil
}

// FetchCombinedStatus retrieves the combined commit status for a ref
// (branch name or commit SHA).
func (c *Client) FetchCombinedStatus(ctx context.Context, ref string) (*CombinedStatus, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/commits/"+url.PathEscape(ref)+"/status", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status for %s: %w", ref, err)
	}

	var status CombinedStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	return &status, nil
}

// FetchPullFiles retrieves the changed files of a pull request.
func (c *Client) FetchPullFiles(ctx context.Context, number int) ([]PullFile, error) {
	var all []PullFile
	path := "/repos/" + c.repoPath() + "/pulls/" + strconv.Itoa(number) + "/files"
	err := c.forEachPage(ctx, path, nil, func(body []byte) error {
		var files []PullFile
		if err := json.Unmarshal(body, &files); err != nil {
			return fmt.Errorf("failed to parse files response: %w", err)
		}
		all = append(all, files...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch files for #%d: %w", number, err)
	}
	return all, nil
}

// MergePull merges a pull request using the given method
// ("merge", "squash", or "rebase").
func (c *Client) MergePull(ctx context.Context, number int, method string) error {
	reqBody := map[string]interface{}{}
	if method != "" {
		reqBody["merge_method"] = method
	}
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/pulls/"+strconv.Itoa(number)+"/merge", nil)
	if _, _, err := c.doRequest(ctx, http.MethodPut, urlStr, reqBody); err != nil {
		return fmt.Errorf("failed to merge pull request #%d: %w", number, err)
	}
	return nil
}
