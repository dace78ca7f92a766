// Package github provides a client and data types for the GitHub REST API.
//
// The client covers the two API surfaces steward needs: the issues
// endpoints used by the sync engine, and the pull request, review, and
// commit status endpoints used by the guardian evaluator.
package github

import (
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// retryMaxElapsed bounds the total time spent retrying a single
	// request through transient failures and rate limiting.
	retryMaxElapsed = 2 * time.Minute

	// MaxPageSize is the maximum number of items to fetch per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	// This prevents infinite loops from malformed Link headers.
	MaxPages = 1000
)

// Client provides methods to interact with the GitHub REST API.
type Client struct {
	Token      string       // GitHub personal access token
	Owner      string       // Repository owner (user or org)
	Repo       string       // Repository name
	BaseURL    string       // API base URL (default: https://api.github.com)
	HTTPClient *http.Client // Optional custom HTTP client
}

// Issue represents an issue from the GitHub API.
type Issue struct {
	ID          int        `json:"id"`     // Global unique ID
	Number      int        `json:"number"` // Repository-scoped issue number
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"` // "open" or "closed"
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	Labels      []Label    `json:"labels"`
	Assignees   []User     `json:"assignees,omitempty"`
	User        *User      `json:"user,omitempty"` // Author
	HTMLURL     string     `json:"html_url"`
	PullRequest *PullRef   `json:"pull_request,omitempty"` // Non-nil if this is a PR
}

// PullRef indicates an issue is actually a pull request.
// The GitHub Issues API returns PRs alongside issues; this field
// distinguishes them.
type PullRef struct {
	URL string `json:"url,omitempty"`
}

// User represents a GitHub user.
type User struct {
	ID      int    `json:"id"`
	Login   string `json:"login"`
	HTMLURL string `json:"html_url,omitempty"`
}

// Label represents a GitHub label.
type Label struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// PullRequest represents a pull request from the GitHub API.
type PullRequest struct {
	ID           int        `json:"id"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	State        string     `json:"state"` // "open" or "closed"
	Draft        bool       `json:"draft"`
	Merged       bool       `json:"merged"`
	Labels       []Label    `json:"labels"`
	User         *User      `json:"user,omitempty"`
	Head         GitRef     `json:"head"`
	Base         GitRef     `json:"base"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
	HTMLURL      string     `json:"html_url"`
}

// GitRef identifies one side of a pull request.
type GitRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// Review represents a pull request review.
type Review struct {
	ID          int        `json:"id"`
	User        *User      `json:"user,omitempty"`
	State       string     `json:"state"` // APPROVED, CHANGES_REQUESTED, COMMENTED, DISMISSED
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// CombinedStatus represents the combined commit status for a ref.
type CombinedStatus struct {
	State      string         `json:"state"` // "success", "failure", "pending", "error"
	SHA        string         `json:"sha"`
	TotalCount int            `json:"total_count"`
	Statuses   []CommitStatus `json:"statuses"`
}

// CommitStatus is a single status check attached to a commit.
type CommitStatus struct {
	State       string `json:"state"`
	Context     string `json:"context"`
	Description string `json:"description,omitempty"`
}

// PullFile is one changed file in a pull request.
type PullFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"` // "added", "modified", "removed", "renamed"
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// validStates for GitHub issues.
var validStates = map[string]bool{
	"open":   true,
	"closed": true,
}

// IsValidState checks if a GitHub state string is valid.
func IsValidState(state string) bool {
	return validStates[state]
}

// LabelNames extracts label name strings from a slice of Label structs.
func LabelNames(labels []Label) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return names
}
