// Package syncer reconciles a directory of markdown documents with a
// remote issue tracker.
//
// The engine is one-directional per phase: push mirrors local edits to
// the remote, pull mirrors the remote open/closed lifecycle back onto
// the local directory. Document bodies only ever flow outward; the
// remote is authoritative over lifecycle alone, so pull never rewrites
// a local file.
package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/stewardtools/steward/internal/github"
	"github.com/stewardtools/steward/internal/mapping"
)

// DefaultConcurrency bounds parallel remote calls within one pass.
const DefaultConcurrency = 4

// RemoteClient is the subset of the issue tracker API the engine needs.
// *github.Client satisfies it.
type RemoteClient interface {
	FetchIssue(ctx context.Context, number int) (*github.Issue, error)
	FetchIssues(ctx context.Context, state string) ([]github.Issue, error)
	CreateIssue(ctx context.Context, title, body string, labels, assignees []string) (*github.Issue, error)
	UpdateIssue(ctx context.Context, number int, updates map[string]interface{}) (*github.Issue, error)
}

// Engine orchestrates push and pull passes over one documents directory.
type Engine struct {
	// Client talks to the remote tracker.
	Client RemoteClient

	// Dir is the documents directory.
	Dir string

	// Store is the key-to-issue-number mapping table.
	Store *mapping.Store

	// DryRun computes and logs every action without performing remote
	// mutations or persisting the mapping table.
	DryRun bool

	// Concurrency bounds parallel remote calls. Zero means
	// DefaultConcurrency.
	Concurrency int

	// Callbacks for UI feedback (optional)
	OnMessage func(msg string)
	OnWarning func(msg string)

	// mu guards Store mutations while per-item work runs in parallel.
	mu sync.Mutex
}

// NewEngine creates a sync engine over the given directory and mapping store.
func NewEngine(client RemoteClient, dir string, store *mapping.Store) *Engine {
	return &Engine{
		Client: client,
		Dir:    dir,
		Store:  store,
	}
}

// PushStats tracks push pass statistics.
type PushStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Malformed int `json:"malformed"`
	Errors    int `json:"errors"`
}

// PullStats tracks pull pass statistics.
type PullStats struct {
	Closed int `json:"closed"` // mappings removed for closed or vanished issues
	Open   int `json:"open"`   // mappings left untouched
	Errors int `json:"errors"`
}

// Result is the outcome of a sync pass.
type Result struct {
	Push   *PushStats `json:"push,omitempty"`
	Pull   *PullStats `json:"pull,omitempty"`
	DryRun bool       `json:"dry_run,omitempty"`
}

// Sync runs a push pass followed by a pull pass. Push completes first so
// a document created remotely moments ago is never treated as an orphan
// by the same run's pull.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	result := &Result{DryRun: e.DryRun}

	pushStats, err := e.Push(ctx)
	result.Push = pushStats
	if err != nil {
		return result, err
	}

	pullStats, err := e.Pull(ctx)
	result.Pull = pullStats
	if err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) concurrency() int {
	if e.Concurrency > 0 {
		return e.Concurrency
	}
	return DefaultConcurrency
}

// save persists the mapping table unless this is a dry run. It is called
// once per pass, after every worker has joined, so partial progress from
// a failed pass still lands on disk as a valid resumption point.
func (e *Engine) save() error {
	if e.DryRun {
		return nil
	}
	if err := e.Store.Save(); err != nil {
		return fmt.Errorf("failed to persist mapping table: %w", err)
	}
	return nil
}

// log sends a message to the OnMessage callback or does nothing.
func (e *Engine) log(format string, args ...interface{}) {
	if e.OnMessage != nil {
		prefix := ""
		if e.DryRun {
			prefix = "[dry-run] "
		}
		e.OnMessage(prefix + fmt.Sprintf(format, args...))
	}
}

// warn sends a warning to the OnWarning callback or does nothing.
func (e *Engine) warn(format string, args ...interface{}) {
	if e.OnWarning != nil {
		e.OnWarning(fmt.Sprintf("Warning: "+format, args...))
	}
}
