package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/stewardtools/steward/internal/github"
)

// Pull mirrors the remote open/closed lifecycle onto the local
// directory.
//
// For every mapping entry the remote issue is fetched fresh. A closed
// issue, or one that no longer exists, retires the document: the local
// file is deleted (a no-op if a prior partial pull already removed it)
// and the mapping entry is dropped. Open issues are left untouched;
// pull never rewrites local file content. The mapping table is
// persisted once at the end of the pass.
func (e *Engine) Pull(ctx context.Context) (*PullStats, error) {
	stats := &PullStats{}

	// Snapshot entries before any removal mutates the table.
	entries := e.Store.Entries()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())

	for _, entry := range entries {
		g.Go(func() error {
			issue, err := e.Client.FetchIssue(gctx, entry.Number)
			switch {
			case errors.Is(err, github.ErrNotFound):
				// Vanished remotely; treat as closed.
				return e.retire(stats, entry.Key, entry.Number)
			case err != nil:
				if isFatal(err) {
					return err
				}
				e.mu.Lock()
				stats.Errors++
				e.mu.Unlock()
				e.warn("failed to fetch issue #%d for %s: %v", entry.Number, entry.Key, err)
				return nil
			}

			if issue.State == "closed" {
				return e.retire(stats, entry.Key, entry.Number)
			}

			e.mu.Lock()
			stats.Open++
			e.mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if saveErr := e.save(); saveErr != nil && err == nil {
		err = saveErr
	}
	return stats, err
}

// retire removes the local document and mapping entry for a closed or
// vanished remote issue. A locally absent file is fine; a prior partial
// pull may already have deleted it.
func (e *Engine) retire(stats *PullStats, key string, num int) error {
	path := filepath.Join(e.Dir, key+".md")

	if e.DryRun {
		e.log("would remove %s (issue #%d closed)", key, num)
	} else {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.mu.Lock()
			stats.Errors++
			e.mu.Unlock()
			e.warn("failed to remove %s: %v", path, err)
			return nil
		}
		e.mu.Lock()
		e.Store.Remove(key)
		e.mu.Unlock()
		e.log("removed %s (issue #%d closed)", key, num)
	}

	e.mu.Lock()
	stats.Closed++
	e.mu.Unlock()
	return nil
}
