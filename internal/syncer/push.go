package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stewardtools/steward/internal/docfile"
	"github.com/stewardtools/steward/internal/github"
)

// Push mirrors local documents to the remote tracker.
//
// Every *.md file under the directory is parsed; malformed files are
// skipped with a warning and never abort the pass. Mapped documents are
// diffed against a fresh fetch of their remote issue and updated only
// when a field differs, so repeated pushes with no local change perform
// zero remote writes. Unmapped documents create a new remote issue and
// a new mapping entry. The mapping table is persisted once at the end
// of the pass, even when the pass failed partway, so completed work is
// never retried.
func (e *Engine) Push(ctx context.Context) (*PushStats, error) {
	stats := &PushStats{}

	docs, err := e.loadDocuments(stats)
	if err != nil {
		return stats, err
	}

	// Snapshot mapping reads before any worker runs; inserts during the
	// pass only ever touch keys absent from this snapshot.
	mapped := make(map[string]int, len(docs))
	for _, doc := range docs {
		if num, ok := e.Store.ByKey(doc.Key); ok {
			mapped[doc.Key] = num
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())

	for _, doc := range docs {
		g.Go(func() error {
			if num, ok := mapped[doc.Key]; ok {
				return e.pushExisting(gctx, stats, doc, num)
			}
			return e.pushNew(gctx, stats, doc)
		})
	}

	err = g.Wait()
	if saveErr := e.save(); saveErr != nil && err == nil {
		err = saveErr
	}
	return stats, err
}

// loadDocuments parses every markdown file in the directory. One bad
// file records a warning and is skipped; it never fails the pass.
func (e *Engine) loadDocuments(stats *PushStats) ([]*docfile.Document, error) {
	entries, err := os.ReadDir(e.Dir)
	if err != nil {
		return nil, err
	}

	var docs []*docfile.Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(e.Dir, entry.Name())
		doc, err := docfile.ParseFile(path)
		if err != nil {
			if errors.Is(err, docfile.ErrMalformedHeader) {
				stats.Malformed++
				e.warn("skipping %s: %v", entry.Name(), err)
				continue
			}
			stats.Errors++
			e.warn("skipping %s: %v", entry.Name(), err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// pushExisting diffs a mapped document against its remote issue and
// updates the changed fields.
func (e *Engine) pushExisting(ctx context.Context, stats *PushStats, doc *docfile.Document, num int) error {
	issue, err := e.Client.FetchIssue(ctx, num)
	if err != nil {
		return e.remoteError(stats, err, "failed to fetch issue #%d for %s: %v", num, doc.Key, err)
	}

	updates := diff(doc, issue)
	if len(updates) == 0 {
		e.mu.Lock()
		stats.Unchanged++
		e.mu.Unlock()
		return nil
	}

	if e.DryRun {
		e.log("would update issue #%d from %s (%s)", num, doc.Key, updateKeys(updates))
	} else {
		if _, err := e.Client.UpdateIssue(ctx, num, updates); err != nil {
			return e.remoteError(stats, err, "failed to update issue #%d for %s: %v", num, doc.Key, err)
		}
		e.log("updated issue #%d from %s", num, doc.Key)
	}

	e.mu.Lock()
	stats.Updated++
	e.mu.Unlock()
	return nil
}

// pushNew creates a remote issue for an unmapped document and records
// the new mapping entry.
func (e *Engine) pushNew(ctx context.Context, stats *PushStats, doc *docfile.Document) error {
	if e.DryRun {
		e.log("would create issue for %s (%q)", doc.Key, doc.Title)
		e.mu.Lock()
		stats.Created++
		e.mu.Unlock()
		return nil
	}

	issue, err := e.Client.CreateIssue(ctx, doc.Title, doc.Body, doc.Labels, doc.Assignees)
	if err != nil {
		return e.remoteError(stats, err, "failed to create issue for %s: %v", doc.Key, err)
	}

	e.mu.Lock()
	insertErr := e.Store.Insert(doc.Key, issue.Number)
	if insertErr == nil {
		stats.Created++
	} else {
		stats.Errors++
	}
	e.mu.Unlock()

	if insertErr != nil {
		e.warn("created issue #%d but could not record mapping for %s: %v", issue.Number, doc.Key, insertErr)
		return nil
	}
	e.log("created issue #%d from %s", issue.Number, doc.Key)
	return nil
}

// remoteError classifies a remote failure: unreachable service and auth
// failures abort the pass, anything else is recorded per item and the
// pass continues.
func (e *Engine) remoteError(stats *PushStats, err error, format string, args ...interface{}) error {
	if isFatal(err) {
		return err
	}
	e.mu.Lock()
	stats.Errors++
	e.mu.Unlock()
	e.warn(format, args...)
	return nil
}

// isFatal reports whether a remote error should abort the whole pass.
func isFatal(err error) bool {
	var authErr *github.AuthError
	return errors.Is(err, github.ErrRemoteUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &authErr)
}

// diff returns the PATCH fields needed to bring the remote issue in
// line with the document, or an empty map when they already agree.
func diff(doc *docfile.Document, issue *github.Issue) map[string]interface{} {
	updates := make(map[string]interface{})
	if doc.Title != issue.Title {
		updates["title"] = doc.Title
	}
	if doc.Body != issue.Body {
		updates["body"] = doc.Body
	}
	if !sameSet(doc.Labels, github.LabelNames(issue.Labels)) {
		updates["labels"] = doc.Labels
	}
	logins := make([]string, len(issue.Assignees))
	for i, u := range issue.Assignees {
		logins[i] = u.Login
	}
	if !sameSet(doc.Assignees, logins) {
		updates["assignees"] = doc.Assignees
	}
	return updates
}

// sameSet compares two string slices ignoring order. The remote is free
// to reorder labels and assignees, which must not count as a change.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// updateKeys renders the field names of a patch for log output.
func updateKeys(updates map[string]interface{}) string {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
