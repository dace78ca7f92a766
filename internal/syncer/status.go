package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/stewardtools/steward/internal/docfile"
)

// StatusReport summarizes the local directory against the mapping table
// without touching the remote, except for the optional untracked scan.
type StatusReport struct {
	Documents int      `json:"documents"` // parseable local documents
	Mapped    int      `json:"mapped"`    // documents with a mapping entry
	Unmapped  []string `json:"unmapped,omitempty"`
	Malformed []string `json:"malformed,omitempty"`
	Orphaned  []string `json:"orphaned,omitempty"` // mapping entries with no local file

	// Untracked lists open remote issue numbers not referenced by any
	// mapping entry. Only populated when requested.
	Untracked []int `json:"untracked,omitempty"`
}

// Status reports what a sync pass would have to reconcile. With
// includeRemote it additionally lists open remote issues no mapping
// entry points at.
func (e *Engine) Status(ctx context.Context, includeRemote bool) (*StatusReport, error) {
	report := &StatusReport{}

	entries, err := os.ReadDir(e.Dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		key := docfile.Key(entry.Name())
		seen[key] = true
		if _, err := docfile.ParseFile(filepath.Join(e.Dir, entry.Name())); err != nil {
			if errors.Is(err, docfile.ErrMalformedHeader) {
				report.Malformed = append(report.Malformed, entry.Name())
				continue
			}
			return nil, err
		}
		report.Documents++
		if _, ok := e.Store.ByKey(key); ok {
			report.Mapped++
		} else {
			report.Unmapped = append(report.Unmapped, key)
		}
	}

	for _, entry := range e.Store.Entries() {
		if !seen[entry.Key] {
			report.Orphaned = append(report.Orphaned, entry.Key)
		}
	}

	if includeRemote {
		issues, err := e.Client.FetchIssues(ctx, "open")
		if err != nil {
			return nil, err
		}
		for _, issue := range issues {
			if _, ok := e.Store.ByNumber(issue.Number); !ok {
				report.Untracked = append(report.Untracked, issue.Number)
			}
		}
	}

	return report, nil
}
