// Package guardian scores pull requests for safe auto-merge.
//
// Evaluate is a pure function over a point-in-time snapshot of a pull
// request: it performs no I/O and holds no state, so it can be called
// from tests and CI pipelines without any setup. The engine only
// decides and reports; merging is left to the caller.
package guardian

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/stewardtools/steward/internal/github"
)

// Defaults for evaluation options.
const (
	DefaultThreshold    = 70
	DefaultMinApprovals = 1
)

// CIStatus summarizes the combined CI state of a pull request head.
type CIStatus string

const (
	CIPassing CIStatus = "passing"
	CIFailing CIStatus = "failing"
	CIPending CIStatus = "pending"
)

// Verdict is the categorical outcome of an evaluation.
type Verdict string

const (
	VerdictAutoMerge   Verdict = "auto-merge"
	VerdictBlock       Verdict = "block"
	VerdictNeedsReview Verdict = "needs-review"
)

// blockerLabels force a block verdict regardless of every other signal.
var blockerLabels = map[string]bool{
	"high-stakes": true,
	"needs-human": true,
}

// Snapshot is a read-only, point-in-time view of a pull request.
// It is rebuilt on every evaluation and never persisted.
type Snapshot struct {
	Number       int
	Title        string
	CIStatus     CIStatus
	Approvals    int
	Labels       []string
	LinesChanged int // additions + deletions
	ChangedFiles []string
	HasTests     bool
}

// Factor is one contributing term of a score, recorded for audit output
// in the order it was evaluated.
type Factor struct {
	Name   string `json:"name"`
	Delta  int    `json:"delta"`
	Detail string `json:"detail,omitempty"`
}

// Decision is the evaluation result. The structured form is emitted
// as-is in CI mode.
type Decision struct {
	PRNumber    int       `json:"pr_number"`
	Verdict     Verdict   `json:"verdict"`
	Score       int       `json:"score"`
	Threshold   int       `json:"threshold"`
	Factors     []Factor  `json:"factors"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Options tune an evaluation. Values are taken literally, so an
// explicit zero threshold or zero required approvals is honored; start
// from DefaultOptions and override fields as needed.
type Options struct {
	Threshold    int
	MinApprovals int
}

// DefaultOptions returns the standard evaluation settings.
func DefaultOptions() Options {
	return Options{
		Threshold:    DefaultThreshold,
		MinApprovals: DefaultMinApprovals,
	}
}

// Evaluate scores a pull request snapshot and renders a verdict.
//
// Blockers are checked first: a high-stakes or needs-human label, or
// failing CI, yields an immediate block with score 0. Otherwise the
// score is the sum of base points (CI passing, enough approvals),
// bonuses (test changes, single scope), and a size penalty; the verdict
// is auto-merge when the raw score reaches the threshold and
// needs-review below it. The score is never clamped.
func Evaluate(snap Snapshot, opts Options) Decision {
	decision := Decision{
		PRNumber:    snap.Number,
		Threshold:   opts.Threshold,
		EvaluatedAt: time.Now().UTC(),
	}

	for _, label := range snap.Labels {
		if blockerLabels[strings.ToLower(label)] {
			decision.Verdict = VerdictBlock
			decision.Factors = []Factor{{
				Name:   "blocker",
				Delta:  0,
				Detail: fmt.Sprintf("label %q requires human review", label),
			}}
			return decision
		}
	}
	if snap.CIStatus == CIFailing {
		decision.Verdict = VerdictBlock
		decision.Factors = []Factor{{
			Name:   "blocker",
			Delta:  0,
			Detail: "CI is failing",
		}}
		return decision
	}

	add := func(name string, delta int, detail string) {
		decision.Score += delta
		decision.Factors = append(decision.Factors, Factor{Name: name, Delta: delta, Detail: detail})
	}

	if snap.CIStatus == CIPassing {
		add("ci-passing", 40, "all status checks passing")
	}
	if snap.Approvals >= opts.MinApprovals {
		add("approvals", 40, fmt.Sprintf("%d approving review(s)", snap.Approvals))
	}
	if snap.HasTests {
		add("has-tests", 10, "change includes test files")
	}
	if singleScope(snap.ChangedFiles) {
		add("single-scope", 10, "all files share one module scope")
	}
	if penalty := sizePenalty(snap.LinesChanged); penalty != 0 {
		add("size-penalty", penalty, fmt.Sprintf("%d lines changed", snap.LinesChanged))
	}

	if decision.Score >= opts.Threshold {
		decision.Verdict = VerdictAutoMerge
	} else {
		decision.Verdict = VerdictNeedsReview
	}
	return decision
}

// sizePenalty returns the penalty band for a change of the given size.
func sizePenalty(lines int) int {
	switch {
	case lines >= 500:
		return -20
	case lines >= 300:
		return -10
	case lines >= 100:
		return -5
	default:
		return 0
	}
}

// scopeOf reduces a file path to its module scope: the directory path
// truncated to the first two segments.
func scopeOf(file string) string {
	dir := path.Dir(file)
	if dir == "." || dir == "/" {
		return ""
	}
	parts := strings.Split(dir, "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}

// singleScope reports whether every changed file shares one module scope.
func singleScope(files []string) bool {
	if len(files) == 0 {
		return false
	}
	scope := scopeOf(files[0])
	for _, f := range files[1:] {
		if scopeOf(f) != scope {
			return false
		}
	}
	return true
}

// HasTestChanges reports whether any changed file looks like a test:
// files under a tests/ or __tests__/ directory, *_test.* files, or
// *.test.* files.
func HasTestChanges(files []string) bool {
	for _, f := range files {
		if isTestFile(f) {
			return true
		}
	}
	return false
}

func isTestFile(file string) bool {
	for _, dir := range strings.Split(path.Dir(file), "/") {
		if dir == "tests" || dir == "__tests__" || dir == "test" {
			return true
		}
	}
	base := path.Base(file)
	if strings.Contains(base, ".test.") || strings.Contains(base, "_test.") {
		return true
	}
	return strings.HasPrefix(base, "test_")
}

// BuildSnapshot assembles an evaluation snapshot from raw API records.
func BuildSnapshot(pr *github.PullRequest, reviews []github.Review, status *github.CombinedStatus, files []github.PullFile) Snapshot {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
	}

	return Snapshot{
		Number:       pr.Number,
		Title:        pr.Title,
		CIStatus:     ciStatusFrom(status),
		Approvals:    countApprovals(reviews),
		Labels:       github.LabelNames(pr.Labels),
		LinesChanged: pr.Additions + pr.Deletions,
		ChangedFiles: names,
		HasTests:     HasTestChanges(names),
	}
}

// ciStatusFrom maps a combined commit status onto the three-valued CI
// state. A ref with no statuses at all reports as pending.
func ciStatusFrom(status *github.CombinedStatus) CIStatus {
	if status == nil {
		return CIPending
	}
	switch status.State {
	case "success":
		return CIPassing
	case "failure", "error":
		return CIFailing
	default:
		return CIPending
	}
}

// countApprovals counts users whose latest submitted review is an
// approval. A later CHANGES_REQUESTED or DISMISSED supersedes an
// earlier approval from the same user.
func countApprovals(reviews []github.Review) int {
	latest := make(map[string]github.Review)
	for _, r := range reviews {
		if r.User == nil || r.State == "COMMENTED" {
			continue
		}
		prev, ok := latest[r.User.Login]
		if !ok || before(prev, r) {
			latest[r.User.Login] = r
		}
	}

	count := 0
	for _, r := range latest {
		if r.State == "APPROVED" {
			count++
		}
	}
	return count
}

func before(a, b github.Review) bool {
	if a.SubmittedAt == nil || b.SubmittedAt == nil {
		return a.ID < b.ID
	}
	return a.SubmittedAt.Before(*b.SubmittedAt)
}
