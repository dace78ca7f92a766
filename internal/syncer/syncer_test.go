package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stewardtools/steward/internal/github"
	"github.com/stewardtools/steward/internal/mapping"
)

// mockClient is an in-memory RemoteClient.
type mockClient struct {
	mu         sync.Mutex
	issues     map[int]*github.Issue
	nextNumber int

	creates int
	updates int
	fetches int

	// failWith makes every call fail when set.
	failWith error
}

func newMockClient() *mockClient {
	return &mockClient{issues: make(map[int]*github.Issue), nextNumber: 1}
}

func (m *mockClient) FetchIssue(_ context.Context, number int) (*github.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.failWith != nil {
		return nil, m.failWith
	}
	issue, ok := m.issues[number]
	if !ok {
		return nil, fmt.Errorf("%w: issue #%d", github.ErrNotFound, number)
	}
	dup := *issue
	return &dup, nil
}

func (m *mockClient) FetchIssues(_ context.Context, state string) ([]github.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []github.Issue
	for _, issue := range m.issues {
		if state == "all" || issue.State == state {
			out = append(out, *issue)
		}
	}
	return out, nil
}

func (m *mockClient) CreateIssue(_ context.Context, title, body string, labels, assignees []string) (*github.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.creates++
	issue := &github.Issue{
		ID:     m.nextNumber * 1000,
		Number: m.nextNumber,
		Title:  title,
		Body:   body,
		State:  "open",
	}
	for _, l := range labels {
		issue.Labels = append(issue.Labels, github.Label{Name: l})
	}
	for _, a := range assignees {
		issue.Assignees = append(issue.Assignees, github.User{Login: a})
	}
	m.issues[issue.Number] = issue
	m.nextNumber++
	return issue, nil
}

func (m *mockClient) UpdateIssue(_ context.Context, number int, updates map[string]interface{}) (*github.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	issue, ok := m.issues[number]
	if !ok {
		return nil, fmt.Errorf("%w: issue #%d", github.ErrNotFound, number)
	}
	m.updates++
	if title, ok := updates["title"].(string); ok {
		issue.Title = title
	}
	if body, ok := updates["body"].(string); ok {
		issue.Body = body
	}
	if labels, ok := updates["labels"].([]string); ok {
		issue.Labels = nil
		for _, l := range labels {
			issue.Labels = append(issue.Labels, github.Label{Name: l})
		}
	}
	if assignees, ok := updates["assignees"].([]string); ok {
		issue.Assignees = nil
		for _, a := range assignees {
			issue.Assignees = append(issue.Assignees, github.User{Login: a})
		}
	}
	dup := *issue
	return &dup, nil
}

func (m *mockClient) close(number int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[number].State = "closed"
}

func (m *mockClient) delete(number int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.issues, number)
}

func writeDoc(t *testing.T, dir, key, title string) {
	t.Helper()
	content := fmt.Sprintf("---\ntitle: %s\nlabels: [bug]\n---\n\nBody of %s.\n", title, key)
	if err := os.WriteFile(filepath.Join(dir, key+".md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestEngine(t *testing.T, client RemoteClient) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := mapping.Load(filepath.Join(dir, mapping.FileName))
	if err != nil {
		t.Fatal(err)
	}
	return NewEngine(client, dir, store), dir
}

func TestPushCreatesUnmapped(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "fix-login", "Fix login timeout")
	writeDoc(t, dir, "add-metrics", "Add metrics endpoint")

	stats, err := engine.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if stats.Created != 2 {
		t.Errorf("Created = %d, want 2", stats.Created)
	}
	if engine.Store.Len() != 2 {
		t.Errorf("mapping entries = %d, want 2", engine.Store.Len())
	}

	// Mapping table was persisted.
	reloaded, err := mapping.Load(filepath.Join(dir, mapping.FileName))
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != 2 {
		t.Errorf("persisted entries = %d, want 2", reloaded.Len())
	}
}

// TestPushIdempotent verifies a second push with no local change
// performs zero remote writes.
func TestPushIdempotent(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "fix-login", "Fix login timeout")

	if _, err := engine.Push(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats, err := engine.Push(context.Background())
	if err != nil {
		t.Fatalf("second Push() error = %v", err)
	}
	if stats.Created != 0 || stats.Updated != 0 {
		t.Errorf("second push Created = %d, Updated = %d, want 0, 0", stats.Created, stats.Updated)
	}
	if stats.Unchanged != 1 {
		t.Errorf("Unchanged = %d, want 1", stats.Unchanged)
	}
	if client.updates != 0 {
		t.Errorf("remote updates = %d, want 0", client.updates)
	}
}

func TestPushUpdatesChangedDocument(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "fix-login", "Fix login timeout")

	if _, err := engine.Push(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeDoc(t, dir, "fix-login", "Fix login timeout for SSO users")
	stats, err := engine.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if stats.Updated != 1 {
		t.Errorf("Updated = %d, want 1", stats.Updated)
	}

	num, _ := engine.Store.ByKey("fix-login")
	issue, _ := client.FetchIssue(context.Background(), num)
	if issue.Title != "Fix login timeout for SSO users" {
		t.Errorf("remote title = %q, not updated", issue.Title)
	}
}

// TestPushSkipsMalformed verifies one bad file never aborts the pass.
func TestPushSkipsMalformed(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	var warnings []string
	engine.OnWarning = func(msg string) { warnings = append(warnings, msg) }

	writeDoc(t, dir, "good-doc", "A good document")
	if err := os.WriteFile(filepath.Join(dir, "broken.md"), []byte("no front matter here"), 0o644); err != nil {
		t.Fatal(err)
	}

	stats, err := engine.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if stats.Created != 1 {
		t.Errorf("Created = %d, want 1", stats.Created)
	}
	if stats.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", stats.Malformed)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one skip warning", warnings)
	}
}

func TestPushFailsFastWhenRemoteUnavailable(t *testing.T) {
	client := newMockClient()
	client.failWith = github.ErrRemoteUnavailable
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "fix-login", "Fix login timeout")

	_, err := engine.Push(context.Background())
	if !errors.Is(err, github.ErrRemoteUnavailable) {
		t.Errorf("Push() error = %v, want ErrRemoteUnavailable", err)
	}
}

// rejectingClient fails CreateIssue for one specific title and behaves
// normally otherwise.
type rejectingClient struct {
	*mockClient
	rejectTitle string
}

func (r *rejectingClient) CreateIssue(ctx context.Context, title, body string, labels, assignees []string) (*github.Issue, error) {
	if title == r.rejectTitle {
		return nil, &github.APIError{StatusCode: 422, Message: "Validation Failed"}
	}
	return r.mockClient.CreateIssue(ctx, title, body, labels, assignees)
}

// TestPushIsolatesRejectedItem verifies a per-item API rejection lands in
// the error tally while the rest of the pass completes and persists.
func TestPushIsolatesRejectedItem(t *testing.T) {
	client := &rejectingClient{mockClient: newMockClient(), rejectTitle: "Bad doc"}
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "bad-doc", "Bad doc")
	writeDoc(t, dir, "good-doc", "Good doc")

	var warnings []string
	engine.OnWarning = func(msg string) { warnings = append(warnings, msg) }

	stats, err := engine.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() error = %v, want nil (rejection must not abort the pass)", err)
	}
	if stats.Created != 1 || stats.Errors != 1 {
		t.Errorf("stats = %+v, want Created=1 Errors=1", stats)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one rejection warning", warnings)
	}

	// The good document's mapping survived the failed sibling and is on disk.
	reloaded, err := mapping.Load(filepath.Join(dir, mapping.FileName))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := reloaded.ByKey("good-doc"); !ok {
		t.Error("good-doc mapping not persisted")
	}
	if _, ok := reloaded.ByKey("bad-doc"); ok {
		t.Error("bad-doc mapping recorded despite rejected create")
	}
}

// TestPushWarnsOnMappingCollision covers the create-succeeded but
// insert-failed branch: the issue exists remotely, the collision is
// tallied as an error, and the pass continues.
func TestPushWarnsOnMappingCollision(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	// Claim issue #1 (the mock's first allocation) for a key with no
	// local file, so the new document's insert collides on the number.
	if err := engine.Store.Insert("ghost", 1); err != nil {
		t.Fatal(err)
	}
	writeDoc(t, dir, "new-doc", "New doc")

	var warnings []string
	engine.OnWarning = func(msg string) { warnings = append(warnings, msg) }

	stats, err := engine.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() error = %v, want nil", err)
	}
	if stats.Created != 0 || stats.Errors != 1 {
		t.Errorf("stats = %+v, want Created=0 Errors=1", stats)
	}
	if client.creates != 1 {
		t.Errorf("creates = %d, want 1 (the remote issue was created)", client.creates)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one collision warning", warnings)
	}
	if _, ok := engine.Store.ByKey("new-doc"); ok {
		t.Error("colliding mapping was recorded")
	}
}

func TestPullRemovesClosed(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "fix-login", "Fix login timeout")
	if _, err := engine.Push(context.Background()); err != nil {
		t.Fatal(err)
	}
	num, _ := engine.Store.ByKey("fix-login")
	client.close(num)

	stats, err := engine.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.Closed != 1 {
		t.Errorf("Closed = %d, want 1", stats.Closed)
	}
	if _, err := os.Stat(filepath.Join(dir, "fix-login.md")); !os.IsNotExist(err) {
		t.Error("local file still exists after pull of closed issue")
	}
	if _, ok := engine.Store.ByKey("fix-login"); ok {
		t.Error("mapping entry still present after pull of closed issue")
	}
}

// TestPullTombstone verifies a vanished remote issue is treated as closed.
func TestPullTombstone(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "fix-login", "Fix login timeout")
	if _, err := engine.Push(context.Background()); err != nil {
		t.Fatal(err)
	}
	num, _ := engine.Store.ByKey("fix-login")
	client.delete(num)

	stats, err := engine.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.Closed != 1 {
		t.Errorf("Closed = %d, want 1", stats.Closed)
	}
	if _, ok := engine.Store.ByKey("fix-login"); ok {
		t.Error("mapping entry still present for vanished issue")
	}
}

// TestPullMissingFileIsNoop verifies a prior partial pull leaves no error behind.
func TestPullMissingFileIsNoop(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "fix-login", "Fix login timeout")
	if _, err := engine.Push(context.Background()); err != nil {
		t.Fatal(err)
	}
	num, _ := engine.Store.ByKey("fix-login")
	client.close(num)
	if err := os.Remove(filepath.Join(dir, "fix-login.md")); err != nil {
		t.Fatal(err)
	}

	stats, err := engine.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.Closed != 1 || stats.Errors != 0 {
		t.Errorf("Closed = %d, Errors = %d, want 1, 0", stats.Closed, stats.Errors)
	}
}

func TestPullLeavesOpenUntouched(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "fix-login", "Fix login timeout")
	if _, err := engine.Push(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(filepath.Join(dir, "fix-login.md"))
	if err != nil {
		t.Fatal(err)
	}

	stats, err := engine.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.Open != 1 || stats.Closed != 0 {
		t.Errorf("Open = %d, Closed = %d, want 1, 0", stats.Open, stats.Closed)
	}

	after, err := os.ReadFile(filepath.Join(dir, "fix-login.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("pull modified a local file for an open issue")
	}
}

// TestDryRunMakesNoChanges verifies dry-run performs no remote
// mutations and persists nothing.
func TestDryRunMakesNoChanges(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	engine.DryRun = true
	writeDoc(t, dir, "fix-login", "Fix login timeout")

	result, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.Push.Created != 1 {
		t.Errorf("dry-run Created = %d, want 1 (decision still computed)", result.Push.Created)
	}
	if client.creates != 0 {
		t.Errorf("remote creates = %d, want 0 in dry-run", client.creates)
	}
	if _, err := os.Stat(filepath.Join(dir, mapping.FileName)); !os.IsNotExist(err) {
		t.Error("mapping file written in dry-run")
	}
}

func TestDryRunPullKeepsFiles(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "fix-login", "Fix login timeout")
	if _, err := engine.Push(context.Background()); err != nil {
		t.Fatal(err)
	}
	num, _ := engine.Store.ByKey("fix-login")
	client.close(num)

	engine.DryRun = true
	stats, err := engine.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.Closed != 1 {
		t.Errorf("Closed = %d, want 1 (decision still computed)", stats.Closed)
	}
	if _, err := os.Stat(filepath.Join(dir, "fix-login.md")); err != nil {
		t.Error("dry-run pull deleted a local file")
	}
	if _, ok := engine.Store.ByKey("fix-login"); !ok {
		t.Error("dry-run pull removed a mapping entry")
	}
}

// TestSyncConvergence runs the full lifecycle: create, close remotely,
// sync again, and verify both sides converge.
func TestSyncConvergence(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "fix-login", "Fix login timeout")
	writeDoc(t, dir, "add-metrics", "Add metrics endpoint")

	if _, err := engine.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	num, _ := engine.Store.ByKey("fix-login")
	client.close(num)

	result, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.Pull.Closed != 1 {
		t.Errorf("Pull.Closed = %d, want 1", result.Pull.Closed)
	}
	if engine.Store.Len() != 1 {
		t.Errorf("mapping entries = %d, want 1", engine.Store.Len())
	}
	if _, err := os.Stat(filepath.Join(dir, "add-metrics.md")); err != nil {
		t.Error("open issue's document removed")
	}

	// A third sync has nothing left to do.
	result, err = engine.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Push.Created != 0 || result.Push.Updated != 0 || result.Pull.Closed != 0 {
		t.Errorf("third sync not quiescent: %+v %+v", result.Push, result.Pull)
	}
}

func TestStatus(t *testing.T) {
	client := newMockClient()
	engine, dir := newTestEngine(t, client)
	writeDoc(t, dir, "mapped-doc", "Mapped")
	if _, err := engine.Push(context.Background()); err != nil {
		t.Fatal(err)
	}
	writeDoc(t, dir, "new-doc", "Not yet pushed")
	if err := os.WriteFile(filepath.Join(dir, "broken.md"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	// An entry whose file is gone.
	if err := engine.Store.Insert("ghost", 99); err != nil {
		t.Fatal(err)
	}
	// A remote issue nothing tracks.
	if _, err := client.CreateIssue(context.Background(), "Untracked", "", nil, nil); err != nil {
		t.Fatal(err)
	}

	report, err := engine.Status(context.Background(), true)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if report.Documents != 2 {
		t.Errorf("Documents = %d, want 2", report.Documents)
	}
	if report.Mapped != 1 {
		t.Errorf("Mapped = %d, want 1", report.Mapped)
	}
	if len(report.Unmapped) != 1 || report.Unmapped[0] != "new-doc" {
		t.Errorf("Unmapped = %v, want [new-doc]", report.Unmapped)
	}
	if len(report.Malformed) != 1 || report.Malformed[0] != "broken.md" {
		t.Errorf("Malformed = %v, want [broken.md]", report.Malformed)
	}
	if len(report.Orphaned) != 1 || report.Orphaned[0] != "ghost" {
		t.Errorf("Orphaned = %v, want [ghost]", report.Orphaned)
	}
	if len(report.Untracked) != 1 {
		t.Errorf("Untracked = %v, want one untracked issue", report.Untracked)
	}
}
