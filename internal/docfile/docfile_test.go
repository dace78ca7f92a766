package docfile

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// TestParseCompleteDocument verifies all header fields plus body survive parsing.
func TestParseCompleteDocument(t *testing.T) {
	raw := []byte(`---
title: Fix login timeout
labels: [bug, auth]
assignees:
  - alice
  - bob
---

Sessions expire after 5 minutes instead of 30.
`)

	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	if doc.Title != "Fix login timeout" {
		t.Errorf("Title = %q, want %q", doc.Title, "Fix login timeout")
	}
	if !reflect.DeepEqual(doc.Labels, []string{"bug", "auth"}) {
		t.Errorf("Labels = %v, want [bug auth]", doc.Labels)
	}
	if !reflect.DeepEqual(doc.Assignees, []string{"alice", "bob"}) {
		t.Errorf("Assignees = %v, want [alice bob]", doc.Assignees)
	}
	if doc.Body != "Sessions expire after 5 minutes instead of 30.\n" {
		t.Errorf("Body = %q, unexpected content", doc.Body)
	}
}

// TestParseMalformedHeaders verifies every malformed shape maps to ErrMalformedHeader.
func TestParseMalformedHeaders(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no delimiter at all", "just a plain markdown file\n"},
		{"opening delimiter not first", "\n---\ntitle: x\n---\n"},
		{"unterminated block", "---\ntitle: hello\n"},
		{"invalid yaml", "---\ntitle: [unclosed\n---\nbody\n"},
		{"missing title", "---\nlabels: [bug]\n---\nbody\n"},
		{"whitespace-only title", "---\ntitle: \"  \"\n---\nbody\n"},
		{"empty input", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if err == nil {
				t.Fatal("Parse() error = nil, want malformed header error")
			}
			if !errors.Is(err, ErrMalformedHeader) {
				t.Errorf("errors.Is(err, ErrMalformedHeader) = false for %v", err)
			}
			var mhe *MalformedHeaderError
			if !errors.As(err, &mhe) {
				t.Errorf("errors.As(*MalformedHeaderError) = false for %v", err)
			}
		})
	}
}

// TestParseEmptyBody verifies a document with only a header is valid.
func TestParseEmptyBody(t *testing.T) {
	doc, err := Parse([]byte("---\ntitle: Header only\n---\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	if doc.Body != "" {
		t.Errorf("Body = %q, want empty", doc.Body)
	}
	if doc.Labels != nil || doc.Assignees != nil {
		t.Errorf("Labels/Assignees = %v/%v, want nil/nil", doc.Labels, doc.Assignees)
	}
}

// TestParseDuplicateLabels verifies dedup preserves first occurrence order.
func TestParseDuplicateLabels(t *testing.T) {
	raw := []byte("---\ntitle: t\nlabels: [bug, ui, bug, auth, ui]\n---\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []string{"bug", "ui", "auth"}
	if !reflect.DeepEqual(doc.Labels, want) {
		t.Errorf("Labels = %v, want %v", doc.Labels, want)
	}
}

// TestParseUnknownFields verifies extra header keys are ignored.
func TestParseUnknownFields(t *testing.T) {
	raw := []byte("---\ntitle: t\npriority: high\nmilestone: v2\n---\nbody\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil (unknown keys ignored)", err)
	}
	if doc.Title != "t" {
		t.Errorf("Title = %q, want t", doc.Title)
	}
}

func TestParseCRLF(t *testing.T) {
	raw := []byte("---\r\ntitle: crlf doc\r\n---\r\nbody line\r\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	if doc.Title != "crlf doc" {
		t.Errorf("Title = %q, want %q", doc.Title, "crlf doc")
	}
}

// TestParseByteOrderMark verifies a UTF-8 BOM before the opening
// delimiter (common with Windows editors) does not break header detection.
func TestParseByteOrderMark(t *testing.T) {
	raw := []byte("\uFEFF---\ntitle: bom doc\n---\nbody\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	if doc.Title != "bom doc" {
		t.Errorf("Title = %q, want %q", doc.Title, "bom doc")
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fix-login.md")
	if err := os.WriteFile(path, []byte("---\ntitle: t\n---\nbody\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if doc.Key != "fix-login" {
		t.Errorf("Key = %q, want fix-login", doc.Key)
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"issues/fix-login.md", "fix-login"},
		{"fix-login.md", "fix-login"},
		{"/abs/path/add-metrics.markdown", "add-metrics"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := Key(tt.path); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
