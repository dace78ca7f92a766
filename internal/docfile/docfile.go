// Package docfile parses issue documents: markdown files with a YAML
// front matter header that carries the issue metadata (title, labels,
// assignees). Parsing is pure; file access lives only in ParseFile.
package docfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformedHeader is the sentinel all header parse failures wrap.
// Callers use errors.Is(err, ErrMalformedHeader) to decide whether a
// file should be skipped rather than aborting a pass.
var ErrMalformedHeader = errors.New("malformed document header")

// MalformedHeaderError describes why a document header failed to parse.
type MalformedHeaderError struct {
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	return "malformed document header: " + e.Reason
}

func (e *MalformedHeaderError) Unwrap() error { return ErrMalformedHeader }

// Document is a parsed issue document.
type Document struct {
	Key       string   // stable filename-derived identifier (set by ParseFile)
	Title     string   // required, from front matter
	Labels    []string // deduplicated, first-occurrence order
	Assignees []string // deduplicated, first-occurrence order
	Body      string   // markdown body after the closing delimiter
}

// delimiter opens and closes the front matter block, alone on its line.
const delimiter = "---"

// header is the front matter schema. Unknown keys are ignored so documents
// can carry extra metadata without breaking older steward versions.
type header struct {
	Title     string   `yaml:"title"`
	Labels    []string `yaml:"labels"`
	Assignees []string `yaml:"assignees"`
}

// Parse parses raw document bytes into a Document. The Key field is left
// empty; it is derived from the filename by ParseFile or Key.
func Parse(raw []byte) (*Document, error) {
	text := string(bytes.TrimPrefix(raw, []byte("\uFEFF")))
	lines := strings.SplitAfter(text, "\n")

	if len(lines) == 0 || strings.TrimRight(lines[0], "\r\n") != delimiter {
		return nil, &MalformedHeaderError{Reason: "missing opening delimiter"}
	}

	var headerText strings.Builder
	bodyStart := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r\n") == delimiter {
			bodyStart = i + 1
			break
		}
		headerText.WriteString(lines[i])
	}
	if bodyStart < 0 {
		return nil, &MalformedHeaderError{Reason: "unterminated header block"}
	}

	var h header
	if err := yaml.Unmarshal([]byte(headerText.String()), &h); err != nil {
		return nil, &MalformedHeaderError{Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if strings.TrimSpace(h.Title) == "" {
		return nil, &MalformedHeaderError{Reason: "title is required"}
	}

	body := strings.Join(lines[bodyStart:], "")
	body = strings.TrimLeft(body, "\r\n")

	return &Document{
		Title:     strings.TrimSpace(h.Title),
		Labels:    Dedupe(h.Labels),
		Assignees: Dedupe(h.Assignees),
		Body:      body,
	}, nil
}

// ParseFile reads and parses the document at path, setting Key from the
// filename.
func ParseFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path) // #nosec G304 - path comes from directory walk
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	doc, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	doc.Key = Key(path)
	return doc, nil
}

// Key derives the stable document key from a file path: the base name
// without its extension. "issues/fix-login.md" -> "fix-login".
func Key(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Dedupe removes duplicate values preserving first-occurrence order.
// Empty strings are dropped. Used for label and assignee sets so the
// serialized order is deterministic between runs.
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
