// Package mapping persists the correlation between local issue documents
// and remote issue numbers. The table lives in a single YAML file under
// the issues directory so it stays human-diffable and can be committed
// alongside the documents it describes.
package mapping

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// FileName is the mapping file's name inside the issues directory.
const FileName = "mapping.yaml"

// ErrDuplicateKey is returned by Insert when a key is already mapped to a
// different issue number, or a number is already claimed by another key.
var ErrDuplicateKey = errors.New("duplicate mapping entry")

// ErrCorruptMappingFile is returned by Load when the mapping file exists
// but cannot be parsed or violates the 1:1 invariant. This is fatal at
// startup: the process must exit rather than guess at state.
var ErrCorruptMappingFile = errors.New("corrupt mapping file")

// Entry is one key -> issue number correlation.
type Entry struct {
	Key    string
	Number int
}

// Store is the in-memory mapping table. It keeps two indexes so lookups
// by key and by issue number are both O(1). Not safe for concurrent use;
// callers serialize access (the sync engine holds one coordinating lock).
type Store struct {
	path     string
	byKey    map[string]int
	byNumber map[int]string
}

// Load reads the mapping file at path. A missing file is not an error:
// first runs start with an empty table.
func Load(path string) (*Store, error) {
	s := &Store{
		path:     path,
		byKey:    make(map[string]int),
		byNumber: make(map[int]string),
	}

	data, err := os.ReadFile(path) // #nosec G304 - controlled path under issues dir
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}

	var table map[string]int
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptMappingFile, path, err)
	}

	for key, num := range table {
		if key == "" || num <= 0 {
			return nil, fmt.Errorf("%w: %s: entry %q -> %d", ErrCorruptMappingFile, path, key, num)
		}
		if other, taken := s.byNumber[num]; taken {
			return nil, fmt.Errorf("%w: %s: issue #%d mapped by both %q and %q",
				ErrCorruptMappingFile, path, num, other, key)
		}
		s.byKey[key] = num
		s.byNumber[num] = key
	}

	return s, nil
}

// Path returns the file path this store loads from and saves to.
func (s *Store) Path() string { return s.path }

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.byKey) }

// ByKey returns the issue number mapped to key.
func (s *Store) ByKey(key string) (int, bool) {
	num, ok := s.byKey[key]
	return num, ok
}

// ByNumber returns the key mapped to an issue number.
func (s *Store) ByNumber(num int) (string, bool) {
	key, ok := s.byNumber[num]
	return key, ok
}

// Insert records a key -> number pair. Re-inserting an identical pair is
// a no-op; any other collision on either side fails with ErrDuplicateKey
// and leaves the table unchanged.
func (s *Store) Insert(key string, num int) error {
	if existing, ok := s.byKey[key]; ok {
		if existing == num {
			return nil
		}
		return fmt.Errorf("%w: %q already mapped to issue #%d", ErrDuplicateKey, key, existing)
	}
	if other, ok := s.byNumber[num]; ok {
		return fmt.Errorf("%w: issue #%d already mapped by %q", ErrDuplicateKey, num, other)
	}
	s.byKey[key] = num
	s.byNumber[num] = key
	return nil
}

// Remove deletes the entry for key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) {
	if num, ok := s.byKey[key]; ok {
		delete(s.byNumber, num)
		delete(s.byKey, key)
	}
}

// Entries returns all entries sorted by key, so iteration order (and any
// output derived from it) is deterministic between runs.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.byKey))
	for key, num := range s.byKey {
		out = append(out, Entry{Key: key, Number: num})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Save atomically writes the full table: temp file in the same directory,
// then rename. A crash mid-write never corrupts the existing file.
func (s *Store) Save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating mapping directory: %w", err)
	}

	// Marshal via yaml.Node so keys come out sorted rather than in map
	// iteration order; unordered output would produce diff noise.
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range s.Entries() {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprintf("%d", e.Number)},
		)
	}

	data := []byte("{}\n")
	if len(s.byKey) > 0 {
		var err error
		data, err = yaml.Marshal(root)
		if err != nil {
			return fmt.Errorf("marshaling mapping table: %w", err)
		}
	}

	base := filepath.Base(s.path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp mapping file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath) // no-op after successful rename
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp mapping file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp mapping file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing mapping file: %w", err)
	}

	return nil
}

// DefaultPath returns the mapping file location for an issues directory.
func DefaultPath(issuesDir string) string {
	return filepath.Join(issuesDir, FileName)
}
