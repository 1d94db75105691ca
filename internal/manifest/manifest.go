// Package manifest tracks, per source file, the modification time last seen
// at a successful commit, so incremental ingest can skip unchanged files.
// Grounded on the teacher's internal/vectorstore sentinel-error style
// (interface.go) for error handling and its JSON-on-disk persistence
// pattern in internal/checkpoint.
package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by Entry lookups that have no stored record. It is
// not itself an eligibility decision; callers treat "not found" the same as
// "eligible."
var ErrNotFound = errors.New("manifest: source path not recorded")

// Manifest is a persistent source_path -> last_mtime map. A zero Manifest is
// not usable; construct one with Load.
type Manifest struct {
	path string

	mu      sync.Mutex
	entries map[string]float64
}

// Load reads the manifest file at path. A missing file is treated as an
// empty manifest (first run); any other read or decode error is returned.
func Load(path string) (*Manifest, error) {
	m := &Manifest{
		path:    path,
		entries: make(map[string]float64),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return m, nil
	}

	// A corrupted manifest is treated as an empty one rather than a fatal
	// error: every path becomes eligible again, which just costs a
	// redundant re-ingest, not a crash.
	if err := json.Unmarshal(data, &m.entries); err != nil {
		m.entries = make(map[string]float64)
	}
	return m, nil
}

// Eligible reports whether path should be re-processed: either it has never
// been recorded, or its current mtime is strictly greater than the stored
// one. Clock rewinds that leave mtime unchanged or earlier are treated as
// "already imported," per spec's mtime-only discipline.
func (m *Manifest) Eligible(path string, mtime float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.entries[path]
	if !ok {
		return true
	}
	return mtime > stored
}

// LastMtime returns the stored mtime for path, or ErrNotFound if path has
// never been committed.
func (m *Manifest) LastMtime(path string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.entries[path]
	if !ok {
		return 0, ErrNotFound
	}
	return stored, nil
}

// Commit records path as successfully imported at mtime and persists the
// manifest to disk. Callers must only call Commit after the file's records
// have been durably upserted, per spec's ordering requirement.
func (m *Manifest) Commit(path string, mtime float64) error {
	m.mu.Lock()
	m.entries[path] = mtime
	snapshot := make(map[string]float64, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = v
	}
	m.mu.Unlock()

	return writeJSONAtomic(m.path, snapshot)
}

// writeJSONAtomic marshals v and writes it to path via a temp-file-then-
// rename sequence, so a crash mid-write never leaves a truncated manifest
// behind for the next Load to choke on.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
