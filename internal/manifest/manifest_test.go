package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRaw(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestLoadMissingFileYieldsEmptyManifest(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(filepath.Join(dir, "alpha_index_manifest.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !m.Eligible("any/path.jsonl", 100) {
		t.Fatal("expected unrecorded path to be eligible")
	}
}

func TestEligibleAbsentPath(t *testing.T) {
	dir := t.TempDir()
	m, _ := Load(filepath.Join(dir, "m.json"))
	if !m.Eligible("new.jsonl", 1.0) {
		t.Fatal("expected absent path to be eligible")
	}
}

func TestEligibleStrictlyGreaterMtime(t *testing.T) {
	dir := t.TempDir()
	m, _ := Load(filepath.Join(dir, "m.json"))

	if err := m.Commit("s.jsonl", 100.0); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if m.Eligible("s.jsonl", 100.0) {
		t.Fatal("expected equal mtime to be ineligible")
	}
	if m.Eligible("s.jsonl", 99.0) {
		t.Fatal("expected earlier mtime to be ineligible")
	}
	if !m.Eligible("s.jsonl", 100.1) {
		t.Fatal("expected strictly greater mtime to be eligible")
	}
}

func TestCommitPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.json")

	m1, _ := Load(path)
	if err := m1.Commit("s.jsonl", 42.5); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	m2, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m2.Eligible("s.jsonl", 42.5) {
		t.Fatal("expected reloaded manifest to retain committed mtime")
	}

	got, err := m2.LastMtime("s.jsonl")
	if err != nil {
		t.Fatalf("LastMtime: %v", err)
	}
	if got != 42.5 {
		t.Fatalf("expected 42.5, got %v", got)
	}
}

func TestLastMtimeNotFound(t *testing.T) {
	dir := t.TempDir()
	m, _ := Load(filepath.Join(dir, "m.json"))

	if _, err := m.LastMtime("missing.jsonl"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCorruptedFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.json")
	if err := writeRaw(path, "{not valid json"); err != nil {
		t.Fatalf("writing corrupt fixture: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("expected corrupted manifest to load as empty, got error: %v", err)
	}
	if !m.Eligible("anything.jsonl", 1.0) {
		t.Fatal("expected corrupted manifest to treat every path as eligible")
	}
}

func TestCommitOnlyAfterSuccessfulUpsertSemantics(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.json")
	m, _ := Load(path)

	// Simulate a failed upsert: manifest is never committed, so the file
	// stays eligible for the next ingest cycle.
	if !m.Eligible("s.jsonl", 10.0) {
		t.Fatal("expected path to remain eligible before commit")
	}
}
