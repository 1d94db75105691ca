// Package journal persists a single record of the last successfully
// imported bulk archive per collection, so repeated bulk-import runs can
// skip unchanged archives by content hash while still self-healing when the
// target collection has been wiped. Grounded on the teacher's
// internal/checkpoint persisted-state shape, generalized from a
// multi-record Qdrant-backed store to a single-record file.
package journal

import (
	"crypto/md5" //nolint:gosec // change detection, not authentication; spec explicitly allows MD5 here.
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Record is the last successful bulk import for one collection.
type Record struct {
	LastArchiveName string    `json:"last_archive_name"`
	ContentHash     string    `json:"content_hash"`
	ImportedAt      time.Time `json:"imported_at"`
	Conversations   int       `json:"conversations"`
	Messages        int       `json:"messages"`
}

// Journal is a single-record persisted import marker. A zero Journal is not
// usable; construct one with Load.
type Journal struct {
	path   string
	record *Record // nil until a Record has ever been written
}

// Load reads the journal file at path. A missing file means no bulk import
// has ever completed; it is not an error.
func Load(path string) (*Journal, error) {
	j := &Journal{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return j, nil
	}

	// A corrupted journal is treated as "no prior import" rather than a
	// fatal error, matching the self-healing posture: worst case is one
	// redundant bulk reimport.
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return j, nil
	}
	j.record = &rec
	return j, nil
}

// ShouldSkip decides whether a bulk import of archivePath can be skipped
// given its current content hash and the target collection's current
// document count. It returns true only when the journal's stored hash
// matches AND collectionCount is non-zero; an empty collection always
// forces reimport regardless of hash match (self-healing precondition).
func (j *Journal) ShouldSkip(archiveHash string, collectionCount int) bool {
	if j.record == nil {
		return false
	}
	if collectionCount == 0 {
		return false
	}
	return j.record.ContentHash == archiveHash
}

// Commit records a successful bulk import and persists it to disk.
func (j *Journal) Commit(archiveName, contentHash string, conversations, messages int) error {
	rec := Record{
		LastArchiveName: archiveName,
		ContentHash:     contentHash,
		ImportedAt:      time.Now().UTC(),
		Conversations:   conversations,
		Messages:        messages,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".journal-*.tmp")
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
	if err := os.Rename(tmpName, j.path); err != nil {
		return err
	}

	j.record = &rec
	return nil
}

// Record returns the currently loaded record, or nil if no bulk import has
// ever completed.
func (j *Journal) Record() *Record {
	return j.record
}

// HashArchive computes the MD5 content hash of the archive at path. MD5 is
// sufficient here: the purpose is change detection, not authentication.
func HashArchive(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
