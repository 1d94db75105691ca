package ann

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	usearch "github.com/unum-cloud/usearch/golang"
)

// Hit is one ranked vector-search result.
type Hit struct {
	DocID    string
	Document string
	Metadata map[string]string
	Distance float64
}

// record is the payload usearch itself doesn't store, kept alongside the
// native index and persisted in its own sidecar file.
type record struct {
	DocID    string            `json:"doc_id"`
	Document string            `json:"document"`
	Metadata map[string]string `json:"metadata"`
}

// Index is a persisted HNSW vector index for one collection.
type Index struct {
	mu      sync.Mutex
	idx     *usearch.Index
	dim     int
	records map[uint64]record // usearch key -> payload
}

// New creates an empty in-memory index of the given dimensionality.
// Callers that want persistence should use Open instead.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("ann: dimension must be positive, got %d", dim)
	}
	conf := usearch.DefaultConfig(uint(dim))
	u, err := usearch.NewIndex(conf)
	if err != nil {
		return nil, fmt.Errorf("ann: creating index: %w", err)
	}
	return &Index{idx: u, dim: dim, records: make(map[uint64]record)}, nil
}

// indexPath and metaPath derive the two on-disk files an Index persists to
// from a single base path, so callers only ever name one collection file.
func indexPath(base string) string { return base + ".usearch" }
func metaPath(base string) string  { return base + ".meta.json" }

// Open loads a previously-Saved index from base, or creates a new empty
// one of dimensionality dim if no file exists yet at that path.
func Open(base string, dim int) (*Index, error) {
	if _, err := os.Stat(indexPath(base)); os.IsNotExist(err) {
		return New(dim)
	}

	conf := usearch.DefaultConfig(uint(dim))
	u, err := usearch.NewIndex(conf)
	if err != nil {
		return nil, fmt.Errorf("ann: creating index: %w", err)
	}
	if err := u.Load(indexPath(base)); err != nil {
		u.Destroy()
		return nil, fmt.Errorf("ann: loading index from %s: %w", indexPath(base), err)
	}

	records := make(map[uint64]record)
	if raw, err := os.ReadFile(metaPath(base)); err == nil {
		if err := json.Unmarshal(raw, &records); err != nil {
			u.Destroy()
			return nil, fmt.Errorf("ann: decoding metadata from %s: %w", metaPath(base), err)
		}
	} else if !os.IsNotExist(err) {
		u.Destroy()
		return nil, fmt.Errorf("ann: reading metadata from %s: %w", metaPath(base), err)
	}

	return &Index{idx: u, dim: dim, records: records}, nil
}

// Save persists the index and its doc_id/document/metadata payload to the
// two files derived from base.
func (i *Index) Save(base string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.idx.Save(indexPath(base)); err != nil {
		return fmt.Errorf("ann: saving index to %s: %w", indexPath(base), err)
	}

	raw, err := json.Marshal(i.records)
	if err != nil {
		return fmt.Errorf("ann: encoding metadata: %w", err)
	}
	if err := os.WriteFile(metaPath(base), raw, 0o644); err != nil {
		return fmt.Errorf("ann: writing metadata to %s: %w", metaPath(base), err)
	}
	return nil
}

// keyFor derives a stable uint64 usearch key from a doc_id, so re-opening
// a persisted index and re-adding the same doc_id always lands on the same
// key without needing a separate, independently-persisted id-allocation
// table.
func keyFor(docID string) uint64 {
	sum := sha256.Sum256([]byte(docID))
	return binary.BigEndian.Uint64(sum[:8])
}

// Upsert adds or replaces the vector and payload for docID. Matches the
// lexical index's own upsert idiom: remove the existing key (a no-op if
// absent), then add.
func (i *Index) Upsert(docID string, vector []float32, document string, metadata map[string]string) error {
	if len(vector) != i.dim {
		return fmt.Errorf("ann: vector has %d dimensions, index expects %d", len(vector), i.dim)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	key := keyFor(docID)
	if _, exists := i.records[key]; exists {
		if err := i.idx.Remove(usearch.Key(key)); err != nil {
			return fmt.Errorf("ann: removing existing entry for %s: %w", docID, err)
		}
	}

	if err := i.idx.Reserve(uint(len(i.records) + 1)); err != nil {
		return fmt.Errorf("ann: reserving capacity: %w", err)
	}
	if err := i.idx.Add(usearch.Key(key), vector); err != nil {
		return fmt.Errorf("ann: adding %s: %w", docID, err)
	}

	i.records[key] = record{DocID: docID, Document: document, Metadata: metadata}
	return nil
}

// Remove deletes docID from the index, if present.
func (i *Index) Remove(docID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	key := keyFor(docID)
	if _, exists := i.records[key]; !exists {
		return nil
	}
	if err := i.idx.Remove(usearch.Key(key)); err != nil {
		return fmt.Errorf("ann: removing %s: %w", docID, err)
	}
	delete(i.records, key)
	return nil
}

// Search returns up to nResults nearest neighbors of query, ascending by
// distance.
func (i *Index) Search(query []float32, nResults int) ([]Hit, error) {
	if len(query) != i.dim {
		return nil, fmt.Errorf("ann: query has %d dimensions, index expects %d", len(query), i.dim)
	}
	if nResults <= 0 {
		nResults = 10
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	keys, distances, err := i.idx.Search(query, uint(nResults))
	if err != nil {
		return nil, fmt.Errorf("ann: search: %w", err)
	}

	hits := make([]Hit, 0, len(keys))
	for idx, key := range keys {
		rec, ok := i.records[uint64(key)]
		if !ok {
			continue
		}
		hits = append(hits, Hit{
			DocID:    rec.DocID,
			Document: rec.Document,
			Metadata: rec.Metadata,
			Distance: float64(distances[idx]),
		})
	}
	return hits, nil
}

// Len returns the number of vectors currently in the index.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.records)
}

// Dimension returns the index's configured vector width.
func (i *Index) Dimension() int { return i.dim }

// Destroy releases the native usearch resources. The Index must not be
// used afterward.
func (i *Index) Destroy() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.idx == nil {
		return nil
	}
	i.idx.Destroy()
	i.idx = nil
	return nil
}
