// Package ann wraps a usearch HNSW index with the small amount of
// bookkeeping cmd/vectorworker needs on top of it: a stable string doc_id
// keyed to usearch's native uint64 keys, the document text and flat
// metadata payload usearch itself doesn't store, and upsert (delete
// existing key, then add) semantics matching the lexical index's own
// "upsert = idempotent" treatment of doc_id.
//
// Grounded on sidedotdev-sidekick's persisted_ai/vector_activities.go and
// embedding/vector_activities.go (usearch.DefaultConfig, usearch.NewIndex,
// index.Reserve/Add/Search/Destroy), generalized from that package's
// build-once, query-many, never-persisted in-memory index to a
// long-lived, persisted-to-disk, update-in-place one — this package adds
// the Save/Load/Remove calls neither pack example exercises, since
// cmd/vectorworker's index must survive process restarts.
package ann
