// Package orchestrator drives one ingest cycle: for each configured source
// directory it invokes the matching decoder, skips files the manifest/
// journal already consider current, flattens conversations into
// documents, and commits them to the lexical index and (best-effort) the
// vector backend. Grounded on spec.md §4.6; wired using the teacher's
// main-loop composition style (cmd/contextd/main.go's dependency-struct
// wiring), generalized from a single HTTP-server bootstrap to a per-source
// ingest cycle.
package orchestrator

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatindex/internal/decode"
	"github.com/fyrsmithlabs/chatindex/internal/enrich"
	"github.com/fyrsmithlabs/chatindex/internal/gitinfo"
	"github.com/fyrsmithlabs/chatindex/internal/journal"
	"github.com/fyrsmithlabs/chatindex/internal/lexical"
	"github.com/fyrsmithlabs/chatindex/internal/manifest"
	"github.com/fyrsmithlabs/chatindex/internal/model"
	"github.com/fyrsmithlabs/chatindex/internal/supervisor"
	"github.com/fyrsmithlabs/chatindex/internal/wireproto"
)

// Embedder produces an embedding vector for a document's text, used only
// when the vector backend is available.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// IncrementalSource is a directory of individually mtime-tracked files
// (the agent session-log source).
type IncrementalSource struct {
	Collection model.Collection
	Dir        string
	Decoder    decode.Decoder
}

// BulkSource is a single archive file whose whole content is hashed for
// change detection (the web-export source).
type BulkSource struct {
	Collection  model.Collection
	ArchivePath string
	Decoder     decode.Decoder
}

// Orchestrator runs ingest cycles across configured sources.
type Orchestrator struct {
	lexical    *lexical.Index
	supervisor *supervisor.Supervisor
	embedder   Embedder
	logger     *zap.Logger
	persistDir string

	// detector and enricher are nil unless SetEnrichment was called; a nil
	// detector disables the decision-summary step entirely, leaving every
	// committed document message-derived exactly as spec.md's core describes.
	detector *enrich.Detector
	enricher enrich.Client
}

// SetEnrichment enables the optional decision-summary step: every committed
// conversation is scanned for decision-shaped messages, which are refined
// into additional RoleDecision documents alongside the per-message ones.
// Wiring this is left to the caller (cmd/chatindexd's main) since detecting
// decisions is an ingest-cycle policy choice, not something this package
// decides on its own.
func (o *Orchestrator) SetEnrichment(detector *enrich.Detector, client enrich.Client) {
	o.detector = detector
	o.enricher = client
}

// New constructs an Orchestrator. embedder and supervisor may be nil: a
// nil supervisor means vector upserts are always skipped (lexical-only
// ingest, still a success per spec.md §4.6 step 3).
func New(lex *lexical.Index, sup *supervisor.Supervisor, embedder Embedder, persistDir string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		lexical:    lex,
		supervisor: sup,
		embedder:   embedder,
		logger:     logger,
		persistDir: persistDir,
	}
}

// CycleResult summarizes one ingest cycle for logging/metrics.
type CycleResult struct {
	FilesCommitted  int
	FilesSkipped    int
	DocumentsCommit int
	VectorSkipped   bool // true if the vector backend was unavailable this cycle
}

// RunIncremental ingests one IncrementalSource: each candidate file's
// eligibility is decided by the collection's manifest (absent-or-strictly-
// greater mtime). Manifest commits happen only after the lexical upsert
// for that file succeeds, per spec's ordering requirement.
func (o *Orchestrator) RunIncremental(ctx context.Context, src IncrementalSource) (CycleResult, error) {
	var result CycleResult

	m, err := manifest.Load(o.manifestPath(src.Collection))
	if err != nil {
		return result, fmt.Errorf("orchestrator: load manifest: %w", err)
	}

	entries, err := os.ReadDir(src.Dir)
	if err != nil {
		return result, fmt.Errorf("orchestrator: list source dir %s: %w", src.Dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(src.Dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			o.logger.Warn("orchestrator: stat candidate file", zap.String("path", path), zap.Error(err))
			result.FilesSkipped++
			continue
		}
		mtime := float64(info.ModTime().UnixNano()) / 1e9

		if !m.Eligible(path, mtime) {
			result.FilesSkipped++
			continue
		}

		convs, _, err := src.Decoder.Decode(path)
		if err != nil {
			o.logger.Warn("orchestrator: decode failed, file skipped this cycle", zap.String("path", path), zap.Error(err))
			result.FilesSkipped++
			continue
		}

		docs := o.flatten(ctx, convs, path)
		if len(docs) == 0 {
			// Nothing to commit, but the file was successfully parsed; mark
			// it current so it isn't retried every cycle.
			if err := m.Commit(path, mtime); err != nil {
				return result, fmt.Errorf("orchestrator: commit manifest for %s: %w", path, err)
			}
			continue
		}

		vectorSkipped, err := o.commit(ctx, docs)
		if err != nil {
			return result, fmt.Errorf("orchestrator: commit %s: %w", path, err)
		}
		result.VectorSkipped = result.VectorSkipped || vectorSkipped

		if err := m.Commit(path, mtime); err != nil {
			return result, fmt.Errorf("orchestrator: commit manifest for %s: %w", path, err)
		}

		result.FilesCommitted++
		result.DocumentsCommit += len(docs)
	}

	return result, nil
}

// RunBulk ingests one BulkSource: the whole archive is hashed, and the
// import is skipped if the journal's hash matches AND the target
// collection is non-empty (self-healing on an observed-empty collection).
func (o *Orchestrator) RunBulk(ctx context.Context, src BulkSource) (CycleResult, error) {
	var result CycleResult

	j, err := journal.Load(o.journalPath(src.Collection))
	if err != nil {
		return result, fmt.Errorf("orchestrator: load journal: %w", err)
	}

	hash, err := journal.HashArchive(src.ArchivePath)
	if err != nil {
		return result, fmt.Errorf("orchestrator: hash archive %s: %w", src.ArchivePath, err)
	}

	count, err := o.lexical.CollectionCount(ctx, src.Collection)
	if err != nil {
		return result, fmt.Errorf("orchestrator: collection count: %w", err)
	}

	if j.ShouldSkip(hash, count) {
		result.FilesSkipped = 1
		return result, nil
	}

	convs, metrics, err := src.Decoder.Decode(src.ArchivePath)
	if err != nil {
		return result, fmt.Errorf("orchestrator: decode %s: %w", src.ArchivePath, err)
	}

	docs := o.flatten(ctx, convs, src.ArchivePath)
	vectorSkipped, err := o.commit(ctx, docs)
	if err != nil {
		return result, fmt.Errorf("orchestrator: commit %s: %w", src.ArchivePath, err)
	}
	result.VectorSkipped = vectorSkipped
	result.DocumentsCommit = len(docs)
	result.FilesCommitted = 1

	if err := j.Commit(filepath.Base(src.ArchivePath), hash, metrics.Conversations, metrics.Messages); err != nil {
		return result, fmt.Errorf("orchestrator: commit journal: %w", err)
	}

	return result, nil
}

// commit upserts docs to the lexical index (always) and, best-effort, to
// the vector backend via the supervisor. A vector-backend failure never
// fails the ingest: it is logged and reported via the returned bool.
func (o *Orchestrator) commit(ctx context.Context, docs []model.Document) (vectorSkipped bool, err error) {
	if len(docs) == 0 {
		return false, nil
	}

	if err := o.lexical.Upsert(ctx, docs); err != nil {
		return false, fmt.Errorf("lexical upsert: %w", err)
	}

	if o.supervisor == nil || o.embedder == nil {
		return true, nil
	}
	if o.supervisor.State() != supervisor.StateReady && o.supervisor.State() != supervisor.StateDegraded {
		o.logger.Warn("vector backend unavailable, lexical-only commit")
		return true, nil
	}

	byCollection := make(map[model.Collection][]model.Document)
	for _, d := range docs {
		byCollection[d.Collection] = append(byCollection[d.Collection], d)
	}

	for collection, group := range byCollection {
		if !o.supervisor.CollectionUsable(string(collection)) {
			o.logger.Info("collection explicitly skipped by vector worker", zap.String("collection", string(collection)))
			vectorSkipped = true
			continue
		}

		texts := make([]string, len(group))
		for i, d := range group {
			texts[i] = d.Text
		}
		vectors, embedErr := o.embedder.EmbedDocuments(ctx, texts)
		if embedErr != nil {
			o.logger.Warn("embedding failed, lexical-only commit for collection", zap.String("collection", string(collection)), zap.Error(embedErr))
			vectorSkipped = true
			continue
		}

		items := make([]wireproto.IndexedItem, len(group))
		for i, d := range group {
			items[i] = wireproto.IndexedItem{
				DocID:    d.DocID,
				Vector:   vectors[i],
				Document: d.Text,
				Metadata: map[string]string{
					"conversation_id": d.Metadata.ConversationID,
					"role":            d.Metadata.Role,
					"project":         d.Metadata.Project,
					"source":          d.Metadata.Source,
					"cwd":             d.Metadata.Cwd,
					"git_branch":      d.Metadata.GitBranch,
				},
			}
		}

		params := wireproto.IndexParams{Collection: string(collection), Items: items}
		if _, callErr := o.supervisor.Call(ctx, wireproto.MethodIndex, params); callErr != nil {
			o.logger.Warn("vector upsert failed, lexical-only commit for collection", zap.String("collection", string(collection)), zap.Error(callErr))
			vectorSkipped = true
		}
	}

	return vectorSkipped, nil
}

// flatten converts decoded conversations into documents: first enriching
// any conversation missing its project or git-branch metadata from the
// source file's location on disk, then (if SetEnrichment was called)
// appending decision-summary documents detected in its messages.
func (o *Orchestrator) flatten(ctx context.Context, convs []model.Conversation, sourcePath string) []model.Document {
	var docs []model.Document
	for _, c := range convs {
		c = gitinfo.Enrich(c, sourcePath)
		docs = append(docs, model.Documents(c)...)
		docs = append(docs, o.detectDecisions(ctx, c)...)
	}
	return docs
}

// detectDecisions runs the optional decision-detector/summarizer pair over
// one conversation's messages, returning a RoleDecision document per
// candidate the client could refine. Errors refining a single candidate are
// logged and skipped rather than failing the whole commit, the same
// best-effort posture o.commit already applies to vector upserts.
func (o *Orchestrator) detectDecisions(ctx context.Context, c model.Conversation) []model.Document {
	if o.detector == nil || o.enricher == nil || !o.enricher.Available() {
		return nil
	}

	detected := make([]enrich.DetectedMessage, len(c.Messages))
	for i, m := range c.Messages {
		detected[i] = enrich.DetectedMessage{
			ConversationID: c.ID,
			UUID:           fmt.Sprintf("%s:%d", c.ID, i),
			Content:        m.Content,
		}
	}

	candidates := o.detector.Detect(detected)
	if len(candidates) == 0 {
		return nil
	}

	docs := make([]model.Document, 0, len(candidates))
	for i, candidate := range candidates {
		decision, err := o.enricher.Summarize(ctx, candidate)
		if err != nil {
			o.logger.Warn("decision enrichment failed, candidate skipped", zap.String("conversation_id", c.ID), zap.Error(err))
			continue
		}
		docs = append(docs, enrich.ToDocument(candidate, decision, c, i))
	}
	return docs
}

func (o *Orchestrator) manifestPath(collection model.Collection) string {
	return filepath.Join(o.persistDir, string(collection)+"_index_manifest.json")
}

func (o *Orchestrator) journalPath(collection model.Collection) string {
	return filepath.Join(o.persistDir, string(collection)+"_import_state.json")
}

// ValidateZipArchive checks that path is a readable zip archive containing
// a conversations.json entry, without decoding it. Used by the daemon's
// exports-directory ingest to skip an obviously wrong file before handing it
// to the web-export decoder.
func ValidateZipArchive(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("orchestrator: not a valid zip archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if strings.EqualFold(filepath.Base(f.Name), "conversations.json") {
			return nil
		}
	}
	return fmt.Errorf("orchestrator: %s has no conversations.json entry", path)
}
