// Package embed provides the embedding function spec.md treats as an
// external, pure-function dependency (Embedder.EmbedDocuments /
// Embedder.EmbedQuery), backed by a local ONNX model via fastembed-go.
// Grounded on the teacher's internal/embeddings/fastembed.go
// (FastEmbedProvider), trimmed from the teacher's multi-provider
// abstraction (FastEmbed was one of several backends behind a
// vectorstore.Embedder interface) down to the single provider this
// repository uses, satisfying both internal/orchestrator.Embedder and
// internal/planner.Embedder directly.
package embed

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// ErrEmptyInput is returned when EmbedDocuments or EmbedQuery is called
// with no text to embed.
var ErrEmptyInput = errors.New("embed: empty input")

// ErrUnsupportedModel is returned when Config.ModelName does not map to a
// known fastembed model.
var ErrUnsupportedModel = errors.New("embed: unsupported model")

// Config configures the FastEmbed provider.
type Config struct {
	// ModelName selects the embedding model; see modelMapping for the
	// supported names. Empty defaults to BAAI/bge-small-en-v1.5.
	ModelName string

	// CacheDir is where model weights are downloaded and cached. Empty
	// defaults to "./local_cache", matching the teacher's default.
	CacheDir string

	// MaxLength caps the input token sequence length. Zero defaults to 512.
	MaxLength int
}

// modelMapping maps the friendly model names chatindexd.yaml accepts to
// fastembed's own model constants.
var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// modelDimensions maps each supported fastembed model to its output
// vector width, so callers (the vector supervisor, sizing its HNSW
// index) can query Dimension() without embedding anything first.
var modelDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGESmallEN:    384,
	fastembed.BGEBaseENV15:  768,
	fastembed.BGEBaseEN:     768,
	fastembed.BGESmallZH:    512,
	fastembed.AllMiniLML6V2: 384,
}

const defaultModelName = "BAAI/bge-small-en-v1.5"

// Embedder wraps a local ONNX embedding model. A single Embedder is
// reused across the orchestrator's document commits and the planner's
// query embeds; fastembed's own FlagEmbedding is not documented as
// goroutine-safe, so calls are serialized with a mutex.
type Embedder struct {
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	mu        sync.Mutex
}

// New constructs an Embedder, downloading/loading the configured model.
// This can take several seconds on first run (model download) and should
// be called once at daemon startup, not per request.
func New(cfg Config) (*Embedder, error) {
	modelName := cfg.ModelName
	if modelName == "" {
		modelName = defaultModelName
	}

	model, ok := modelMapping[modelName]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: BAAI/bge-small-en-v1.5, BAAI/bge-base-en-v1.5, BAAI/bge-small-zh-v1.5, sentence-transformers/all-MiniLM-L6-v2)", ErrUnsupportedModel, modelName)
	}
	dimension := modelDimensions[model]

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed model %q: %w", modelName, err)
	}

	return &Embedder{model: flagEmbed, modelName: modelName, dimension: dimension}, nil
}

// EmbedDocuments embeds a batch of document texts, using fastembed's
// "passage: " prefix convention for BGE-family models.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts given", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	embeddings, err := e.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return embeddings, nil
}

// EmbedQuery embeds a single query string, using fastembed's "query: "
// prefix convention for BGE-family models.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty query text", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	embedding, err := e.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return embedding, nil
}

// Dimension returns the output vector width for the loaded model.
func (e *Embedder) Dimension() int { return e.dimension }

// Close releases the underlying ONNX session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	return e.model.Destroy()
}
