// Package planner implements the hybrid query planner: it dispatches a
// query to the lexical index and, when available, the vector backend,
// then fuses the two result streams by rank-level union with lexical
// preference. Grounded on spec.md §4.5; the fusion algorithm itself has no
// teacher analogue (the teacher's checkpoint/vectorstore code is
// single-backend), so it is implemented directly from the specification,
// wired through the teacher's sentinel-error and backpressure idioms.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/chatindex/internal/lexical"
	"github.com/fyrsmithlabs/chatindex/internal/model"
	"github.com/fyrsmithlabs/chatindex/internal/supervisor"
	"github.com/fyrsmithlabs/chatindex/internal/wireproto"
)

// ErrEmptyQuery is returned when query_text is blank.
var ErrEmptyQuery = errors.New("planner: query_text must not be empty")

// ErrNoBackend is returned when both the lexical index and the vector
// backend fail to produce results.
var ErrNoBackend = errors.New("planner: no search backend available")

// lexicalFanout is the over-fetch multiplier named in REDESIGN FLAGS as
// something to parameterize; DefaultLexicalFanout is the value used when
// config doesn't override it.
const DefaultLexicalFanout = 5

// SearchType tags which backend(s) contributed to a Response.
type SearchType string

const (
	SearchTypeFTS    SearchType = "fts"
	SearchTypeVector SearchType = "vector"
	SearchTypeHybrid SearchType = "hybrid"
)

// Embedder turns query text into a vector, the same pure-function contract
// spec.md treats the embedding step as.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Result is one fused hit in a Response.
type Result struct {
	DocID      string
	Document   string
	Metadata   model.Metadata
	Distance   float64
	Collection model.Collection
}

// Response is the result of Query.
type Response struct {
	Results      []Result
	TotalMatches int
	SearchType   SearchType
}

// Request is the input to Query.
type Request struct {
	QueryText     string
	NResults      int // default 10, applied by caller before calling Query
	Collections   []model.Collection
	ProjectFilter string
}

// Planner fuses the lexical index and vector supervisor into one hybrid
// search operation.
type Planner struct {
	lexical       *lexical.Index
	supervisor    *supervisor.Supervisor
	embedder      Embedder
	lexicalFanout int
	limiter       *rate.Limiter
}

// New constructs a Planner. lexicalFanout <= 0 defaults to
// DefaultLexicalFanout. limiter rate-limits dispatch to the vector
// backend so a query storm degrades to lexical-only rather than queuing
// unboundedly behind the supervisor's single-flight mutex; pass nil to
// disable rate limiting.
func New(lex *lexical.Index, sup *supervisor.Supervisor, embedder Embedder, lexicalFanout int, limiter *rate.Limiter) *Planner {
	if lexicalFanout <= 0 {
		lexicalFanout = DefaultLexicalFanout
	}
	return &Planner{
		lexical:       lex,
		supervisor:    sup,
		embedder:      embedder,
		lexicalFanout: lexicalFanout,
		limiter:       limiter,
	}
}

// Query executes the hybrid search plan described in spec.md §4.5.
func (p *Planner) Query(ctx context.Context, req Request) (*Response, error) {
	if req.QueryText == "" {
		return nil, ErrEmptyQuery
	}
	nResults := req.NResults
	if nResults <= 0 {
		nResults = 10
	}
	collections := req.Collections
	if len(collections) == 0 {
		collections = []model.Collection{model.CollectionAlpha, model.CollectionBeta}
	}

	lexHits, lexErr := p.searchLexical(ctx, req.QueryText, collections, nResults)
	vecHits, vecErr := p.searchVector(ctx, req.QueryText, collections, nResults)

	if lexErr != nil && vecErr != nil {
		return nil, fmt.Errorf("%w: lexical error %v, vector error %v", ErrNoBackend, lexErr, vecErr)
	}

	filtered := make([]Result, 0, len(lexHits)+len(vecHits))
	seen := make(map[string]struct{}, len(lexHits)+len(vecHits))

	for _, h := range lexHits {
		if !matchesFilter(h.Metadata.Project, req.ProjectFilter) {
			continue
		}
		filtered = append(filtered, h)
		seen[h.DocID] = struct{}{}
	}
	for _, h := range vecHits {
		if _, dup := seen[h.DocID]; dup {
			continue
		}
		if !matchesFilter(h.Metadata.Project, req.ProjectFilter) {
			continue
		}
		filtered = append(filtered, h)
		seen[h.DocID] = struct{}{}
	}

	if len(filtered) > nResults {
		filtered = filtered[:nResults]
	}

	searchType := classifySearchType(lexErr == nil && len(lexHits) > 0, vecErr == nil && len(vecHits) > 0)

	return &Response{
		Results:      filtered,
		TotalMatches: len(filtered),
		SearchType:   searchType,
	}, nil
}

func matchesFilter(project, filter string) bool {
	return filter == "" || project == filter
}

func classifySearchType(lexicalContributed, vectorContributed bool) SearchType {
	switch {
	case lexicalContributed && vectorContributed:
		return SearchTypeHybrid
	case vectorContributed:
		return SearchTypeVector
	default:
		return SearchTypeFTS
	}
}

func (p *Planner) searchLexical(ctx context.Context, queryText string, collections []model.Collection, nResults int) ([]Result, error) {
	limit := nResults * p.lexicalFanout
	var results []Result
	var firstErr error

	for _, c := range collections {
		hits, err := p.lexical.Search(ctx, queryText, c, limit)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, h := range hits {
			results = append(results, Result{
				DocID:      h.DocID,
				Document:   h.Text,
				Metadata:   h.Metadata,
				Distance:   h.Distance,
				Collection: c,
			})
		}
	}

	if results == nil && firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func (p *Planner) searchVector(ctx context.Context, queryText string, collections []model.Collection, nResults int) ([]Result, error) {
	if p.supervisor == nil || p.supervisor.State() != supervisor.StateReady && p.supervisor.State() != supervisor.StateDegraded {
		return nil, errors.New("planner: vector backend not ready")
	}

	usable := make([]model.Collection, 0, len(collections))
	for _, c := range collections {
		if p.supervisor.CollectionUsable(string(c)) {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return nil, errors.New("planner: no usable vector collections requested")
	}

	if p.limiter != nil && !p.limiter.Allow() {
		return nil, errors.New("planner: vector dispatch rate-limited")
	}

	vec, err := p.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("planner: embed query: %w", err)
	}

	var results []Result
	var firstErr error
	for _, c := range usable {
		params := wireproto.QueryParams{Collection: string(c), Vector: vec, NResults: nResults}
		raw, err := p.supervisor.Call(ctx, wireproto.MethodQuery, params)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		var qr wireproto.QueryResult
		if err := json.Unmarshal(raw, &qr); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, hit := range qr.Results {
			results = append(results, Result{
				DocID:      hit.ID,
				Document:   hit.Document,
				Metadata:   metadataFromMap(hit.Metadata),
				Distance:   hit.Distance,
				Collection: model.Collection(hit.Collection),
			})
		}
	}

	if results == nil && firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func metadataFromMap(m map[string]string) model.Metadata {
	return model.Metadata{
		ConversationID: m["conversation_id"],
		Role:           m["role"],
		Project:        m["project"],
		Source:         m["source"],
		Cwd:            m["cwd"],
		GitBranch:      m["git_branch"],
	}
}
