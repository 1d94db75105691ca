// Package wireproto defines the newline-delimited JSON request/response
// protocol spoken between the supervisor (internal/supervisor) and the
// detached vector-worker child process (cmd/vectorworker), over the
// child's stdin/stdout.
package wireproto

import "encoding/json"

// Method identifies the operation a Request performs.
type Method string

const (
	MethodPing  Method = "ping"
	MethodQuery Method = "query"
	MethodIndex Method = "index"

	// MethodCollections asks the child which collections it actually opened
	// at startup, so the parent can reconcile supervisor.MarkCollectionSkipped
	// against whatever was explicitly skipped (e.g. too large to open
	// safely) before serving the first query. The startup ready marker
	// itself carries no payload beyond the literal "ready" string, so this
	// is a deliberate second round-trip rather than folding skip data into
	// that handshake.
	MethodCollections Method = "collections"
)

// InitID is the synthetic request ID the child echoes back, unsolicited,
// once its index is ready to accept calls.
const InitID = "__init__"

// Request is one line of JSON sent to the child's stdin.
type Request struct {
	ID     string          `json:"id"`
	Method Method          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one line of JSON read from the child's stdout. Exactly one
// of Result or Error is set.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ReadyResult is the literal result value of the unsolicited __init__
// response the child emits after a successful startup.
const ReadyResult = "ready"

// IndexParams is Request.Params for method "index": upsert a batch of
// vectors into a collection's sub-index.
type IndexParams struct {
	Collection string        `json:"collection"`
	Items      []IndexedItem `json:"items"`
}

// IndexedItem is one vector to upsert, keyed by the same doc_id the
// lexical index uses for the same logical document.
type IndexedItem struct {
	DocID    string            `json:"doc_id"`
	Vector   []float32         `json:"vector"`
	Document string            `json:"document"`
	Metadata map[string]string `json:"metadata"`
}

// QueryParams is Request.Params for method "query".
type QueryParams struct {
	Collection string    `json:"collection"`
	Vector     []float32 `json:"vector"`
	NResults   int       `json:"n_results"`
}

// QueryResult is the decoded Response.Result for method "query".
type QueryResult struct {
	Results      []QueryHit `json:"results"`
	TotalMatches int        `json:"total_matches"`
}

// QueryHit is one ranked vector-search result, sorted ascending by
// Distance across the whole QueryResult.Results slice.
type QueryHit struct {
	ID         string            `json:"id"`
	Document   string            `json:"document"`
	Metadata   map[string]string `json:"metadata"`
	Distance   float64           `json:"distance"`
	Collection string            `json:"collection"`
}

// CollectionsResult is the decoded Response.Result for method
// "collections": which collections the child successfully opened at
// startup, and which it explicitly skipped (with why), so the parent can
// call supervisor.MarkCollectionSkipped for each skipped one.
type CollectionsResult struct {
	Open    []string          `json:"open"`
	Skipped map[string]string `json:"skipped"` // collection -> reason
}
