// Package lexical implements the full-text search index over Document.Text,
// backed by SQLite FTS5 via modernc.org/sqlite (pure Go, no cgo). Grounded
// on the teacher's internal/vectorstore sentinel-error style and
// 54b3r-tfai-go's internal/store connection-pooling pattern (one
// single-writer *sql.DB plus a separate read-only pool), generalized from a
// plain conversation-history table to an FTS5 inverted index with a
// companion metadata table.
package lexical

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/fyrsmithlabs/chatindex/internal/model"
)

// ErrEmptyQuery is returned by Search when the query text is blank after
// sanitization.
var ErrEmptyQuery = errors.New("lexical: empty query")

// reservedPunctuation is stripped from query text before it is assembled
// into an FTS5 boolean expression, per spec's query-sanitization
// requirement.
const reservedPunctuation = `*"(){}[]^~:+-`

// Hit is one ranked result row from Search.
type Hit struct {
	DocID    string
	Text     string
	Metadata model.Metadata
	Distance float64 // ascending: lower is more relevant
}

// Index is a collection-partitioned FTS5 lexical index.
type Index struct {
	write *sql.DB // single-connection writer
	read  *sql.DB // read-only connection pool
}

// Open opens (or creates) the lexical index database at path and ensures
// its schema exists. path should point at the shared database file; Open
// establishes both the single-writer and the read-only connection pools
// against it.
func Open(path string) (*Index, error) {
	writeDSN := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	write, err := sql.Open("sqlite", writeDSN)
	if err != nil {
		return nil, fmt.Errorf("lexical: open write connection: %w", err)
	}
	write.SetMaxOpenConns(1) // SQLite allows only one writer at a time.

	readDSN := path + "?_pragma=journal_mode(WAL)&mode=ro&_pragma=busy_timeout(5000)"
	read, err := sql.Open("sqlite", readDSN)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("lexical: open read pool: %w", err)
	}

	idx := &Index{write: write, read: read}
	if err := idx.migrate(); err != nil {
		write.Close()
		read.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	const ddl = `
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    text,
    conversation_id,
    role,
    timestamp,
    project,
    source,
    cwd,
    git_branch,
    doc_id UNINDEXED,
    collection UNINDEXED
);
CREATE TABLE IF NOT EXISTS documents (
    doc_id           TEXT PRIMARY KEY,
    collection       TEXT NOT NULL,
    text             TEXT NOT NULL,
    conversation_id  TEXT NOT NULL,
    role             TEXT NOT NULL,
    timestamp        TEXT NOT NULL,
    project          TEXT NOT NULL,
    source           TEXT NOT NULL,
    cwd              TEXT NOT NULL,
    git_branch       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents (collection);
`
	if _, err := idx.write.Exec(ddl); err != nil {
		return fmt.Errorf("lexical: migrate: %w", err)
	}
	return nil
}

// Upsert commits docs, replacing any existing row for the same doc_id.
// Upsert is implemented as delete-then-insert against both the FTS table
// and the metadata table, which keeps idempotence trivial to reason about:
// re-upserting the same Document is always a no-op against final state.
func (idx *Index) Upsert(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := idx.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lexical: begin upsert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	for _, d := range docs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE doc_id = ?`, d.DocID); err != nil {
			return fmt.Errorf("lexical: delete fts row %s: %w", d.DocID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, d.DocID); err != nil {
			return fmt.Errorf("lexical: delete metadata row %s: %w", d.DocID, err)
		}

		ts := d.Metadata.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

		if _, err := tx.ExecContext(ctx, `
INSERT INTO documents_fts (text, conversation_id, role, timestamp, project, source, cwd, git_branch, doc_id, collection)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.Text, d.Metadata.ConversationID, string(d.Metadata.Role), ts,
			d.Metadata.Project, string(d.Metadata.Source), d.Metadata.Cwd, d.Metadata.GitBranch,
			d.DocID, string(d.Collection),
		); err != nil {
			return fmt.Errorf("lexical: insert fts row %s: %w", d.DocID, err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO documents (doc_id, collection, text, conversation_id, role, timestamp, project, source, cwd, git_branch)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.DocID, string(d.Collection), d.Text, d.Metadata.ConversationID, string(d.Metadata.Role),
			ts, d.Metadata.Project, string(d.Metadata.Source), d.Metadata.Cwd, d.Metadata.GitBranch,
		); err != nil {
			return fmt.Errorf("lexical: insert metadata row %s: %w", d.DocID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lexical: commit upsert tx: %w", err)
	}
	return nil
}

// Search runs a sanitized boolean OR query over the given collection and
// returns up to limit hits ordered by ascending distance (lower is more
// relevant). An empty collection searches all collections.
func (idx *Index) Search(ctx context.Context, queryText string, collection model.Collection, limit int) ([]Hit, error) {
	expr := SanitizeQuery(queryText)
	if expr == "" {
		return nil, ErrEmptyQuery
	}

	const baseQuery = `
SELECT f.doc_id, f.text, f.conversation_id, f.role, f.timestamp, f.project, f.source, f.cwd, f.git_branch, f.collection,
       bm25(documents_fts) AS rank
FROM documents_fts f
WHERE documents_fts MATCH ?`

	query := baseQuery
	args := []interface{}{expr}
	if collection != "" {
		query += " AND f.collection = ?"
		args = append(args, string(collection))
	}
	query += " ORDER BY rank ASC LIMIT ?"
	args = append(args, limit)

	rows, err := idx.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical: search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h          Hit
			convID     string
			role       string
			ts         string
			project    string
			source     string
			cwd        string
			gitBranch  string
			collection string
			rank       float64
		)
		if err := rows.Scan(&h.DocID, &h.Text, &convID, &role, &ts, &project, &source, &cwd, &gitBranch, &collection, &rank); err != nil {
			return nil, fmt.Errorf("lexical: scan hit: %w", err)
		}
		h.Metadata = model.Metadata{
			ConversationID: convID,
			Role:           role,
			Timestamp:      parseStoredTimestamp(ts),
			Project:        project,
			Source:         source,
			Cwd:            cwd,
			GitBranch:      gitBranch,
		}
		// bm25() returns a score that is more negative for a better match, so
		// ORDER BY rank ASC yields rows best-first. Distance maps |bm25| onto
		// 1/(1+|bm25|): non-negative, lower for a better match, and therefore
		// ascending in row order.
		if rank < 0 {
			rank = -rank
		}
		h.Distance = 1 / (1 + rank)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lexical: search rows: %w", err)
	}
	return hits, nil
}

// CollectionCount returns the number of documents stored for collection,
// read directly from the metadata table. It never touches the vector
// backend, per spec's stats-API isolation requirement.
func (idx *Index) CollectionCount(ctx context.Context, collection model.Collection) (int, error) {
	var count int
	err := idx.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, string(collection)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("lexical: collection count: %w", err)
	}
	return count, nil
}

// Close releases both connection pools.
func (idx *Index) Close() error {
	writeErr := idx.write.Close()
	readErr := idx.read.Close()
	if writeErr != nil {
		return fmt.Errorf("lexical: close write connection: %w", writeErr)
	}
	if readErr != nil {
		return fmt.Errorf("lexical: close read pool: %w", readErr)
	}
	return nil
}

// parseStoredTimestamp parses the fixed layout Upsert writes; a parse
// failure yields the zero time rather than an error, since a malformed
// stored timestamp should never make an otherwise-valid search result
// unreadable.
func parseStoredTimestamp(raw string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05.000000Z", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SanitizeQuery strips FTS5-reserved punctuation from queryText and
// rebuilds it as an implicit-OR boolean expression: "tok1" OR "tok2" ...
// Tokens are individually quoted so any leftover FTS5 syntax characters
// inside a token can never be interpreted as query operators.
func SanitizeQuery(queryText string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(reservedPunctuation, r) {
			return ' '
		}
		return r
	}, queryText)

	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, " OR ")
}
