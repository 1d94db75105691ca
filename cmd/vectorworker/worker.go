package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatindex/internal/ann"
	"github.com/fyrsmithlabs/chatindex/internal/wireproto"
)

// maxLineBytes bounds one stdin request line. A batched "index" call can
// carry many embedding vectors; the default bufio.Scanner 64KB limit is
// comfortably too small for that.
const maxLineBytes = 32 << 20

// collectionIndex pairs an open index with the base path it persists to,
// so the worker can Save it back after every mutating call.
type collectionIndex struct {
	idx  *ann.Index
	base string
}

// worker dispatches wireproto requests against a fixed set of per-collection
// indexes opened at startup.
type worker struct {
	logger  *zap.Logger
	indexes map[string]*collectionIndex
	skipped map[string]string // collection -> reason
}

func newWorker(logger *zap.Logger) *worker {
	return &worker{
		logger:  logger,
		indexes: make(map[string]*collectionIndex),
		skipped: make(map[string]string),
	}
}

// openCollection opens (or creates) the index for name at base, unless its
// persisted file already exceeds maxIndexBytes, or opening it fails — both
// cases are recorded as an explicit skip rather than a startup failure, so
// one oversized or corrupt collection never takes down the whole worker.
func (w *worker) openCollection(name, base string, dim int, maxIndexBytes int64) {
	if maxIndexBytes > 0 {
		if info, err := os.Stat(base + ".usearch"); err == nil && info.Size() > maxIndexBytes {
			reason := fmt.Sprintf("index file %d bytes exceeds max-index-bytes %d", info.Size(), maxIndexBytes)
			w.logger.Warn("skipping collection: too large to open safely", zap.String("collection", name), zap.String("reason", reason))
			w.skipped[name] = reason
			return
		}
	}

	idx, err := ann.Open(base, dim)
	if err != nil {
		w.logger.Warn("skipping collection: open failed", zap.String("collection", name), zap.Error(err))
		w.skipped[name] = err.Error()
		return
	}

	w.indexes[name] = &collectionIndex{idx: idx, base: base}
	w.logger.Info("collection opened", zap.String("collection", name), zap.Int("vectors", idx.Len()))
}

// handle dispatches one decoded request to its method implementation and
// always returns a Response carrying the same ID.
func (w *worker) handle(req wireproto.Request) wireproto.Response {
	switch req.Method {
	case wireproto.MethodPing:
		return w.respond(req.ID, "pong")
	case wireproto.MethodCollections:
		return w.handleCollections(req.ID)
	case wireproto.MethodIndex:
		return w.handleIndex(req.ID, req.Params)
	case wireproto.MethodQuery:
		return w.handleQuery(req.ID, req.Params)
	default:
		return w.fail(req.ID, fmt.Errorf("unknown method %q", req.Method))
	}
}

func (w *worker) handleCollections(id string) wireproto.Response {
	open := make([]string, 0, len(w.indexes))
	for name := range w.indexes {
		open = append(open, name)
	}
	skipped := make(map[string]string, len(w.skipped))
	for name, reason := range w.skipped {
		skipped[name] = reason
	}
	return w.respond(id, wireproto.CollectionsResult{Open: open, Skipped: skipped})
}

func (w *worker) handleIndex(id string, raw json.RawMessage) wireproto.Response {
	var params wireproto.IndexParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return w.fail(id, fmt.Errorf("decoding index params: %w", err))
	}
	ci, ok := w.indexes[params.Collection]
	if !ok {
		return w.fail(id, fmt.Errorf("collection %q not open", params.Collection))
	}

	for _, item := range params.Items {
		if err := ci.idx.Upsert(item.DocID, item.Vector, item.Document, item.Metadata); err != nil {
			return w.fail(id, fmt.Errorf("upserting %s: %w", item.DocID, err))
		}
	}
	if err := ci.idx.Save(ci.base); err != nil {
		return w.fail(id, fmt.Errorf("saving collection %q: %w", params.Collection, err))
	}

	return w.respond(id, map[string]int{"indexed": len(params.Items)})
}

func (w *worker) handleQuery(id string, raw json.RawMessage) wireproto.Response {
	var params wireproto.QueryParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return w.fail(id, fmt.Errorf("decoding query params: %w", err))
	}
	ci, ok := w.indexes[params.Collection]
	if !ok {
		return w.fail(id, fmt.Errorf("collection %q not open", params.Collection))
	}

	hits, err := ci.idx.Search(params.Vector, params.NResults)
	if err != nil {
		return w.fail(id, fmt.Errorf("searching collection %q: %w", params.Collection, err))
	}

	result := wireproto.QueryResult{Results: make([]wireproto.QueryHit, 0, len(hits)), TotalMatches: len(hits)}
	for _, h := range hits {
		result.Results = append(result.Results, wireproto.QueryHit{
			ID:         h.DocID,
			Document:   h.Document,
			Metadata:   h.Metadata,
			Distance:   h.Distance,
			Collection: params.Collection,
		})
	}
	return w.respond(id, result)
}

func (w *worker) respond(id string, result interface{}) wireproto.Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return wireproto.Response{ID: id, Error: fmt.Sprintf("marshaling result: %v", err)}
	}
	return wireproto.Response{ID: id, Result: raw}
}

func (w *worker) fail(id string, err error) wireproto.Response {
	return wireproto.Response{ID: id, Error: err.Error()}
}

// run emits the ready marker, then reads newline-delimited requests from in
// and writes newline-delimited responses to out until in is exhausted.
func (w *worker) run(in io.Reader, out io.Writer) error {
	writer := bufio.NewWriter(out)

	ready := wireproto.Response{ID: wireproto.InitID}
	readyResult, _ := json.Marshal(wireproto.ReadyResult)
	ready.Result = readyResult
	if err := writeLine(writer, ready); err != nil {
		return fmt.Errorf("writing ready marker: %w", err)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		var req wireproto.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			w.logger.Warn("discarding malformed request line", zap.Error(err))
			continue
		}

		resp := w.handle(req)
		if err := writeLine(writer, resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	return scanner.Err()
}

func writeLine(w *bufio.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// closeAll releases every open index's native resources. Called on
// shutdown; errors are logged, not returned, since the process is exiting
// either way.
func (w *worker) closeAll() {
	for name, ci := range w.indexes {
		if err := ci.idx.Destroy(); err != nil {
			w.logger.Warn("closing collection", zap.String("collection", name), zap.Error(err))
		}
	}
}
