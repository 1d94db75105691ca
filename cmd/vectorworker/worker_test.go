package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/chatindex/internal/wireproto"
)

// writePadding writes n zero bytes to path, simulating a persisted index
// file of a given size without needing to grow a real index that large.
func writePadding(path string, n int) error {
	return os.WriteFile(path, make([]byte, n), 0o644)
}

func skipUnlessNative(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping usearch-backed vectorworker test in short mode")
	}
}

func newTestWorker(t *testing.T) *worker {
	t.Helper()
	skipUnlessNative(t)

	logger := zaptest.NewLogger(t)
	w := newWorker(logger)
	base := filepath.Join(t.TempDir(), "alpha")
	w.openCollection("alpha", base, 2, 0)
	t.Cleanup(w.closeAll)
	return w
}

func TestWorker_PingPong(t *testing.T) {
	skipUnlessNative(t)
	w := newTestWorker(t)

	resp := w.handle(wireproto.Request{ID: "1", Method: wireproto.MethodPing})
	require.Empty(t, resp.Error)
	var result string
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Equal(t, "pong", result)
}

func TestWorker_IndexThenQuery(t *testing.T) {
	w := newTestWorker(t)

	indexParams, _ := json.Marshal(wireproto.IndexParams{
		Collection: "alpha",
		Items: []wireproto.IndexedItem{
			{DocID: "doc-1", Vector: []float32{1, 0}, Document: "hello", Metadata: map[string]string{"role": "user"}},
		},
	})
	resp := w.handle(wireproto.Request{ID: "1", Method: wireproto.MethodIndex, Params: indexParams})
	require.Empty(t, resp.Error)

	queryParams, _ := json.Marshal(wireproto.QueryParams{Collection: "alpha", Vector: []float32{1, 0}, NResults: 5})
	resp = w.handle(wireproto.Request{ID: "2", Method: wireproto.MethodQuery, Params: queryParams})
	require.Empty(t, resp.Error)

	var qr wireproto.QueryResult
	require.NoError(t, json.Unmarshal(resp.Result, &qr))
	require.Len(t, qr.Results, 1)
	require.Equal(t, "doc-1", qr.Results[0].ID)
	require.Equal(t, "alpha", qr.Results[0].Collection)
}

func TestWorker_QueryUnknownCollection(t *testing.T) {
	w := newTestWorker(t)

	params, _ := json.Marshal(wireproto.QueryParams{Collection: "nonexistent", Vector: []float32{1, 0}, NResults: 5})
	resp := w.handle(wireproto.Request{ID: "1", Method: wireproto.MethodQuery, Params: params})
	require.NotEmpty(t, resp.Error)
}

func TestWorker_UnknownMethod(t *testing.T) {
	w := newTestWorker(t)
	resp := w.handle(wireproto.Request{ID: "1", Method: wireproto.Method("bogus")})
	require.NotEmpty(t, resp.Error)
}

func TestWorker_OpenCollectionSkipsOversizedIndex(t *testing.T) {
	skipUnlessNative(t)

	logger := zaptest.NewLogger(t)
	w := newWorker(logger)
	dir := t.TempDir()
	base := filepath.Join(dir, "alpha")

	// Simulate a persisted index file larger than the configured cap by
	// writing padding directly, rather than growing a real index to that
	// size.
	require.NoError(t, writePadding(base+".usearch", 1024))

	w.openCollection("alpha", base, 2, 100)

	require.Empty(t, w.indexes)
	require.Contains(t, w.skipped, "alpha")
}

func TestWorker_CollectionsReportsOpenAndSkipped(t *testing.T) {
	skipUnlessNative(t)

	logger := zaptest.NewLogger(t)
	w := newWorker(logger)
	dir := t.TempDir()

	w.openCollection("alpha", filepath.Join(dir, "alpha"), 2, 0)
	w.skipped["beta"] = "simulated skip"

	resp := w.handle(wireproto.Request{ID: "1", Method: wireproto.MethodCollections})
	require.Empty(t, resp.Error)

	var cr wireproto.CollectionsResult
	require.NoError(t, json.Unmarshal(resp.Result, &cr))
	require.Contains(t, cr.Open, "alpha")
	require.Equal(t, "simulated skip", cr.Skipped["beta"])
}

func TestWorker_RunEmitsReadyMarkerThenRespondsToPing(t *testing.T) {
	skipUnlessNative(t)
	w := newTestWorker(t)

	reqLine, _ := json.Marshal(wireproto.Request{ID: "1", Method: wireproto.MethodPing})
	in := bytes.NewBufferString(string(reqLine) + "\n")
	var out bytes.Buffer

	require.NoError(t, w.run(in, &out))

	scanner := bufio.NewScanner(&out)
	require.True(t, scanner.Scan())
	var ready wireproto.Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &ready))
	require.Equal(t, wireproto.InitID, ready.ID)
	var readyResult string
	require.NoError(t, json.Unmarshal(ready.Result, &readyResult))
	require.Equal(t, wireproto.ReadyResult, readyResult)

	require.True(t, scanner.Scan())
	var pong wireproto.Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &pong))
	require.Equal(t, "1", pong.ID)
}

func TestNewLogger_Builds(t *testing.T) {
	logger, err := newLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)
	_ = logger.Sync() // stderr sync commonly returns EINVAL/ENOTTY; not an error worth asserting on
}
