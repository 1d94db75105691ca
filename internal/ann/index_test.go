package ann

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// skipUnlessNative skips tests needing the native usearch shared library,
// which may not be present in every build environment.
func skipUnlessNative(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping usearch test in short mode")
	}
}

func TestIndex_UpsertAndSearch(t *testing.T) {
	skipUnlessNative(t)

	idx, err := New(3)
	require.NoError(t, err)
	defer idx.Destroy()

	require.NoError(t, idx.Upsert("doc-a", []float32{1, 0, 0}, "document a", map[string]string{"role": "user"}))
	require.NoError(t, idx.Upsert("doc-b", []float32{0, 1, 0}, "document b", map[string]string{"role": "assistant"}))

	hits, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "doc-a", hits[0].DocID)
	require.Equal(t, "document a", hits[0].Document)
}

func TestIndex_UpsertReplacesExistingVector(t *testing.T) {
	skipUnlessNative(t)

	idx, err := New(2)
	require.NoError(t, err)
	defer idx.Destroy()

	require.NoError(t, idx.Upsert("doc-a", []float32{1, 0}, "v1", nil))
	require.Equal(t, 1, idx.Len())

	require.NoError(t, idx.Upsert("doc-a", []float32{0, 1}, "v2", nil))
	require.Equal(t, 1, idx.Len())

	hits, err := idx.Search([]float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "v2", hits[0].Document)
}

func TestIndex_Remove(t *testing.T) {
	skipUnlessNative(t)

	idx, err := New(2)
	require.NoError(t, err)
	defer idx.Destroy()

	require.NoError(t, idx.Upsert("doc-a", []float32{1, 0}, "v1", nil))
	require.NoError(t, idx.Remove("doc-a"))
	require.Equal(t, 0, idx.Len())

	require.NoError(t, idx.Remove("doc-a")) // no-op, already absent
}

func TestIndex_UpsertRejectsWrongDimension(t *testing.T) {
	skipUnlessNative(t)

	idx, err := New(3)
	require.NoError(t, err)
	defer idx.Destroy()

	err = idx.Upsert("doc-a", []float32{1, 0}, "v1", nil)
	require.Error(t, err)
}

func TestIndex_SaveAndOpenRoundTrips(t *testing.T) {
	skipUnlessNative(t)

	dir := t.TempDir()
	base := filepath.Join(dir, "alpha")

	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert("doc-a", []float32{1, 0}, "hello", map[string]string{"source": "agent"}))
	require.NoError(t, idx.Save(base))
	require.NoError(t, idx.Destroy())

	reopened, err := Open(base, 2)
	require.NoError(t, err)
	defer reopened.Destroy()

	require.Equal(t, 1, reopened.Len())
	hits, err := reopened.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "doc-a", hits[0].DocID)
	require.Equal(t, "agent", hits[0].Metadata["source"])
}

func TestOpen_CreatesNewIndexWhenFileAbsent(t *testing.T) {
	skipUnlessNative(t)

	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, "nonexistent"), 4)
	require.NoError(t, err)
	defer idx.Destroy()
	require.Equal(t, 0, idx.Len())
	require.Equal(t, 4, idx.Dimension())
}

func TestNew_RejectsNonPositiveDimension(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}
