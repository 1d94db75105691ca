package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/chatindex/internal/config"
	"github.com/fyrsmithlabs/chatindex/internal/lexical"
	"github.com/fyrsmithlabs/chatindex/internal/logging"
	"github.com/fyrsmithlabs/chatindex/internal/model"
	"github.com/fyrsmithlabs/chatindex/internal/orchestrator"
)

func newTestServices(t *testing.T, cfg *config.Config) *services {
	t.Helper()

	idx, err := lexical.Open(filepath.Join(t.TempDir(), "lexical.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	tl := logging.NewTestLogger()
	orch := orchestrator.New(idx, nil, nil, t.TempDir(), tl.Underlying())

	return &services{cfg: cfg, orch: orch, logger: tl.Logger, deps: &dependencies{lexical: idx}}
}

func TestNewVectorLimiter_DefaultsToOneForNonPositiveConcurrency(t *testing.T) {
	limiter := newVectorLimiter(0)
	require.Equal(t, 1, limiter.Burst())

	limiter = newVectorLimiter(-5)
	require.Equal(t, 1, limiter.Burst())

	limiter = newVectorLimiter(4)
	require.Equal(t, 4, limiter.Burst())
}

func TestServices_RunSource_SkipsUnconfiguredDirectories(t *testing.T) {
	svc := newTestServices(t, &config.Config{})
	ctx := context.Background()

	require.NoError(t, svc.runSource(ctx, model.SourceAgent))
	require.NoError(t, svc.runSource(ctx, model.SourceWeb))
	require.NoError(t, svc.runSource(ctx, model.SourceMemory))
}

func TestServices_RunSource_UnknownSourceErrors(t *testing.T) {
	svc := newTestServices(t, &config.Config{})
	err := svc.runSource(context.Background(), model.Source("bogus"))
	require.Error(t, err)
}

func TestServices_IngestAll_RunsEveryKnownSourceWithoutFailing(t *testing.T) {
	svc := newTestServices(t, &config.Config{})
	// ingestAll logs per-source failures rather than returning one, so this
	// only needs to confirm it doesn't panic across all three sources.
	svc.ingestAll(context.Background())
}

func TestServices_RunProjectsDir_IngestsSessionLogFiles(t *testing.T) {
	dir := t.TempDir()
	const session = `{"type":"user","sessionId":"s1","cwd":"/tmp/proj","uuid":"u1","timestamp":"2024-01-01T00:00:00Z","message":{"role":"user","content":"let's use postgres for this"}}
{"type":"assistant","sessionId":"s1","cwd":"/tmp/proj","uuid":"u2","timestamp":"2024-01-01T00:00:05Z","message":{"role":"assistant","content":"sounds good, postgres it is"}}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s1.jsonl"), []byte(session), 0o644))

	cfg := &config.Config{Ingest: config.IngestConfig{ProjectsDir: dir}}
	svc := newTestServices(t, cfg)

	require.NoError(t, svc.runProjectsDir(context.Background()))

	count, err := svc.deps.lexical.CollectionCount(context.Background(), model.CollectionAlpha)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
