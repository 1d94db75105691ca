package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/chatindex/internal/config"
	"github.com/fyrsmithlabs/chatindex/internal/decode/memoryfile"
	"github.com/fyrsmithlabs/chatindex/internal/decode/sessionlog"
	"github.com/fyrsmithlabs/chatindex/internal/decode/webexport"
	"github.com/fyrsmithlabs/chatindex/internal/enrich"
	"github.com/fyrsmithlabs/chatindex/internal/httpadapter"
	"github.com/fyrsmithlabs/chatindex/internal/logging"
	"github.com/fyrsmithlabs/chatindex/internal/model"
	"github.com/fyrsmithlabs/chatindex/internal/orchestrator"
	"github.com/fyrsmithlabs/chatindex/internal/planner"
	"github.com/fyrsmithlabs/chatindex/internal/watch"
)

// services wires the ingest-cycle orchestrator to its configured source
// directories and, when enabled, to filesystem watch events.
type services struct {
	cfg        *config.Config
	orch       *orchestrator.Orchestrator
	logger     *logging.Logger
	deps       *dependencies
	subscriber *watch.Subscriber
}

func initServices(cfg *config.Config, deps *dependencies, logger *logging.Logger) (*services, error) {
	limiter := newVectorLimiter(cfg.VectorStore.CallConcurrency)

	p := planner.New(deps.lexical, deps.supervisor, deps.embedder, cfg.Ingest.LexicalFanout, limiter)

	orch := orchestrator.New(deps.lexical, deps.supervisor, deps.embedder, cfg.Ingest.PersistDirectory, logger.Underlying())
	if cfg.Enrichment.Enabled {
		client, err := enrich.NewClient(cfg.Enrichment)
		if err != nil {
			return nil, fmt.Errorf("init enrichment client: %w", err)
		}
		orch.SetEnrichment(enrich.NewDetector(nil, 0, 0), client)
	}

	deps.http = httpadapter.New(cfg.HTTP.Addr, p, deps.lexical, deps.supervisor, logger.Underlying())

	return &services{cfg: cfg, orch: orch, logger: logger, deps: deps}, nil
}

// newVectorLimiter builds the rate limiter gating planner query dispatch
// to the vector backend; burst equals the configured concurrency so one
// full batch of concurrent requests never queues behind the supervisor's
// single-flight call mutex.
func newVectorLimiter(callConcurrency int) *rate.Limiter {
	if callConcurrency <= 0 {
		callConcurrency = 1
	}
	return rate.NewLimiter(rate.Limit(callConcurrency), callConcurrency)
}

// ingestAll runs one ingest cycle across every configured source,
// logging but not failing on a per-source error: one broken source
// (missing directory, corrupt archive) should never block the others.
func (s *services) ingestAll(ctx context.Context) {
	for _, source := range []model.Source{model.SourceAgent, model.SourceWeb, model.SourceMemory} {
		if err := s.runSource(ctx, source); err != nil {
			s.logger.Warn(ctx, "ingest cycle failed", zap.String("source", string(source)), zap.Error(err))
		}
	}
}

// runSource ingests whichever directory/archives correspond to source,
// the same dispatch used both at startup and as the watch.Handler.
func (s *services) runSource(ctx context.Context, source model.Source) error {
	switch source {
	case model.SourceAgent:
		return s.runProjectsDir(ctx)
	case model.SourceWeb:
		return s.runExportsDir(ctx)
	case model.SourceMemory:
		return s.runMemoryDir(ctx)
	default:
		return fmt.Errorf("ingest.go: unknown source %q", source)
	}
}

func (s *services) runProjectsDir(ctx context.Context) error {
	if s.cfg.Ingest.ProjectsDir == "" {
		return nil
	}
	result, err := s.orch.RunIncremental(ctx, orchestrator.IncrementalSource{
		Collection: model.CollectionAlpha,
		Dir:        s.cfg.Ingest.ProjectsDir,
		Decoder:    sessionlog.New(),
	})
	if err != nil {
		return err
	}
	s.logResult(ctx, "agent", result)
	return nil
}

func (s *services) runMemoryDir(ctx context.Context) error {
	if s.cfg.Ingest.MemoryDir == "" {
		return nil
	}
	result, err := s.orch.RunIncremental(ctx, orchestrator.IncrementalSource{
		Collection: model.CollectionBeta,
		Dir:        s.cfg.Ingest.MemoryDir,
		Decoder:    memoryfile.New(),
	})
	if err != nil {
		return err
	}
	s.logResult(ctx, "memory", result)
	return nil
}

// runExportsDir imports every *.zip archive under ExportsDir. Unlike the
// mtime-tracked incremental sources, each archive is its own BulkSource:
// internal/journal's content hash decides per-archive whether re-import
// is needed, so a new export dropped alongside already-imported ones
// only costs a cheap hash-and-skip for the rest.
func (s *services) runExportsDir(ctx context.Context) error {
	if s.cfg.Ingest.ExportsDir == "" {
		return nil
	}
	archives, err := filepath.Glob(filepath.Join(s.cfg.Ingest.ExportsDir, "*.zip"))
	if err != nil {
		return fmt.Errorf("glob exports dir: %w", err)
	}
	for _, archive := range archives {
		if err := orchestrator.ValidateZipArchive(archive); err != nil {
			s.logger.Warn(ctx, "skipping invalid web-export archive", zap.String("path", archive), zap.Error(err))
			continue
		}
		result, err := s.orch.RunBulk(ctx, orchestrator.BulkSource{
			Collection:  model.CollectionBeta,
			ArchivePath: archive,
			Decoder:     webexport.New(),
		})
		if err != nil {
			s.logger.Warn(ctx, "web-export ingest failed", zap.String("path", archive), zap.Error(err))
			continue
		}
		s.logResult(ctx, "web:"+filepath.Base(archive), result)
	}
	return nil
}

func (s *services) logResult(ctx context.Context, label string, result orchestrator.CycleResult) {
	s.logger.Info(ctx, "ingest cycle complete",
		zap.String("source", label),
		zap.Int("files_committed", result.FilesCommitted),
		zap.Int("files_skipped", result.FilesSkipped),
		zap.Int("documents_committed", result.DocumentsCommit),
		zap.Bool("vector_skipped", result.VectorSkipped),
	)
}

// startWatch starts the embedded NATS bus, a filesystem watcher over
// every configured source directory, and a subscriber that re-runs the
// matching source's ingest cycle on each debounced change.
func (s *services) startWatch(ctx context.Context) error {
	if err := s.deps.bus.Start(ctx); err != nil {
		return fmt.Errorf("start watch bus: %w", err)
	}

	watcher, err := watch.NewWatcher(s.deps.bus, s.cfg.Watch.Debounce.Duration(), s.logger.Underlying())
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if s.cfg.Ingest.ProjectsDir != "" {
		if err := watcher.Add(model.SourceAgent, s.cfg.Ingest.ProjectsDir); err != nil {
			return fmt.Errorf("watch projects dir: %w", err)
		}
	}
	if s.cfg.Ingest.ExportsDir != "" {
		if err := watcher.Add(model.SourceWeb, s.cfg.Ingest.ExportsDir); err != nil {
			return fmt.Errorf("watch exports dir: %w", err)
		}
	}
	if s.cfg.Ingest.MemoryDir != "" {
		if err := watcher.Add(model.SourceMemory, s.cfg.Ingest.MemoryDir); err != nil {
			return fmt.Errorf("watch memory dir: %w", err)
		}
	}
	watcher.Start(ctx)
	s.deps.watcher = watcher

	subscriber := watch.NewSubscriber(s.deps.bus, s.logger.Underlying())
	if err := subscriber.Start(ctx, s.runSource); err != nil {
		watcher.Stop()
		return fmt.Errorf("start subscriber: %w", err)
	}
	s.subscriber = subscriber
	return nil
}

func (s *services) stopWatch() {
	if s.subscriber != nil {
		_ = s.subscriber.Stop()
	}
}
