package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatindex/internal/config"
	"github.com/fyrsmithlabs/chatindex/internal/embed"
	"github.com/fyrsmithlabs/chatindex/internal/httpadapter"
	"github.com/fyrsmithlabs/chatindex/internal/lexical"
	"github.com/fyrsmithlabs/chatindex/internal/logging"
	"github.com/fyrsmithlabs/chatindex/internal/supervisor"
	"github.com/fyrsmithlabs/chatindex/internal/watch"
	"github.com/fyrsmithlabs/chatindex/internal/wireproto"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml/config.toml (default ~/.config/chatindexd/config.yaml)")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chatindexd %s (%s)\n", version, gitCommit)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("chatindexd: %v", err)
	}
	log.Println("chatindexd: shutdown complete")
}

// run loads configuration, wires every collaborator, starts serving, and
// blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting chatindexd",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("persist_directory", cfg.Ingest.PersistDirectory),
	)

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init dependencies: %w", err)
	}
	defer deps.Close()

	svc, err := initServices(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	// Run one full ingest cycle across every configured source before
	// serving queries, so a cold start never answers against an empty
	// index when a prior run's data is sitting on disk unindexed.
	svc.ingestAll(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- deps.http.Start()
	}()

	if cfg.Watch.IsEnabled() {
		if err := svc.startWatch(ctx); err != nil {
			logger.Warn(ctx, "watch mode failed to start, falling back to startup-only ingest", zap.Error(err))
		} else {
			defer svc.stopWatch()
		}
	}

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer shutdownCancel()
		if err := deps.http.Shutdown(shutdownCtx); err != nil {
			logger.Warn(ctx, "http adapter shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("http adapter: %w", err)
	}
}

// initLogger builds the daemon's structured logger from the top-level
// level/format fields plus internal/logging's own defaults (sampling,
// redaction). Unlike cmd/vectorworker, chatindexd has no stdout
// reservation conflict, so it uses the shared logging package directly.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := logging.LevelFromString(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
		logCfg.Level = level
	}
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	return logging.NewLogger(logCfg)
}

// dependencies holds every infrastructure collaborator the daemon owns.
type dependencies struct {
	lexical    *lexical.Index
	embedder   *embed.Embedder
	supervisor *supervisor.Supervisor
	http       *httpadapter.Server
	bus        *watch.Bus
	watcher    *watch.Watcher
}

// Close releases every dependency that owns a resource. Safe to call with
// partially-initialized dependencies (nil fields are skipped).
func (d *dependencies) Close() {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.bus != nil {
		d.bus.Stop()
	}
	if d.supervisor != nil {
		_ = d.supervisor.Stop()
	}
	if d.lexical != nil {
		_ = d.lexical.Close()
	}
	if d.embedder != nil {
		_ = d.embedder.Close()
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	if err := os.MkdirAll(cfg.Ingest.PersistDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("create persist directory: %w", err)
	}

	lex, err := lexical.Open(filepath.Join(cfg.Ingest.PersistDirectory, "lexical.db"))
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	embedder, err := embed.New(embed.Config{
		ModelName: cfg.Embeddings.ModelName,
		CacheDir:  cfg.Embeddings.CacheDir,
	})
	if err != nil {
		_ = lex.Close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	sup := startSupervisor(ctx, cfg, embedder, logger)

	bus, err := watch.NewBus(logger.Underlying())
	if err != nil {
		_ = lex.Close()
		return nil, fmt.Errorf("init watch bus: %w", err)
	}

	return &dependencies{
		lexical:    lex,
		embedder:   embedder,
		supervisor: sup,
		bus:        bus,
	}, nil
}

// startSupervisor spawns the vector-worker child, then calls the
// additive "collections" method to learn which collections it actually
// opened, reconciling any skipped ones into MarkCollectionSkipped. A
// spawn or startup failure leaves the supervisor in StateDead, which is
// never fatal here: the daemon still serves lexical-only queries.
func startSupervisor(ctx context.Context, cfg *config.Config, embedder *embed.Embedder, logger *logging.Logger) *supervisor.Supervisor {
	args := []string{
		"--persist-dir", filepath.Join(cfg.Ingest.PersistDirectory, "vectors"),
		"--dim", fmt.Sprintf("%d", embedder.Dimension()),
		"--collections", "alpha,beta",
	}
	sup := supervisor.New(cfg.VectorStore.WorkerPath, args, logger.Underlying())
	sup.Start(ctx)

	if sup.State() == supervisor.StateDead {
		return sup
	}

	raw, err := sup.Call(ctx, wireproto.MethodCollections, nil)
	if err != nil {
		logger.Warn(ctx, "collections round-trip failed after startup", zap.Error(err))
		return sup
	}

	var result wireproto.CollectionsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		logger.Warn(ctx, "decoding collections result failed", zap.Error(err))
		return sup
	}
	for name, reason := range result.Skipped {
		logger.Warn(ctx, "vector worker skipped collection at startup",
			zap.String("collection", name), zap.String("reason", reason))
		sup.MarkCollectionSkipped(name)
	}
	return sup
}
