package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

func main() {
	persistDir := flag.String("persist-dir", "", "root directory for per-collection index files (required)")
	dim := flag.Int("dim", 384, "embedding vector dimension")
	collections := flag.String("collections", "alpha,beta", "comma-separated collection names to open at startup")
	maxIndexBytes := flag.Int64("max-index-bytes", 0, "skip opening a collection whose persisted index file exceeds this many bytes (0 disables the check)")
	flag.Parse()

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vectorworker: logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *persistDir == "" {
		logger.Fatal("vectorworker: --persist-dir is required")
	}
	if err := os.MkdirAll(*persistDir, 0o755); err != nil {
		logger.Fatal("vectorworker: creating persist directory", zap.Error(err))
	}

	w := newWorker(logger)
	for _, name := range strings.Split(*collections, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		w.openCollection(name, filepath.Join(*persistDir, name), *dim, *maxIndexBytes)
	}
	defer w.closeAll()

	if err := w.run(os.Stdin, os.Stdout); err != nil {
		logger.Error("vectorworker: protocol loop exited with error", zap.Error(err))
		os.Exit(1)
	}
}

// newLogger builds a plain zap logger writing to stderr: stdout is
// reserved entirely for the wireproto response stream, so this binary
// cannot use internal/logging's stdout-writing core the way chatindexd
// does.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
