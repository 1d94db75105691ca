package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatindex/internal/model"
)

// root is one directory the Watcher recursively watches on behalf of a
// single ingest source.
type root struct {
	source model.Source
	dir    string // cleaned, absolute
}

// Watcher watches one or more source directories with fsnotify and
// publishes a debounced IngestRequested message per source on Bus once
// changes settle. Grounded on the GitEventDetector shape in the teacher's
// pkg/prefetch/detector.go (fsnotify.Watcher field, buffered stop channel,
// a single processEvents goroutine selecting over watcher.Events/Errors
// and stop/ctx.Done), generalized from a single HEAD-file watch to
// multiple recursively-watched directories and from "emit a typed event"
// to "debounce then publish."
type Watcher struct {
	bus      *Bus
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	roots  []root
	timers map[model.Source]*time.Timer

	stop chan struct{}
	done chan struct{}
}

// NewWatcher creates a Watcher publishing onto bus. debounce is the
// minimum quiet period after the last filesystem event before an
// ingest.requested message is published for that source (fsnotify fires
// multiple Write events per file save, e.g. once for truncate and once
// for the write itself).
func NewWatcher(bus *Bus, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		bus:      bus,
		fsw:      fsw,
		debounce: debounce,
		logger:   logger,
		timers:   make(map[model.Source]*time.Timer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Add registers dir as a watched root for source. dir and every
// subdirectory beneath it (at the time Add is called) are added to the
// underlying fsnotify watcher; directories created later under dir are
// picked up as they're observed being created.
func (w *Watcher) Add(source model.Source, dir string) error {
	if dir == "" {
		return nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving %s dir %q: %w", source, dir, err)
	}

	if err := filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if watchErr := w.fsw.Add(path); watchErr != nil {
				return fmt.Errorf("watching %s: %w", path, watchErr)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("walking %s dir %q: %w", source, dir, err)
	}

	w.mu.Lock()
	w.roots = append(w.roots, root{source: source, dir: abs})
	w.mu.Unlock()
	return nil
}

// Start runs the event-processing goroutine. Stop (or ctx cancellation)
// ends it.
func (w *Watcher) Start(ctx context.Context) {
	go w.processEvents(ctx)
}

// Stop halts event processing and releases the underlying fsnotify
// watcher. Any pending debounce timers are cancelled without firing.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
	}
	<-w.done
	_ = w.fsw.Close()

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// A newly created subdirectory needs watching too, or files later
	// written inside it will be invisible to fsnotify (it does not watch
	// recursively on its own).
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch new subdirectory",
					zap.String("path", event.Name), zap.Error(err))
			}
		}
	}

	src, ok := w.sourceFor(event.Name)
	if !ok {
		return
	}
	w.scheduleDebouncedPublish(src)
}

// sourceFor returns the source whose watched root is the longest matching
// prefix of path, so nested roots (there are none today, but the logic
// stays correct if there ever are) resolve to the most specific source.
func (w *Watcher) sourceFor(path string) (model.Source, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var best root
	found := false
	for _, r := range w.roots {
		if strings.HasPrefix(path, r.dir) {
			if !found || len(r.dir) > len(best.dir) {
				best = r
				found = true
			}
		}
	}
	return best.source, found
}

func (w *Watcher) scheduleDebouncedPublish(source model.Source) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, exists := w.timers[source]; exists {
		t.Stop()
	}
	w.timers[source] = time.AfterFunc(w.debounce, func() {
		w.publish(source)
	})
}

func (w *Watcher) publish(source model.Source) {
	data, err := IngestRequested{Source: source}.marshal()
	if err != nil {
		w.logger.Error("failed to marshal ingest.requested", zap.Error(err))
		return
	}
	if err := w.bus.Publish(SubjectFor(source), data); err != nil {
		w.logger.Error("failed to publish ingest.requested",
			zap.String("source", string(source)), zap.Error(err))
		return
	}
	w.logger.Debug("published ingest.requested", zap.String("source", string(source)))
}
