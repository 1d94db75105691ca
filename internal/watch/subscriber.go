package watch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatindex/internal/model"
)

// Handler runs one ingest cycle for source. The daemon supplies this;
// watch has no dependency on the orchestrator package, so it never sees
// what a "cycle" actually does.
type Handler func(ctx context.Context, source model.Source) error

// Subscriber receives IngestRequested messages from a Bus and invokes a
// Handler, guaranteeing at most one Handler invocation in flight per
// source at a time (spec's single-writer-connection discipline extended
// to the watch-triggered path, not just the startup one). A message
// that arrives while a cycle for the same source is already running is
// dropped rather than queued: the in-flight cycle will pick up whatever
// state exists once it next runs the manifest/journal comparison, so
// nothing is lost, only coalesced.
type Subscriber struct {
	bus    *Bus
	logger *zap.Logger
	sub    *nats.Subscription

	runningMu sync.Mutex
	running   map[model.Source]*int32
}

// NewSubscriber creates a Subscriber bound to bus.
func NewSubscriber(bus *Bus, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		bus:     bus,
		logger:  logger,
		running: make(map[model.Source]*int32),
	}
}

// Start subscribes to ingest-requested messages for every source and
// begins dispatching them to handler. ctx governs the lifetime of spawned
// handler invocations, not the subscription itself — call Stop to tear
// the subscription down.
func (s *Subscriber) Start(ctx context.Context, handler Handler) error {
	sub, err := s.bus.Subscribe(SubscribeSubject, func(msg *nats.Msg) {
		req, err := unmarshalIngestRequested(msg.Data)
		if err != nil {
			s.logger.Warn("dropping malformed ingest.requested message", zap.Error(err))
			return
		}
		s.dispatch(ctx, req.Source, handler)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

// Stop unsubscribes from the bus. In-flight handler invocations are left
// to finish on their own; cancel ctx passed to Start to abort them.
func (s *Subscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

// dispatch is called from the NATS client's per-subscription delivery
// goroutine, which processes messages one at a time; it must return
// quickly so a long-running cycle for one source never delays delivery
// of a message for another. The actual handler invocation therefore runs
// in its own goroutine, guarded by the per-source flag.
func (s *Subscriber) dispatch(ctx context.Context, source model.Source, handler Handler) {
	flag := s.flagFor(source)
	if !atomic.CompareAndSwapInt32(flag, 0, 1) {
		s.logger.Debug("skipping ingest cycle, one already running",
			zap.String("source", string(source)))
		return
	}

	go func() {
		defer atomic.StoreInt32(flag, 0)
		if err := handler(ctx, source); err != nil {
			s.logger.Error("watch-triggered ingest cycle failed",
				zap.String("source", string(source)), zap.Error(err))
		}
	}()
}

func (s *Subscriber) flagFor(source model.Source) *int32 {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	f, ok := s.running[source]
	if !ok {
		f = new(int32)
		s.running[source] = f
	}
	return f
}
