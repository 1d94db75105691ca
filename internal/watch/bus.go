package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Bus wraps an embedded, loopback-only NATS core server with a single
// in-process client connection. There is no JetStream here: the only job
// of the bus is shared-nothing message passing across the watch/daemon
// process boundary, not durable delivery — a missed "ingest.requested"
// message just means the next filesystem event (or the ingest cycle the
// daemon runs at its next start) catches up the collection anyway.
//
// Grounded on the embedded-server wiring in sidedotdev-sidekick's
// nats/server.go (NewServer+Start+ReadyForConnections+LameDuckShutdown),
// adapted from a JetStream-backed singleton to a core pub/sub instance
// owned by the daemon process that starts it.
type Bus struct {
	server    *natsserver.Server
	conn      *nats.Conn
	logger    *zap.Logger
	startOnce sync.Once
}

// NewBus starts an embedded NATS core server bound to loopback only (no
// external network exposure — this bus exists purely to decouple the
// watch goroutine from the ingest-cycle goroutine within one process) and
// opens a client connection to it.
func NewBus(logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := &natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1, // any available loopback port
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 4096,
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating embedded nats server: %w", err)
	}
	srv.SetLogger(newNATSLogger(logger), false, false)

	b := &Bus{server: srv, logger: logger}
	return b, nil
}

// Start runs the embedded server and connects a client to it. Safe to call
// once; subsequent calls are no-ops.
func (b *Bus) Start(ctx context.Context) error {
	var startErr error
	b.startOnce.Do(func() {
		go b.server.Start()

		if !b.server.ReadyForConnections(5 * time.Second) {
			startErr = fmt.Errorf("embedded nats server failed to start within 5s")
			return
		}

		conn, err := nats.Connect(b.server.ClientURL(),
			nats.Name("chatindexd-watch"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(500*time.Millisecond),
		)
		if err != nil {
			startErr = fmt.Errorf("connecting to embedded nats server: %w", err)
			return
		}
		b.conn = conn
	})
	if startErr != nil {
		return startErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// Stop drains the client connection and shuts down the embedded server.
func (b *Bus) Stop() {
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.logger.Warn("nats connection drain failed", zap.Error(err))
		}
	}
	b.server.Shutdown()
	b.server.WaitForShutdown()
}

// Publish sends data on subject. Intended for IngestRequested messages but
// left generic since the bus has no opinion about payload shape.
func (b *Bus) Publish(subject string, data []byte) error {
	if b.conn == nil {
		return fmt.Errorf("nats bus not started")
	}
	return b.conn.Publish(subject, data)
}

// Subscribe registers handler for subject (which may use NATS wildcard
// syntax, e.g. "ingest.requested.*"). The returned subscription should be
// unsubscribed by the caller on shutdown.
func (b *Bus) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if b.conn == nil {
		return nil, fmt.Errorf("nats bus not started")
	}
	return b.conn.Subscribe(subject, handler)
}

// newNATSLogger bridges the NATS server's logging interface to zap so
// embedded-server diagnostics land in the same structured log stream as
// everything else, instead of NATS's own stderr writer.
func newNATSLogger(logger *zap.Logger) natsserver.Logger {
	return &natsLogger{log: logger.Named("nats")}
}

type natsLogger struct {
	log *zap.Logger
}

func (n *natsLogger) Noticef(format string, v ...interface{}) { n.log.Sugar().Infof(format, v...) }
func (n *natsLogger) Warnf(format string, v ...interface{})   { n.log.Sugar().Warnf(format, v...) }
func (n *natsLogger) Fatalf(format string, v ...interface{})  { n.log.Sugar().Fatalf(format, v...) }
func (n *natsLogger) Errorf(format string, v ...interface{})  { n.log.Sugar().Errorf(format, v...) }
func (n *natsLogger) Debugf(format string, v ...interface{})  { n.log.Sugar().Debugf(format, v...) }
func (n *natsLogger) Tracef(format string, v ...interface{})  { n.log.Sugar().Debugf(format, v...) }
