// Package watch decouples directory-change detection from the indexing
// orchestrator. A fsnotify.Watcher observes the configured source
// directories; changes are debounced per source and published as
// "ingest.requested" messages on an embedded, loopback-only NATS core
// server. The daemon subscribes separately and runs one orchestrator cycle
// per message, so watch never imports the orchestrator package and the
// orchestrator never imports fsnotify.
package watch
