// Command chatindexd is the hybrid conversation-search indexing daemon:
// it loads configuration, opens the lexical index, starts the supervised
// vector-worker subprocess, and serves queries over internal/httpadapter
// while ingest runs one cycle at startup and then one per filesystem watch
// event (there is no timer-driven cycle).
//
// Grounded on the teacher's cmd/contextd/main.go for the overall
// "dependencies struct, services struct, run(ctx) error" composition
// shape and its signal-driven graceful shutdown, generalized from
// contextd's NATS/Qdrant/MCP wiring to this repository's own
// lexical/vector/watch/HTTP collaborators.
package main
