// Command vectorworker hosts one usearch HNSW index per collection behind
// the wireproto newline-delimited JSON protocol on its stdin/stdout,
// isolating the chatindexd daemon process from native crashes in the
// vector index. internal/supervisor is the parent side of this contract;
// internal/ann is the index implementation this binary wraps.
//
// Grounded on the teacher's cmd/contextd/stdio.go for the shape of "a
// small main that wires one package's constructor and blocks on a
// protocol loop," generalized from contextd's HTTP-delegation stdio mode
// to a pure stdin/stdout child process, since the detached-process
// isolation story itself has no teacher analogue (the teacher's Qdrant
// vector store runs in-process over gRPC, never as a supervised child).
package main
