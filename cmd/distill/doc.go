// Package main hosts the distill CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon, queue maintenance operations, vocabulary edits, and
// configuration scaffolding. When the daemon is unreachable the submit and
// batch commands fall back to running the pipeline in-process, and queue
// commands open the index directly, so a daemon is never a hard requirement.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
