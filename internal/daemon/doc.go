// Package daemon coordinates the long-running distill process.
//
// It wires configuration, the queue index, the workflow manager, and the
// drop-directory watcher into a single lifecycle with flock-based locking to
// prevent multiple instances on one storage root. The daemon exposes queue
// maintenance helpers and the submit/status surface the IPC server serves.
//
// Keep orchestration logic here: individual pipeline stages live in their
// own packages while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
