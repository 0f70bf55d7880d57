// Package workflow advances queue items through the download, transcribe,
// and analyze stages.
//
// The Manager runs a bounded worker pool over the SQLite queue. Each worker
// claims the oldest eligible item with a compare-and-swap status update,
// loads the item's bundle from disk, and hands it to the registered stage
// handler. The manager owns every durable transition: it persists the bundle
// descriptor after a stage succeeds, advances the queue status, folds new
// analysis tags into the shared vocabulary, schedules retries with
// exponential backoff on transient failures, and emits notifications for
// stage and queue milestones.
//
// Heartbeats run while a stage executes so items stranded by a crash are
// reclaimed to the start of their stage. Submit is the single ingestion
// path: URL resolution, bundle creation, and enqueueing, idempotent per
// bundle id.
package workflow
