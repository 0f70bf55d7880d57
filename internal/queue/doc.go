// Package queue maintains the SQLite work index the daemon schedules from.
//
// The index is deliberately not authoritative: the bundle directories under
// the library root are the source of truth, and SyncFromLibrary rebuilds the
// index from disk at daemon startup. The Store tracks which bundle each item
// points at, its scheduling status, heartbeats for stale-work reclaim, and
// per-stage retry counts.
//
// Schema changes bump schemaVersion in schema.go; the database is transient,
// so users clear it (distill queue clear) to adopt a new schema.
package queue
