// Package bundle owns the on-disk representation of one ingested post: a
// directory under the library root holding the original media, caption,
// comments, transcript, the rendered note, and a bundle.json descriptor.
//
// The directory and its files are the sole source of truth. The descriptor
// is a convenience cache of identity and progress: Load always re-derives
// the pipeline state by probing for stage-output files, so a stale or
// missing descriptor is repaired rather than trusted. Probing order:
//
//   - a media file present means the bundle is at least downloaded
//   - transcript.md present means at least transcribed (a descriptor may
//     also claim transcribed with no transcript file, the no-audio skip)
//   - Note.md present means analyzed, provided media is also present
//
// Descriptor writes are atomic (temp file then rename) so a crash never
// leaves a truncated bundle.json behind.
package bundle
