// Package atomicfile provides the two primitives debrief uses to share
// small JSON files between processes: an advisory lock and an atomic
// replace.
//
// The lock is a directory created next to the guarded file (config.json is
// guarded by config.json.lock). Directory creation is atomic on every
// platform debrief supports, and the same convention is used by the
// TypeScript tooling, so Go and Node writers exclude each other. A holder
// refreshes the directory's modification time while it holds the lock; a
// lock whose mtime is older than the stale threshold belongs to a crashed
// holder and is reclaimed.
//
// WriteFile stages data in a sibling temp file, syncs it, and renames it
// over the target so readers observe either the old or the new content.
package atomicfile
