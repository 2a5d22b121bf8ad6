// Package repositories implements SQLite persistence for the local library and resolution history.
//
// Key Implementations:
//   - [LibraryRepository] : audio files on disk with their tags, searchable by substring
//   - [ResolutionRepository] : every resolved track, grouped by batch id
//
// Library items carry a sequence number for stable, human-readable ordering independent of UUIDs.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
