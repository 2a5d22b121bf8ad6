// Package tasks turns unmatched tracks into a download set and fetches it.
//
// # Resolution
//
// [Resolver] searches the catalog for one track in phases:
//
//  1. narrow: title (as a file list search), artist and album
//  2. widen: artist and album
//  3. artist only
//  4. split artist: for an unrestricted search of a compound credit such as "A, B", the
//     credit is split once and the search restarts at narrow
//
// Each phase yields an [Outcome] and nextPhase decides where to go from there. A single
// narrow result is accepted when one of its artifacts fits the format [Preferences];
// otherwise the track ends as [PhaseNoPreferred]. Several results are scanned best-first
// and accepted on the first file whose name matches the track.
//
// # Orchestration
//
// [ResolutionEngine] resolves many tracks at once with a bounded errgroup. Failures and
// panics stay with their track. Results that share an artifact are reduced to the first
// track in input order, and the batch can be stored through a [ResolutionRecorder].
//
// # Downloads
//
// [CheckBuffer] compares the set's total size against the user's buffer, and [Downloader]
// hands each artifact to a [Sink].
//
// # Progress Reporting
//
// All long-running operations accept a channel of [ProgressUpdate]. Sends never block.
package tasks
