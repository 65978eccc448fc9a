// Package tasks runs the Strava → Garmin sync pipeline with real-time progress reporting.
//
// # Pipeline
//
// [SyncEngine.RunSync] performs one run:
//
//  1. Initialize the ledger
//  2. List candidate activities in the window ([ActivityLister])
//  3. Drop activities the ledger already knows about
//  4. Export the remaining files in a single browser session ([Extractor])
//  5. Upload each file ([UploadRelay]) and mark it migrated on acceptance
//
// Items are handled strictly in order and one at a time. A failed export or upload is counted
// and the run moves on; only ledger and login failures stop it.
//
// # Progress Reporting
//
// # All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Watching
//
// [Watcher] uploads activity files as they appear in a directory, for exports produced outside
// the browser session.
package tasks
