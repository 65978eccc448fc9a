// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI is a small dashboard over the sync history:
//  1. [RunListView] : Browse past sync runs, newest first
//  2. [RunDetailView] : Counts and error for one run
//  3. [LedgerView] : Activities already migrated
//  4. [ConfirmView] : Confirm starting a sync from the dashboard
//  5. [SyncView] : Monitor real-time progress updates
//  6. [ResultView] : Per-activity outcome of the run just finished
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the SyncEngine, providing non-blocking status reporting during a run.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
