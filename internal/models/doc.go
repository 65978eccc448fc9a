// Package models defines the entities that flow through a sync run.
//
//   - [Activity] : one entry from the Source activity listing
//   - [Artifact] : an exported activity file waiting to be uploaded
//   - [SyncRecord] : a ledger row proving an activity reached the Sink
//   - [SyncRun] : the history row written after each run
package models
