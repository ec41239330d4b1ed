// Package notify fans out per-job progress snapshots to in-process
// subscribers and optional sinks.
//
// Events for one job carry increasing sequence numbers and never lower the
// progress percent. Each job gets exactly one terminal event; the hub keeps
// the latest event so late subscribers receive it as a replay instead of
// blocking. History is dropped when the job record is removed.
package notify
