// Package jobs persists video processing jobs in SQLite and exposes the
// optimistic-concurrency contract every worker goes through.
//
// A job is created PENDING, claimed by exactly one worker token under a
// time-bounded lease, and advanced through PROCESSING_TRANSCODE and
// UPLOADING to PUBLISHED, or to ERROR from any non-terminal status. Status
// writes are compare-and-swap on (status, version, claim token): a stale
// writer receives ErrConflict and must re-read instead of overwriting.
// Progress is stored monotonically and never moves backward.
//
// The database is treated as operational state rather than an archive.
// Schema changes bump the version in schema.go; operators clear the database
// to adopt the new schema.
package jobs
