// Package pipeline drives jobs from PENDING to a terminal status.
//
// A Manager runs a fixed pool of workers. Each worker reclaims expired
// leases, claims the oldest claimable job, and walks it through validation,
// transcoding, and upload. Status changes are compare-and-swap writes against
// the job store; progress events reach the notify hub only after the store
// accepted them, so subscribers always observe committed state.
//
// While a job is claimed, a heartbeat loop extends its lease and a watcher
// polls for the record's removal. Deleting a job cancels its context, which
// kills ffmpeg or aborts the upload, removes any remote objects under the
// job's prefix, and discards local artifacts.
//
// Transient failures are retried per phase with exponential backoff and a
// per-attempt timeout. Validation and fatal failures end the job in ERROR
// immediately. Retries are logged but never published.
package pipeline
