// Package daemon coordinates the long-running videopipe process.
//
// It ties the job store, the submission service, the worker pool, and the
// progress hub into a single lifecycle guarded by a flock so only one daemon
// runs per host. The HTTP API is the only way other processes reach a running
// daemon: submissions, deletions, resubmissions, and the long-poll progress
// feed all pass through here.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown, and request routing.
package daemon
