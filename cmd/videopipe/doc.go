// Package main hosts the videopipe CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into HTTP calls
// against the daemon API: submitting uploads, following job progress,
// deleting published videos, and resubmitting failures. Read-only commands
// fall back to the job database when the daemon is not running.
//
// Add new functionality to the internal packages first and surface it here
// through a dedicated command or flag.
package main
