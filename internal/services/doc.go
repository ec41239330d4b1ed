// Package services defines shared utilities consumed by the pipeline phases
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, phase names, worker slots, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify, which
//     turns any failure into a retry decision (validation, transient, fatal,
//     canceled).
//   - Summary, which shortens diagnostics into user-visible error reasons.
//
// Use these helpers when wiring new phase logic so error handling and
// observability stay uniform across the pipeline.
package services
