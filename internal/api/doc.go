// Package api defines the HTTP wire format shared by the daemon and the CLI.
//
// Job records are converted to transport DTOs with stable snake_case keys so
// the store schema can evolve without breaking consumers. Progress events are
// passed through as notify.Event, which already carries its own JSON tags.
//
// Client wraps the daemon endpoints for the CLI. Error responses decode into
// *Error, which keeps the HTTP status so callers can distinguish missing jobs
// from rejected submissions.
package api
