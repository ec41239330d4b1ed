package jobs

import "errors"

var (
	// ErrNotFound indicates the job id does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrConflict indicates the caller's observed status, version, or claim no longer matches.
	ErrConflict = errors.New("job state conflict")
	// ErrAlreadyClaimed indicates another worker holds a live claim or the job left PENDING.
	ErrAlreadyClaimed = errors.New("job already claimed")
	// ErrInvalidTransition indicates the requested status change is not part of the lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidJob indicates a job failed creation-time checks.
	ErrInvalidJob = errors.New("invalid job")
)
