package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending             Status = "PENDING"
	StatusProcessingTranscode Status = "PROCESSING_TRANSCODE"
	StatusUploading           Status = "UPLOADING"
	StatusPublished           Status = "PUBLISHED"
	StatusError               Status = "ERROR"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessingTranscode,
	StatusUploading,
	StatusPublished,
	StatusError,
}

var transitions = map[Status][]Status{
	StatusPending:             {StatusProcessingTranscode, StatusError},
	StatusProcessingTranscode: {StatusUploading, StatusError},
	StatusUploading:           {StatusPublished, StatusError},
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions can occur.
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusError
}

// IsInFlight reports whether a worker is actively driving the job.
func (s Status) IsInFlight() bool {
	return s == StatusProcessingTranscode || s == StatusUploading
}

// CanTransition reports whether from -> to is a forward lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AspectVariant selects the output framing chosen at submission.
type AspectVariant string

const (
	AspectWide AspectVariant = "WIDE"
	AspectTall AspectVariant = "TALL"
)

// ParseAspectVariant accepts WIDE/TALL in any case; empty means WIDE.
func ParseAspectVariant(value string) (AspectVariant, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", string(AspectWide):
		return AspectWide, true
	case string(AspectTall):
		return AspectTall, true
	default:
		return "", false
	}
}

// Metadata holds the suggested publishing metadata for a job.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// IsZero reports whether no metadata has been recorded.
func (m Metadata) IsZero() bool {
	return m.Title == "" && m.Description == "" && len(m.Tags) == 0
}

// Job is the unit of transcoding and publishing work.
type Job struct {
	ID                  string
	Filename            string
	SourceRef           string
	OriginPath          string
	OriginalSizeBytes   int64
	Category            string
	FolderLabel         string
	CropBottomPx        int
	AspectVariant       AspectVariant
	Status              Status
	ProgressPercent     int
	CompressedSizeBytes int64
	PublishedURL        string
	ErrorReason         string
	ClaimToken          string
	LeaseExpiresAt      *time.Time
	LastHeartbeat       *time.Time
	Attempts            int
	Version             int64
	Metadata            Metadata
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Expectation captures the state a writer last observed.
type Expectation struct {
	Status     Status
	Version    int64
	ClaimToken string
}

// Expect returns the CAS expectation matching the job as read.
func (j *Job) Expect() Expectation {
	if j == nil {
		return Expectation{}
	}
	return Expectation{Status: j.Status, Version: j.Version, ClaimToken: j.ClaimToken}
}

// Fields carries the side effects applied together with a status change.
// Nil pointers leave the column untouched.
type Fields struct {
	ProgressPercent     *int
	CompressedSizeBytes *int64
	PublishedURL        string
	ErrorReason         string
	ClearSourceRef      bool
}

// Progress is a convenience for building Fields.ProgressPercent.
func Progress(percent int) *int {
	return &percent
}

// Size is a convenience for building Fields.CompressedSizeBytes.
func Size(bytes int64) *int64 {
	return &bytes
}

// ReclaimResult summarizes lease expiry handling.
type ReclaimResult struct {
	Released int64
	Failed   []string
}

// LeaseExpiredReason is recorded on in-flight jobs whose worker stopped heartbeating.
const LeaseExpiredReason = "worker lease expired"
