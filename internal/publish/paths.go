package publish

import (
	"fmt"
	"path"
	"strings"

	"videopipe/internal/services"
	"videopipe/internal/transcode"
)

const (
	// RootPrefix is the top-level folder holding every published job.
	RootPrefix = "videos"

	ManifestExt    = transcode.ManifestExt
	SegmentExt     = transcode.SegmentExt
	ManifestType   = "application/x-mpegURL"
	SegmentType    = "video/MP2T"
	defaultRetries = 3
)

// Prefix returns the object prefix owned by one job, with a trailing slash.
func Prefix(folderLabel, jobID string) string {
	return path.Join(RootPrefix, folderLabel, jobID) + "/"
}

// ObjectKey returns the storage key for a file of a job.
func ObjectKey(folderLabel, jobID, filename string) string {
	return path.Join(RootPrefix, folderLabel, jobID, filename)
}

// PublicURL returns the playlist URL readers use for a published job.
func PublicURL(publicDomain, folderLabel, jobID string) string {
	return strings.TrimRight(publicDomain, "/") + "/" + ObjectKey(folderLabel, jobID, transcode.ManifestName)
}

// contentType returns the MIME type for uploadable files and false for
// everything else.
func contentType(filename string) (string, bool) {
	switch strings.ToLower(path.Ext(filename)) {
	case SegmentExt:
		return SegmentType, true
	case ManifestExt:
		return ManifestType, true
	default:
		return "", false
	}
}

func validatePathPart(kind, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || trimmed == "." || trimmed == ".." || strings.ContainsAny(trimmed, `/\`) {
		return services.Wrap(services.ErrValidation, "upload", "object path", fmt.Sprintf("invalid %s %q", kind, value), nil)
	}
	return nil
}
